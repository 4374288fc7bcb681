package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle position of a booking.
type Status string

const (
	StatusRequested  Status = "requested"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
)

// ErrUnknownStatus is returned when a status name is not part of the lifecycle.
var ErrUnknownStatus = errors.New("scheduler: unknown status")

// transitions is the complete set of legal edges. Statuses mapping to an empty
// slice are terminal.
var transitions = map[Status][]Status{
	StatusRequested:  {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusRejected:   {},
}

// ActiveStatuses are the statuses that commit a worker to a calendar date.
var ActiveStatuses = []Status{StatusAccepted, StatusInProgress}

// AllStatuses lists every lifecycle status in declaration order.
func AllStatuses() []Status {
	return []Status{
		StatusRequested,
		StatusAccepted,
		StatusInProgress,
		StatusCompleted,
		StatusCancelled,
		StatusRejected,
	}
}

// ParseStatus converts a wire name into a Status. Matching ignores case and
// surrounding whitespace.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Active reports whether s commits the worker to the booking's date.
func (s Status) Active() bool {
	for _, active := range ActiveStatuses {
		if s == active {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns a copy of the statuses reachable from s in one step.
func AllowedTargets(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}
