package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTransition marks a requested edge that the lifecycle does not allow.
var ErrInvalidTransition = errors.New("scheduler: invalid status transition")

// TransitionError names the rejected edge.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot transition booking from %s to %s", e.From, e.To)
	if e.From.Terminal() {
		return msg + ": " + string(e.From) + " is final"
	}
	if allowed := AllowedTargets(e.From); len(allowed) > 0 {
		names := make([]string, len(allowed))
		for i, s := range allowed {
			names[i] = string(s)
		}
		return msg + " (allowed: " + strings.Join(names, ", ") + ")"
	}
	return msg
}

// Is allows errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Lifecycle holds the status-owned fields of a booking.
type Lifecycle struct {
	Status             Status
	CancellationReason *string
	CancelledAt        *time.Time
	CompletedAt        *time.Time
}

// StatusChange is one audit record produced by a lifecycle step.
type StatusChange struct {
	OldStatus *Status
	NewStatus Status
	ActorID   string
	Reason    *string
	ChangedAt time.Time
}

// CreationReason is recorded on the first audit record of every booking.
const CreationReason = "Booking created"

// Created returns the initial lifecycle of a booking together with its
// creation audit record.
func Created(actorID string, at time.Time) (Lifecycle, StatusChange) {
	reason := CreationReason
	return Lifecycle{Status: StatusRequested}, StatusChange{
		NewStatus: StatusRequested,
		ActorID:   actorID,
		Reason:    &reason,
		ChangedAt: at,
	}
}

// Transition applies one lifecycle step. On failure the input is returned
// unchanged together with the error.
//
// Moving to cancelled stores the reason (which may be empty) and stamps
// CancelledAt; moving to completed stamps CompletedAt. The returned
// StatusChange carries the reason only when it is non-empty.
func Transition(current Lifecycle, target Status, actorID, reason string, at time.Time) (Lifecycle, StatusChange, error) {
	if !target.Valid() {
		return current, StatusChange{}, fmt.Errorf("%w: %q", ErrUnknownStatus, string(target))
	}
	if !CanTransition(current.Status, target) {
		return current, StatusChange{}, &TransitionError{From: current.Status, To: target}
	}

	next := current
	next.Status = target
	switch target {
	case StatusCancelled:
		r := reason
		stamp := at
		next.CancellationReason = &r
		next.CancelledAt = &stamp
	case StatusCompleted:
		stamp := at
		next.CompletedAt = &stamp
	}

	from := current.Status
	change := StatusChange{
		OldStatus: &from,
		NewStatus: target,
		ActorID:   actorID,
		ChangedAt: at,
	}
	if reason != "" {
		r := reason
		change.Reason = &r
	}
	return next, change, nil
}
