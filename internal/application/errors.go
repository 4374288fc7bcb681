package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/worker-booking/internal/directory"
	"github.com/example/worker-booking/internal/persistence"
	"github.com/example/worker-booking/internal/scheduler"
)

var (
	// ErrUnauthorized is returned when the acting principal is neither a participant nor an administrator.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when a booking, profile, job or user does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrSchedulingConflict is matched by *ConflictError.
	ErrSchedulingConflict = errors.New("application: scheduling conflict")
	// ErrInvalidState is matched by *StateError.
	ErrInvalidState = errors.New("application: invalid booking state")
	// ErrInvalidTransition is matched by *TransitionError.
	ErrInvalidTransition = scheduler.ErrInvalidTransition
)

// TransitionError names a status edge the lifecycle does not allow.
type TransitionError = scheduler.TransitionError

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// ConflictError reports that the worker already holds active commitments on
// the requested date. Only the count is exposed.
type ConflictError struct {
	Count int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("worker is already booked on that date (%d active booking(s))", e.Count)
}

// Is allows errors.Is(err, ErrSchedulingConflict).
func (e *ConflictError) Is(target error) bool {
	return target == ErrSchedulingConflict
}

// StateError reports an operation refused because of the booking's status.
type StateError struct {
	Status scheduler.Status
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("booking is %s: %s", e.Status, e.Reason)
}

// Is allows errors.Is(err, ErrInvalidState).
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// mapStoreError translates persistence and directory sentinels into service errors.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound), errors.Is(err, directory.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrActiveSlotTaken):
		return &ConflictError{Count: 1}
	}

	// Service errors raised inside a store scope pass through untouched.
	var (
		vErr *ValidationError
		cErr *ConflictError
		sErr *StateError
		tErr *TransitionError
	)
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) ||
		errors.As(err, &vErr) || errors.As(err, &cErr) || errors.As(err, &sErr) || errors.As(err, &tErr) {
		return err
	}
	return fmt.Errorf("booking store: %w", err)
}
