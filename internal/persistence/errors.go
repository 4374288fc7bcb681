package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a record with the same identifier already exists.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrActiveSlotTaken is returned when a write would leave a worker with two
	// active bookings on one date.
	ErrActiveSlotTaken = errors.New("persistence: worker already committed on date")
	// ErrChainMismatch is returned when an appended status change does not
	// continue the booking's history.
	ErrChainMismatch = errors.New("persistence: status history out of sequence")
)
