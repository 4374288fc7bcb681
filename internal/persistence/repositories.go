package persistence

import "context"

// BookingReader exposes read access to bookings and their history.
type BookingReader interface {
	GetBooking(ctx context.Context, id string) (Booking, error)
	// ListBookings returns matching bookings ordered by date, time and id.
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	// ListStatusChanges returns a booking's history ordered by Seq.
	ListStatusChanges(ctx context.Context, bookingID string) ([]StatusChange, error)
}

// BookingWriter mutates bookings. Writers never run outside a scope.
type BookingWriter interface {
	InsertBooking(ctx context.Context, booking Booking) error
	UpdateBooking(ctx context.Context, booking Booking) error
	// DeleteBooking removes the booking together with its history.
	DeleteBooking(ctx context.Context, id string) error
	// AppendStatusChange stores change after the booking's latest record and
	// returns it with Seq assigned. ErrChainMismatch is returned when
	// change.OldStatus does not equal the latest NewStatus.
	AppendStatusChange(ctx context.Context, change StatusChange) (StatusChange, error)
}

// BookingTx is the view of the store available inside a scope. Everything
// done through it commits together or not at all.
type BookingTx interface {
	BookingReader
	BookingWriter
}

// TxFunc runs inside a store scope.
type TxFunc func(ctx context.Context, tx BookingTx) error

// BookingStore is the single owner of booking and history records.
//
// InWorkerScope serializes every scope opened for the same worker, which makes
// check-then-insert sequences atomic. InBookingScope serializes work on one
// booking. Scopes for different keys may run concurrently.
type BookingStore interface {
	BookingReader
	InWorkerScope(ctx context.Context, workerID string, fn TxFunc) error
	InBookingScope(ctx context.Context, bookingID string, fn TxFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// ActiveStatuses lists the stored status values that commit a worker to a date.
var ActiveStatuses = []string{"accepted", "in_progress"}

// IsActiveStatus reports whether status is one of ActiveStatuses.
func IsActiveStatus(status string) bool {
	for _, s := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}
