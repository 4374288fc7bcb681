package application

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/example/worker-booking/internal/scheduler"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// Booking is a reservation of a worker's day by a customer.
type Booking struct {
	ID                     string
	WorkerID               string
	CustomerID             string
	JobID                  *string
	ScheduledDate          civil.Date
	ScheduledTime          civil.Time
	EstimatedDurationHours *int
	Status                 scheduler.Status
	FinalCostCents         *int64
	PaymentStatus          string
	Notes                  *string
	CancellationReason     *string
	CancelledAt            *time.Time
	CompletedAt            *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// StatusChange is one entry of a booking's audit trail.
type StatusChange struct {
	ID        string
	BookingID string
	Seq       int
	OldStatus *scheduler.Status
	NewStatus scheduler.Status
	ActorID   string
	Reason    *string
	ChangedAt time.Time
}

// CreateBookingInput captures caller provided booking fields. Date and time
// arrive as text and are parsed by the service.
type CreateBookingInput struct {
	JobID                  *string
	WorkerID               string
	ScheduledDate          string
	ScheduledTime          string
	EstimatedDurationHours *int
	Notes                  *string
}

// CreateBookingParams wraps the data required to create a booking. The
// principal is the requesting customer.
type CreateBookingParams struct {
	Principal Principal
	Input     CreateBookingInput
}

// TransitionStatusParams identifies a requested lifecycle step.
type TransitionStatusParams struct {
	Principal Principal
	BookingID string
	Status    string
	Reason    string
}

// UpdateScheduleParams carries an edit of a pending booking. Nil notes and
// blank date or time leave the field unchanged.
type UpdateScheduleParams struct {
	Principal     Principal
	BookingID     string
	Notes         *string
	ScheduledDate string
	ScheduledTime string
}

// DeleteBookingParams identifies the booking to delete.
type DeleteBookingParams struct {
	Principal Principal
	BookingID string
}
