package persistence

import (
	"time"

	"cloud.google.com/go/civil"
)

// Booking is the stored form of a worker reservation.
type Booking struct {
	ID                     string
	WorkerID               string
	CustomerID             string
	JobID                  *string
	ScheduledDate          civil.Date
	ScheduledTime          civil.Time
	EstimatedDurationHours *int
	Status                 string
	FinalCostCents         *int64
	PaymentStatus          string
	Notes                  *string
	CancellationReason     *string
	CancelledAt            *time.Time
	CompletedAt            *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// StatusChange is one stored audit record. Seq is the 1-based position in the
// booking's history and is assigned by the store on append.
type StatusChange struct {
	ID        string
	BookingID string
	Seq       int
	OldStatus *string
	NewStatus string
	ActorID   string
	Reason    *string
	ChangedAt time.Time
}

// BookingFilter narrows booking listings. Zero values match everything.
type BookingFilter struct {
	WorkerID   string
	CustomerID string
	Date       *civil.Date
	Statuses   []string
}

// Matches reports whether b satisfies the filter.
func (f BookingFilter) Matches(b Booking) bool {
	if f.WorkerID != "" && b.WorkerID != f.WorkerID {
		return false
	}
	if f.CustomerID != "" && b.CustomerID != f.CustomerID {
		return false
	}
	if f.Date != nil && b.ScheduledDate != *f.Date {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if b.Status == s {
				return true
			}
		}
		return false
	}
	return true
}
