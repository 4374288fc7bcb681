package application

import (
	"time"

	"github.com/example/worker-booking/internal/persistence"
	"github.com/example/worker-booking/internal/scheduler"
)

func bookingFromPersistence(b persistence.Booking) Booking {
	return Booking{
		ID:                     b.ID,
		WorkerID:               b.WorkerID,
		CustomerID:             b.CustomerID,
		JobID:                  b.JobID,
		ScheduledDate:          b.ScheduledDate,
		ScheduledTime:          b.ScheduledTime,
		EstimatedDurationHours: b.EstimatedDurationHours,
		Status:                 scheduler.Status(b.Status),
		FinalCostCents:         b.FinalCostCents,
		PaymentStatus:          b.PaymentStatus,
		Notes:                  b.Notes,
		CancellationReason:     b.CancellationReason,
		CancelledAt:            b.CancelledAt,
		CompletedAt:            b.CompletedAt,
		CreatedAt:              b.CreatedAt,
		UpdatedAt:              b.UpdatedAt,
	}
}

func bookingsFromPersistence(in []persistence.Booking) []Booking {
	out := make([]Booking, 0, len(in))
	for _, b := range in {
		out = append(out, bookingFromPersistence(b))
	}
	return out
}

func changeFromPersistence(c persistence.StatusChange) StatusChange {
	out := StatusChange{
		ID:        c.ID,
		BookingID: c.BookingID,
		Seq:       c.Seq,
		NewStatus: scheduler.Status(c.NewStatus),
		ActorID:   c.ActorID,
		Reason:    c.Reason,
		ChangedAt: c.ChangedAt,
	}
	if c.OldStatus != nil {
		old := scheduler.Status(*c.OldStatus)
		out.OldStatus = &old
	}
	return out
}

func changeToPersistence(id, bookingID string, c scheduler.StatusChange) persistence.StatusChange {
	out := persistence.StatusChange{
		ID:        id,
		BookingID: bookingID,
		NewStatus: string(c.NewStatus),
		ActorID:   c.ActorID,
		Reason:    c.Reason,
		ChangedAt: c.ChangedAt,
	}
	if c.OldStatus != nil {
		old := string(*c.OldStatus)
		out.OldStatus = &old
	}
	return out
}

func schedulerBookings(in []persistence.Booking) []scheduler.Booking {
	out := make([]scheduler.Booking, 0, len(in))
	for _, b := range in {
		out = append(out, scheduler.Booking{
			ID:       b.ID,
			WorkerID: b.WorkerID,
			Date:     b.ScheduledDate,
			Time:     b.ScheduledTime,
			Status:   scheduler.Status(b.Status),
		})
	}
	return out
}

func lifecycleOf(b persistence.Booking) scheduler.Lifecycle {
	return scheduler.Lifecycle{
		Status:             scheduler.Status(b.Status),
		CancellationReason: b.CancellationReason,
		CancelledAt:        b.CancelledAt,
		CompletedAt:        b.CompletedAt,
	}
}

func applyLifecycle(b persistence.Booking, l scheduler.Lifecycle) persistence.Booking {
	b.Status = string(l.Status)
	b.CancellationReason = l.CancellationReason
	b.CancelledAt = l.CancelledAt
	b.CompletedAt = l.CompletedAt
	return b
}

// touch keeps UpdatedAt non-decreasing even if the clock steps back.
func touch(b persistence.Booking, now time.Time) persistence.Booking {
	if now.After(b.UpdatedAt) {
		b.UpdatedAt = now
	}
	return b
}
