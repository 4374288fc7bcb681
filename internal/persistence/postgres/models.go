package postgres

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/example/worker-booking/internal/persistence"
)

type bookingRecord struct {
	ID                     string    `gorm:"primaryKey;type:text"`
	WorkerID               string    `gorm:"type:text;not null;index:idx_bookings_worker_date,priority:1"`
	CustomerID             string    `gorm:"type:text;not null;index:idx_bookings_customer"`
	JobID                  *string   `gorm:"type:text"`
	ScheduledDate          time.Time `gorm:"type:date;not null;index:idx_bookings_worker_date,priority:2"`
	ScheduledTime          string    `gorm:"type:text;not null"`
	EstimatedDurationHours *int
	Status                 string  `gorm:"type:text;not null;default:requested"`
	FinalCostCents         *int64  `gorm:"type:bigint"`
	PaymentStatus          string  `gorm:"type:text;not null;default:pending"`
	Notes                  *string `gorm:"type:text"`
	CancellationReason     *string `gorm:"type:text"`
	CancelledAt            *time.Time
	CompletedAt            *time.Time
	CreatedAt              time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime:false"`
}

func (bookingRecord) TableName() string { return "bookings" }

type statusChangeRecord struct {
	ID        string    `gorm:"primaryKey;type:text"`
	BookingID string    `gorm:"type:text;not null;uniqueIndex:idx_history_booking_seq,priority:1"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_history_booking_seq,priority:2"`
	OldStatus *string   `gorm:"type:text"`
	NewStatus string    `gorm:"type:text;not null"`
	ActorID   string    `gorm:"type:text;not null"`
	Reason    *string   `gorm:"type:text"`
	ChangedAt time.Time `gorm:"not null"`
}

func (statusChangeRecord) TableName() string { return "booking_status_history" }

func toBookingRecord(b persistence.Booking) bookingRecord {
	payment := b.PaymentStatus
	if payment == "" {
		payment = "pending"
	}
	return bookingRecord{
		ID:                     b.ID,
		WorkerID:               b.WorkerID,
		CustomerID:             b.CustomerID,
		JobID:                  b.JobID,
		ScheduledDate:          b.ScheduledDate.In(time.UTC),
		ScheduledTime:          fmt.Sprintf("%02d:%02d:%02d", b.ScheduledTime.Hour, b.ScheduledTime.Minute, b.ScheduledTime.Second),
		EstimatedDurationHours: b.EstimatedDurationHours,
		Status:                 b.Status,
		FinalCostCents:         b.FinalCostCents,
		PaymentStatus:          payment,
		Notes:                  b.Notes,
		CancellationReason:     b.CancellationReason,
		CancelledAt:            utcPtr(b.CancelledAt),
		CompletedAt:            utcPtr(b.CompletedAt),
		CreatedAt:              b.CreatedAt.UTC(),
		UpdatedAt:              b.UpdatedAt.UTC(),
	}
}

func (r bookingRecord) toPersistence() (persistence.Booking, error) {
	clock, err := civil.ParseTime(r.ScheduledTime)
	if err != nil {
		return persistence.Booking{}, fmt.Errorf("parse scheduled_time %q: %w", r.ScheduledTime, err)
	}
	return persistence.Booking{
		ID:                     r.ID,
		WorkerID:               r.WorkerID,
		CustomerID:             r.CustomerID,
		JobID:                  r.JobID,
		ScheduledDate:          civil.DateOf(r.ScheduledDate),
		ScheduledTime:          clock,
		EstimatedDurationHours: r.EstimatedDurationHours,
		Status:                 r.Status,
		FinalCostCents:         r.FinalCostCents,
		PaymentStatus:          r.PaymentStatus,
		Notes:                  r.Notes,
		CancellationReason:     r.CancellationReason,
		CancelledAt:            utcPtr(r.CancelledAt),
		CompletedAt:            utcPtr(r.CompletedAt),
		CreatedAt:              r.CreatedAt.UTC(),
		UpdatedAt:              r.UpdatedAt.UTC(),
	}, nil
}

func toStatusChangeRecord(c persistence.StatusChange) statusChangeRecord {
	return statusChangeRecord{
		ID:        c.ID,
		BookingID: c.BookingID,
		Seq:       c.Seq,
		OldStatus: c.OldStatus,
		NewStatus: c.NewStatus,
		ActorID:   c.ActorID,
		Reason:    c.Reason,
		ChangedAt: c.ChangedAt.UTC(),
	}
}

func (r statusChangeRecord) toPersistence() persistence.StatusChange {
	return persistence.StatusChange{
		ID:        r.ID,
		BookingID: r.BookingID,
		Seq:       r.Seq,
		OldStatus: r.OldStatus,
		NewStatus: r.NewStatus,
		ActorID:   r.ActorID,
		Reason:    r.Reason,
		ChangedAt: r.ChangedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
