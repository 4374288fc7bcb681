package application

import (
	"context"
	"errors"
	"time"
)

// EventType names a booking event.
type EventType string

const (
	EventBookingCreated          EventType = "booking.created"
	EventBookingStatusChanged    EventType = "booking.status_changed"
	EventBookingScheduleUpdated  EventType = "booking.schedule_updated"
	EventBookingDeleted          EventType = "booking.deleted"
	EventBookingConflictRejected EventType = "booking.conflict_rejected"
)

// Event is emitted after a booking operation commits, or when a creation is
// refused because of a conflict.
type Event struct {
	Type       EventType
	OccurredAt time.Time
	ActorID    string
	Booking    Booking
	// Change is set for created and status_changed events.
	Change *StatusChange
	// ConflictCount is set for conflict_rejected events.
	ConflictCount int
}

// EventSink receives booking events. Implementations must not block for long.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// Sinks fans an event out to several sinks.
type Sinks []EventSink

// Publish delivers the event to every sink and joins their errors.
func (s Sinks) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
