package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/worker-booking/internal/application"
	"github.com/example/worker-booking/internal/scheduler"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type channelStub struct {
	sent   []published
	err    error
	closed bool
}

func (c *channelStub) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *channelStub) Close() error {
	c.closed = true
	return nil
}

func statusChangedEvent() application.Event {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	old := scheduler.StatusRequested
	reason := "see you then"
	return application.Event{
		Type:       application.EventBookingStatusChanged,
		OccurredAt: at,
		ActorID:    "user-worker",
		Booking: application.Booking{
			ID:            "booking-1",
			WorkerID:      "worker-1",
			CustomerID:    "customer-1",
			ScheduledDate: civil.Date{Year: 2025, Month: 6, Day: 3},
			ScheduledTime: civil.Time{Hour: 9, Minute: 30},
			Status:        scheduler.StatusAccepted,
			PaymentStatus: "pending",
			UpdatedAt:     at,
		},
		Change: &application.StatusChange{
			Seq:       2,
			OldStatus: &old,
			NewStatus: scheduler.StatusAccepted,
			ActorID:   "user-worker",
			Reason:    &reason,
			ChangedAt: at,
		},
	}
}

func TestPublishStatusChanged(t *testing.T) {
	t.Parallel()

	ch := &channelStub{}
	publisher := NewPublisher(ch, "booking.exchange")
	if err := publisher.Publish(context.Background(), statusChangedEvent()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(ch.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.sent))
	}
	sent := ch.sent[0]
	if sent.exchange != "booking.exchange" || sent.key != "booking.status_changed" {
		t.Fatalf("unexpected routing %s/%s", sent.exchange, sent.key)
	}
	if sent.msg.ContentType != "application/json" || sent.msg.DeliveryMode != amqp.Persistent || sent.msg.MessageId == "" {
		t.Fatalf("unexpected publishing headers: %+v", sent.msg)
	}

	var body map[string]any
	if err := json.Unmarshal(sent.msg.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	booking := body["booking"].(map[string]any)
	if booking["scheduled_date"] != "2025-06-03" || booking["scheduled_time"] != "09:30:00" || booking["status"] != "accepted" {
		t.Fatalf("unexpected booking payload: %v", booking)
	}
	change := body["change"].(map[string]any)
	if change["old_status"] != "requested" || change["new_status"] != "accepted" || change["seq"] != float64(2) {
		t.Fatalf("unexpected change payload: %v", change)
	}
}

func TestPublishSkipsConflictRejections(t *testing.T) {
	t.Parallel()

	ch := &channelStub{}
	publisher := NewPublisher(ch, "booking.exchange")
	event := statusChangedEvent()
	event.Type = application.EventBookingConflictRejected
	event.Change = nil

	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(ch.sent) != 0 {
		t.Fatalf("expected nothing published, got %d", len(ch.sent))
	}
}

func TestPublishWrapsChannelErrors(t *testing.T) {
	t.Parallel()

	brokerDown := errors.New("channel closed")
	publisher := NewPublisher(&channelStub{err: brokerDown}, "booking.exchange")
	event := statusChangedEvent()
	event.Type = application.EventBookingDeleted

	err := publisher.Publish(context.Background(), event)
	if !errors.Is(err, brokerDown) {
		t.Fatalf("expected wrapped channel error, got %v", err)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	t.Parallel()

	ch := &channelStub{}
	if err := NewPublisher(ch, "x").Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !ch.closed {
		t.Fatal("expected channel closed")
	}
}
