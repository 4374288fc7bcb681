// Package events publishes booking events to a RabbitMQ topic exchange for
// the notification subsystem.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/worker-booking/internal/application"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends booking events as JSON. The routing key is the event type,
// for example "booking.status_changed".
type Publisher struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
	now      func() time.Time
}

var _ application.EventSink = (*Publisher)(nil)

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p := NewPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an already opened channel.
func NewPublisher(ch Channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, now: time.Now}
}

// Publish implements application.EventSink. Conflict rejections never
// changed stored state and are left to metrics.
func (p *Publisher) Publish(ctx context.Context, event application.Event) error {
	if event.Type == application.EventBookingConflictRejected {
		return nil
	}
	return p.PublishJSON(ctx, string(event.Type), newMessage(event))
}

// PublishJSON marshals v and publishes it persistently under key.
func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    p.now().UTC(),
		Type:         key,
		Body:         b,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Close releases the channel and, when dialled, the connection.
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Message is the JSON body of every published event.
type Message struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	ActorID    string         `json:"actor_id"`
	Booking    BookingPayload `json:"booking"`
	Change     *ChangePayload `json:"change,omitempty"`
}

// BookingPayload is the booking snapshot carried by a message.
type BookingPayload struct {
	ID                     string     `json:"id"`
	WorkerID               string     `json:"worker_id"`
	CustomerID             string     `json:"customer_id"`
	JobID                  *string    `json:"job_id,omitempty"`
	ScheduledDate          civil.Date `json:"scheduled_date"`
	ScheduledTime          civil.Time `json:"scheduled_time"`
	EstimatedDurationHours *int       `json:"estimated_duration_hours,omitempty"`
	Status                 string     `json:"status"`
	PaymentStatus          string     `json:"payment_status"`
	Notes                  *string    `json:"notes,omitempty"`
	CancellationReason     *string    `json:"cancellation_reason,omitempty"`
	CancelledAt            *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// ChangePayload is the audit record carried by created and status_changed messages.
type ChangePayload struct {
	Seq       int       `json:"seq"`
	OldStatus *string   `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ActorID   string    `json:"actor_id"`
	Reason    *string   `json:"reason"`
	ChangedAt time.Time `json:"changed_at"`
}

func newMessage(event application.Event) Message {
	b := event.Booking
	msg := Message{
		Type:       string(event.Type),
		OccurredAt: event.OccurredAt.UTC(),
		ActorID:    event.ActorID,
		Booking: BookingPayload{
			ID:                     b.ID,
			WorkerID:               b.WorkerID,
			CustomerID:             b.CustomerID,
			JobID:                  b.JobID,
			ScheduledDate:          b.ScheduledDate,
			ScheduledTime:          b.ScheduledTime,
			EstimatedDurationHours: b.EstimatedDurationHours,
			Status:                 string(b.Status),
			PaymentStatus:          b.PaymentStatus,
			Notes:                  b.Notes,
			CancellationReason:     b.CancellationReason,
			CancelledAt:            b.CancelledAt,
			CompletedAt:            b.CompletedAt,
			UpdatedAt:              b.UpdatedAt,
		},
	}
	if c := event.Change; c != nil {
		change := &ChangePayload{
			Seq:       c.Seq,
			NewStatus: string(c.NewStatus),
			ActorID:   c.ActorID,
			Reason:    c.Reason,
			ChangedAt: c.ChangedAt,
		}
		if c.OldStatus != nil {
			old := string(*c.OldStatus)
			change.OldStatus = &old
		}
		msg.Change = change
	}
	return msg
}
