package testfixtures

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/worker-booking/internal/application"
	"github.com/example/worker-booking/internal/directory"
	"github.com/example/worker-booking/internal/persistence"
	"github.com/example/worker-booking/internal/persistence/memory"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// BookingServiceDeps captures dependencies for constructing a booking
// service. A nil Store means a fresh in-memory store.
type BookingServiceDeps struct {
	Store       persistence.BookingStore
	Directory   directory.Directory
	Events      application.EventSink
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewBookingService builds a booking service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewBookingService(deps BookingServiceDeps) *application.BookingService {
	store := deps.Store
	if store == nil {
		store = memory.NewStore()
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return application.NewBookingServiceWithLogger(
		store,
		deps.Directory,
		deps.Directory,
		deps.Events,
		idGen,
		now,
		logger,
	)
}

// RecordingSink collects published events.
type RecordingSink struct {
	mu     sync.Mutex
	events []application.Event
}

// Publish records the event.
func (r *RecordingSink) Publish(_ context.Context, event application.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns the recorded events in publish order.
func (r *RecordingSink) Events() []application.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]application.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in publish order.
func (r *RecordingSink) Types() []application.EventType {
	events := r.Events()
	out := make([]application.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}
