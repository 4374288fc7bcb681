package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/worker-booking/internal/application"
)

// Metrics holds the booking service collectors.
type Metrics struct {
	registry *prometheus.Registry

	BookingEvents   *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	Conflicts       prometheus.Counter
	RequestDuration *prometheus.HistogramVec
	ErrorsCount     *prometheus.CounterVec
}

var _ application.EventSink = (*Metrics)(nil)

// NewMetrics creates collectors on a dedicated registry that also carries the
// Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		BookingEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_events_total",
			Help:      "The total number of booking events by type",
		}, []string{"type"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_transitions_total",
			Help:      "The total number of committed status transitions",
		}, []string{"from", "to"}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "The total number of creations and acceptances refused for a scheduling conflict",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time taken to serve HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		ErrorsCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "The total number of failed requests by error kind",
		}, []string{"kind"}),
	}
}

// Publish implements application.EventSink.
func (m *Metrics) Publish(_ context.Context, event application.Event) error {
	m.BookingEvents.WithLabelValues(string(event.Type)).Inc()
	switch event.Type {
	case application.EventBookingConflictRejected:
		m.Conflicts.Inc()
	case application.EventBookingStatusChanged:
		if c := event.Change; c != nil && c.OldStatus != nil {
			m.Transitions.WithLabelValues(string(*c.OldStatus), string(c.NewStatus)).Inc()
		}
	}
	return nil
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// ObserveError counts a failed request by application error kind.
func (m *Metrics) ObserveError(kind string) {
	m.ErrorsCount.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
