package http

import (
	"net/http"
)

// RouterConfig collects the handlers and middleware served by NewRouter.
// Nil handlers leave their routes unregistered.
type RouterConfig struct {
	Bookings *BookingHandler
	Health   *HealthHandler
	Metrics  http.Handler
	// Auth guards every booking and worker route.
	Auth func(http.Handler) http.Handler
	// Middleware wraps the whole mux, outermost first.
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	protect := cfg.Auth
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protect(fn))
	}

	if cfg.Bookings != nil {
		handle("POST /bookings", cfg.Bookings.Create)
		handle("GET /bookings", cfg.Bookings.All)
		handle("GET /bookings/mine", cfg.Bookings.Mine)
		handle("GET /bookings/{id}", cfg.Bookings.Get)
		handle("PUT /bookings/{id}", cfg.Bookings.Update)
		handle("DELETE /bookings/{id}", cfg.Bookings.Delete)
		handle("PATCH /bookings/{id}/status", cfg.Bookings.UpdateStatus)
		handle("GET /bookings/{id}/history", cfg.Bookings.History)
		handle("GET /workers/{id}/busy-dates", cfg.Bookings.BusyDates)
	}

	if cfg.Health != nil {
		mux.HandleFunc("GET /healthz", cfg.Health.Check)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}
