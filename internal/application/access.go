package application

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/example/worker-booking/internal/directory"
	"github.com/example/worker-booking/internal/persistence"
)

type actor struct {
	UserID  string
	IsAdmin bool
}

// resolveActor confirms the principal is a known user. Administrator rights
// come from either the token or the directory.
func (s *BookingService) resolveActor(ctx context.Context, principal Principal) (actor, error) {
	if strings.TrimSpace(principal.UserID) == "" {
		return actor{}, ErrUnauthorized
	}
	user, err := s.profiles.User(ctx, principal.UserID)
	if err != nil {
		return actor{}, mapStoreError(err)
	}
	return actor{UserID: user.ID, IsAdmin: principal.IsAdmin || user.IsAdmin}, nil
}

// authorize admits administrators and the users behind the booking's worker
// and customer profiles.
func (s *BookingService) authorize(ctx context.Context, a actor, b persistence.Booking) error {
	if a.IsAdmin {
		return nil
	}

	worker, err := s.profiles.Worker(ctx, b.WorkerID)
	switch {
	case err == nil && worker.UserID == a.UserID:
		return nil
	case err != nil && !errors.Is(err, directory.ErrNotFound):
		return mapStoreError(err)
	}

	customer, err := s.profiles.Customer(ctx, b.CustomerID)
	switch {
	case err == nil && customer.UserID == a.UserID:
		return nil
	case err != nil && !errors.Is(err, directory.ErrNotFound):
		return mapStoreError(err)
	}

	return ErrUnauthorized
}

// parseDate accepts YYYY-MM-DD. Blank input is reported as not ok without
// recording an error so callers can decide whether the field is required.
func parseDate(raw string, vErr *ValidationError) (civil.Date, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return civil.Date{}, false
	}
	date, err := civil.ParseDate(raw)
	if err != nil || !date.IsValid() {
		vErr.add("scheduled_date", "scheduled date must be formatted as YYYY-MM-DD")
		return civil.Date{}, false
	}
	return date, true
}

// parseClock accepts HH:MM and HH:MM:SS with two-digit fields. Fractional
// seconds are refused because the stores keep whole seconds.
func parseClock(raw string, vErr *ValidationError) (civil.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return civil.Time{}, false
	}
	candidate := raw
	if len(raw) == len("15:04") {
		candidate += ":00"
	}
	clock, err := civil.ParseTime(candidate)
	if err != nil || !clock.IsValid() || !isClockLayout(candidate) {
		vErr.add("scheduled_time", "scheduled time must be formatted as HH:MM or HH:MM:SS")
		return civil.Time{}, false
	}
	return clock, true
}

func isClockLayout(s string) bool {
	if len(s) != len("15:04:05") {
		return false
	}
	for i, r := range s {
		if i == 2 || i == 5 {
			if r != ':' {
				return false
			}
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
