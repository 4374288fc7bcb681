package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/example/worker-booking/internal/directory"
	"github.com/example/worker-booking/internal/persistence"
	"github.com/example/worker-booking/internal/scheduler"
)

// BookingService orchestrates directory lookups, lifecycle rules and the
// booking store.
type BookingService struct {
	store       persistence.BookingStore
	profiles    directory.Profiles
	jobs        directory.Jobs
	events      EventSink
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBookingService wires dependencies for booking operations.
func NewBookingService(store persistence.BookingStore, profiles directory.Profiles, jobs directory.Jobs, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(store, profiles, jobs, nil, idGenerator, now, nil)
}

// NewBookingServiceWithLogger constructs a booking service with an event sink and a specified logger.
func NewBookingServiceWithLogger(store persistence.BookingStore, profiles directory.Profiles, jobs directory.Jobs, events EventSink, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		store:       store,
		profiles:    profiles,
		jobs:        jobs,
		events:      events,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// CreateBooking records a customer's request for a worker's day. The
// principal must own a customer profile.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	input := params.Input

	logger := s.loggerWith(ctx, "CreateBooking",
		"principal_id", params.Principal.UserID,
		"worker_id", input.WorkerID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", booking.ID).InfoContext(ctx, "booking created")
	}()

	if strings.TrimSpace(params.Principal.UserID) == "" {
		err = ErrUnauthorized
		return
	}

	worker, err := s.profiles.Worker(ctx, input.WorkerID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	customer, err := s.profiles.CustomerForUser(ctx, params.Principal.UserID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if input.JobID != nil {
		if s.jobs == nil {
			err = ErrNotFound
			return
		}
		if _, err = s.jobs.Job(ctx, *input.JobID); err != nil {
			err = mapStoreError(err)
			return
		}
	}

	vErr := &ValidationError{}
	date, dateOK := parseDate(input.ScheduledDate, vErr)
	clock, clockOK := parseClock(input.ScheduledTime, vErr)
	if !dateOK && strings.TrimSpace(input.ScheduledDate) == "" {
		vErr.add("scheduled_date", "scheduled date is required")
	}
	if !clockOK && strings.TrimSpace(input.ScheduledTime) == "" {
		vErr.add("scheduled_time", "scheduled time is required")
	}
	if input.EstimatedDurationHours != nil && *input.EstimatedDurationHours <= 0 {
		vErr.add("estimated_duration_hours", "estimated duration must be positive")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now().UTC()
	lifecycle, created := scheduler.Created(params.Principal.UserID, now)
	record := persistence.Booking{
		ID:                     s.idGenerator(),
		WorkerID:               worker.ID,
		CustomerID:             customer.ID,
		JobID:                  input.JobID,
		ScheduledDate:          date,
		ScheduledTime:          clock,
		EstimatedDurationHours: input.EstimatedDurationHours,
		PaymentStatus:          "pending",
		Notes:                  input.Notes,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	record = applyLifecycle(record, lifecycle)

	var stored persistence.StatusChange
	err = s.store.InWorkerScope(ctx, worker.ID, func(ctx context.Context, tx persistence.BookingTx) error {
		sameDay, err := tx.ListBookings(ctx, persistence.BookingFilter{WorkerID: worker.ID, Date: &date})
		if err != nil {
			return err
		}
		if conflicts := scheduler.FindConflicts(schedulerBookings(sameDay), worker.ID, date, scheduler.ActiveStatuses); len(conflicts) > 0 {
			return &ConflictError{Count: len(conflicts)}
		}
		if err := tx.InsertBooking(ctx, record); err != nil {
			return err
		}
		stored, err = tx.AppendStatusChange(ctx, changeToPersistence(s.idGenerator(), record.ID, created))
		return err
	})
	if err != nil {
		err = mapStoreError(err)
		var cErr *ConflictError
		if errors.As(err, &cErr) {
			s.publish(ctx, logger, Event{
				Type:          EventBookingConflictRejected,
				OccurredAt:    now,
				ActorID:       params.Principal.UserID,
				Booking:       bookingFromPersistence(record),
				ConflictCount: cErr.Count,
			})
		}
		return
	}

	booking = bookingFromPersistence(record)
	change := changeFromPersistence(stored)
	s.publish(ctx, logger, Event{
		Type:       EventBookingCreated,
		OccurredAt: now,
		ActorID:    params.Principal.UserID,
		Booking:    booking,
		Change:     &change,
	})
	return
}

// TransitionStatus moves a booking along its lifecycle and records the step
// in the audit trail. No conflict search runs here; an acceptance that would
// double-book the worker is refused by the store and reported as a conflict
// rejection event.
func (s *BookingService) TransitionStatus(ctx context.Context, params TransitionStatusParams) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "TransitionStatus",
		"principal_id", params.Principal.UserID,
		"booking_id", params.BookingID,
		"target_status", params.Status,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to transition booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking status changed")
	}()

	target, parseErr := scheduler.ParseStatus(params.Status)
	if parseErr != nil {
		vErr := &ValidationError{}
		vErr.add("status", "unknown status")
		err = vErr
		return
	}

	actor, err := s.resolveActor(ctx, params.Principal)
	if err != nil {
		return
	}

	now := s.now().UTC()
	var (
		loaded  persistence.Booking
		updated persistence.Booking
		stored  persistence.StatusChange
	)
	err = s.store.InBookingScope(ctx, params.BookingID, func(ctx context.Context, tx persistence.BookingTx) error {
		current, err := tx.GetBooking(ctx, params.BookingID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, actor, current); err != nil {
			return err
		}
		loaded = current

		next, change, err := scheduler.Transition(lifecycleOf(current), target, actor.UserID, params.Reason, now)
		if err != nil {
			return err
		}
		updated = touch(applyLifecycle(current, next), now)
		if err := tx.UpdateBooking(ctx, updated); err != nil {
			return err
		}
		stored, err = tx.AppendStatusChange(ctx, changeToPersistence(s.idGenerator(), current.ID, change))
		return err
	})
	if err != nil {
		err = mapStoreError(err)
		var cErr *ConflictError
		if errors.As(err, &cErr) {
			s.publish(ctx, logger, Event{
				Type:          EventBookingConflictRejected,
				OccurredAt:    now,
				ActorID:       actor.UserID,
				Booking:       bookingFromPersistence(loaded),
				ConflictCount: cErr.Count,
			})
		}
		return
	}

	booking = bookingFromPersistence(updated)
	change := changeFromPersistence(stored)
	s.publish(ctx, logger, Event{
		Type:       EventBookingStatusChanged,
		OccurredAt: now,
		ActorID:    actor.UserID,
		Booking:    booking,
		Change:     &change,
	})
	return
}

// UpdateSchedule edits notes, date or time of a booking that is still
// requested. It is not a status change, so no audit record is written, and
// the date is not re-checked for conflicts.
func (s *BookingService) UpdateSchedule(ctx context.Context, params UpdateScheduleParams) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSchedule",
		"principal_id", params.Principal.UserID,
		"booking_id", params.BookingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking updated")
	}()

	vErr := &ValidationError{}
	var (
		date  civil.Date
		clock civil.Time
	)
	hasDate := strings.TrimSpace(params.ScheduledDate) != ""
	hasClock := strings.TrimSpace(params.ScheduledTime) != ""
	if hasDate {
		date, _ = parseDate(params.ScheduledDate, vErr)
	}
	if hasClock {
		clock, _ = parseClock(params.ScheduledTime, vErr)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	actor, err := s.resolveActor(ctx, params.Principal)
	if err != nil {
		return
	}

	now := s.now().UTC()
	var updated persistence.Booking
	err = s.store.InBookingScope(ctx, params.BookingID, func(ctx context.Context, tx persistence.BookingTx) error {
		current, err := tx.GetBooking(ctx, params.BookingID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, actor, current); err != nil {
			return err
		}
		if status := scheduler.Status(current.Status); status != scheduler.StatusRequested {
			return &StateError{Status: status, Reason: "only requested bookings are editable"}
		}

		updated = current
		if params.Notes != nil {
			notes := *params.Notes
			updated.Notes = &notes
		}
		if hasDate {
			updated.ScheduledDate = date
		}
		if hasClock {
			updated.ScheduledTime = clock
		}
		updated = touch(updated, now)
		return tx.UpdateBooking(ctx, updated)
	})
	if err != nil {
		err = mapStoreError(err)
		return
	}

	booking = bookingFromPersistence(updated)
	s.publish(ctx, logger, Event{
		Type:       EventBookingScheduleUpdated,
		OccurredAt: now,
		ActorID:    actor.UserID,
		Booking:    booking,
	})
	return
}

// DeleteBooking removes a booking and its audit trail. Active bookings must
// be cancelled first.
func (s *BookingService) DeleteBooking(ctx context.Context, params DeleteBookingParams) (err error) {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteBooking",
		"principal_id", params.Principal.UserID,
		"booking_id", params.BookingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking deleted")
	}()

	actor, err := s.resolveActor(ctx, params.Principal)
	if err != nil {
		return err
	}

	var deleted persistence.Booking
	err = s.store.InBookingScope(ctx, params.BookingID, func(ctx context.Context, tx persistence.BookingTx) error {
		current, err := tx.GetBooking(ctx, params.BookingID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, actor, current); err != nil {
			return err
		}
		if status := scheduler.Status(current.Status); status.Active() {
			return &StateError{Status: status, Reason: "cancel first"}
		}
		deleted = current
		return tx.DeleteBooking(ctx, current.ID)
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.publish(ctx, logger, Event{
		Type:       EventBookingDeleted,
		OccurredAt: s.now().UTC(),
		ActorID:    actor.UserID,
		Booking:    bookingFromPersistence(deleted),
	})
	return nil
}

// GetBooking returns one booking to a participant or an administrator.
func (s *BookingService) GetBooking(ctx context.Context, principal Principal, bookingID string) (Booking, error) {
	if s == nil {
		return Booking{}, fmt.Errorf("BookingService is nil")
	}
	current, err := s.readAuthorized(ctx, principal, bookingID)
	if err != nil {
		return Booking{}, err
	}
	return bookingFromPersistence(current), nil
}

// History returns the audit trail of a booking, oldest first.
func (s *BookingService) History(ctx context.Context, principal Principal, bookingID string) ([]StatusChange, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	if _, err := s.readAuthorized(ctx, principal, bookingID); err != nil {
		return nil, err
	}
	changes, err := s.store.ListStatusChanges(ctx, bookingID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	out := make([]StatusChange, 0, len(changes))
	for _, c := range changes {
		out = append(out, changeFromPersistence(c))
	}
	return out, nil
}

// BookingsForWorker lists the bookings of the worker profile owned by the principal.
func (s *BookingService) BookingsForWorker(ctx context.Context, principal Principal) ([]Booking, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	worker, err := s.profiles.WorkerForUser(ctx, principal.UserID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	bookings, err := s.store.ListBookings(ctx, persistence.BookingFilter{WorkerID: worker.ID})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return bookingsFromPersistence(bookings), nil
}

// BookingsForCustomer lists the bookings of the customer profile owned by the principal.
func (s *BookingService) BookingsForCustomer(ctx context.Context, principal Principal) ([]Booking, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	customer, err := s.profiles.CustomerForUser(ctx, principal.UserID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	bookings, err := s.store.ListBookings(ctx, persistence.BookingFilter{CustomerID: customer.ID})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return bookingsFromPersistence(bookings), nil
}

// AllBookings lists every booking. Administrators only.
func (s *BookingService) AllBookings(ctx context.Context, principal Principal) ([]Booking, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	actor, err := s.resolveActor(ctx, principal)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin {
		return nil, ErrUnauthorized
	}
	bookings, err := s.store.ListBookings(ctx, persistence.BookingFilter{})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return bookingsFromPersistence(bookings), nil
}

// WorkerBusyDates returns the distinct dates on which the worker holds an
// active commitment, oldest first.
func (s *BookingService) WorkerBusyDates(ctx context.Context, workerID string) ([]civil.Date, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	if _, err := s.profiles.Worker(ctx, workerID); err != nil {
		return nil, mapStoreError(err)
	}
	active, err := s.store.ListBookings(ctx, persistence.BookingFilter{
		WorkerID: workerID,
		Statuses: persistence.ActiveStatuses,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return scheduler.BusyDates(schedulerBookings(active), workerID), nil
}

func (s *BookingService) readAuthorized(ctx context.Context, principal Principal, bookingID string) (persistence.Booking, error) {
	actor, err := s.resolveActor(ctx, principal)
	if err != nil {
		return persistence.Booking{}, err
	}
	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return persistence.Booking{}, mapStoreError(err)
	}
	if err := s.authorize(ctx, actor, current); err != nil {
		return persistence.Booking{}, err
	}
	return current, nil
}

func (s *BookingService) publish(ctx context.Context, logger *slog.Logger, event Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish booking event", "event_type", string(event.Type), "error", err)
	}
}
