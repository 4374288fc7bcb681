package application_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/example/worker-booking/internal/application"
	"github.com/example/worker-booking/internal/persistence"
	"github.com/example/worker-booking/internal/persistence/memory"
	"github.com/example/worker-booking/internal/scheduler"
	"github.com/example/worker-booking/internal/testfixtures"
)

type serviceEnv struct {
	market  testfixtures.Marketplace
	store   persistence.BookingStore
	clock   *testfixtures.Clock
	sink    *testfixtures.RecordingSink
	service *application.BookingService
}

func newServiceEnv(t *testing.T, store persistence.BookingStore) *serviceEnv {
	t.Helper()
	if store == nil {
		store = memory.NewStore()
	}
	clock := testfixtures.NewSteppingClock(testfixtures.ReferenceTime(), time.Second)
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clock))
	env := &serviceEnv{
		market: testfixtures.NewMarketplace(),
		store:  store,
		clock:  clock,
		sink:   &testfixtures.RecordingSink{},
	}
	env.service = factory.NewBookingService(testfixtures.BookingServiceDeps{
		Store:     store,
		Directory: env.market.Directory,
		Events:    env.sink,
	})
	return env
}

func (e *serviceEnv) customer() application.Principal {
	return testfixtures.Principal(e.market.CustomerUser)
}

func (e *serviceEnv) worker() application.Principal {
	return testfixtures.Principal(e.market.WorkerUser)
}

func (e *serviceEnv) create(t *testing.T, date string) application.Booking {
	t.Helper()
	booking, err := e.service.CreateBooking(context.Background(), application.CreateBookingParams{
		Principal: e.customer(),
		Input: application.CreateBookingInput{
			WorkerID:      e.market.Worker.ID,
			ScheduledDate: date,
			ScheduledTime: "09:00",
		},
	})
	if err != nil {
		t.Fatalf("CreateBooking(%s) failed: %v", date, err)
	}
	return booking
}

func (e *serviceEnv) transition(t *testing.T, principal application.Principal, id string, status scheduler.Status, reason string) application.Booking {
	t.Helper()
	booking, err := e.service.TransitionStatus(context.Background(), application.TransitionStatusParams{
		Principal: principal,
		BookingID: id,
		Status:    string(status),
		Reason:    reason,
	})
	if err != nil {
		t.Fatalf("TransitionStatus(%s -> %s) failed: %v", id, status, err)
	}
	return booking
}

func TestCreateBooking(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, nil)
	notes := "bring a ladder"
	jobID := env.market.Job.ID
	booking, err := env.service.CreateBooking(context.Background(), application.CreateBookingParams{
		Principal: env.customer(),
		Input: application.CreateBookingInput{
			JobID:         &jobID,
			WorkerID:      env.market.Worker.ID,
			ScheduledDate: "2025-06-01",
			ScheduledTime: "14:30:15",
			Notes:         &notes,
		},
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	if booking.Status != scheduler.StatusRequested {
		t.Fatalf("expected requested, got %s", booking.Status)
	}
	if booking.CustomerID != env.market.Customer.ID || booking.WorkerID != env.market.Worker.ID {
		t.Fatalf("unexpected participants: %+v", booking)
	}
	if booking.ScheduledDate != (civil.Date{Year: 2025, Month: 6, Day: 1}) || booking.ScheduledTime != (civil.Time{Hour: 14, Minute: 30, Second: 15}) {
		t.Fatalf("unexpected schedule: %s %s", booking.ScheduledDate, booking.ScheduledTime)
	}
	if booking.PaymentStatus != "pending" || booking.JobID == nil || *booking.JobID != jobID {
		t.Fatalf("unexpected defaults: %+v", booking)
	}

	history, err := env.service.History(context.Background(), env.customer(), booking.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one audit record, got %d", len(history))
	}
	first := history[0]
	if first.OldStatus != nil || first.NewStatus != scheduler.StatusRequested || first.ActorID != env.market.CustomerUser.ID {
		t.Fatalf("unexpected creation record: %+v", first)
	}
	if first.Reason == nil || *first.Reason != "Booking created" || first.Seq != 1 {
		t.Fatalf("unexpected creation reason or seq: %+v", first)
	}

	events := env.sink.Events()
	if len(events) != 1 || events[0].Type != application.EventBookingCreated || events[0].Change == nil {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestCreateBookingFailures(t *testing.T) {
	t.Parallel()

	missingJob := "job-missing"
	cases := []struct {
		name      string
		principal func(*serviceEnv) application.Principal
		input     func(*serviceEnv) application.CreateBookingInput
		check     func(t *testing.T, err error)
	}{
		{
			name:      "unknown worker",
			principal: (*serviceEnv).customer,
			input: func(e *serviceEnv) application.CreateBookingInput {
				return application.CreateBookingInput{WorkerID: "worker-missing", ScheduledDate: "2025-06-01", ScheduledTime: "09:00"}
			},
			check: expectIs(application.ErrNotFound),
		},
		{
			name:      "actor without customer profile",
			principal: (*serviceEnv).worker,
			input: func(e *serviceEnv) application.CreateBookingInput {
				return application.CreateBookingInput{WorkerID: e.market.OtherWorker.ID, ScheduledDate: "2025-06-01", ScheduledTime: "09:00"}
			},
			check: expectIs(application.ErrNotFound),
		},
		{
			name:      "unknown job",
			principal: (*serviceEnv).customer,
			input: func(e *serviceEnv) application.CreateBookingInput {
				return application.CreateBookingInput{JobID: &missingJob, WorkerID: e.market.Worker.ID, ScheduledDate: "2025-06-01", ScheduledTime: "09:00"}
			},
			check: expectIs(application.ErrNotFound),
		},
		{
			name:      "malformed date and time",
			principal: (*serviceEnv).customer,
			input: func(e *serviceEnv) application.CreateBookingInput {
				return application.CreateBookingInput{WorkerID: e.market.Worker.ID, ScheduledDate: "01/06/2025", ScheduledTime: "9am"}
			},
			check: expectFields("scheduled_date", "scheduled_time"),
		},
		{
			name:      "fractional seconds",
			principal: (*serviceEnv).customer,
			input: func(e *serviceEnv) application.CreateBookingInput {
				return application.CreateBookingInput{WorkerID: e.market.Worker.ID, ScheduledDate: "2025-06-01", ScheduledTime: "09:30:15.250"}
			},
			check: expectFields("scheduled_time"),
		},
		{
			name:      "single digit hour",
			principal: (*serviceEnv).customer,
			input: func(e *serviceEnv) application.CreateBookingInput {
				return application.CreateBookingInput{WorkerID: e.market.Worker.ID, ScheduledDate: "2025-06-01", ScheduledTime: "9:30"}
			},
			check: expectFields("scheduled_time"),
		},
		{
			name:      "missing date",
			principal: (*serviceEnv).customer,
			input: func(e *serviceEnv) application.CreateBookingInput {
				return application.CreateBookingInput{WorkerID: e.market.Worker.ID, ScheduledTime: "09:00"}
			},
			check: expectFields("scheduled_date"),
		},
		{
			name:      "impossible calendar date",
			principal: (*serviceEnv).customer,
			input: func(e *serviceEnv) application.CreateBookingInput {
				return application.CreateBookingInput{WorkerID: e.market.Worker.ID, ScheduledDate: "2025-02-30", ScheduledTime: "09:00"}
			},
			check: expectFields("scheduled_date"),
		},
		{
			name:      "anonymous",
			principal: func(*serviceEnv) application.Principal { return application.Principal{} },
			input: func(e *serviceEnv) application.CreateBookingInput {
				return application.CreateBookingInput{WorkerID: e.market.Worker.ID, ScheduledDate: "2025-06-01", ScheduledTime: "09:00"}
			},
			check: expectIs(application.ErrUnauthorized),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newServiceEnv(t, nil)
			_, err := env.service.CreateBooking(context.Background(), application.CreateBookingParams{
				Principal: tc.principal(env),
				Input:     tc.input(env),
			})
			tc.check(t, err)

			all, listErr := env.store.ListBookings(context.Background(), persistence.BookingFilter{})
			if listErr != nil {
				t.Fatalf("ListBookings failed: %v", listErr)
			}
			if len(all) != 0 {
				t.Fatalf("expected nothing stored, got %d bookings", len(all))
			}
		})
	}
}

// An accepted booking blocks new requests for the same day.
func TestCreateBookingRejectsActiveConflict(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, nil)
	first := env.create(t, "2025-06-01")
	env.transition(t, env.worker(), first.ID, scheduler.StatusAccepted, "")

	_, err := env.service.CreateBooking(context.Background(), application.CreateBookingParams{
		Principal: env.customer(),
		Input: application.CreateBookingInput{
			WorkerID:      env.market.Worker.ID,
			ScheduledDate: "2025-06-01",
			ScheduledTime: "15:00",
		},
	})
	var cErr *application.ConflictError
	if !errors.As(err, &cErr) || !errors.Is(err, application.ErrSchedulingConflict) {
		t.Fatalf("expected scheduling conflict, got %v", err)
	}
	if cErr.Count != 1 {
		t.Fatalf("expected conflict count 1, got %d", cErr.Count)
	}

	types := env.sink.Types()
	if types[len(types)-1] != application.EventBookingConflictRejected {
		t.Fatalf("expected conflict_rejected event last, got %v", types)
	}

	// Another day and another worker remain free.
	env.create(t, "2025-06-02")
	if _, err := env.service.CreateBooking(context.Background(), application.CreateBookingParams{
		Principal: env.customer(),
		Input: application.CreateBookingInput{
			WorkerID:      env.market.OtherWorker.ID,
			ScheduledDate: "2025-06-01",
			ScheduledTime: "09:00",
		},
	}); err != nil {
		t.Fatalf("expected other worker to be bookable: %v", err)
	}
}

// Requested bookings never conflict.
func TestCreateBookingIgnoresRequestedBookings(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, nil)
	env.create(t, "2025-06-01")
	env.create(t, "2025-06-01")
	env.create(t, "2025-06-01")

	bookings, err := env.service.BookingsForWorker(context.Background(), env.worker())
	if err != nil {
		t.Fatalf("BookingsForWorker failed: %v", err)
	}
	if len(bookings) != 3 {
		t.Fatalf("expected 3 bookings, got %d", len(bookings))
	}
}

// A rejected booking cannot be accepted.
func TestTransitionFromTerminalFails(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, nil)
	booking := env.create(t, "2025-06-01")
	env.transition(t, env.worker(), booking.ID, scheduler.StatusRejected, "fully booked")

	_, err := env.service.TransitionStatus(context.Background(), application.TransitionStatusParams{
		Principal: env.worker(),
		BookingID: booking.ID,
		Status:    "accepted",
	})
	var tErr *application.TransitionError
	if !errors.As(err, &tErr) || !errors.Is(err, application.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if tErr.From != scheduler.StatusRejected || tErr.To != scheduler.StatusAccepted {
		t.Fatalf("unexpected edge %s -> %s", tErr.From, tErr.To)
	}

	current, err := env.service.GetBooking(context.Background(), env.customer(), booking.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if current.Status != scheduler.StatusRejected {
		t.Fatalf("expected booking unchanged, got %s", current.Status)
	}
	history, _ := env.service.History(context.Background(), env.customer(), booking.ID)
	if len(history) != 2 {
		t.Fatalf("expected no audit record for failed transition, got %d", len(history))
	}
}

// Active bookings must be cancelled before deletion.
func TestDeleteBookingRequiresCancellation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newServiceEnv(t, nil)
	booking := env.create(t, "2025-06-01")
	env.transition(t, env.worker(), booking.ID, scheduler.StatusAccepted, "")
	env.transition(t, env.worker(), booking.ID, scheduler.StatusInProgress, "")

	err := env.service.DeleteBooking(ctx, application.DeleteBookingParams{Principal: env.customer(), BookingID: booking.ID})
	var sErr *application.StateError
	if !errors.As(err, &sErr) || !errors.Is(err, application.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if sErr.Status != scheduler.StatusInProgress {
		t.Fatalf("unexpected status in error: %s", sErr.Status)
	}

	cancelled := env.transition(t, env.customer(), booking.ID, scheduler.StatusCancelled, "rain")
	if cancelled.CancellationReason == nil || *cancelled.CancellationReason != "rain" || cancelled.CancelledAt == nil {
		t.Fatalf("expected cancellation fields, got %+v", cancelled)
	}

	if err := env.service.DeleteBooking(ctx, application.DeleteBookingParams{Principal: env.customer(), BookingID: booking.ID}); err != nil {
		t.Fatalf("DeleteBooking failed: %v", err)
	}
	if _, err := env.service.GetBooking(ctx, env.customer(), booking.ID); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected booking gone, got %v", err)
	}
	history, err := env.store.ListStatusChanges(ctx, booking.ID)
	if err != nil || len(history) != 0 {
		t.Fatalf("expected history removed, got %d records (%v)", len(history), err)
	}

	types := env.sink.Types()
	if types[len(types)-1] != application.EventBookingDeleted {
		t.Fatalf("expected deleted event last, got %v", types)
	}
}

// Schedule edits are limited to requested bookings and are not audited.
func TestUpdateSchedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newServiceEnv(t, nil)
	accepted := env.create(t, "2025-06-01")
	env.transition(t, env.worker(), accepted.ID, scheduler.StatusAccepted, "")

	notes := "gate code 1234"
	_, err := env.service.UpdateSchedule(ctx, application.UpdateScheduleParams{
		Principal: env.customer(),
		BookingID: accepted.ID,
		Notes:     &notes,
	})
	if !errors.Is(err, application.ErrInvalidState) {
		t.Fatalf("expected invalid state for accepted booking, got %v", err)
	}

	pending := env.create(t, "2025-06-03")
	updated, err := env.service.UpdateSchedule(ctx, application.UpdateScheduleParams{
		Principal:     env.customer(),
		BookingID:     pending.ID,
		Notes:         &notes,
		ScheduledDate: "2025-06-01",
		ScheduledTime: "  ",
	})
	if err != nil {
		t.Fatalf("UpdateSchedule failed: %v", err)
	}
	if updated.ScheduledDate != (civil.Date{Year: 2025, Month: 6, Day: 1}) {
		t.Fatalf("expected date moved, got %s", updated.ScheduledDate)
	}
	if updated.ScheduledTime != pending.ScheduledTime {
		t.Fatalf("blank time must leave time unchanged, got %s", updated.ScheduledTime)
	}
	if updated.Notes == nil || *updated.Notes != notes {
		t.Fatalf("expected notes updated, got %v", updated.Notes)
	}
	if !updated.UpdatedAt.After(pending.UpdatedAt) {
		t.Fatalf("expected UpdatedAt to advance: %v -> %v", pending.UpdatedAt, updated.UpdatedAt)
	}

	history, err := env.service.History(ctx, env.customer(), pending.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected only the creation record, got %d (%v)", len(history), err)
	}

	_, err = env.service.UpdateSchedule(ctx, application.UpdateScheduleParams{
		Principal:     env.customer(),
		BookingID:     pending.ID,
		ScheduledTime: "25:00",
	})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["scheduled_time"] == "" {
		t.Fatalf("expected scheduled_time validation error, got %v", err)
	}
}

func TestTransitionLifecycleAndAuditChain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newServiceEnv(t, nil)
	booking := env.create(t, "2025-06-01")

	env.transition(t, env.worker(), booking.ID, scheduler.StatusAccepted, "")
	env.transition(t, env.worker(), booking.ID, scheduler.StatusInProgress, "")
	completed := env.transition(t, env.worker(), booking.ID, scheduler.StatusCompleted, "done")
	if completed.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be stamped")
	}
	if completed.CancellationReason != nil {
		t.Fatal("completion must not set a cancellation reason")
	}

	history, err := env.service.History(ctx, env.worker(), booking.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	chain := make([]scheduler.StatusChange, 0, len(history))
	for i, h := range history {
		if h.Seq != i+1 {
			t.Fatalf("expected seq %d, got %d", i+1, h.Seq)
		}
		chain = append(chain, scheduler.StatusChange{OldStatus: h.OldStatus, NewStatus: h.NewStatus, ActorID: h.ActorID, Reason: h.Reason, ChangedAt: h.ChangedAt})
	}
	if err := scheduler.ValidateChain(chain); err != nil {
		t.Fatalf("audit chain invalid: %v", err)
	}
	if len(history) != 4 || history[3].Reason == nil || *history[3].Reason != "done" {
		t.Fatalf("unexpected history %+v", history)
	}
	if history[1].Reason != nil {
		t.Fatalf("expected nil reason when none supplied, got %q", *history[1].Reason)
	}

	// Terminal states accept nothing.
	for _, target := range scheduler.AllStatuses() {
		_, err := env.service.TransitionStatus(ctx, application.TransitionStatusParams{
			Principal: env.worker(),
			BookingID: booking.ID,
			Status:    string(target),
		})
		if !errors.Is(err, application.ErrInvalidTransition) {
			t.Fatalf("expected completed -> %s to fail, got %v", target, err)
		}
	}
}

func TestTransitionValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newServiceEnv(t, nil)
	booking := env.create(t, "2025-06-01")

	_, err := env.service.TransitionStatus(ctx, application.TransitionStatusParams{
		Principal: env.worker(),
		BookingID: booking.ID,
		Status:    "paused",
	})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["status"] == "" {
		t.Fatalf("expected status validation error, got %v", err)
	}

	_, err = env.service.TransitionStatus(ctx, application.TransitionStatusParams{
		Principal: env.worker(),
		BookingID: "booking-missing",
		Status:    "accepted",
	})
	if !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = env.service.TransitionStatus(ctx, application.TransitionStatusParams{
		Principal: application.Principal{UserID: "user-ghost"},
		BookingID: booking.ID,
		Status:    "accepted",
	})
	if !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected unresolvable actor to be not found, got %v", err)
	}
}

func TestCancellationWithEmptyReason(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, nil)
	booking := env.create(t, "2025-06-01")
	cancelled := env.transition(t, env.customer(), booking.ID, scheduler.StatusCancelled, "")
	if cancelled.CancellationReason == nil || *cancelled.CancellationReason != "" {
		t.Fatalf("expected empty cancellation reason to be stored, got %v", cancelled.CancellationReason)
	}
}

func TestAcceptingSecondBookingForSameDayConflicts(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, nil)
	first := env.create(t, "2025-06-01")
	second := env.create(t, "2025-06-01")
	env.transition(t, env.worker(), first.ID, scheduler.StatusAccepted, "")

	_, err := env.service.TransitionStatus(context.Background(), application.TransitionStatusParams{
		Principal: env.worker(),
		BookingID: second.ID,
		Status:    "accepted",
	})
	if !errors.Is(err, application.ErrSchedulingConflict) {
		t.Fatalf("expected scheduling conflict, got %v", err)
	}

	current, err := env.service.GetBooking(context.Background(), env.worker(), second.ID)
	if err != nil || current.Status != scheduler.StatusRequested {
		t.Fatalf("expected second booking still requested, got %+v (%v)", current, err)
	}
	history, _ := env.service.History(context.Background(), env.worker(), second.ID)
	if len(history) != 1 {
		t.Fatalf("expected failed acceptance to leave no audit record, got %d", len(history))
	}

	events := env.sink.Events()
	last := events[len(events)-1]
	if last.Type != application.EventBookingConflictRejected || last.Booking.ID != second.ID || last.ConflictCount != 1 {
		t.Fatalf("expected conflict rejection for %s, got %+v", second.ID, last)
	}

	// Rejecting the competing request is still allowed.
	env.transition(t, env.worker(), second.ID, scheduler.StatusRejected, "already booked")
}

func TestAuthorization(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newServiceEnv(t, nil)
	booking := env.create(t, "2025-06-01")
	outsider := testfixtures.Principal(env.market.OutsiderUser)
	otherWorker := testfixtures.Principal(env.market.OtherWorkerUser)
	admin := testfixtures.Principal(env.market.AdminUser)

	if _, err := env.service.GetBooking(ctx, outsider, booking.ID); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected outsider read to be refused, got %v", err)
	}
	if _, err := env.service.History(ctx, otherWorker, booking.ID); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected other worker history read to be refused, got %v", err)
	}
	if _, err := env.service.TransitionStatus(ctx, application.TransitionStatusParams{Principal: otherWorker, BookingID: booking.ID, Status: "accepted"}); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected other worker transition to be refused, got %v", err)
	}
	if err := env.service.DeleteBooking(ctx, application.DeleteBookingParams{Principal: outsider, BookingID: booking.ID}); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected outsider delete to be refused, got %v", err)
	}

	if _, err := env.service.GetBooking(ctx, admin, booking.ID); err != nil {
		t.Fatalf("expected admin read to succeed, got %v", err)
	}
	// The directory flag grants admin rights even when the token does not.
	if _, err := env.service.GetBooking(ctx, application.Principal{UserID: env.market.AdminUser.ID}, booking.ID); err != nil {
		t.Fatalf("expected directory admin read to succeed, got %v", err)
	}

	if _, err := env.service.AllBookings(ctx, env.customer()); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected AllBookings to require admin, got %v", err)
	}
	all, err := env.service.AllBookings(ctx, admin)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected admin to list 1 booking, got %d (%v)", len(all), err)
	}
}

func TestListingQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newServiceEnv(t, nil)
	late := env.create(t, "2025-06-05")
	early := env.create(t, "2025-06-01")

	mine, err := env.service.BookingsForCustomer(ctx, env.customer())
	if err != nil {
		t.Fatalf("BookingsForCustomer failed: %v", err)
	}
	ids := []string{mine[0].ID, mine[1].ID}
	if !slices.Equal(ids, []string{early.ID, late.ID}) {
		t.Fatalf("expected date ordering, got %v", ids)
	}

	if _, err := env.service.BookingsForWorker(ctx, env.customer()); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected missing worker profile to be not found, got %v", err)
	}
	other, err := env.service.BookingsForCustomer(ctx, testfixtures.Principal(env.market.OtherCustUser))
	if err != nil || len(other) != 0 {
		t.Fatalf("expected other customer to have no bookings, got %d (%v)", len(other), err)
	}
}

func TestWorkerBusyDates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newServiceEnv(t, nil)
	for _, date := range []string{"2025-06-07", "2025-06-02", "2025-06-04"} {
		b := env.create(t, date)
		env.transition(t, env.worker(), b.ID, scheduler.StatusAccepted, "")
		if date == "2025-06-04" {
			env.transition(t, env.worker(), b.ID, scheduler.StatusCancelled, "")
		}
	}
	env.create(t, "2025-06-03")

	dates, err := env.service.WorkerBusyDates(ctx, env.market.Worker.ID)
	if err != nil {
		t.Fatalf("WorkerBusyDates failed: %v", err)
	}
	want := []civil.Date{{Year: 2025, Month: 6, Day: 2}, {Year: 2025, Month: 6, Day: 7}}
	if !slices.Equal(dates, want) {
		t.Fatalf("expected %v, got %v", want, dates)
	}

	if _, err := env.service.WorkerBusyDates(ctx, "worker-missing"); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReadsDoNotMutate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newServiceEnv(t, nil)
	booking := env.create(t, "2025-06-01")

	before, _ := env.store.GetBooking(ctx, booking.ID)
	for i := 0; i < 3; i++ {
		_, _ = env.service.GetBooking(ctx, env.customer(), booking.ID)
		_, _ = env.service.History(ctx, env.customer(), booking.ID)
		_, _ = env.service.BookingsForWorker(ctx, env.worker())
		_, _ = env.service.WorkerBusyDates(ctx, env.market.Worker.ID)
	}
	after, _ := env.store.GetBooking(ctx, booking.ID)
	if !before.UpdatedAt.Equal(after.UpdatedAt) || before.Status != after.Status {
		t.Fatalf("reads changed the booking: %+v -> %+v", before, after)
	}
	if len(env.sink.Events()) != 1 {
		t.Fatalf("reads must not publish events, got %v", env.sink.Types())
	}
}

func TestUpdatedAtNeverMovesBackwards(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t, nil)
	booking := env.create(t, "2025-06-01")
	env.clock.Advance(-time.Hour)

	accepted := env.transition(t, env.worker(), booking.ID, scheduler.StatusAccepted, "")
	if accepted.UpdatedAt.Before(booking.UpdatedAt) {
		t.Fatalf("UpdatedAt went backwards: %v -> %v", booking.UpdatedAt, accepted.UpdatedAt)
	}
}

func TestConcurrentCreationAndAcceptance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newServiceEnv(t, nil)
	anchor := env.create(t, "2025-06-01")

	const requests = 12
	var wg sync.WaitGroup
	errs := make([]error, requests+1)
	wg.Add(requests + 1)
	go func() {
		defer wg.Done()
		_, errs[requests] = env.service.TransitionStatus(ctx, application.TransitionStatusParams{
			Principal: env.worker(),
			BookingID: anchor.ID,
			Status:    "accepted",
		})
	}()
	for i := 0; i < requests; i++ {
		go func(i int) {
			defer wg.Done()
			b, err := env.service.CreateBooking(ctx, application.CreateBookingParams{
				Principal: env.customer(),
				Input: application.CreateBookingInput{
					WorkerID:      env.market.Worker.ID,
					ScheduledDate: "2025-06-01",
					ScheduledTime: fmt.Sprintf("%02d:00", 8+i%8),
				},
			})
			if err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = env.service.TransitionStatus(ctx, application.TransitionStatusParams{
				Principal: env.worker(),
				BookingID: b.ID,
				Status:    "accepted",
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil && !errors.Is(err, application.ErrSchedulingConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	active, err := env.store.ListBookings(ctx, persistence.BookingFilter{
		WorkerID: env.market.Worker.ID,
		Statuses: persistence.ActiveStatuses,
	})
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected exactly one active booking, got %d", len(active))
	}
}

func TestServiceOnSQLiteStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	env := newServiceEnv(t, harness.Bookings)

	first := env.create(t, "2025-06-01")
	second := env.create(t, "2025-06-01")
	env.transition(t, env.worker(), first.ID, scheduler.StatusAccepted, "")

	_, err := env.service.TransitionStatus(ctx, application.TransitionStatusParams{
		Principal: env.worker(),
		BookingID: second.ID,
		Status:    "accepted",
	})
	if !errors.Is(err, application.ErrSchedulingConflict) {
		t.Fatalf("expected unique index to surface as scheduling conflict, got %v", err)
	}

	env.transition(t, env.customer(), first.ID, scheduler.StatusCancelled, "changed plans")
	if err := env.service.DeleteBooking(ctx, application.DeleteBookingParams{Principal: env.customer(), BookingID: first.ID}); err != nil {
		t.Fatalf("DeleteBooking failed: %v", err)
	}
	env.transition(t, env.worker(), second.ID, scheduler.StatusAccepted, "")

	history, err := env.service.History(ctx, env.worker(), second.ID)
	if err != nil || len(history) != 2 {
		t.Fatalf("expected two audit records, got %d (%v)", len(history), err)
	}
}

func TestScheduledTimeRoundTripsThroughSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	env := newServiceEnv(t, harness.Bookings)

	for _, raw := range []string{"09:30", "09:30:15", "23:59:59"} {
		created, err := env.service.CreateBooking(ctx, application.CreateBookingParams{
			Principal: env.customer(),
			Input: application.CreateBookingInput{
				WorkerID:      env.market.Worker.ID,
				ScheduledDate: "2025-06-01",
				ScheduledTime: raw,
			},
		})
		if err != nil {
			t.Fatalf("CreateBooking(%s) failed: %v", raw, err)
		}
		stored, err := env.service.GetBooking(ctx, env.customer(), created.ID)
		if err != nil {
			t.Fatalf("GetBooking failed: %v", err)
		}
		if stored.ScheduledTime != created.ScheduledTime {
			t.Fatalf("%s: created %s, stored %s", raw, created.ScheduledTime, stored.ScheduledTime)
		}
	}
}

func expectIs(target error) func(t *testing.T, err error) {
	return func(t *testing.T, err error) {
		t.Helper()
		if !errors.Is(err, target) {
			t.Fatalf("expected %v, got %v", target, err)
		}
	}
}

func expectFields(fields ...string) func(t *testing.T, err error) {
	return func(t *testing.T, err error) {
		t.Helper()
		var vErr *application.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		for _, f := range fields {
			if vErr.FieldErrors[f] == "" {
				t.Fatalf("expected error for %s, got %v", f, vErr.FieldErrors)
			}
		}
	}
}
