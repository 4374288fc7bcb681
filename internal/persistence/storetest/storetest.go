// Package storetest holds behavioural tests shared by every
// persistence.BookingStore implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/example/worker-booking/internal/persistence"
)

// Factory returns an empty, ready store. The store is closed by the caller's
// cleanup.
type Factory func(t *testing.T) persistence.BookingStore

var reference = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// NewBooking returns a requested booking for worker on date.
func NewBooking(id, workerID string, date civil.Date) persistence.Booking {
	return persistence.Booking{
		ID:            id,
		WorkerID:      workerID,
		CustomerID:    "customer-1",
		ScheduledDate: date,
		ScheduledTime: civil.Time{Hour: 9},
		Status:        "requested",
		PaymentStatus: "pending",
		CreatedAt:     reference,
		UpdatedAt:     reference,
	}
}

func strPtr(s string) *string { return &s }

// Run executes the contract against stores produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("insert and read back", func(t *testing.T) { testInsertAndRead(t, factory(t)) })
	t.Run("list filters and ordering", func(t *testing.T) { testListFilters(t, factory(t)) })
	t.Run("rolls back on error", func(t *testing.T) { testRollback(t, factory(t)) })
	t.Run("rejects second active booking", func(t *testing.T) { testActiveSlot(t, factory(t)) })
	t.Run("history chain", func(t *testing.T) { testHistoryChain(t, factory(t)) })
	t.Run("delete cascades history", func(t *testing.T) { testDeleteCascade(t, factory(t)) })
	t.Run("concurrent worker scopes", func(t *testing.T) { testConcurrentWorkerScopes(t, factory(t)) })
}

func insert(t *testing.T, store persistence.BookingStore, b persistence.Booking) {
	t.Helper()
	ctx := context.Background()
	err := store.InWorkerScope(ctx, b.WorkerID, func(ctx context.Context, tx persistence.BookingTx) error {
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		_, err := tx.AppendStatusChange(ctx, persistence.StatusChange{
			ID:        "h-" + b.ID,
			BookingID: b.ID,
			NewStatus: b.Status,
			ActorID:   "user-customer",
			Reason:    strPtr("Booking created"),
			ChangedAt: b.CreatedAt,
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert %s: %v", b.ID, err)
	}
}

func testInsertAndRead(t *testing.T, store persistence.BookingStore) {
	ctx := context.Background()
	b := NewBooking("b1", "w1", civil.Date{Year: 2025, Month: 3, Day: 15})
	hours := 3
	b.JobID = strPtr("job-1")
	b.Notes = strPtr("bring ladder")
	b.EstimatedDurationHours = &hours
	b.ScheduledTime = civil.Time{Hour: 14, Minute: 30}
	insert(t, store, b)

	got, err := store.GetBooking(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if got.WorkerID != "w1" || got.CustomerID != "customer-1" || got.Status != "requested" {
		t.Fatalf("unexpected booking: %#v", got)
	}
	if got.ScheduledDate != b.ScheduledDate || got.ScheduledTime != b.ScheduledTime {
		t.Fatalf("unexpected schedule: %s %s", got.ScheduledDate, got.ScheduledTime)
	}
	if got.JobID == nil || *got.JobID != "job-1" || got.Notes == nil || *got.Notes != "bring ladder" {
		t.Fatalf("unexpected optional fields: %#v", got)
	}
	if got.EstimatedDurationHours == nil || *got.EstimatedDurationHours != 3 {
		t.Fatalf("unexpected duration: %v", got.EstimatedDurationHours)
	}
	if got.PaymentStatus != "pending" || got.FinalCostCents != nil {
		t.Fatalf("unexpected billing fields: %#v", got)
	}
	if !got.CreatedAt.Equal(reference) || !got.UpdatedAt.Equal(reference) {
		t.Fatalf("unexpected timestamps: %v %v", got.CreatedAt, got.UpdatedAt)
	}

	if _, err := store.GetBooking(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	err = store.InWorkerScope(ctx, "w1", func(ctx context.Context, tx persistence.BookingTx) error {
		return tx.InsertBooking(ctx, b)
	})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func testListFilters(t *testing.T, store persistence.BookingStore) {
	ctx := context.Background()
	d15 := civil.Date{Year: 2025, Month: 3, Day: 15}
	d16 := civil.Date{Year: 2025, Month: 3, Day: 16}

	late := NewBooking("b-late", "w1", d15)
	late.ScheduledTime = civil.Time{Hour: 16}
	early := NewBooking("b-early", "w1", d15)
	early.ScheduledTime = civil.Time{Hour: 8}
	nextDay := NewBooking("b-next", "w1", d16)
	other := NewBooking("b-other", "w2", d15)
	other.CustomerID = "customer-2"
	for _, b := range []persistence.Booking{late, nextDay, other, early} {
		insert(t, store, b)
	}

	byWorker, err := store.ListBookings(ctx, persistence.BookingFilter{WorkerID: "w1"})
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	assertIDs(t, byWorker, "b-early", "b-late", "b-next")

	byDate, err := store.ListBookings(ctx, persistence.BookingFilter{WorkerID: "w1", Date: &d15})
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	assertIDs(t, byDate, "b-early", "b-late")

	byCustomer, err := store.ListBookings(ctx, persistence.BookingFilter{CustomerID: "customer-2"})
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	assertIDs(t, byCustomer, "b-other")

	active, err := store.ListBookings(ctx, persistence.BookingFilter{Statuses: persistence.ActiveStatuses})
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	assertIDs(t, active)

	all, err := store.ListBookings(ctx, persistence.BookingFilter{})
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	assertIDs(t, all, "b-early", "b-other", "b-late", "b-next")
}

func testRollback(t *testing.T, store persistence.BookingStore) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := store.InWorkerScope(ctx, "w1", func(ctx context.Context, tx persistence.BookingTx) error {
		if err := tx.InsertBooking(ctx, NewBooking("b1", "w1", civil.Date{Year: 2025, Month: 3, Day: 15})); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected scope error, got %v", err)
	}
	if _, err := store.GetBooking(ctx, "b1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected rolled back insert, got %v", err)
	}
}

func testActiveSlot(t *testing.T, store persistence.BookingStore) {
	ctx := context.Background()
	day := civil.Date{Year: 2025, Month: 3, Day: 15}
	insert(t, store, NewBooking("b1", "w1", day))
	insert(t, store, NewBooking("b2", "w1", day))

	accept := func(id string) error {
		return store.InBookingScope(ctx, id, func(ctx context.Context, tx persistence.BookingTx) error {
			b, err := tx.GetBooking(ctx, id)
			if err != nil {
				return err
			}
			b.Status = "accepted"
			b.UpdatedAt = reference.Add(time.Hour)
			return tx.UpdateBooking(ctx, b)
		})
	}

	if err := accept("b1"); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}
	if err := accept("b2"); !errors.Is(err, persistence.ErrActiveSlotTaken) {
		t.Fatalf("expected ErrActiveSlotTaken, got %v", err)
	}

	b2, err := store.GetBooking(ctx, "b2")
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if b2.Status != "requested" {
		t.Fatalf("expected b2 to stay requested, got %s", b2.Status)
	}

	err = store.InWorkerScope(ctx, "w1", func(ctx context.Context, tx persistence.BookingTx) error {
		b := NewBooking("b3", "w1", day)
		b.Status = "in_progress"
		return tx.InsertBooking(ctx, b)
	})
	if !errors.Is(err, persistence.ErrActiveSlotTaken) {
		t.Fatalf("expected ErrActiveSlotTaken on insert, got %v", err)
	}

	otherDay := NewBooking("b4", "w1", day.AddDays(1))
	otherDay.Status = "accepted"
	insert(t, store, otherDay)
}

func testHistoryChain(t *testing.T, store persistence.BookingStore) {
	ctx := context.Background()
	insert(t, store, NewBooking("b1", "w1", civil.Date{Year: 2025, Month: 3, Day: 15}))

	appendChange := func(old *string, next string) (persistence.StatusChange, error) {
		var stored persistence.StatusChange
		err := store.InBookingScope(ctx, "b1", func(ctx context.Context, tx persistence.BookingTx) error {
			var err error
			stored, err = tx.AppendStatusChange(ctx, persistence.StatusChange{
				ID:        fmt.Sprintf("h-%s", next),
				BookingID: "b1",
				OldStatus: old,
				NewStatus: next,
				ActorID:   "user-worker",
				ChangedAt: reference.Add(time.Hour),
			})
			return err
		})
		return stored, err
	}

	stored, err := appendChange(strPtr("requested"), "accepted")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if stored.Seq != 2 {
		t.Fatalf("expected seq 2, got %d", stored.Seq)
	}
	if _, err := appendChange(strPtr("requested"), "rejected"); !errors.Is(err, persistence.ErrChainMismatch) {
		t.Fatalf("expected ErrChainMismatch, got %v", err)
	}
	if _, err := appendChange(nil, "requested"); !errors.Is(err, persistence.ErrChainMismatch) {
		t.Fatalf("expected ErrChainMismatch for second root, got %v", err)
	}

	history, err := store.ListStatusChanges(ctx, "b1")
	if err != nil {
		t.Fatalf("ListStatusChanges failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}
	if history[0].Seq != 1 || history[0].OldStatus != nil || history[0].NewStatus != "requested" {
		t.Fatalf("unexpected first record: %#v", history[0])
	}
	if history[0].Reason == nil || *history[0].Reason != "Booking created" {
		t.Fatalf("unexpected creation reason: %v", history[0].Reason)
	}
	if history[1].Seq != 2 || history[1].OldStatus == nil || *history[1].OldStatus != "requested" || history[1].Reason != nil {
		t.Fatalf("unexpected second record: %#v", history[1])
	}

	err = store.InBookingScope(ctx, "missing", func(ctx context.Context, tx persistence.BookingTx) error {
		_, err := tx.AppendStatusChange(ctx, persistence.StatusChange{ID: "h-x", BookingID: "missing", NewStatus: "requested", ActorID: "u", ChangedAt: reference})
		return err
	})
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing booking, got %v", err)
	}
}

func testDeleteCascade(t *testing.T, store persistence.BookingStore) {
	ctx := context.Background()
	insert(t, store, NewBooking("b1", "w1", civil.Date{Year: 2025, Month: 3, Day: 15}))

	err := store.InBookingScope(ctx, "b1", func(ctx context.Context, tx persistence.BookingTx) error {
		return tx.DeleteBooking(ctx, "b1")
	})
	if err != nil {
		t.Fatalf("DeleteBooking failed: %v", err)
	}
	if _, err := store.GetBooking(ctx, "b1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	history, err := store.ListStatusChanges(ctx, "b1")
	if err != nil {
		t.Fatalf("ListStatusChanges failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected history to be deleted, got %d records", len(history))
	}

	err = store.InBookingScope(ctx, "b1", func(ctx context.Context, tx persistence.BookingTx) error {
		return tx.DeleteBooking(ctx, "b1")
	})
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

// testConcurrentWorkerScopes races check-then-insert sequences that each
// insert an active booking only when the date is free. Exactly one wins.
func testConcurrentWorkerScopes(t *testing.T, store persistence.BookingStore) {
	ctx := context.Background()
	day := civil.Date{Year: 2025, Month: 3, Day: 20}

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.InWorkerScope(ctx, "w1", func(ctx context.Context, tx persistence.BookingTx) error {
				existing, err := tx.ListBookings(ctx, persistence.BookingFilter{WorkerID: "w1", Date: &day, Statuses: persistence.ActiveStatuses})
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					return nil
				}
				b := NewBooking(fmt.Sprintf("race-%d", i), "w1", day)
				b.Status = "accepted"
				if err := tx.InsertBooking(ctx, b); err != nil {
					return err
				}
				mu.Lock()
				inserted++
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("scope %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if inserted != 1 {
		t.Fatalf("expected exactly one insert, got %d", inserted)
	}
	active, err := store.ListBookings(ctx, persistence.BookingFilter{WorkerID: "w1", Statuses: persistence.ActiveStatuses})
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one active booking, got %d", len(active))
	}
}

func assertIDs(t *testing.T, bookings []persistence.Booking, want ...string) {
	t.Helper()
	if len(bookings) != len(want) {
		t.Fatalf("expected %d bookings %v, got %d", len(want), want, len(bookings))
	}
	for i, b := range bookings {
		if b.ID != want[i] {
			got := make([]string, len(bookings))
			for j, bb := range bookings {
				got[j] = bb.ID
			}
			t.Fatalf("unexpected order: got %v want %v", got, want)
		}
	}
}
