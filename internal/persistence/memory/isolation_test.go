package memory_test

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"

	"github.com/example/worker-booking/internal/persistence"
	"github.com/example/worker-booking/internal/persistence/memory"
	"github.com/example/worker-booking/internal/persistence/storetest"
)

func TestReadsReturnCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	b := storetest.NewBooking("b1", "w1", civil.Date{Year: 2025, Month: 3, Day: 15})
	notes := "original"
	b.Notes = &notes
	err := store.InWorkerScope(ctx, "w1", func(ctx context.Context, tx persistence.BookingTx) error {
		return tx.InsertBooking(ctx, b)
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	notes = "mutated by caller"
	got, err := store.GetBooking(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	*got.Notes = "mutated after read"

	again, err := store.GetBooking(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if *again.Notes != "original" {
		t.Fatalf("store state leaked through pointers: %q", *again.Notes)
	}
}

func TestStagedWritesInvisibleUntilCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	err := store.InWorkerScope(ctx, "w1", func(ctx context.Context, tx persistence.BookingTx) error {
		if err := tx.InsertBooking(ctx, storetest.NewBooking("b1", "w1", civil.Date{Year: 2025, Month: 3, Day: 15})); err != nil {
			return err
		}
		if _, err := tx.GetBooking(ctx, "b1"); err != nil {
			t.Errorf("expected staged booking visible inside scope: %v", err)
		}
		if _, err := store.GetBooking(ctx, "b1"); err == nil {
			t.Error("expected staged booking hidden outside scope")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scope failed: %v", err)
	}
}
