package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/worker-booking/internal/persistence"
	"github.com/example/worker-booking/internal/persistence/sqlite"
	"github.com/example/worker-booking/internal/persistence/storetest"
)

func openStorage(t *testing.T) *sqlite.Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "booking.db")
	storage, err := sqlite.Open(context.Background(), sqlite.TempFileConfig(path), nil)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestBookingStoreContract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) persistence.BookingStore {
		return openStorage(t).Bookings
	})
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "booking.db")
	for i := 0; i < 2; i++ {
		storage, err := sqlite.Open(context.Background(), sqlite.TempFileConfig(path), nil)
		if err != nil {
			t.Fatalf("open %d failed: %v", i+1, err)
		}
		if err := storage.Bookings.Ping(context.Background()); err != nil {
			t.Fatalf("ping failed: %v", err)
		}
		if err := storage.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
	}
}
