package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/worker-booking/internal/persistence/sqlite"
)

// SQLiteHarness provides store access backed by a temporary SQLite file for
// integration-style tests.
type SQLiteHarness struct {
	Storage   *sqlite.Storage
	Bookings  *sqlite.BookingStore
	Directory *sqlite.DirectoryRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a migrated temporary database. Close is registered
// with tb.Cleanup as well.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "booking.db")
	storage, err := sqlite.Open(context.Background(), sqlite.TempFileConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:   storage,
		Bookings:  storage.Bookings,
		Directory: storage.Directory,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// LoadMarketplace writes the marketplace directory into the database.
func (h *SQLiteHarness) LoadMarketplace(tb testing.TB, m Marketplace) {
	tb.Helper()
	if err := m.Seed().Apply(context.Background(), h.Directory); err != nil {
		tb.Fatalf("failed to seed directory: %v", err)
	}
}
