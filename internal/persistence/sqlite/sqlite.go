// Package sqlite stores bookings, their history and the directory replica in
// a SQLite database through modernc.org/sqlite.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
)

// Storage bundles the repositories that share one database.
type Storage struct {
	Pool      *ConnectionPool
	Bookings  *BookingStore
	Directory *DirectoryRepository
}

// Open connects to the database described by config and applies pending
// migrations.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Storage, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool, logger); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}
	return &Storage{
		Pool:      pool,
		Bookings:  NewBookingStore(pool),
		Directory: NewDirectoryRepository(pool),
	}, nil
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.Pool.Close()
}
