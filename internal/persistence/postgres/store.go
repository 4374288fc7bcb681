// Package postgres implements persistence.BookingStore on PostgreSQL through
// gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/moby/locker"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/example/worker-booking/internal/persistence"
)

const activeSlotIndex = "idx_bookings_active_slot"

// Store is a gorm-backed booking store.
type Store struct {
	db      *gorm.DB
	workers *locker.Locker
	items   *locker.Locker
}

// Open connects to dsn. Call Migrate before first use.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an existing gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, workers: locker.New(), items: locker.New()}
}

var _ persistence.BookingStore = (*Store)(nil)

// Migrate creates the tables and the partial unique index that backs the
// one-active-booking-per-worker-per-date rule.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&bookingRecord{}, &statusChangeRecord{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	stmt := `CREATE UNIQUE INDEX IF NOT EXISTS ` + activeSlotIndex + `
		ON bookings (worker_id, scheduled_date)
		WHERE status IN ('accepted', 'in_progress')`
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create active slot index: %w", err)
	}
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	return getBooking(s.db.WithContext(ctx), id)
}

func (s *Store) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	return listBookings(s.db.WithContext(ctx), filter)
}

func (s *Store) ListStatusChanges(ctx context.Context, bookingID string) ([]persistence.StatusChange, error) {
	return listStatusChanges(s.db.WithContext(ctx), bookingID)
}

// InWorkerScope holds a transaction-level advisory lock keyed by the worker
// so concurrent instances serialize check-then-insert sequences.
func (s *Store) InWorkerScope(ctx context.Context, workerID string, fn persistence.TxFunc) error {
	s.workers.Lock(workerID)
	defer func() { _ = s.workers.Unlock(workerID) }()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "booking-worker:"+workerID).Error; err != nil {
			return fmt.Errorf("lock worker %s: %w", workerID, err)
		}
		return fn(ctx, &gormTx{db: tx})
	})
}

// InBookingScope locks the booking row for the rest of the transaction.
func (s *Store) InBookingScope(ctx context.Context, bookingID string, fn persistence.TxFunc) error {
	s.items.Lock(bookingID)
	defer func() { _ = s.items.Unlock(bookingID) }()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		err := tx.Model(&bookingRecord{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", bookingID).
			Pluck("id", &ids).Error
		if err != nil {
			return fmt.Errorf("lock booking %s: %w", bookingID, err)
		}
		return fn(ctx, &gormTx{db: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	return getBooking(t.db, id)
}

func (t *gormTx) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	return listBookings(t.db, filter)
}

func (t *gormTx) ListStatusChanges(ctx context.Context, bookingID string) ([]persistence.StatusChange, error) {
	return listStatusChanges(t.db, bookingID)
}

func (t *gormTx) InsertBooking(ctx context.Context, b persistence.Booking) error {
	record := toBookingRecord(b)
	if err := t.db.Create(&record).Error; err != nil {
		return fmt.Errorf("insert booking %s: %w", b.ID, mapError(err))
	}
	return nil
}

func (t *gormTx) UpdateBooking(ctx context.Context, b persistence.Booking) error {
	record := toBookingRecord(b)
	res := t.db.Model(&bookingRecord{}).Where("id = ?", b.ID).Updates(map[string]any{
		"scheduled_date":           record.ScheduledDate,
		"scheduled_time":           record.ScheduledTime,
		"estimated_duration_hours": record.EstimatedDurationHours,
		"status":                   record.Status,
		"notes":                    record.Notes,
		"cancellation_reason":      record.CancellationReason,
		"cancelled_at":             record.CancelledAt,
		"completed_at":             record.CompletedAt,
		"updated_at":               record.UpdatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, mapError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("booking %s: %w", b.ID, persistence.ErrNotFound)
	}
	return nil
}

func (t *gormTx) DeleteBooking(ctx context.Context, id string) error {
	if err := t.db.Where("booking_id = ?", id).Delete(&statusChangeRecord{}).Error; err != nil {
		return fmt.Errorf("delete history of %s: %w", id, mapError(err))
	}
	res := t.db.Where("id = ?", id).Delete(&bookingRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete booking %s: %w", id, mapError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("booking %s: %w", id, persistence.ErrNotFound)
	}
	return nil
}

func (t *gormTx) AppendStatusChange(ctx context.Context, change persistence.StatusChange) (persistence.StatusChange, error) {
	var count int64
	if err := t.db.Model(&bookingRecord{}).Where("id = ?", change.BookingID).Count(&count).Error; err != nil {
		return persistence.StatusChange{}, mapError(err)
	}
	if count == 0 {
		return persistence.StatusChange{}, fmt.Errorf("booking %s: %w", change.BookingID, persistence.ErrNotFound)
	}

	var head statusChangeRecord
	err := t.db.Where("booking_id = ?", change.BookingID).Order("seq DESC").Take(&head).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if change.OldStatus != nil {
			return persistence.StatusChange{}, fmt.Errorf("booking %s first record: %w", change.BookingID, persistence.ErrChainMismatch)
		}
	case err != nil:
		return persistence.StatusChange{}, mapError(err)
	default:
		if change.OldStatus == nil || *change.OldStatus != head.NewStatus {
			return persistence.StatusChange{}, fmt.Errorf("booking %s after %s: %w", change.BookingID, head.NewStatus, persistence.ErrChainMismatch)
		}
	}

	change.Seq = head.Seq + 1
	record := toStatusChangeRecord(change)
	if err := t.db.Create(&record).Error; err != nil {
		return persistence.StatusChange{}, fmt.Errorf("append history to %s: %w", change.BookingID, mapError(err))
	}
	return change, nil
}

func getBooking(db *gorm.DB, id string) (persistence.Booking, error) {
	var record bookingRecord
	if err := db.Where("id = ?", id).Take(&record).Error; err != nil {
		return persistence.Booking{}, fmt.Errorf("booking %s: %w", id, mapError(err))
	}
	return record.toPersistence()
}

func listBookings(db *gorm.DB, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	q := db.Model(&bookingRecord{})
	if filter.WorkerID != "" {
		q = q.Where("worker_id = ?", filter.WorkerID)
	}
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Date != nil {
		q = q.Where("scheduled_date = ?", filter.Date.String())
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}

	var records []bookingRecord
	if err := q.Order("scheduled_date ASC, scheduled_time ASC, id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list bookings: %w", mapError(err))
	}
	out := make([]persistence.Booking, 0, len(records))
	for _, r := range records {
		b, err := r.toPersistence()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func listStatusChanges(db *gorm.DB, bookingID string) ([]persistence.StatusChange, error) {
	var records []statusChangeRecord
	if err := db.Where("booking_id = ?", bookingID).Order("seq ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list history of %s: %w", bookingID, mapError(err))
	}
	out := make([]persistence.StatusChange, 0, len(records))
	for _, r := range records {
		out = append(out, r.toPersistence())
	}
	return out, nil
}

// mapError translates gorm and PostgreSQL errors into persistence errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return persistence.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == activeSlotIndex {
			return fmt.Errorf("%w: %s", persistence.ErrActiveSlotTaken, pgErr.Message)
		}
		return fmt.Errorf("%w: %s", persistence.ErrDuplicate, pgErr.Message)
	}
	return err
}
