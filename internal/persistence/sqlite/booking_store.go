package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/moby/locker"

	"github.com/example/worker-booking/internal/persistence"
)

const bookingColumns = `id, worker_id, customer_id, job_id, scheduled_date, scheduled_time,
	estimated_duration_hours, status, final_cost_cents, payment_status, notes,
	cancellation_reason, cancelled_at, completed_at, created_at, updated_at`

// BookingStore implements persistence.BookingStore on SQLite.
type BookingStore struct {
	pool    *ConnectionPool
	mapper  *ErrorMapper
	workers *locker.Locker
	items   *locker.Locker
}

// NewBookingStore creates a store over an open, migrated pool.
func NewBookingStore(pool *ConnectionPool) *BookingStore {
	return &BookingStore{
		pool:    pool,
		mapper:  NewErrorMapper(),
		workers: locker.New(),
		items:   locker.New(),
	}
}

var _ persistence.BookingStore = (*BookingStore)(nil)

func (s *BookingStore) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	return getBooking(ctx, s.pool.DB(), s.mapper, id)
}

func (s *BookingStore) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	return listBookings(ctx, s.pool.DB(), s.mapper, filter)
}

func (s *BookingStore) ListStatusChanges(ctx context.Context, bookingID string) ([]persistence.StatusChange, error) {
	return listStatusChanges(ctx, s.pool.DB(), s.mapper, bookingID)
}

// InWorkerScope serializes fn per worker in process and runs it inside an
// IMMEDIATE transaction, which also serializes it against other processes.
func (s *BookingStore) InWorkerScope(ctx context.Context, workerID string, fn persistence.TxFunc) error {
	s.workers.Lock(workerID)
	defer func() { _ = s.workers.Unlock(workerID) }()
	return s.inTx(ctx, fn)
}

// InBookingScope serializes fn per booking and runs it in a transaction.
func (s *BookingStore) InBookingScope(ctx context.Context, bookingID string, fn persistence.TxFunc) error {
	s.items.Lock(bookingID)
	defer func() { _ = s.items.Unlock(bookingID) }()
	return s.inTx(ctx, fn)
}

func (s *BookingStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *BookingStore) Close() error {
	return s.pool.Close()
}

func (s *BookingStore) inTx(ctx context.Context, fn persistence.TxFunc) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &bookingTx{tx: tx, mapper: s.mapper})
	})
}

type bookingTx struct {
	tx     *sql.Tx
	mapper *ErrorMapper
}

func (t *bookingTx) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	return getBooking(ctx, t.tx, t.mapper, id)
}

func (t *bookingTx) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	return listBookings(ctx, t.tx, t.mapper, filter)
}

func (t *bookingTx) ListStatusChanges(ctx context.Context, bookingID string) ([]persistence.StatusChange, error) {
	return listStatusChanges(ctx, t.tx, t.mapper, bookingID)
}

func (t *bookingTx) InsertBooking(ctx context.Context, b persistence.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.tx.ExecContext(ctx, query,
		b.ID,
		b.WorkerID,
		b.CustomerID,
		nullString(b.JobID),
		b.ScheduledDate.String(),
		formatClock(b.ScheduledTime),
		nullInt(b.EstimatedDurationHours),
		b.Status,
		nullInt64(b.FinalCostCents),
		paymentStatusOrDefault(b.PaymentStatus),
		nullString(b.Notes),
		nullString(b.CancellationReason),
		nullTime(b.CancelledAt),
		nullTime(b.CompletedAt),
		formatTimestamp(b.CreatedAt),
		formatTimestamp(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert booking %s: %w", b.ID, t.mapper.MapError(err))
	}
	return nil
}

// UpdateBooking rewrites the mutable columns. Identity columns are never
// touched.
func (t *bookingTx) UpdateBooking(ctx context.Context, b persistence.Booking) error {
	const query = `
		UPDATE bookings SET
			scheduled_date = ?,
			scheduled_time = ?,
			estimated_duration_hours = ?,
			status = ?,
			notes = ?,
			cancellation_reason = ?,
			cancelled_at = ?,
			completed_at = ?,
			updated_at = ?
		WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, query,
		b.ScheduledDate.String(),
		formatClock(b.ScheduledTime),
		nullInt(b.EstimatedDurationHours),
		b.Status,
		nullString(b.Notes),
		nullString(b.CancellationReason),
		nullTime(b.CancelledAt),
		nullTime(b.CompletedAt),
		formatTimestamp(b.UpdatedAt),
		b.ID,
	)
	if err != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, t.mapper.MapError(err))
	}
	return requireRow(res, b.ID)
}

func (t *bookingTx) DeleteBooking(ctx context.Context, id string) error {
	// History rows cascade through the foreign key; deleting them first keeps
	// the statement correct even if foreign keys were disabled.
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM booking_status_history WHERE booking_id = ?`, id); err != nil {
		return fmt.Errorf("delete history of %s: %w", id, t.mapper.MapError(err))
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete booking %s: %w", id, t.mapper.MapError(err))
	}
	return requireRow(res, id)
}

func (t *bookingTx) AppendStatusChange(ctx context.Context, change persistence.StatusChange) (persistence.StatusChange, error) {
	var exists int
	if err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, change.BookingID).Scan(&exists); err != nil {
		return persistence.StatusChange{}, fmt.Errorf("booking %s: %w", change.BookingID, t.mapper.MapError(err))
	}

	var (
		lastSeq    int
		lastStatus sql.NullString
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT seq, new_status FROM booking_status_history
		WHERE booking_id = ?
		ORDER BY seq DESC
		LIMIT 1`, change.BookingID).Scan(&lastSeq, &lastStatus)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return persistence.StatusChange{}, fmt.Errorf("load history head of %s: %w", change.BookingID, t.mapper.MapError(err))
	}

	switch {
	case lastSeq == 0 && change.OldStatus != nil:
		return persistence.StatusChange{}, fmt.Errorf("booking %s first record: %w", change.BookingID, persistence.ErrChainMismatch)
	case lastSeq > 0 && (change.OldStatus == nil || *change.OldStatus != lastStatus.String):
		return persistence.StatusChange{}, fmt.Errorf("booking %s after %s: %w", change.BookingID, lastStatus.String, persistence.ErrChainMismatch)
	}

	change.Seq = lastSeq + 1
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO booking_status_history (id, booking_id, seq, old_status, new_status, actor_id, reason, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		change.ID,
		change.BookingID,
		change.Seq,
		nullString(change.OldStatus),
		change.NewStatus,
		change.ActorID,
		nullString(change.Reason),
		formatTimestamp(change.ChangedAt),
	)
	if err != nil {
		return persistence.StatusChange{}, fmt.Errorf("append history to %s: %w", change.BookingID, t.mapper.MapError(err))
	}
	return change, nil
}

func getBooking(ctx context.Context, q queryer, mapper *ErrorMapper, id string) (persistence.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		return persistence.Booking{}, fmt.Errorf("booking %s: %w", id, mapper.MapError(err))
	}
	return b, nil
}

func listBookings(ctx context.Context, q queryer, mapper *ErrorMapper, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	query, args := buildListQuery(filter)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", mapper.MapError(err))
	}
	defer rows.Close()

	bookings := make([]persistence.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", mapper.MapError(err))
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bookings: %w", mapper.MapError(err))
	}
	return bookings, nil
}

func listStatusChanges(ctx context.Context, q queryer, mapper *ErrorMapper, bookingID string) ([]persistence.StatusChange, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, booking_id, seq, old_status, new_status, actor_id, reason, changed_at
		FROM booking_status_history
		WHERE booking_id = ?
		ORDER BY seq ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list history of %s: %w", bookingID, mapper.MapError(err))
	}
	defer rows.Close()

	changes := make([]persistence.StatusChange, 0)
	for rows.Next() {
		var (
			c         persistence.StatusChange
			oldStatus sql.NullString
			reason    sql.NullString
			changedAt string
		)
		if err := rows.Scan(&c.ID, &c.BookingID, &c.Seq, &oldStatus, &c.NewStatus, &c.ActorID, &reason, &changedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", mapper.MapError(err))
		}
		if c.ChangedAt, err = parseTimestamp(changedAt); err != nil {
			return nil, err
		}
		c.OldStatus = stringPtr(oldStatus)
		c.Reason = stringPtr(reason)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history of %s: %w", bookingID, mapper.MapError(err))
	}
	return changes, nil
}

// buildListQuery renders the filter as a WHERE clause. Results are ordered by
// date, time and id.
func buildListQuery(filter persistence.BookingFilter) (string, []any) {
	query := `SELECT ` + bookingColumns + ` FROM bookings`

	var (
		conditions []string
		args       []any
	)
	if filter.WorkerID != "" {
		conditions = append(conditions, "worker_id = ?")
		args = append(args, filter.WorkerID)
	}
	if filter.CustomerID != "" {
		conditions = append(conditions, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.Date != nil {
		conditions = append(conditions, "scheduled_date = ?")
		args = append(args, filter.Date.String())
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY scheduled_date ASC, scheduled_time ASC, id ASC"
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		b                      persistence.Booking
		jobID                  sql.NullString
		date, clock            string
		duration               sql.NullInt64
		finalCost              sql.NullInt64
		notes, cancelReason    sql.NullString
		cancelledAt, completed sql.NullString
		createdAt, updatedAt   string
	)
	if err := row.Scan(
		&b.ID,
		&b.WorkerID,
		&b.CustomerID,
		&jobID,
		&date,
		&clock,
		&duration,
		&b.Status,
		&finalCost,
		&b.PaymentStatus,
		&notes,
		&cancelReason,
		&cancelledAt,
		&completed,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Booking{}, err
	}

	var err error
	if b.ScheduledDate, err = civil.ParseDate(date); err != nil {
		return persistence.Booking{}, fmt.Errorf("parse scheduled_date %q: %w", date, err)
	}
	if b.ScheduledTime, err = civil.ParseTime(clock); err != nil {
		return persistence.Booking{}, fmt.Errorf("parse scheduled_time %q: %w", clock, err)
	}
	if b.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Booking{}, err
	}
	if b.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.Booking{}, err
	}
	if b.CancelledAt, err = parseTimestampPtr(cancelledAt); err != nil {
		return persistence.Booking{}, err
	}
	if b.CompletedAt, err = parseTimestampPtr(completed); err != nil {
		return persistence.Booking{}, err
	}
	if duration.Valid {
		v := int(duration.Int64)
		b.EstimatedDurationHours = &v
	}
	if finalCost.Valid {
		v := finalCost.Int64
		b.FinalCostCents = &v
	}
	b.JobID = stringPtr(jobID)
	b.Notes = stringPtr(notes)
	b.CancellationReason = stringPtr(cancelReason)
	return b, nil
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("booking %s: %w", id, persistence.ErrNotFound)
	}
	return nil
}

func paymentStatusOrDefault(status string) string {
	if status == "" {
		return "pending"
	}
	return status
}

func formatClock(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func parseTimestampPtr(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseTimestamp(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*v), Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
