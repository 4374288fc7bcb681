// Package memory implements persistence.BookingStore in process memory. It is
// used by tests and by the memory store driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/moby/locker"

	"github.com/example/worker-booking/internal/persistence"
)

// Store keeps bookings and their history in maps guarded by a RWMutex.
// Scopes stage writes and apply them on successful return; the active slot
// rule is checked again at commit so worker and booking scopes cannot race.
type Store struct {
	mu       sync.RWMutex
	bookings map[string]persistence.Booking
	history  map[string][]persistence.StatusChange

	workers *locker.Locker
	items   *locker.Locker
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		bookings: make(map[string]persistence.Booking),
		history:  make(map[string][]persistence.StatusChange),
		workers:  locker.New(),
		items:    locker.New(),
	}
}

var _ persistence.BookingStore = (*Store)(nil)

func (s *Store) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

func (s *Store) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(filter), nil
}

func (s *Store) ListStatusChanges(ctx context.Context, bookingID string) ([]persistence.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyLocked(bookingID), nil
}

func (s *Store) InWorkerScope(ctx context.Context, workerID string, fn persistence.TxFunc) error {
	s.workers.Lock(workerID)
	defer func() { _ = s.workers.Unlock(workerID) }()
	return s.run(ctx, fn)
}

func (s *Store) InBookingScope(ctx context.Context, bookingID string, fn persistence.TxFunc) error {
	s.items.Lock(bookingID)
	defer func() { _ = s.items.Unlock(bookingID) }()
	return s.run(ctx, fn)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) run(ctx context.Context, fn persistence.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{store: s, bookings: map[string]*persistence.Booking{}, history: map[string][]persistence.StatusChange{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) getLocked(id string) (persistence.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return persistence.Booking{}, fmt.Errorf("booking %s: %w", id, persistence.ErrNotFound)
	}
	return cloneBooking(b), nil
}

func (s *Store) listLocked(filter persistence.BookingFilter) []persistence.Booking {
	out := make([]persistence.Booking, 0)
	for _, b := range s.bookings {
		if filter.Matches(b) {
			out = append(out, cloneBooking(b))
		}
	}
	sortBookings(out)
	return out
}

func (s *Store) historyLocked(bookingID string) []persistence.StatusChange {
	records := s.history[bookingID]
	out := make([]persistence.StatusChange, len(records))
	for i, r := range records {
		out[i] = cloneChange(r)
	}
	return out
}

// memTx stages changes against the store. A nil entry in bookings marks a
// deletion.
type memTx struct {
	store    *Store
	bookings map[string]*persistence.Booking
	history  map[string][]persistence.StatusChange
	order    []string
}

func (tx *memTx) touch(id string) {
	if _, ok := tx.bookings[id]; ok {
		return
	}
	tx.order = append(tx.order, id)
}

func (tx *memTx) lookup(id string) (persistence.Booking, bool) {
	if staged, ok := tx.bookings[id]; ok {
		if staged == nil {
			return persistence.Booking{}, false
		}
		return *staged, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	b, ok := tx.store.bookings[id]
	return b, ok
}

func (tx *memTx) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	b, ok := tx.lookup(id)
	if !ok {
		return persistence.Booking{}, fmt.Errorf("booking %s: %w", id, persistence.ErrNotFound)
	}
	return cloneBooking(b), nil
}

func (tx *memTx) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	out := make([]persistence.Booking, 0)
	for _, b := range tx.view() {
		if filter.Matches(b) {
			out = append(out, cloneBooking(b))
		}
	}
	sortBookings(out)
	return out, nil
}

func (tx *memTx) ListStatusChanges(ctx context.Context, bookingID string) ([]persistence.StatusChange, error) {
	if _, ok := tx.lookup(bookingID); !ok {
		return []persistence.StatusChange{}, nil
	}
	tx.store.mu.RLock()
	out := tx.store.historyLocked(bookingID)
	tx.store.mu.RUnlock()
	for _, r := range tx.history[bookingID] {
		out = append(out, cloneChange(r))
	}
	return out, nil
}

func (tx *memTx) InsertBooking(ctx context.Context, booking persistence.Booking) error {
	if _, ok := tx.lookup(booking.ID); ok {
		return fmt.Errorf("booking %s: %w", booking.ID, persistence.ErrDuplicate)
	}
	if err := checkSlot(tx.view(), booking); err != nil {
		return err
	}
	b := cloneBooking(booking)
	tx.touch(b.ID)
	tx.bookings[b.ID] = &b
	return nil
}

func (tx *memTx) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	if _, ok := tx.lookup(booking.ID); !ok {
		return fmt.Errorf("booking %s: %w", booking.ID, persistence.ErrNotFound)
	}
	if err := checkSlot(tx.view(), booking); err != nil {
		return err
	}
	b := cloneBooking(booking)
	tx.touch(b.ID)
	tx.bookings[b.ID] = &b
	return nil
}

func (tx *memTx) DeleteBooking(ctx context.Context, id string) error {
	if _, ok := tx.lookup(id); !ok {
		return fmt.Errorf("booking %s: %w", id, persistence.ErrNotFound)
	}
	tx.touch(id)
	tx.bookings[id] = nil
	delete(tx.history, id)
	return nil
}

func (tx *memTx) AppendStatusChange(ctx context.Context, change persistence.StatusChange) (persistence.StatusChange, error) {
	if _, ok := tx.lookup(change.BookingID); !ok {
		return persistence.StatusChange{}, fmt.Errorf("booking %s: %w", change.BookingID, persistence.ErrNotFound)
	}
	existing, err := tx.ListStatusChanges(ctx, change.BookingID)
	if err != nil {
		return persistence.StatusChange{}, err
	}
	if err := checkChain(existing, change); err != nil {
		return persistence.StatusChange{}, err
	}
	stored := cloneChange(change)
	stored.Seq = len(existing) + 1
	tx.history[change.BookingID] = append(tx.history[change.BookingID], stored)
	return cloneChange(stored), nil
}

// checkSlot enforces the one-active-booking-per-worker-per-date rule.
func checkSlot(bookings []persistence.Booking, candidate persistence.Booking) error {
	if !persistence.IsActiveStatus(candidate.Status) {
		return nil
	}
	for _, other := range bookings {
		if other.ID == candidate.ID || other.WorkerID != candidate.WorkerID {
			continue
		}
		if other.ScheduledDate == candidate.ScheduledDate && persistence.IsActiveStatus(other.Status) {
			return fmt.Errorf("worker %s on %s: %w", candidate.WorkerID, candidate.ScheduledDate, persistence.ErrActiveSlotTaken)
		}
	}
	return nil
}

func (tx *memTx) view() []persistence.Booking {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.viewLocked()
}

func (tx *memTx) viewLocked() []persistence.Booking {
	out := make([]persistence.Booking, 0, len(tx.store.bookings)+len(tx.bookings))
	for id, b := range tx.store.bookings {
		if _, staged := tx.bookings[id]; staged {
			continue
		}
		out = append(out, b)
	}
	for _, staged := range tx.bookings {
		if staged != nil {
			out = append(out, *staged)
		}
	}
	return out
}

func (tx *memTx) commit() error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	current := tx.viewLocked()
	for _, id := range tx.order {
		if staged := tx.bookings[id]; staged != nil {
			if err := checkSlot(current, *staged); err != nil {
				return err
			}
		}
	}
	for _, id := range tx.order {
		staged := tx.bookings[id]
		if staged == nil {
			delete(tx.store.bookings, id)
			delete(tx.store.history, id)
			continue
		}
		tx.store.bookings[id] = *staged
	}
	for id, records := range tx.history {
		tx.store.history[id] = append(tx.store.history[id], records...)
	}
	return nil
}

func checkChain(existing []persistence.StatusChange, change persistence.StatusChange) error {
	if len(existing) == 0 {
		if change.OldStatus != nil {
			return fmt.Errorf("booking %s first record: %w", change.BookingID, persistence.ErrChainMismatch)
		}
		return nil
	}
	last := existing[len(existing)-1]
	if change.OldStatus == nil || *change.OldStatus != last.NewStatus {
		return fmt.Errorf("booking %s after %s: %w", change.BookingID, last.NewStatus, persistence.ErrChainMismatch)
	}
	return nil
}

func sortBookings(bookings []persistence.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if a.ScheduledDate != b.ScheduledDate {
			return a.ScheduledDate.Before(b.ScheduledDate)
		}
		if a.ScheduledTime != b.ScheduledTime {
			return a.ScheduledTime.Before(b.ScheduledTime)
		}
		return a.ID < b.ID
	})
}

func cloneBooking(b persistence.Booking) persistence.Booking {
	out := b
	out.JobID = cloneString(b.JobID)
	out.Notes = cloneString(b.Notes)
	out.CancellationReason = cloneString(b.CancellationReason)
	out.CancelledAt = cloneTime(b.CancelledAt)
	out.CompletedAt = cloneTime(b.CompletedAt)
	if b.EstimatedDurationHours != nil {
		v := *b.EstimatedDurationHours
		out.EstimatedDurationHours = &v
	}
	if b.FinalCostCents != nil {
		v := *b.FinalCostCents
		out.FinalCostCents = &v
	}
	return out
}

func cloneChange(c persistence.StatusChange) persistence.StatusChange {
	out := c
	out.OldStatus = cloneString(c.OldStatus)
	out.Reason = cloneString(c.Reason)
	return out
}
