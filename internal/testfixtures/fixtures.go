package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"

	"github.com/example/worker-booking/internal/application"
	"github.com/example/worker-booking/internal/directory"
	"github.com/example/worker-booking/internal/persistence"
)

var bookingCounter uint64

var referenceTime = time.Date(2025, time.May, 20, 9, 30, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate is the default scheduled date of booking fixtures.
func ReferenceDate() civil.Date {
	return civil.Date{Year: 2025, Month: time.June, Day: 1}
}

// --------------------------- Directory fixtures ---------------------------

// Marketplace is a small directory with two workers, two customers, an
// administrator, a user without profiles and one job.
type Marketplace struct {
	Directory *directory.Static

	WorkerUser      directory.User
	Worker          directory.Worker
	OtherWorkerUser directory.User
	OtherWorker     directory.Worker
	CustomerUser    directory.User
	Customer        directory.Customer
	OtherCustomer   directory.Customer
	OtherCustUser   directory.User
	AdminUser       directory.User
	OutsiderUser    directory.User
	Job             directory.Job
}

// NewMarketplace builds and loads the marketplace directory.
func NewMarketplace() Marketplace {
	m := Marketplace{
		Directory:       directory.NewStatic(),
		WorkerUser:      directory.User{ID: "user-worker", DisplayName: "Wanjiru"},
		OtherWorkerUser: directory.User{ID: "user-worker-2", DisplayName: "Otieno"},
		CustomerUser:    directory.User{ID: "user-customer", DisplayName: "Chidi"},
		OtherCustUser:   directory.User{ID: "user-customer-2", DisplayName: "Amara"},
		AdminUser:       directory.User{ID: "user-admin", DisplayName: "Admin", IsAdmin: true},
		OutsiderUser:    directory.User{ID: "user-outsider", DisplayName: "Nobody"},
	}
	m.Worker = directory.Worker{ID: "worker-1", UserID: m.WorkerUser.ID, DisplayName: m.WorkerUser.DisplayName}
	m.OtherWorker = directory.Worker{ID: "worker-2", UserID: m.OtherWorkerUser.ID, DisplayName: m.OtherWorkerUser.DisplayName}
	m.Customer = directory.Customer{ID: "customer-1", UserID: m.CustomerUser.ID, DisplayName: m.CustomerUser.DisplayName}
	m.OtherCustomer = directory.Customer{ID: "customer-2", UserID: m.OtherCustUser.ID, DisplayName: m.OtherCustUser.DisplayName}
	m.Job = directory.Job{ID: "job-1", CustomerID: m.Customer.ID, Title: "Fix leaking roof"}

	if err := m.Seed().Apply(context.Background(), m.Directory); err != nil {
		panic(fmt.Sprintf("testfixtures: seed marketplace: %v", err))
	}
	return m
}

// Seed returns the marketplace as a directory seed.
func (m Marketplace) Seed() directory.Seed {
	return directory.Seed{
		Users:     []directory.User{m.WorkerUser, m.OtherWorkerUser, m.CustomerUser, m.OtherCustUser, m.AdminUser, m.OutsiderUser},
		Workers:   []directory.Worker{m.Worker, m.OtherWorker},
		Customers: []directory.Customer{m.Customer, m.OtherCustomer},
		Jobs:      []directory.Job{m.Job},
	}
}

// Principal returns the principal for a directory user.
func Principal(u directory.User) application.Principal {
	return application.Principal{UserID: u.ID, IsAdmin: u.IsAdmin}
}

// ---------------------------- Booking fixtures ----------------------------

// BookingFixture represents a deterministic stored booking.
type BookingFixture struct {
	ID            string
	WorkerID      string
	CustomerID    string
	JobID         *string
	ScheduledDate civil.Date
	ScheduledTime civil.Time
	Status        string
	Notes         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns a requested booking of worker-1 for customer-1 on
// ReferenceDate, with optional overrides.
func NewBookingFixture(opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := BookingFixture{
		ID:            fmt.Sprintf("booking-%03d", idx),
		WorkerID:      "worker-1",
		CustomerID:    "customer-1",
		ScheduledDate: ReferenceDate(),
		ScheduledTime: civil.Time{Hour: 9},
		Status:        "requested",
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingID overrides the generated booking ID.
func WithBookingID(id string) BookingOption {
	return func(f *BookingFixture) {
		f.ID = id
	}
}

// WithBookingWorker overrides the worker.
func WithBookingWorker(workerID string) BookingOption {
	return func(f *BookingFixture) {
		f.WorkerID = workerID
	}
}

// WithBookingCustomer overrides the customer.
func WithBookingCustomer(customerID string) BookingOption {
	return func(f *BookingFixture) {
		f.CustomerID = customerID
	}
}

// WithBookingDate overrides the scheduled date.
func WithBookingDate(date civil.Date) BookingOption {
	return func(f *BookingFixture) {
		f.ScheduledDate = date
	}
}

// WithBookingTime overrides the scheduled time of day.
func WithBookingTime(clock civil.Time) BookingOption {
	return func(f *BookingFixture) {
		f.ScheduledTime = clock
	}
}

// WithBookingStatus overrides the status.
func WithBookingStatus(status string) BookingOption {
	return func(f *BookingFixture) {
		f.Status = status
	}
}

// WithBookingNotes sets free-text notes.
func WithBookingNotes(notes string) BookingOption {
	return func(f *BookingFixture) {
		f.Notes = &notes
	}
}

// Persistence returns the fixture as a persistence.Booking value.
func (f BookingFixture) Persistence() persistence.Booking {
	return persistence.Booking{
		ID:            f.ID,
		WorkerID:      f.WorkerID,
		CustomerID:    f.CustomerID,
		JobID:         f.JobID,
		ScheduledDate: f.ScheduledDate,
		ScheduledTime: f.ScheduledTime,
		Status:        f.Status,
		PaymentStatus: "pending",
		Notes:         f.Notes,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

// Store inserts the fixture into store through a worker scope together with
// a creation record and, for non-requested statuses, one record per step of
// the shortest path from requested.
func (f BookingFixture) Store(ctx context.Context, store persistence.BookingStore, actorID string) error {
	return store.InWorkerScope(ctx, f.WorkerID, func(ctx context.Context, tx persistence.BookingTx) error {
		if err := tx.InsertBooking(ctx, f.Persistence()); err != nil {
			return err
		}
		reason := "Booking created"
		previous := ""
		for i, status := range statusPath(f.Status) {
			change := persistence.StatusChange{
				ID:        fmt.Sprintf("%s-h%d", f.ID, i+1),
				BookingID: f.ID,
				NewStatus: status,
				ActorID:   actorID,
				ChangedAt: f.CreatedAt,
			}
			if i == 0 {
				change.Reason = &reason
			} else {
				old := previous
				change.OldStatus = &old
			}
			if _, err := tx.AppendStatusChange(ctx, change); err != nil {
				return err
			}
			previous = status
		}
		return nil
	})
}

func statusPath(status string) []string {
	switch status {
	case "accepted":
		return []string{"requested", "accepted"}
	case "in_progress":
		return []string{"requested", "accepted", "in_progress"}
	case "completed":
		return []string{"requested", "accepted", "in_progress", "completed"}
	case "rejected":
		return []string{"requested", "rejected"}
	case "cancelled":
		return []string{"requested", "cancelled"}
	default:
		return []string{"requested"}
	}
}
