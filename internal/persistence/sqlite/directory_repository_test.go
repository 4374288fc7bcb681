package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/example/worker-booking/internal/directory"
)

func TestDirectoryRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openStorage(t)
	repo := storage.Directory

	seed := directory.Seed{
		Users: []directory.User{
			{ID: "u-worker", DisplayName: "Wen"},
			{ID: "u-customer", DisplayName: "Cal"},
			{ID: "u-admin", IsAdmin: true},
		},
		Workers:   []directory.Worker{{ID: "w1", UserID: "u-worker", DisplayName: "Wen"}},
		Customers: []directory.Customer{{ID: "c1", UserID: "u-customer", DisplayName: "Cal"}},
		Jobs:      []directory.Job{{ID: "j1", CustomerID: "c1", Title: "Roof"}},
	}
	if err := seed.Apply(ctx, repo); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	// Applying twice updates in place.
	seed.Jobs[0].Title = "Roof repair"
	if err := seed.Apply(ctx, repo); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}

	admin, err := repo.User(ctx, "u-admin")
	if err != nil || !admin.IsAdmin {
		t.Fatalf("User = %+v, %v", admin, err)
	}
	if w, err := repo.Worker(ctx, "w1"); err != nil || w.UserID != "u-worker" {
		t.Fatalf("Worker = %+v, %v", w, err)
	}
	if w, err := repo.WorkerForUser(ctx, "u-worker"); err != nil || w.ID != "w1" {
		t.Fatalf("WorkerForUser = %+v, %v", w, err)
	}
	if c, err := repo.Customer(ctx, "c1"); err != nil || c.UserID != "u-customer" {
		t.Fatalf("Customer = %+v, %v", c, err)
	}
	if c, err := repo.CustomerForUser(ctx, "u-customer"); err != nil || c.ID != "c1" {
		t.Fatalf("CustomerForUser = %+v, %v", c, err)
	}
	if j, err := repo.Job(ctx, "j1"); err != nil || j.Title != "Roof repair" {
		t.Fatalf("Job = %+v, %v", j, err)
	}

	if _, err := repo.WorkerForUser(ctx, "u-customer"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.Job(ctx, "missing"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
