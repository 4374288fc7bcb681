package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/worker-booking/internal/directory"
)

// DirectoryRepository reads the directory replica tables.
type DirectoryRepository struct {
	pool *ConnectionPool
}

// NewDirectoryRepository creates a directory reader over pool.
func NewDirectoryRepository(pool *ConnectionPool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

var (
	_ directory.Directory = (*DirectoryRepository)(nil)
	_ directory.Writer    = (*DirectoryRepository)(nil)
)

func (r *DirectoryRepository) User(ctx context.Context, userID string) (directory.User, error) {
	var (
		u       directory.User
		isAdmin int
	)
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT id, display_name, is_admin FROM users WHERE id = ?`, userID,
	).Scan(&u.ID, &u.DisplayName, &isAdmin)
	if err != nil {
		return directory.User{}, mapDirectoryError("user", userID, err)
	}
	u.IsAdmin = isAdmin == 1
	return u, nil
}

func (r *DirectoryRepository) Worker(ctx context.Context, workerID string) (directory.Worker, error) {
	return r.worker(ctx, "id", workerID)
}

func (r *DirectoryRepository) WorkerForUser(ctx context.Context, userID string) (directory.Worker, error) {
	return r.worker(ctx, "user_id", userID)
}

func (r *DirectoryRepository) Customer(ctx context.Context, customerID string) (directory.Customer, error) {
	return r.customer(ctx, "id", customerID)
}

func (r *DirectoryRepository) CustomerForUser(ctx context.Context, userID string) (directory.Customer, error) {
	return r.customer(ctx, "user_id", userID)
}

func (r *DirectoryRepository) Job(ctx context.Context, jobID string) (directory.Job, error) {
	var j directory.Job
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT id, customer_id, title FROM jobs WHERE id = ?`, jobID,
	).Scan(&j.ID, &j.CustomerID, &j.Title)
	if err != nil {
		return directory.Job{}, mapDirectoryError("job", jobID, err)
	}
	return j, nil
}

// column is one of the fixed identifiers above, never caller input.
func (r *DirectoryRepository) worker(ctx context.Context, column, value string) (directory.Worker, error) {
	var w directory.Worker
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT id, user_id, display_name FROM worker_profiles WHERE `+column+` = ?`, value,
	).Scan(&w.ID, &w.UserID, &w.DisplayName)
	if err != nil {
		return directory.Worker{}, mapDirectoryError("worker", value, err)
	}
	return w, nil
}

func (r *DirectoryRepository) customer(ctx context.Context, column, value string) (directory.Customer, error) {
	var c directory.Customer
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT id, user_id, display_name FROM customer_profiles WHERE `+column+` = ?`, value,
	).Scan(&c.ID, &c.UserID, &c.DisplayName)
	if err != nil {
		return directory.Customer{}, mapDirectoryError("customer", value, err)
	}
	return c, nil
}

func mapDirectoryError(kind, key string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, key, directory.ErrNotFound)
	}
	return fmt.Errorf("lookup %s %s: %w", kind, key, err)
}
