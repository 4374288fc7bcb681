package sqlite

import (
	"context"
	"fmt"

	"github.com/example/worker-booking/internal/directory"
)

// The directory tables are replicas of records owned elsewhere. These upserts
// let a sync job or a development seed file populate them.

func (r *DirectoryRepository) PutUser(ctx context.Context, u directory.User) error {
	admin := 0
	if u.IsAdmin {
		admin = 1
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO users (id, display_name, is_admin) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name, is_admin = excluded.is_admin`,
		u.ID, u.DisplayName, admin)
	if err != nil {
		return fmt.Errorf("put user %s: %w", u.ID, err)
	}
	return nil
}

func (r *DirectoryRepository) PutWorker(ctx context.Context, w directory.Worker) error {
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO worker_profiles (id, user_id, display_name) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET user_id = excluded.user_id, display_name = excluded.display_name`,
		w.ID, w.UserID, w.DisplayName)
	if err != nil {
		return fmt.Errorf("put worker %s: %w", w.ID, err)
	}
	return nil
}

func (r *DirectoryRepository) PutCustomer(ctx context.Context, c directory.Customer) error {
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO customer_profiles (id, user_id, display_name) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET user_id = excluded.user_id, display_name = excluded.display_name`,
		c.ID, c.UserID, c.DisplayName)
	if err != nil {
		return fmt.Errorf("put customer %s: %w", c.ID, err)
	}
	return nil
}

func (r *DirectoryRepository) PutJob(ctx context.Context, j directory.Job) error {
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO jobs (id, customer_id, title) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET customer_id = excluded.customer_id, title = excluded.title`,
		j.ID, j.CustomerID, j.Title)
	if err != nil {
		return fmt.Errorf("put job %s: %w", j.ID, err)
	}
	return nil
}
