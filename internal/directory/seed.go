package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Writer stores directory records. Replica tables and the static directory
// implement it.
type Writer interface {
	PutUser(ctx context.Context, u User) error
	PutWorker(ctx context.Context, w Worker) error
	PutCustomer(ctx context.Context, c Customer) error
	PutJob(ctx context.Context, j Job) error
}

// Seed is a snapshot of directory records, typically read from a JSON file.
type Seed struct {
	Users     []User     `json:"users"`
	Workers   []Worker   `json:"workers"`
	Customers []Customer `json:"customers"`
	Jobs      []Job      `json:"jobs"`
}

// LoadSeed reads a Seed from a JSON file.
func LoadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read directory seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("decode directory seed %s: %w", path, err)
	}
	return seed, nil
}

// Apply writes every record in dependency order: users, profiles, then jobs.
func (s Seed) Apply(ctx context.Context, w Writer) error {
	for _, u := range s.Users {
		if err := w.PutUser(ctx, u); err != nil {
			return err
		}
	}
	for _, worker := range s.Workers {
		if err := w.PutWorker(ctx, worker); err != nil {
			return err
		}
	}
	for _, c := range s.Customers {
		if err := w.PutCustomer(ctx, c); err != nil {
			return err
		}
	}
	for _, j := range s.Jobs {
		if err := w.PutJob(ctx, j); err != nil {
			return err
		}
	}
	return nil
}
