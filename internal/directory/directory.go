// Package directory describes the identity, profile and job lookups the
// booking engine depends on. The records are owned by other services; this
// package only reads them.
package directory

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("directory: not found")

// User is an authenticated account.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
}

// Worker is the bookable profile of a user.
type Worker struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Customer is the booking-side profile of a user.
type Customer struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Job is a posting a booking may be attached to.
type Job struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Title      string `json:"title"`
}

// Profiles resolves users and their worker or customer profiles.
type Profiles interface {
	User(ctx context.Context, userID string) (User, error)
	Worker(ctx context.Context, workerID string) (Worker, error)
	WorkerForUser(ctx context.Context, userID string) (Worker, error)
	Customer(ctx context.Context, customerID string) (Customer, error)
	CustomerForUser(ctx context.Context, userID string) (Customer, error)
}

// Jobs resolves job postings.
type Jobs interface {
	Job(ctx context.Context, jobID string) (Job, error)
}

// Directory combines both lookups.
type Directory interface {
	Profiles
	Jobs
}
