package directory

import (
	"context"
	"fmt"
	"sync"
)

// Static is an in-memory Directory. It backs the memory store driver and tests.
type Static struct {
	mu        sync.RWMutex
	users     map[string]User
	workers   map[string]Worker
	customers map[string]Customer
	jobs      map[string]Job
}

// NewStatic returns an empty directory.
func NewStatic() *Static {
	return &Static{
		users:     make(map[string]User),
		workers:   make(map[string]Worker),
		customers: make(map[string]Customer),
		jobs:      make(map[string]Job),
	}
}

var (
	_ Directory = (*Static)(nil)
	_ Writer    = (*Static)(nil)
)

// PutUser adds or replaces a user.
func (s *Static) PutUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// PutWorker adds or replaces a worker profile.
func (s *Static) PutWorker(ctx context.Context, w Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.ID] = w
	return nil
}

// PutCustomer adds or replaces a customer profile.
func (s *Static) PutCustomer(ctx context.Context, c Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
	return nil
}

// PutJob adds or replaces a job.
func (s *Static) PutJob(ctx context.Context, j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	return nil
}

func (s *Static) User(ctx context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return u, nil
}

func (s *Static) Worker(ctx context.Context, workerID string) (Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[workerID]
	if !ok {
		return Worker{}, fmt.Errorf("worker %s: %w", workerID, ErrNotFound)
	}
	return w, nil
}

func (s *Static) WorkerForUser(ctx context.Context, userID string) (Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.workers {
		if w.UserID == userID {
			return w, nil
		}
	}
	return Worker{}, fmt.Errorf("worker profile of user %s: %w", userID, ErrNotFound)
}

func (s *Static) Customer(ctx context.Context, customerID string) (Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[customerID]
	if !ok {
		return Customer{}, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	return c, nil
}

func (s *Static) CustomerForUser(ctx context.Context, userID string) (Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.customers {
		if c.UserID == userID {
			return c, nil
		}
	}
	return Customer{}, fmt.Errorf("customer profile of user %s: %w", userID, ErrNotFound)
}

func (s *Static) Job(ctx context.Context, jobID string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return j, nil
}
