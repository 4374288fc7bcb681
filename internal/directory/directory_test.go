package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

type countingDirectory struct {
	*Static
	mu    sync.Mutex
	calls map[string]int
}

func newCountingDirectory() *countingDirectory {
	return &countingDirectory{Static: NewStatic(), calls: make(map[string]int)}
}

func (c *countingDirectory) count(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
}

func (c *countingDirectory) Worker(ctx context.Context, id string) (Worker, error) {
	c.count("worker")
	return c.Static.Worker(ctx, id)
}

func (c *countingDirectory) User(ctx context.Context, id string) (User, error) {
	c.count("user")
	return c.Static.User(ctx, id)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mapCache) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", false, errors.New("cache down")
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *mapCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	m.ttls[key] = ttl
	return nil
}

func TestStaticLookups(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := NewStatic()
	dir.PutUser(ctx, User{ID: "u1", DisplayName: "Ana"})
	dir.PutWorker(ctx, Worker{ID: "w1", UserID: "u1"})
	dir.PutCustomer(ctx, Customer{ID: "c1", UserID: "u2"})
	dir.PutJob(ctx, Job{ID: "j1", CustomerID: "c1", Title: "Fix fence"})

	if w, err := dir.WorkerForUser(ctx, "u1"); err != nil || w.ID != "w1" {
		t.Fatalf("WorkerForUser = %+v, %v", w, err)
	}
	if c, err := dir.CustomerForUser(ctx, "u2"); err != nil || c.ID != "c1" {
		t.Fatalf("CustomerForUser = %+v, %v", c, err)
	}
	if j, err := dir.Job(ctx, "j1"); err != nil || j.Title != "Fix fence" {
		t.Fatalf("Job = %+v, %v", j, err)
	}

	if _, err := dir.Worker(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := dir.CustomerForUser(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCachedServesRepeatLookupsFromCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source := newCountingDirectory()
	source.PutWorker(ctx, Worker{ID: "w1", UserID: "u1", DisplayName: "Bo"})
	cache := newMapCache()
	cached := NewCached(source, cache, time.Minute, nil)

	for i := 0; i < 3; i++ {
		w, err := cached.Worker(ctx, "w1")
		if err != nil {
			t.Fatalf("Worker returned error: %v", err)
		}
		if w.DisplayName != "Bo" {
			t.Fatalf("unexpected worker %+v", w)
		}
	}
	if source.calls["worker"] != 1 {
		t.Fatalf("expected one source call, got %d", source.calls["worker"])
	}
	if ttl := cache.ttls["booking:directory:worker:w1"]; ttl != time.Minute {
		t.Fatalf("expected ttl to be recorded, got %v", ttl)
	}
}

func TestCachedDoesNotCacheMisses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source := newCountingDirectory()
	cached := NewCached(source, newMapCache(), time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := cached.User(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if source.calls["user"] != 2 {
		t.Fatalf("expected misses to reach the source, got %d calls", source.calls["user"])
	}

	source.PutUser(ctx, User{ID: "ghost"})
	if _, err := cached.User(ctx, "ghost"); err != nil {
		t.Fatalf("expected user after it appeared, got %v", err)
	}
}

func TestCachedFallsBackWhenCacheFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source := newCountingDirectory()
	source.PutUser(ctx, User{ID: "u1", IsAdmin: true})
	cache := newMapCache()
	cache.failGet = true
	cached := NewCached(source, cache, time.Minute, nil)

	u, err := cached.User(ctx, "u1")
	if err != nil || !u.IsAdmin {
		t.Fatalf("User = %+v, %v", u, err)
	}
}

func TestCachedWithUnreachableRedis(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	source := NewStatic()
	source.PutJob(ctx, Job{ID: "j1", Title: "Paint"})
	cached := NewCached(source, NewRedisCache(client), time.Minute, nil)

	j, err := cached.Job(ctx, "j1")
	if err != nil || j.Title != "Paint" {
		t.Fatalf("Job = %+v, %v", j, err)
	}
}
