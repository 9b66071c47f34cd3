// Package testutil provides testing utilities for the chapters API.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/chapters-api/internal/retry"
	"github.com/Sternrassler/chapters-api/pkg/chapters"
	"github.com/rs/zerolog"
)

// NewDB opens a file-backed store in a temporary directory.
func NewDB(t *testing.T) *chapters.DB {
	t.Helper()

	cfg := chapters.Config{
		Path:  filepath.Join(t.TempDir(), "chapters.db"),
		Retry: retry.Config{MaxAttempts: 1},
	}
	db, err := chapters.Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// MockStore wraps a chapters.Store, counting calls and optionally
// failing or delaying them.
type MockStore struct {
	chapters.Store

	mu         sync.RWMutex
	err        error
	delay      time.Duration
	countCalls int
	findCalls  int
}

// NewMockStore wraps store.
func NewMockStore(store chapters.Store) *MockStore {
	return &MockStore{Store: store}
}

// FailWith makes every subsequent call return err (nil to recover).
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay delays every subsequent read.
func (m *MockStore) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// CountCalls returns the number of Count calls.
func (m *MockStore) CountCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countCalls
}

// FindCalls returns the number of Find calls.
func (m *MockStore) FindCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findCalls
}

func (m *MockStore) before(counter *int) error {
	m.mu.Lock()
	if counter != nil {
		*counter++
	}
	err, delay := m.err, m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

// Count implements chapters.Store.
func (m *MockStore) Count(ctx context.Context, f chapters.Filter) (int, error) {
	if err := m.before(&m.countCalls); err != nil {
		return 0, err
	}
	return m.Store.Count(ctx, f)
}

// Find implements chapters.Store.
func (m *MockStore) Find(ctx context.Context, f chapters.Filter, skip, limit int) ([]chapters.Chapter, error) {
	if err := m.before(&m.findCalls); err != nil {
		return nil, err
	}
	return m.Store.Find(ctx, f, skip, limit)
}

// FindByID implements chapters.Store.
func (m *MockStore) FindByID(ctx context.Context, id string) (*chapters.Chapter, error) {
	if err := m.before(nil); err != nil {
		return nil, err
	}
	return m.Store.FindByID(ctx, id)
}

// InsertOne implements chapters.Store.
func (m *MockStore) InsertOne(ctx context.Context, ch *chapters.Chapter) error {
	if err := m.before(nil); err != nil {
		return err
	}
	return m.Store.InsertOne(ctx, ch)
}

// Ping reports the injected failure, if any.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}
