package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type window struct {
	count int64
	start time.Time
}

// MemoryStore keeps counters in process. Counts are local to one instance
// and lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	counters *expirable.LRU[string, *window]
	window   time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an in-process store. capacity bounds the number of
// tracked clients (0 means unbounded); idle entries are evicted after one
// window.
func NewMemoryStore(windowSize time.Duration, capacity int) *MemoryStore {
	if windowSize <= 0 {
		windowSize = DefaultConfig().Window
	}
	return &MemoryStore{
		counters: expirable.NewLRU[string, *window](capacity, nil, windowSize),
		window:   windowSize,
		now:      time.Now,
	}
}

// SetClock replaces the time source (for testing).
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Name implements Store.
func (s *MemoryStore) Name() string {
	return "memory"
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.counters.Get(key)
	if !ok || !now.Before(w.start.Add(s.window)) {
		w = &window{start: now}
	}
	w.count++
	s.counters.Add(key, w)

	return Counter{Count: w.count, ResetIn: w.start.Add(s.window).Sub(now)}, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.counters.Peek(key)
	if !ok || !now.Before(w.start.Add(s.window)) {
		return Counter{}, nil
	}
	return Counter{Count: w.count, ResetIn: w.start.Add(s.window).Sub(now)}, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters.Remove(key)
	return nil
}
