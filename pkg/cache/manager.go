package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Manager stores JSON documents on top of the cache client.
type Manager struct {
	client *Client
	logger zerolog.Logger
}

// NewManager creates a new cache manager.
func NewManager(client *Client, logger zerolog.Logger) *Manager {
	if client == nil {
		panic("cache client cannot be nil")
	}
	return &Manager{
		client: client,
		logger: logger,
	}
}

// Client returns the underlying cache client.
func (m *Manager) Client() *Client {
	return m.client
}

// Available reports whether the backend is expected to serve requests.
func (m *Manager) Available() bool {
	return m.client.Available()
}

// GetRaw returns the stored JSON document for key.
// Returns ErrCacheMiss if absent and ErrInvalidEntry if the stored value is
// not valid JSON.
func (m *Manager) GetRaw(ctx context.Context, key string) (json.RawMessage, error) {
	val, err := m.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			CacheMisses.WithLabelValues(key).Inc()
		}
		return nil, err
	}

	data := []byte(val)
	if !json.Valid(data) {
		CacheErrors.WithLabelValues("decode").Inc()
		CacheMisses.WithLabelValues(key).Inc()
		return nil, fmt.Errorf("%w: key %q does not hold JSON", ErrInvalidEntry, key)
	}

	CacheHits.WithLabelValues(key).Inc()
	return json.RawMessage(data), nil
}

// SetJSON serializes v and stores it under key with the given TTL.
func (m *Manager) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.client.SetEx(ctx, key, ttl, string(data)); err != nil {
		return err
	}

	m.logger.Debug().
		Str("key", key).
		Dur("ttl", ttl).
		Int("bytes", len(data)).
		Msg("Cached document")
	return nil
}

// Invalidate removes key so the next read rebuilds it.
func (m *Manager) Invalidate(ctx context.Context, key string) error {
	if err := m.client.Delete(ctx, key); err != nil {
		return err
	}
	CacheInvalidations.WithLabelValues(key).Inc()
	m.logger.Debug().Str("key", key).Msg("Invalidated cache key")
	return nil
}
