// Package ratelimit implements per-client fixed-window request limiting with
// a shared Redis counter store and an in-process fallback.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Counter is the state of one client's current window.
type Counter struct {
	// Count is the number of requests seen in the window, including this one.
	Count int64

	// ResetIn is the time left until the window ends.
	ResetIn time.Duration
}

// Store is the counter backend a Limiter runs on.
type Store interface {
	// Increment counts one request for key, starting a new window (with an
	// expiry equal to the window length) when none is active.
	Increment(ctx context.Context, key string) (Counter, error)

	// Get reads the current window without counting a request.
	Get(ctx context.Context, key string) (Counter, error)

	// Reset drops the window for key.
	Reset(ctx context.Context, key string) error

	// Name identifies the backend ("redis" or "memory").
	Name() string
}

// UnsupportedCommandError reports that the shared store rejected a command
// the limiter relies on.
type UnsupportedCommandError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("rate limit store does not support %s: %v", e.Command, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UnsupportedCommandError) Unwrap() error {
	return e.Err
}
