package ratelimit

import (
	"math"
	"time"
)

// Defaults for the API's public rate limit.
const (
	// DefaultLimit is the number of requests a client may make per window.
	DefaultLimit = 30

	// DefaultWindow is the fixed window length.
	DefaultWindow = 60 * time.Second

	// DefaultKeyPrefix namespaces counters in the shared store.
	DefaultKeyPrefix = "ratelimit:"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	// Allowed is false when the request exceeded the limit.
	Allowed bool `json:"allowed"`

	// Limit is the configured number of requests per window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window.
	Remaining int `json:"remaining"`

	// ResetIn is the time until the window ends.
	ResetIn time.Duration `json:"reset_in"`
}

// newDecision derives a decision from the counter after an increment.
func newDecision(limit int, c Counter) Decision {
	remaining := int64(limit) - c.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   c.Count <= int64(limit),
		Limit:     limit,
		Remaining: int(remaining),
		ResetIn:   c.ResetIn,
	}
}

// ResetSeconds returns ResetIn rounded up to whole seconds, as used by the
// RateLimit-Reset and Retry-After headers.
func (d Decision) ResetSeconds() int {
	if d.ResetIn <= 0 {
		return 0
	}
	return int(math.Ceil(d.ResetIn.Seconds()))
}
