package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/chapters-api/pkg/cache"
	"github.com/Sternrassler/chapters-api/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiting.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chapters_rate_limit_requests_total",
		Help: "Rate limit checks by backend and outcome",
	}, []string{"backend", "outcome"}) // outcome: allowed, blocked, error

	backendInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chapters_rate_limit_backend",
		Help: "Active rate limit backend (1 for the selected one)",
	}, []string{"backend"})
)

// Config holds limiter configuration.
type Config struct {
	// Limit is the number of requests allowed per client per window.
	Limit int `yaml:"limit"`

	// Window is the fixed window length.
	Window time.Duration `yaml:"window"`

	// KeyPrefix namespaces counters in the shared store.
	KeyPrefix string `yaml:"key_prefix"`

	// MemoryCapacity bounds the in-process store (0 = unbounded).
	MemoryCapacity int `yaml:"memory_capacity"`

	// StoreTimeout bounds each shared store call.
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// DefaultConfig returns the API's rate limit configuration.
func DefaultConfig() Config {
	return Config{
		Limit:          DefaultLimit,
		Window:         DefaultWindow,
		KeyPrefix:      DefaultKeyPrefix,
		MemoryCapacity: 100000,
		StoreTimeout:   250 * time.Millisecond,
	}
}

// Limiter gates requests per client identifier.
type Limiter struct {
	store  Store
	limit  int
	logger zerolog.Logger
}

// New creates a limiter on top of store.
func New(store Store, cfg Config, logger zerolog.Logger) *Limiter {
	if store == nil {
		panic("rate limit store cannot be nil")
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		logger: logger,
	}
}

// SelectStore picks the counter store once at startup. It prefers the shared
// Redis store and falls back to the in-process store when the cache client
// is not ready, the backend rejects the limiter's commands, or construction
// fails in any other way.
func SelectStore(ctx context.Context, client *cache.Client, cfg Config, logger zerolog.Logger) Store {
	store, err := tryRedisStore(ctx, client, cfg)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("backend", "memory").
			Msg("Shared rate limit store unavailable, using in-process counters")

		mem := NewMemoryStore(cfg.Window, cfg.MemoryCapacity)
		backendInfo.WithLabelValues(mem.Name()).Set(1)
		return mem
	}

	logger.Info().Str("backend", store.Name()).Msg("Rate limiter using shared store")
	backendInfo.WithLabelValues(store.Name()).Set(1)
	return store
}

func tryRedisStore(ctx context.Context, client *cache.Client, cfg Config) (store Store, err error) {
	defer func() {
		if r := recover(); r != nil {
			store = nil
			err = fmt.Errorf("rate limit store init panicked: %v", r)
		}
	}()

	if client == nil {
		return nil, cache.ErrUnavailable
	}
	scripter, err := client.Scripter()
	if err != nil {
		return nil, err
	}
	return NewRedisStore(ctx, scripter, cfg)
}

// Backend returns the active store name.
func (l *Limiter) Backend() string {
	return l.store.Name()
}

// Allow counts a request for clientID and reports whether it may proceed.
// Store errors fail open: the request is allowed and the error returned for
// logging.
func (l *Limiter) Allow(ctx context.Context, clientID string) (Decision, error) {
	counter, err := l.store.Increment(ctx, clientID)
	if err != nil {
		requestsTotal.WithLabelValues(l.store.Name(), "error").Inc()
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}, err
	}

	d := newDecision(l.limit, counter)
	if d.Allowed {
		requestsTotal.WithLabelValues(l.store.Name(), "allowed").Inc()
	} else {
		requestsTotal.WithLabelValues(l.store.Name(), "blocked").Inc()
	}
	return d, nil
}

// Middleware limits requests by client IP and sets the RateLimit-* headers.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientIP(r)

			logger := logging.FromContext(r.Context(), l.logger)

			d, err := l.Allow(r.Context(), client)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("client", client).
					Str("backend", l.store.Name()).
					Msg("Rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(d.ResetSeconds()))

			if !d.Allowed {
				logger.Debug().
					Str("client", client).
					Dur("reset_in", d.ResetIn).
					Msg("Rate limit exceeded")

				h.Set("Retry-After", strconv.Itoa(d.ResetSeconds()))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "Too many requests, please try again later.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of the request's remote address. Proxy
// headers are honored only when the router rewrites RemoteAddr upstream.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
