package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/chapters-api/internal/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrUnavailable indicates the cache backend cannot serve requests right now.
	ErrUnavailable = errors.New("cache unavailable")
)

// State describes how the client came out of startup.
type State int

const (
	// StateDisabled means no Redis address was configured.
	StateDisabled State = iota

	// StateFailed means Redis was configured but could not be reached at startup.
	StateFailed

	// StateReady means the connection was verified at startup.
	StateReady
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateFailed:
		return "failed"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// BreakerConfig controls the circuit breaker in front of Redis.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32 `yaml:"max_failures"`

	// OpenTimeout is how long the circuit stays open before a probe is let through.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// Config holds the Redis connection settings.
type Config struct {
	// URL is either "host:port" or a redis:// URL. Empty disables caching.
	URL string `yaml:"url"`

	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// OpTimeout bounds every cache call. It should stay well below the
	// latency of the store query the cache is saving.
	OpTimeout time.Duration `yaml:"op_timeout"`

	// ConnectTimeout bounds each startup ping.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	Retry   retry.Config  `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		URL:            "localhost:6379",
		OpTimeout:      250 * time.Millisecond,
		ConnectTimeout: 2 * time.Second,
		Retry:          retry.DefaultConfig(),
		Breaker: BreakerConfig{
			MaxFailures: 5,
			OpenTimeout: 10 * time.Second,
		},
	}
}

// Client is the single process-wide handle to the cache backend. It is
// constructed once at startup and read-only afterwards.
type Client struct {
	rdb       *redis.Client
	state     State
	breaker   *gobreaker.CircuitBreaker
	opTimeout time.Duration
	logger    zerolog.Logger
}

// Connect builds the client and blocks until the startup ping resolves.
// It never fails: an unreachable backend yields a client in StateFailed
// whose operations all return ErrUnavailable.
func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) *Client {
	c := newClient(nil, StateDisabled, cfg, logger)

	if cfg.URL == "" {
		logger.Warn().Msg("No Redis URL configured, caching disabled")
		return c
	}

	opts, err := redisOptions(cfg)
	if err != nil {
		c.state = StateFailed
		logger.Warn().Err(err).Msg("Invalid Redis configuration, caching disabled")
		return c
	}

	rdb := redis.NewClient(opts)
	err = retry.Do(ctx, "redis", cfg.Retry, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		c.state = StateFailed
		logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unreachable at startup, caching disabled")
		return c
	}

	c.rdb = rdb
	c.state = StateReady
	logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return c
}

// NewClient wraps an already connected Redis client.
func NewClient(rdb *redis.Client, cfg Config, logger zerolog.Logger) *Client {
	if rdb == nil {
		panic("redis client cannot be nil")
	}
	return newClient(rdb, StateReady, cfg, logger)
}

func newClient(rdb *redis.Client, state State, cfg Config, logger zerolog.Logger) *Client {
	def := DefaultConfig()
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = def.Breaker.MaxFailures
	}
	if cfg.Breaker.OpenTimeout <= 0 {
		cfg.Breaker.OpenTimeout = def.Breaker.OpenTimeout
	}

	c := &Client{
		rdb:       rdb,
		state:     state,
		opTimeout: cfg.OpTimeout,
		logger:    logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 1,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Breaker.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			BreakerState.Set(float64(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Cache circuit breaker state changed")
		},
	})
	return c
}

func redisOptions(cfg Config) (*redis.Options, error) {
	if strings.Contains(cfg.URL, "://") {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// State reports the startup outcome.
func (c *Client) State() State {
	return c.state
}

// Available reports whether calls are currently expected to reach Redis.
func (c *Client) Available() bool {
	return c.state == StateReady && c.breaker.State() != gobreaker.StateOpen
}

// do runs fn through the breaker with the per-operation timeout.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.state != StateReady {
		return ErrUnavailable
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		return nil, fn(opCtx)
	})

	switch {
	case err == nil, errors.Is(err, redis.Nil):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		CacheErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		CacheErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("redis %s: %w", op, err)
	}
}

// Get returns the value stored under key, or ErrCacheMiss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := c.do(ctx, "get", func(ctx context.Context) error {
		v, err := c.rdb.Get(ctx, key).Result()
		val = v
		return err
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetEx stores value under key with the given expiry in a single SET.
func (c *Client) SetEx(ctx context.Context, key string, ttl time.Duration, value string) error {
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive (got %v)", ttl)
	}
	return c.do(ctx, "set", func(ctx context.Context) error {
		return c.rdb.Set(ctx, key, value, ttl).Err()
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.do(ctx, "delete", func(ctx context.Context) error {
		return c.rdb.Del(ctx, key).Err()
	})
}

// Ping checks connectivity, bypassing the breaker.
func (c *Client) Ping(ctx context.Context) error {
	if c.state != StateReady {
		return ErrUnavailable
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.rdb.Ping(pingCtx).Err()
}

// Scripter exposes Lua scripting for components that need atomic
// multi-step commands, such as the shared rate limit store.
func (c *Client) Scripter() (redis.Scripter, error) {
	if c.state != StateReady {
		return nil, ErrUnavailable
	}
	return c.rdb, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
