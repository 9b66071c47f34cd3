package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript counts a hit and sets the window expiry on the first hit.
// A key left without expiry (PTTL -1) gets one, so a counter never outlives
// its window.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

var readScript = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

var resetScript = redis.NewScript(`
return redis.call("DEL", KEYS[1])
`)

// RedisStore keeps counters in Redis so limits hold across instances and
// restarts.
type RedisStore struct {
	scripter  redis.Scripter
	window    time.Duration
	keyPrefix string
	timeout   time.Duration
}

// NewRedisStore builds the shared store. Construction loads the increment
// script, which doubles as the capability probe: a backend without
// scripting support fails here instead of miscounting later.
func NewRedisStore(ctx context.Context, scripter redis.Scripter, cfg Config) (*RedisStore, error) {
	if scripter == nil {
		return nil, fmt.Errorf("redis scripter is required")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("window must be positive (got %v)", cfg.Window)
	}

	s := &RedisStore{
		scripter:  scripter,
		window:    cfg.Window,
		keyPrefix: cfg.KeyPrefix,
		timeout:   cfg.StoreTimeout,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultConfig().StoreTimeout
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, script := range []*redis.Script{incrementScript, readScript, resetScript} {
		if err := script.Load(probeCtx, scripter).Err(); err != nil {
			return nil, classify("SCRIPT LOAD", err)
		}
	}

	return s, nil
}

// Name implements Store.
func (s *RedisStore) Name() string {
	return "redis"
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string) (Counter, error) {
	return s.run(ctx, incrementScript, key, s.window.Milliseconds())
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (Counter, error) {
	return s.run(ctx, readScript, key)
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := resetScript.Run(ctx, s.scripter, []string{s.keyPrefix + key}).Err(); err != nil {
		return classify("EVALSHA", err)
	}
	return nil
}

func (s *RedisStore) run(ctx context.Context, script *redis.Script, key string, args ...interface{}) (Counter, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vals, err := script.Run(ctx, s.scripter, []string{s.keyPrefix + key}, args...).Int64Slice()
	if err != nil {
		return Counter{}, classify("EVALSHA", err)
	}
	if len(vals) != 2 {
		return Counter{}, fmt.Errorf("unexpected script reply length %d", len(vals))
	}

	resetIn := time.Duration(vals[1]) * time.Millisecond
	if resetIn < 0 {
		resetIn = 0
	}
	return Counter{Count: vals[0], ResetIn: resetIn}, nil
}

// classify turns "unknown command" replies into UnsupportedCommandError so
// a backend lacking scripting is clearly identified.
func classify(command string, err error) error {
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := strings.ToLower(redisErr.Error())
		if strings.Contains(msg, "unknown command") || strings.Contains(msg, "unknown subcommand") {
			return &UnsupportedCommandError{Command: command, Err: err}
		}
	}
	return fmt.Errorf("redis %s: %w", strings.ToLower(command), err)
}
