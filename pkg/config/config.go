// Package config loads the service configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Sternrassler/chapters-api/pkg/api"
	"github.com/Sternrassler/chapters-api/pkg/cache"
	"github.com/Sternrassler/chapters-api/pkg/chapters"
	"github.com/Sternrassler/chapters-api/pkg/logging"
	"github.com/Sternrassler/chapters-api/pkg/ratelimit"
	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Server    api.Config            `yaml:"server"`
	Database  chapters.Config       `yaml:"database"`
	Import    chapters.ImportConfig `yaml:"import"`
	Cache     cache.Config          `yaml:"cache"`
	RateLimit ratelimit.Config      `yaml:"rate_limit"`
	Logging   logging.Config        `yaml:"logging"`
}

// Default returns a Config with sensible defaults. Caching is off until a
// Redis URL is configured.
func Default() *Config {
	cacheCfg := cache.DefaultConfig()
	cacheCfg.URL = ""

	return &Config{
		Server:    api.DefaultConfig(),
		Database:  chapters.DefaultConfig(),
		Import:    chapters.DefaultImportConfig(),
		Cache:     cacheCfg,
		RateLimit: ratelimit.DefaultConfig(),
		Logging:   logging.DefaultConfig(),
	}
}

// Load reads an optional YAML config file, expanding environment variables
// in it, then applies environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment:
//
//	PORT           server listen port
//	REDIS_URL      cache address (set but empty disables caching)
//	DATABASE_PATH  SQLite file
//	ADMIN_TOKEN    upload bearer token
//	LOG_LEVEL      debug, info, warn or error
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Server.Addr = ":" + v
	}
	if v, ok := lookup("REDIS_URL"); ok {
		c.Cache.URL = v
	}
	if v, ok := lookup("DATABASE_PATH"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup("ADMIN_TOKEN"); ok {
		c.Server.AdminToken = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		level, err := logging.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		c.Logging.Level = level
	}
	return nil
}
