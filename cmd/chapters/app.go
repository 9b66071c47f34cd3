package main

import (
	"context"
	"fmt"

	"github.com/Sternrassler/chapters-api/pkg/api"
	"github.com/Sternrassler/chapters-api/pkg/cache"
	"github.com/Sternrassler/chapters-api/pkg/chapters"
	"github.com/Sternrassler/chapters-api/pkg/config"
	"github.com/Sternrassler/chapters-api/pkg/logging"
	"github.com/Sternrassler/chapters-api/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// app wires the collaborators shared by the commands.
type app struct {
	db       *chapters.DB
	cache    *cache.Client
	manager  *cache.Manager
	importer *chapters.Importer
}

// newApp opens the store and resolves the cache. A store failure is fatal;
// a cache failure only disables caching.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := chapters.Open(ctx, cfg.Database, logging.NewLogger("store"))
	if err != nil {
		return nil, err
	}

	client := cache.Connect(ctx, cfg.Cache, logging.NewLogger("cache"))
	return &app{
		db:       db,
		cache:    client,
		manager:  cache.NewManager(client, logging.NewLogger("cache")),
		importer: chapters.NewImporter(db, cfg.Import, logging.NewLogger("import")),
	}, nil
}

// server builds the HTTP server, selecting the rate limit store once.
func (a *app) server(ctx context.Context, cfg *config.Config) *api.Server {
	limiterLog := logging.NewLogger("ratelimit")
	store := ratelimit.SelectStore(ctx, a.cache, cfg.RateLimit, limiterLog)

	return api.NewServer(api.Deps{
		Store:    a.db,
		Importer: a.importer,
		Cache:    a.manager,
		Limiter:  ratelimit.New(store, cfg.RateLimit, limiterLog),
	}, cfg.Server, logging.NewLogger("api"))
}

// invalidate drops the cached listing after a write.
func (a *app) invalidate(ctx context.Context, logger zerolog.Logger) {
	if err := a.manager.Invalidate(ctx, cache.ChaptersKey); err != nil {
		logger.Warn().Err(err).Str("key", cache.ChaptersKey).Msg("Failed to invalidate cache")
	}
}

func (a *app) Close() error {
	cacheErr := a.cache.Close()
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return cacheErr
}
