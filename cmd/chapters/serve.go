package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/chapters-api/pkg/config"
	"github.com/Sternrassler/chapters-api/pkg/logging"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.Logging)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				logger.Error().Err(err).Msg("Startup failed")
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn().Err(err).Msg("Shutdown cleanup failed")
				}
			}()

			logger.Info().
				Str("version", version).
				Str("cache", a.cache.State().String()).
				Msg("Starting chapters API")
			return a.server(ctx, cfg).Run(ctx)
		},
	}
}
