package main

import (
	"fmt"

	"github.com/Sternrassler/chapters-api/pkg/cache"
	"github.com/Sternrassler/chapters-api/pkg/config"
	"github.com/Sternrassler/chapters-api/pkg/logging"
	"github.com/spf13/cobra"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the read cache",
	}

	flushCmd := &cobra.Command{
		Use:   "flush",
		Short: "Delete the cached chapter listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging)

			client := cache.Connect(cmd.Context(), cfg.Cache, logging.NewLogger("cache"))
			defer func() { _ = client.Close() }()

			if client.State() != cache.StateReady {
				return fmt.Errorf("cache is %s, nothing to flush", client.State())
			}
			m := cache.NewManager(client, logging.NewLogger("cache"))
			if err := m.Invalidate(cmd.Context(), cache.ChaptersKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted cache key %q.\n", cache.ChaptersKey)
			return nil
		},
	}

	cmd.AddCommand(flushCmd)
	return cmd
}
