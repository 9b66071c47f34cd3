package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Sternrassler/chapters-api/pkg/chapters"
	"github.com/Sternrassler/chapters-api/pkg/config"
	"github.com/Sternrassler/chapters-api/pkg/logging"
	"github.com/spf13/cobra"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSON array of chapters and invalidate the cached listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.Logging)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			records, err := chapters.ParseBatch(data)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result, importErr := a.importer.Import(ctx, records)
			a.invalidate(ctx, logger)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			return importErr
		},
	}
}
