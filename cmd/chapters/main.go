package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "chapters",
		Short:         "Chapter progress API with a Redis read cache",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(
		newServeCmd(opts),
		newImportCmd(opts),
		newCacheCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
