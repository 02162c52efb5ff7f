// ABOUTME: Root cobra command and shared plumbing for till subcommands
// ABOUTME: Resolves config, builds the logger and opens the store for each command

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/2389/till/internal/config"
	"github.com/2389/till/internal/store"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "till",
		Short:         "Offline-first point-of-sale datastore",
		Long:          "till keeps a shop's products, stock, orders and customers in a local document store\nand records every change for incremental sync.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $TILL_CONFIG or $XDG_CONFIG_HOME/till/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newChangesCommand(opts))
	cmd.AddCommand(newPruneCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

	return cmd
}

// configPath returns the --config flag or the default location.
func (o *rootOptions) configPath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	return config.ConfigPath()
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(o.configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newBackend picks the storage backend named in the config.
func newBackend(cfg config.StoreConfig) store.Backend {
	if cfg.Backend == config.BackendSQLite {
		return store.NewSQLiteBackend(cfg.Path())
	}
	return store.NewFileBackend(cfg.Path())
}

func openStore(cfg *config.Config, logger *slog.Logger) *store.Store {
	return store.New(newBackend(cfg.Store), store.WithLogger(logger))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
