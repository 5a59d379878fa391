package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/abhisek/riskdrill/internal/app"
	"github.com/abhisek/riskdrill/internal/config"
	"github.com/abhisek/riskdrill/internal/store"
)

// loadConfig reads the --config file and RISKDRILL_* variables.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildApp loads configuration and wires every service. mutate runs on the
// config before construction.
func buildApp(cmd *cobra.Command, logOutput io.Writer, mutate func(*config.Config)) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}

	opts := []app.Option{app.WithLogOutput(logOutput)}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		opts = append(opts, app.WithDBPath(p))
	}
	a, err := app.New(cmd.Context(), cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("build app: %w", err)
	}
	return a, nil
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then the store.path setting, then RISKDRILL_DB or the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Store.Path != "" {
		return cfg.Store.Path, nil
	}
	return store.DefaultDBPath()
}
