// Package commands implements the datalens subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/datalens-labs/datalens/internal/adapter"
	"github.com/datalens-labs/datalens/internal/config"
	"github.com/datalens-labs/datalens/internal/state"
	"github.com/datalens-labs/datalens/pkg/core"
)

// runtimeKey is used to store the loaded config and logger in context.
type runtimeKey struct{}

type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
}

// WithRuntime stores the loaded config and logger in the context. The root
// command calls it once per invocation; subcommands read it back through
// NewCommandContext.
func WithRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, runtimeKey{}, &runtime{cfg: cfg, logger: logger})
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

// NewCommandContext extracts the config and logger placed in the command
// context by the root command.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	if rt, ok := cmd.Context().Value(runtimeKey{}).(*runtime); ok {
		return &CommandContext{Cfg: rt.cfg, Logger: rt.logger}
	}

	// Fallback for commands invoked outside the root (tests).
	cfg, err := config.Load("", nil)
	if err != nil {
		cfg = &config.Config{
			Endpoint:   config.DefaultEndpoint,
			Table:      config.DefaultTable,
			StatePath:  config.DefaultStateFile,
			SampleRows: config.DefaultSampleRows,
			Output:     config.DefaultOutput,
			ServePort:  config.DefaultServePort,
			Target:     &config.TargetConfig{Type: "duckdb"},
		}
	}
	return &CommandContext{
		Cfg:    cfg,
		Logger: slog.New(slog.DiscardHandler),
	}
}

// openAdapter connects the configured query engine adapter.
// Returns the adapter and a cleanup function that must be called
// (typically via defer).
func openAdapter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (adapter.Adapter, func(), error) {
	// Ensure the data directory exists for file-based databases
	if cfg.Target.Path != "" && cfg.Target.Path != ":memory:" {
		dir := filepath.Dir(cfg.Target.Path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	ad, err := adapter.New(adapterConfig(cfg.Target), logger)
	if err != nil {
		return nil, nil, err
	}
	if err := ad.Connect(ctx, adapterConfig(cfg.Target)); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", cfg.Target.Type, err)
	}

	cleanup := func() { _ = ad.Close() }
	return ad, cleanup, nil
}

// adapterConfig builds an adapter config from the target section.
func adapterConfig(t *config.TargetConfig) adapter.Config {
	return adapter.Config{
		Type:     t.Type,
		Path:     t.Path,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
	}
}

// openStore opens the run-history store, creating the state directory and
// schema as needed. Returns the store and a cleanup function.
func openStore(cfg *config.Config) (core.Store, func(), error) {
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore()
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() { _ = store.Close() }
	return store, cleanup, nil
}
