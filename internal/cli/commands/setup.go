package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/config"
	"github.com/blitz-labs/tankrank/internal/cli/output"
	"github.com/blitz-labs/tankrank/internal/ledger"
	"github.com/blitz-labs/tankrank/internal/resolve"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    *ledger.Store
	Resolver *resolve.Resolver
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with an open store and resolver.
// Returns the context and a cleanup function that must be called (typically
// via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	res, err := resolve.New(store, resolve.Options{
		Logger:         logger,
		DictionaryPath: cfg.Dictionary,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	mode := output.Mode(cfg.Output)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	cleanup := func() {
		_ = store.Close()
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Store:    store,
		Resolver: res,
		Renderer: r,
	}, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext without opening the
// database. Useful for commands that only parse input.
func NewCommandContextWithoutStore(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.Output)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Helper functions shared across commands

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to
// environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	// Fallback: read from environment with defaults
	return &config.Config{
		Database:   getEnvOrDefault("TANKRANK_DATABASE", config.DefaultDatabase),
		Dictionary: os.Getenv("TANKRANK_DICTIONARY"),
		Verbose:    os.Getenv("TANKRANK_VERBOSE") == "true",
		Output:     os.Getenv("TANKRANK_OUTPUT"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func openStore(cfg *config.Config, logger *slog.Logger) (*ledger.Store, error) {
	// Ensure the database directory exists
	dbDir := filepath.Dir(cfg.Database)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, err
		}
	}

	return ledger.Open(cfg.Database, ledger.Options{
		Logger:   logger,
		MaxScore: cfg.MaxScore,
	})
}

// actorFlag reads the shared --actor flag, defaulting to "cli".
func actorFlag(cmd *cobra.Command) string {
	actor, _ := cmd.Flags().GetString("actor")
	if actor == "" {
		return "cli"
	}
	return actor
}
