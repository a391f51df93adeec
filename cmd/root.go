package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/codequiz/internal/app"
	"github.com/abhisek/codequiz/internal/config"
	"github.com/abhisek/codequiz/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "codequiz",
	Short:         "Programming quiz and assignment server",
	Long:          "codequiz serves adaptive programming quizzes and graded assignments backed by an LLM question bank.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the root command. ctx is cancelled on SIGINT or
// SIGTERM.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("db", "", "Database DSN or SQLite file path (overrides CODEQUIZ_DB)")
	flags.String("db-driver", "", "Database driver: sqlite or postgres (overrides CODEQUIZ_DB_DRIVER)")
	flags.String("env-file", "", "Path to a .env file (default .env)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment and applies the persistent flags on
// top. Flags win over the environment.
func loadConfig(cmd *cobra.Command, serving bool) (config.Config, *slog.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Database.DSN = v
	}
	if v, _ := cmd.Flags().GetString("db-driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		if cfg.LogLevel, err = config.ParseLevel(v); err != nil {
			return config.Config{}, nil, err
		}
	}
	if cfg.Database.Driver == store.DriverSQLite && cfg.Database.DSN != "" {
		if err := store.EnsureDir(cfg.Database.DSN); err != nil {
			return config.Config{}, nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	if err := cfg.Validate(serving); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openApp loads the config and wires the full service graph.
func openApp(cmd *cobra.Command, serving bool) (*app.App, error) {
	cfg, logger, err := loadConfig(cmd, serving)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, logger)
}

// openStore opens only the database, for commands that never call an
// oracle.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, _, err := loadConfig(cmd, false)
	if err != nil {
		return nil, err
	}
	dsn := cfg.Database.DSN
	if dsn == "" && cfg.Database.Driver == store.DriverSQLite {
		if dsn, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	s, err := store.Open(cfg.Database.Driver, dsn, store.WithEmbeddingDimensions(cfg.Embedding.Dimensions))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}
