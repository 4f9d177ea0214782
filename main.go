package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/metrics"
	"github.com/danielhkuo/livepoll/store"
)

var rootCmd = &cobra.Command{
	Use:           "livepoll",
	Short:         "Real-time polling with a live leaderboard",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cliparse.RegisterFlags(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// setup resolves the configuration for cmd and installs its logger as the
// slog default.
func setup(cmd *cobra.Command) (cliparse.Config, *slog.Logger, error) {
	cfg, err := cliparse.Load(cmd.Flags())
	if err != nil {
		return cliparse.Config{}, nil, fmt.Errorf("error parsing flags: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return cliparse.Config{}, nil, err
	}
	slog.SetDefault(logger)

	return cfg, logger, nil
}

// openStore connects to the configured database and makes sure the schema
// exists. The caller closes the returned connection.
func openStore(ctx context.Context, cfg cliparse.Config, logger *slog.Logger, rec metrics.Recorder) (*store.Store, *sql.DB, error) {
	conn, dialect, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.CreateSchema(conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("schema creation failed: %w", err)
	}
	logger.Debug("Database schema ready", "type", dialect.Type)

	st := store.New(conn, dialect, store.Options{
		Logger:  logger.With("component", "store"),
		Metrics: rec,
	})

	return st, conn, nil
}
