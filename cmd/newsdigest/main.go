package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"NewsDigest/internal/app"
	"NewsDigest/internal/config"
	"NewsDigest/internal/infrastructure/storage"
	"NewsDigest/internal/logging"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "newsdigest",
		Short:         "Danish news digest: RSS ingestion, AI summaries and a read API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides NEWS_DIGEST_CONFIG)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "once",
			Short: "Run a single ingestion pass now, ignoring the active window",
			RunE:  once,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE:  migrate,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, application *app.Application) error {
		return application.Run(ctx)
	})
}

func once(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, application *app.Application) error {
		return application.RunPass(ctx)
	})
}

func migrate(*cobra.Command, []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if err := storage.RunMigrations(cfg.Database.DSN); err != nil {
		return err
	}
	logger.Info("database schema up to date")
	return nil
}

func setup() (config.Config, *slog.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, nil, fmt.Errorf("load .env: %w", err)
	}
	path := configPath
	if path == "" {
		path = os.Getenv("NEWS_DIGEST_CONFIG")
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format), nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.Application) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	db, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer func(db *sql.DB) { _ = db.Close() }(db)

	if cfg.Database.MigrateOnBoot {
		if err := storage.RunMigrations(cfg.Database.DSN); err != nil {
			return err
		}
		logger.Info("database schema up to date")
	}

	application, err := app.New(cfg, logger, storage.NewPostgresRepository(db))
	if err != nil {
		return err
	}

	if err := fn(ctx, application); err != nil {
		logger.Error("application stopped", "error", err)
		return err
	}
	return nil
}
