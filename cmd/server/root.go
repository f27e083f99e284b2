package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"zchat-signal/internal/config"
	"zchat-signal/internal/logging"
	"zchat-signal/internal/store/postgres"
	sqlitestore "zchat-signal/internal/store/sqlite"
	"zchat-signal/internal/store/sqlstore"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "zchat-signal",
		Short:        "zChat real-time signaling server",
		SilenceUsage: true,
		// Running the binary without a subcommand serves.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newTokenCmd())

	return cmd
}

// app is what every subcommand needs before doing its own work.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	repos  *sqlstore.Repositories
}

func setup() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	db, driver, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		repos:  sqlstore.NewRepositories(sqlstore.New(db, driver)),
	}, nil
}

func (a *app) migrate() error {
	var err error
	switch a.cfg.DatabaseDriver {
	case "postgres":
		err = postgres.Migrate(a.db)
	default:
		err = sqlitestore.Migrate(a.db)
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

func openDB(cfg *config.Config) (*sql.DB, string, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		return db, postgres.DriverName, err
	case "sqlite":
		db, err := sqlitestore.Open(cfg.DatabaseURL)
		return db, sqlitestore.DriverName, err
	default:
		return nil, "", fmt.Errorf("unsupported DB_DRIVER %q", cfg.DatabaseDriver)
	}
}
