package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/congo-pay/feeledger/internal/jobs"
	"github.com/congo-pay/feeledger/internal/logging"
	"github.com/congo-pay/feeledger/internal/store"
)

func main() {
	down := flag.Bool("down", false, "roll back the ledger schema instead of applying it")
	withJobs := flag.Bool("jobs", true, "apply the job queue schema")
	flag.Parse()

	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"))

	if err := run(context.Background(), logger, os.Getenv("DATABASE_URL"), *down, *withJobs); err != nil {
		logger.Error("migration run failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migration run finished successfully")
}

func run(ctx context.Context, logger *slog.Logger, dsn string, down, withJobs bool) error {
	if dsn == "" {
		return errors.New("DATABASE_URL must be set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("init postgres driver: %w", err)
	}
	src, err := iofs.New(store.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ledger migrations: %w", err)
	}
	logger.Info("ledger migrations applied", slog.Bool("down", down))

	if down || !withJobs {
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect pool: %w", err)
	}
	defer pool.Close()
	if err := jobs.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.Info("job queue migrations applied")
	return nil
}
