package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded baseline migrations.
type Migrator struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewMigrator(log *slog.Logger, pool *pgxpool.Pool) *Migrator {
	if log == nil {
		log = slog.Default()
	}
	return &Migrator{pool: pool, logger: log.With(slog.String("service", "migrate"))}
}

// Up applies all pending migrations. An up-to-date database is not an error.
func (m *Migrator) Up(ctx context.Context) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(m.pool)
	defer sqlDB.Close()

	driver, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	runner, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("migration runner: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- runner.Up() }()
	select {
	case err = <-done:
	case <-ctx.Done():
		runner.GracefulStop <- true
		err = <-done
		if err == nil {
			err = ctx.Err()
		}
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, verr := runner.Version()
	if verr == nil {
		m.logger.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	}
	return nil
}

// BaselineSQL returns the baseline schema DDL. Every statement is idempotent.
func BaselineSQL() (string, error) {
	data, err := migrationsFS.ReadFile("migrations/000001_init.up.sql")
	if err != nil {
		return "", fmt.Errorf("read baseline migration: %w", err)
	}
	return string(data), nil
}
