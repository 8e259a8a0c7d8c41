// Package db owns the PostgreSQL schema of the graph sources.
package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsTable = "graph_schema_migrations"

// Migrations returns the embedded migration files.
func Migrations() embed.FS {
	return migrations
}

func newMigrate(databaseURL string) (*migrate.Migrate, *sql.DB, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open migrations: %w", err)
	}

	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	driver, err := postgres.WithInstance(conn, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, conn, nil
}

// Migrate applies all pending up migrations.
func Migrate(databaseURL string) error {
	m, conn, err := newMigrate(databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("[DB] Schema up to date")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("[DB] Applied migrations", "version", version, "dirty", dirty)
	return nil
}

// Rollback reverts the given number of migrations.
func Rollback(databaseURL string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	m, conn, err := newMigrate(databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	logger.Info("[DB] Rolled back migrations", "steps", steps)
	return nil
}
