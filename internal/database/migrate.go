package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Migrate applies every pending up migration found at sourceURL
// (for example "file://migrations").
func Migrate(databaseURL, sourceURL string, logger *zap.Logger) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("migrations: no migrations applied")
	case dirty:
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	case errors.Is(upErr, migrate.ErrNoChange):
		logger.Info("migrations: database is up to date", zap.Uint("version", version))
	default:
		logger.Info("migrations: applied successfully", zap.Uint("version", version))
	}

	return nil
}
