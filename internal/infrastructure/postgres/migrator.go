package postgres

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"
)

// ErrDirtyMigration is returned when a previous migration failed half way.
// The schema must be repaired by hand before the ledger starts again.
var ErrDirtyMigration = errors.New("database schema is dirty")

// RunMigrations applies every pending migration from migrationsPath, which
// may be a plain directory or a file:// URL.
func RunMigrations(databaseURL, migrationsPath string) error {
	source, err := sourceURL(migrationsPath)
	if err != nil {
		return err
	}

	m, err := migrate.New(source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w at version %d", ErrDirtyMigration, version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Uint("version", version).Msg("database migrations: no change")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	applied, _, _ := m.Version()
	log.Info().Uint("from", version).Uint("to", applied).Msg("database migrations: applied successfully")
	return nil
}

func sourceURL(migrationsPath string) (string, error) {
	if strings.HasPrefix(migrationsPath, "file://") {
		return migrationsPath, nil
	}
	abs, err := filepath.Abs(migrationsPath)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
