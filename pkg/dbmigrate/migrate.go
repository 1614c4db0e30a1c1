// Package dbmigrate applies SQL migrations at service startup.
package dbmigrate

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Up runs every pending migration from dir against the postgres database at
// pgURL. Already-migrated is not an error.
func Up(log *slog.Logger, dir, pgURL string) error {
	// golang-migrate's pgx/v5 driver registers under its own URL scheme.
	dbURL := strings.Replace(pgURL, "postgres://", "pgx5://", 1)
	m, err := migrate.New("file://"+dir, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	log.Info("migrations applied", "dir", dir)
	return nil
}
