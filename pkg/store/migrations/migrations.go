// Package migrations holds the golang-migrate schema files for pkg/store and
// a Run helper that applies them, grounded on Jeffreasy-LaventeCareAuthSystems'
// cmd/migrate/main.go.
package migrations

import (
	"errors"

	"github.com/flowctl/core/pkg/errx"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Run applies every pending migration under this package's directory to the
// database at dsn. It is idempotent: migrate.ErrNoChange is swallowed.
func Run(dsn string) error {
	m, err := migrate.New("file://pkg/store/migrations", dsn)
	if err != nil {
		return errx.Wrap(err, "failed to initialize migrator", errx.TypeInternal)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errx.Wrap(err, "failed to apply migrations", errx.TypeInternal)
	}
	return nil
}
