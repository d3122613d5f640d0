package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/activator/internal/log"
)

//go:embed sql/*.sql
var schemaFiles embed.FS

// ErrDirtySchema is returned when a previous migration was interrupted and the
// schema needs manual repair before the activator can use it.
var ErrDirtySchema = errors.New("dirty schema")

// Migrator brings the activator SQLite schema (resources and progress records)
// to the latest version.
type Migrator struct {
	db     *sql.DB
	logger log.Logger
}

// NewMigrator returns a new migrator for db.
func NewMigrator(db *sql.DB, logger log.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &Migrator{
		db:     db,
		logger: logger.WithValues(log.Kv{"svc": "storage.SQLiteMigrator"}),
	}, nil
}

// Up applies the pending schema migrations and returns the schema version.
// A dirty schema is not migrated.
func (m *Migrator) Up(ctx context.Context) (uint, error) {
	var version uint
	err := m.withInstance(func(inst *migrate.Migrate) error {
		from, err := currentVersion(inst)
		if err != nil {
			return err
		}

		err = inst.Up()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not migrate schema from version %d: %w", from, err)
		}

		version, err = currentVersion(inst)
		if err != nil {
			return err
		}
		if version != from {
			m.logger.Infof("Schema migrated from version %d to %d", from, version)
		} else {
			m.logger.Debugf("Schema up to date at version %d", version)
		}
		return nil
	})
	return version, err
}

// Version returns the current schema version, zero when no migration was applied.
func (m *Migrator) Version(ctx context.Context) (uint, error) {
	var version uint
	err := m.withInstance(func(inst *migrate.Migrate) (err error) {
		version, err = currentVersion(inst)
		return err
	})
	return version, err
}

func currentVersion(inst *migrate.Migrate) (uint, error) {
	version, dirty, err := inst.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("could not get schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d: %w", version, ErrDirtySchema)
	}
	return version, nil
}

// withInstance runs fn with a migrate instance over the embedded schema files.
// The database is not closed afterwards, it's owned by the repository.
func (m *Migrator) withInstance(fn func(inst *migrate.Migrate) error) error {
	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(schemaFiles, "sql")
	if err != nil {
		return fmt.Errorf("could not read schema files: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			m.logger.Errorf("could not close schema files: %s", err)
		}
	}()

	inst, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	return fn(inst)
}
