package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/storage"
	"github.com/slok/activator/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

var _ storage.Repository = &Repository{}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	version, err := migrator.Up(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s with schema version %d", cfg.DBPath, version)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// DB returns the underlying database so other repositories can share it.
func (r *Repository) DB() *sql.DB { return r.db }

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

const resourceColumns = `
	id, kind, name, state, external_id,
	attributes, depends_on, version,
	created_at, updated_at
`

// CreateResource creates a new resource in the repository.
func (r *Repository) CreateResource(ctx context.Context, res model.Resource) error {
	if err := res.Validate(); err != nil {
		return fmt.Errorf("invalid resource: %w", err)
	}

	attrs, deps, err := encodeResourceCollections(res)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO resources (` + resourceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		res.ID,
		res.Kind,
		res.Name,
		res.State,
		res.ExternalID,
		attrs,
		deps,
		res.Version,
		res.CreatedAt.Unix(),
		unixOrNil(res.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: resources.") {
			return fmt.Errorf("resource already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert resource: %w", err)
	}

	r.logger.Debugf("Created resource in repository: %s", res.ID)
	return nil
}

// GetResource retrieves a resource by ID.
func (r *Repository) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = ?`

	res, err := r.scanOne(ctx, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resource %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query resource: %w", err)
	}

	return res, nil
}

// GetResourceByName retrieves a resource by name.
func (r *Repository) GetResourceByName(ctx context.Context, name string) (*model.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE name = ?`

	res, err := r.scanOne(ctx, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resource with name %s: %w", name, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query resource: %w", err)
	}

	return res, nil
}

// ListResources returns all resources ordered by creation.
func (r *Repository) ListResources(ctx context.Context) ([]model.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query resources: %w", err)
	}
	defer rows.Close()

	resources := []model.Resource{}
	for rows.Next() {
		res, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		resources = append(resources, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return resources, nil
}

// UpdateResource updates an existing resource if its version matches the stored one.
func (r *Repository) UpdateResource(ctx context.Context, res model.Resource) (*model.Resource, error) {
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resource: %w", err)
	}

	attrs, deps, err := encodeResourceCollections(res)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE resources
		SET
			kind = ?,
			name = ?,
			state = ?,
			external_id = ?,
			attributes = ?,
			depends_on = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		res.Kind,
		res.Name,
		res.State,
		res.ExternalID,
		attrs,
		deps,
		time.Now().UTC().Unix(),
		res.ID,
		res.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("could not update resource: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		stored, err := r.GetResource(ctx, res.ID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("resource %s at version %d, got %d: %w", res.ID, stored.Version, res.Version, model.ErrConflict)
	}

	r.logger.Debugf("Updated resource in repository: %s", res.ID)
	return r.GetResource(ctx, res.ID)
}

func (r *Repository) scanOne(ctx context.Context, query string, arg any) (*model.Resource, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	res, err := r.scanRow(row)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanRow(s scanner) (model.Resource, error) {
	var res model.Resource
	var attrs, deps string
	var createdAt, updatedAt sql.NullInt64

	err := s.Scan(
		&res.ID,
		&res.Kind,
		&res.Name,
		&res.State,
		&res.ExternalID,
		&attrs,
		&deps,
		&res.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.Resource{}, err
	}

	if err := json.Unmarshal([]byte(attrs), &res.Attributes); err != nil {
		return model.Resource{}, fmt.Errorf("could not decode attributes: %w", err)
	}
	if err := json.Unmarshal([]byte(deps), &res.DependsOn); err != nil {
		return model.Resource{}, fmt.Errorf("could not decode dependencies: %w", err)
	}

	if !createdAt.Valid {
		return model.Resource{}, fmt.Errorf("created_at is required")
	}
	res.CreatedAt = timeFromUnix(createdAt.Int64)
	if updatedAt.Valid {
		res.UpdatedAt = timeFromUnix(updatedAt.Int64)
	}

	return res, nil
}

func encodeResourceCollections(res model.Resource) (attrs, deps string, err error) {
	a := res.Attributes
	if a == nil {
		a = map[string]string{}
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return "", "", fmt.Errorf("could not encode attributes: %w", err)
	}

	d := res.DependsOn
	if d == nil {
		d = []string{}
	}
	db, err := json.Marshal(d)
	if err != nil {
		return "", "", fmt.Errorf("could not encode dependencies: %w", err)
	}

	return string(ab), string(db), nil
}

func unixOrNil(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	u := t.Unix()
	return &u
}

func timeFromUnix(unix int64) time.Time { return time.Unix(unix, 0).UTC() }
