package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/storage"
)

// RecordRepositoryConfig is the configuration for the SQLite record repository.
type RecordRepositoryConfig struct {
	DB     *sql.DB
	Logger log.Logger
}

func (c *RecordRepositoryConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.RecordRepository"})
	return nil
}

// RecordRepository is a SQLite implementation of storage.RecordRepository.
//
// Records are stored as JSON documents, the whole child tree included.
type RecordRepository struct {
	db     *sql.DB
	logger log.Logger
}

var _ storage.RecordRepository = &RecordRepository{}

// NewRecordRepository creates a new SQLite record repository.
func NewRecordRepository(cfg RecordRepositoryConfig) (*RecordRepository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &RecordRepository{
		db:     cfg.DB,
		logger: cfg.Logger,
	}, nil
}

// SaveRecord creates or replaces a progress record.
func (r *RecordRepository) SaveRecord(ctx context.Context, rec storage.StoredRecord) error {
	if rec.Record == nil {
		return fmt.Errorf("record is required: %w", model.ErrNotValid)
	}
	if rec.Record.ID() == "" {
		return fmt.Errorf("record id is required: %w", model.ErrNotValid)
	}

	data, err := json.Marshal(rec.Record)
	if err != nil {
		return fmt.Errorf("could not encode record: %w", err)
	}

	query := `
		INSERT INTO records (id, subject, step, status, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			step = excluded.step,
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Unix()
	_, err = r.db.ExecContext(ctx, query, rec.Record.ID(), rec.Subject, rec.Step, rec.Record.Status(), string(data), now, now)
	if err != nil {
		return fmt.Errorf("could not save record: %w", err)
	}

	r.logger.Debugf("Saved record %s (%s) for %s", rec.Record.ID(), rec.Record.Status(), rec.Subject)
	return nil
}

// GetRecord retrieves a progress record by ID.
func (r *RecordRepository) GetRecord(ctx context.Context, id string) (*storage.StoredRecord, error) {
	query := `SELECT subject, step, data FROM records WHERE id = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query record: %w", err)
	}

	return &rec, nil
}

// ListRecords returns the records of a subject, newest first.
func (r *RecordRepository) ListRecords(ctx context.Context, subject string) ([]storage.StoredRecord, error) {
	query := `SELECT subject, step, data FROM records WHERE subject = ? ORDER BY seq DESC`

	rows, err := r.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("could not query records: %w", err)
	}
	defer rows.Close()

	records := []storage.StoredRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

func scanRecord(s scanner) (storage.StoredRecord, error) {
	var rec storage.StoredRecord
	var data string
	if err := s.Scan(&rec.Subject, &rec.Step, &data); err != nil {
		return storage.StoredRecord{}, err
	}

	rec.Record = &progress.Record{}
	if err := json.Unmarshal([]byte(data), rec.Record); err != nil {
		return storage.StoredRecord{}, fmt.Errorf("could not decode record: %w", err)
	}

	return rec, nil
}
