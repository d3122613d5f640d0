package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

type storedRecord struct {
	rec storage.StoredRecord
	seq int
}

// Repository is an in-memory implementation of storage.Repository and storage.RecordRepository.
type Repository struct {
	resources map[string]model.Resource
	records   map[string]storedRecord
	recordSeq int
	mu        sync.RWMutex
	logger    log.Logger
}

var (
	_ storage.Repository       = &Repository{}
	_ storage.RecordRepository = &Repository{}
)

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		resources: make(map[string]model.Resource),
		records:   make(map[string]storedRecord),
		logger:    cfg.Logger,
	}, nil
}

// CreateResource creates a new resource in the repository.
func (r *Repository) CreateResource(ctx context.Context, res model.Resource) error {
	if err := res.Validate(); err != nil {
		return fmt.Errorf("invalid resource: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.resources[res.ID]; ok {
		return fmt.Errorf("resource with id %s: %w", res.ID, model.ErrAlreadyExists)
	}

	for _, existing := range r.resources {
		if existing.Name == res.Name {
			return fmt.Errorf("resource with name %s: %w", res.Name, model.ErrAlreadyExists)
		}
	}

	r.resources[res.ID] = res.Copy()
	r.logger.Debugf("Created resource in repository: %s", res.ID)

	return nil
}

// GetResource retrieves a resource by ID.
func (r *Repository) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[id]
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", id, model.ErrNotFound)
	}

	c := res.Copy()
	return &c, nil
}

// GetResourceByName retrieves a resource by name.
func (r *Repository) GetResourceByName(ctx context.Context, name string) (*model.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, res := range r.resources {
		if res.Name == name {
			c := res.Copy()
			return &c, nil
		}
	}

	return nil, fmt.Errorf("resource with name %s: %w", name, model.ErrNotFound)
}

// ListResources returns all resources ordered by creation.
func (r *Repository) ListResources(ctx context.Context) ([]model.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resources := make([]model.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		resources = append(resources, res.Copy())
	}

	sort.SliceStable(resources, func(i, j int) bool {
		if resources[i].CreatedAt.Equal(resources[j].CreatedAt) {
			return resources[i].ID < resources[j].ID
		}
		return resources[i].CreatedAt.Before(resources[j].CreatedAt)
	})

	return resources, nil
}

// UpdateResource updates an existing resource if its version matches the stored one.
func (r *Repository) UpdateResource(ctx context.Context, res model.Resource) (*model.Resource, error) {
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resource: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.resources[res.ID]
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", res.ID, model.ErrNotFound)
	}
	if stored.Version != res.Version {
		return nil, fmt.Errorf("resource %s at version %d, got %d: %w", res.ID, stored.Version, res.Version, model.ErrConflict)
	}

	updated := res.Copy()
	updated.Version++
	updated.UpdatedAt = time.Now().UTC()
	r.resources[res.ID] = updated
	r.logger.Debugf("Updated resource in repository: %s", res.ID)

	c := updated.Copy()
	return &c, nil
}

// SaveRecord creates or replaces a progress record.
func (r *Repository) SaveRecord(ctx context.Context, rec storage.StoredRecord) error {
	if rec.Record == nil {
		return fmt.Errorf("record is required: %w", model.ErrNotValid)
	}
	if rec.Record.ID() == "" {
		return fmt.Errorf("record id is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := rec.Record.ID()
	seq := r.recordSeq
	if existing, ok := r.records[id]; ok {
		seq = existing.seq
	} else {
		r.recordSeq++
	}

	r.records[id] = storedRecord{
		rec: storage.StoredRecord{Subject: rec.Subject, Step: rec.Step, Record: rec.Record.Clone()},
		seq: seq,
	}
	r.logger.Debugf("Saved record in repository: %s", id)

	return nil
}

// GetRecord retrieves a progress record by ID.
func (r *Repository) GetRecord(ctx context.Context, id string) (*storage.StoredRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, model.ErrNotFound)
	}

	c := stored.rec
	c.Record = stored.rec.Record.Clone()
	return &c, nil
}

// ListRecords returns the records of a subject, newest first.
func (r *Repository) ListRecords(ctx context.Context, subject string) ([]storage.StoredRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := []storedRecord{}
	for _, s := range r.records {
		if s.rec.Subject == subject {
			stored = append(stored, s)
		}
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq > stored[j].seq })

	records := make([]storage.StoredRecord, 0, len(stored))
	for _, s := range stored {
		c := s.rec
		c.Record = s.rec.Record.Clone()
		records = append(records, c)
	}

	return records, nil
}
