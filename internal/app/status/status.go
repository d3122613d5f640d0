package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/storage"
)

// ServiceConfig is the configuration for the status service.
type ServiceConfig struct {
	Repository       storage.Repository
	RecordRepository storage.RecordRepository
	Logger           log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.RecordRepository == nil {
		return fmt.Errorf("record repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service retrieves the progress of the lifecycle operations.
type Service struct {
	repo    storage.Repository
	records storage.RecordRepository
	logger  log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:    cfg.Repository,
		records: cfg.RecordRepository,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the status request parameters, only one of them is used
// in this order: RecordID, NameOrID, EnvLabel.
type Request struct {
	// RecordID is the ID of a stored progress record.
	RecordID string
	// NameOrID is the resource name or ID to get the latest record of.
	NameOrID string
	// EnvLabel is the environment to get the latest lifecycle operation record of.
	EnvLabel string
}

// Result is the status of a resource or a lifecycle operation.
type Result struct {
	// Resource is set when the status was requested for a resource.
	Resource *model.Resource
	// Record is the latest record, nil if the resource has no operations yet.
	Record *storage.StoredRecord
}

// Run retrieves the status of a record, a resource or an environment.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	switch {
	case req.RecordID != "":
		s.logger.Debugf("getting status of record: %s", req.RecordID)
		rec, err := s.records.GetRecord(ctx, req.RecordID)
		if err != nil {
			return nil, fmt.Errorf("could not get record: %w", err)
		}
		return &Result{Record: rec}, nil

	case req.NameOrID != "":
		res, err := s.resource(ctx, req.NameOrID)
		if err != nil {
			return nil, err
		}
		rec, err := s.latest(ctx, res.ID)
		if err != nil {
			return nil, err
		}
		return &Result{Resource: res, Record: rec}, nil

	case req.EnvLabel != "":
		s.logger.Debugf("getting status of environment: %s", req.EnvLabel)
		rec, err := s.latest(ctx, req.EnvLabel)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("no operations for environment %s: %w", req.EnvLabel, model.ErrNotFound)
		}
		return &Result{Record: rec}, nil
	}

	return nil, fmt.Errorf("a record, resource or environment is required: %w", model.ErrNotValid)
}

// resource gets a resource by name or by ID if the input looks like a ULID.
func (s *Service) resource(ctx context.Context, nameOrID string) (*model.Resource, error) {
	s.logger.Debugf("getting status for resource: %s", nameOrID)

	// Try lookup by name first.
	res, err := s.repo.GetResourceByName(ctx, nameOrID)
	if err == nil {
		return res, nil
	}

	if errors.Is(err, model.ErrNotFound) && looksLikeULID(nameOrID) {
		s.logger.Debugf("name lookup failed, trying ID lookup")
		res, err = s.repo.GetResource(ctx, nameOrID)
		if err == nil {
			return res, nil
		}
	}

	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("resource not found: %s: %w", nameOrID, model.ErrNotFound)
	}

	return nil, fmt.Errorf("could not get resource status: %w", err)
}

func (s *Service) latest(ctx context.Context, subject string) (*storage.StoredRecord, error) {
	recs, err := s.records.ListRecords(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("could not list records: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// looksLikeULID checks if a string looks like a ULID (26 characters, alphanumeric uppercase).
func looksLikeULID(s string) bool {
	if len(s) != 26 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
