package list

import (
	"context"
	"fmt"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/storage"
)

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service lists resources with optional filtering.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	// KindFilter is an optional filter to only show resources of this kind.
	KindFilter *model.ResourceKind
	// StateFilter is an optional filter to only show resources in this state.
	StateFilter *model.LifecycleState
}

// Run lists all resources, optionally filtered by kind and state.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Resource, error) {
	s.logger.Debugf("listing resources with filters: kind=%v state=%v", req.KindFilter, req.StateFilter)

	resources, err := s.repo.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list resources: %w", err)
	}

	if req.KindFilter == nil && req.StateFilter == nil {
		s.logger.Debugf("found %d resources", len(resources))
		return resources, nil
	}

	filtered := make([]model.Resource, 0, len(resources))
	for _, r := range resources {
		if req.KindFilter != nil && r.Kind != *req.KindFilter {
			continue
		}
		if req.StateFilter != nil && r.State != *req.StateFilter {
			continue
		}
		filtered = append(filtered, r)
	}

	s.logger.Debugf("found %d resources", len(filtered))
	return filtered, nil
}
