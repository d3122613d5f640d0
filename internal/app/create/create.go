package create

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/storage"
)

// ServiceConfig is the configuration for the create service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Create"})
	return nil
}

// Service registers resources so they can be activated.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new create service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the create request parameters.
type Request struct {
	Definitions []model.ResourceDefinition
}

// Run registers the defined resources unprovisioned.
// Dependencies are resolved by name with the request definitions and the already registered resources.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Resource, error) {
	if len(req.Definitions) == 0 {
		return nil, fmt.Errorf("at least one resource is required: %w", model.ErrNotValid)
	}

	// 1. Validate and assign IDs.
	ids := make(map[string]string, len(req.Definitions))
	for _, def := range req.Definitions {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("invalid resource %q: %w", def.Name, err)
		}
		if _, ok := ids[def.Name]; ok {
			return nil, fmt.Errorf("resource %q defined more than once: %w", def.Name, model.ErrNotValid)
		}

		_, err := s.repo.GetResourceByName(ctx, def.Name)
		if err == nil {
			return nil, fmt.Errorf("resource with name %q already exists: %w", def.Name, model.ErrAlreadyExists)
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("could not check name uniqueness: %w", err)
		}

		ids[def.Name] = ulid.Make().String()
	}

	// 2. Resolve dependencies.
	now := time.Now().UTC()
	resources := make([]model.Resource, 0, len(req.Definitions))
	for _, def := range req.Definitions {
		dependsOn, err := s.resolveDependencies(ctx, def, ids)
		if err != nil {
			return nil, err
		}

		resources = append(resources, model.Resource{
			ID:         ids[def.Name],
			Kind:       def.Kind,
			Name:       def.Name,
			State:      model.LifecycleStateUnprovisioned,
			Attributes: def.Attributes,
			DependsOn:  dependsOn,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	// 3. Save.
	for _, res := range resources {
		if err := s.repo.CreateResource(ctx, res); err != nil {
			return nil, fmt.Errorf("could not save resource %q: %w", res.Name, err)
		}
		s.logger.Infof("Registered %s %s (%s)", res.Kind, res.Name, res.ID)
	}

	return resources, nil
}

func (s *Service) resolveDependencies(ctx context.Context, def model.ResourceDefinition, ids map[string]string) ([]string, error) {
	if len(def.DependsOn) == 0 {
		return nil, nil
	}

	deps := make([]string, 0, len(def.DependsOn))
	for _, name := range def.DependsOn {
		if id, ok := ids[name]; ok {
			deps = append(deps, id)
			continue
		}

		dep, err := s.repo.GetResourceByName(ctx, name)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, fmt.Errorf("resource %q depends on unknown resource %q: %w", def.Name, name, model.ErrNotValid)
			}
			return nil, fmt.Errorf("could not get dependency %q: %w", name, err)
		}
		deps = append(deps, dep.ID)
	}

	return deps, nil
}
