package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/slok/activator/internal/activation"
	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/metrics"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/storage"
)

// DefaultPollInterval is the time between status queries of in progress operations.
const DefaultPollInterval = 5 * time.Second

// Dispatcher runs a lifecycle step of a resource on its handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, res model.Resource, step model.Step, actx model.ActivationContext) (activation.Handler, *progress.Record, error)
}

// Poller waits until in progress records complete.
type Poller interface {
	WaitForCompletion(ctx context.Context, h activation.Handler, rec *progress.Record, resourceID string, pollInterval time.Duration) (*progress.Record, error)
}

// ServiceConfig is the configuration for the lifecycle service.
type ServiceConfig struct {
	Repository       storage.Repository
	RecordRepository storage.RecordRepository
	Dispatcher       Dispatcher
	Poller           Poller
	PollInterval     time.Duration
	Metrics          metrics.Recorder
	Logger           log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.RecordRepository == nil {
		return fmt.Errorf("record repository is required")
	}
	if c.Dispatcher == nil {
		return fmt.Errorf("dispatcher is required")
	}
	if c.Poller == nil {
		return fmt.Errorf("poller is required")
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Lifecycle"})
	return nil
}

// Service drives a set of resources through a lifecycle step.
type Service struct {
	repo         storage.Repository
	records      storage.RecordRepository
	dispatcher   Dispatcher
	poller       Poller
	pollInterval time.Duration
	metrics      metrics.Recorder
	logger       log.Logger
}

// NewService creates a new lifecycle service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:         cfg.Repository,
		records:      cfg.RecordRepository,
		dispatcher:   cfg.Dispatcher,
		poller:       cfg.Poller,
		pollInterval: cfg.PollInterval,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}, nil
}

// Request represents the lifecycle request parameters.
type Request struct {
	// NamesOrIDs are the resources to run the step on, all the resources when empty.
	NamesOrIDs []string
	Step       model.Step
	EnvLabel   string
	// PollInterval overrides the service poll interval when set.
	PollInterval time.Duration
}

// Run runs the step on the resources in dependency order and returns the record of the whole operation.
//
// Resources are run one after the other. The first failed resource stops the run and an
// error wrapping model.ErrFatal is returned with the failed record.
func (s *Service) Run(ctx context.Context, req Request) (*progress.Record, error) {
	if err := req.Step.Validate(); err != nil {
		return nil, fmt.Errorf("invalid step: %w", err)
	}
	if req.EnvLabel == "" {
		return nil, fmt.Errorf("environment is required: %w", model.ErrNotValid)
	}
	interval := req.PollInterval
	if interval <= 0 {
		interval = s.pollInterval
	}

	resources, err := s.resources(ctx, req.NamesOrIDs)
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("no resources to %s: %w", req.Step, model.ErrNotValid)
	}
	resources, err = order(resources, req.Step)
	if err != nil {
		return nil, err
	}

	actx := model.ActivationContext{EnvLabel: req.EnvLabel, CorrelationID: uuid.NewString()}
	ctx = log.CtxWithValues(ctx, log.Kv{"correlation-id": actx.CorrelationID, "env": actx.EnvLabel})
	logger := s.logger.WithCtxValues(ctx).WithValues(log.Kv{"step": req.Step})

	parent := progress.Running(ulid.Make().String(), fmt.Sprintf("%s %d resources", req.Step, len(resources)))
	parent.SetPercent(0)
	parent.SetPayload(activation.PayloadStep, string(req.Step))
	// Every resource has its child from the start so the parent can't complete early.
	for _, res := range resources {
		placeholder := progress.New(ulid.Make().String())
		placeholder.SetTitle(fmt.Sprintf("%s <%s>", res.Kind, res.Name))
		parent.AttachChild(placeholder)
	}
	if err := s.save(ctx, req.EnvLabel, req.Step, parent); err != nil {
		return nil, err
	}
	logger.Infof("Running %s on %d resources (%s)", req.Step, len(resources), actx)

	for i, res := range resources {
		start := time.Now()
		rec, runErr := s.runResource(ctx, res, req.Step, actx, interval)
		parent.ReplaceChild(i, rec)
		s.metrics.ObserveOperation(ctx, res.Kind, req.Step, rec.Status(), time.Since(start))

		if err := s.save(ctx, res.ID, req.Step, rec); err != nil {
			return parent, err
		}

		switch {
		case runErr != nil:
			logger.Errorf("%s %s %s failed: %s", req.Step, res.Kind, res.Name, runErr)
			if err := s.save(ctx, req.EnvLabel, req.Step, parent); err != nil {
				return parent, err
			}
			return parent, fmt.Errorf("%s %s %s: %w", req.Step, res.Kind, res.Name, runErr)
		case rec.HasFailed():
			logger.Errorf("%s %s %s failed: %s", req.Step, res.Kind, res.Name, rec.ErrorMessage())
			if err := s.save(ctx, req.EnvLabel, req.Step, parent); err != nil {
				return parent, err
			}
			return parent, fmt.Errorf("%s %s %s: %s: %w", req.Step, res.Kind, res.Name, rec.ErrorMessage(), model.ErrFatal)
		}

		logger.Infof("%s", rec.Title())
		if err := s.save(ctx, req.EnvLabel, req.Step, parent); err != nil {
			return parent, err
		}
	}

	return parent, nil
}

// runResource runs the step on a resource and waits for it to complete, the returned record is never nil.
func (s *Service) runResource(ctx context.Context, res model.Resource, step model.Step, actx model.ActivationContext, interval time.Duration) (*progress.Record, error) {
	h, rec, err := s.dispatcher.Dispatch(ctx, res, step, actx)
	if err != nil {
		if errors.Is(err, activation.ErrNoHandler) {
			return progress.Succeeded(ulid.Make().String(), fmt.Sprintf("%s <%s>: nothing to do", res.Kind, res.Name)), nil
		}
		failed := progress.Failed(ulid.Make().String(), fmt.Sprintf("%s <%s>", res.Kind, res.Name), err.Error())
		return failed, fmt.Errorf("could not dispatch: %v: %w", err, model.ErrFatal)
	}
	if rec == nil {
		failed := progress.Failed(ulid.Make().String(), fmt.Sprintf("%s <%s>", res.Kind, res.Name), "no record returned")
		return failed, fmt.Errorf("no record returned: %w: %w", model.ErrFatal, model.ErrContractViolation)
	}

	if rec.IsComplete() {
		return rec, nil
	}

	return s.poller.WaitForCompletion(ctx, h, rec, res.ID, interval)
}

func (s *Service) save(ctx context.Context, subject string, step model.Step, rec *progress.Record) error {
	err := s.records.SaveRecord(ctx, storage.StoredRecord{Subject: subject, Step: step, Record: rec})
	if err != nil {
		return fmt.Errorf("could not save record %s: %v: %w", rec.ID(), err, model.ErrFatal)
	}
	return nil
}

// resources returns the requested resources by name or ID, all of them when none is requested.
func (s *Service) resources(ctx context.Context, namesOrIDs []string) ([]model.Resource, error) {
	if len(namesOrIDs) == 0 {
		resources, err := s.repo.ListResources(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not list resources: %w", err)
		}
		return resources, nil
	}

	resources := make([]model.Resource, 0, len(namesOrIDs))
	seen := map[string]bool{}
	for _, nameOrID := range namesOrIDs {
		res, err := s.repo.GetResourceByName(ctx, nameOrID)
		if errors.Is(err, model.ErrNotFound) {
			res, err = s.repo.GetResource(ctx, nameOrID)
		}
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, fmt.Errorf("resource not found: %s: %w", nameOrID, model.ErrNotFound)
			}
			return nil, fmt.Errorf("could not get resource: %w", err)
		}
		if seen[res.ID] {
			continue
		}
		seen[res.ID] = true
		resources = append(resources, *res)
	}

	return resources, nil
}

// order sorts the resources by kind and dependencies, dependencies go first except on
// teardown steps where dependents go first. Resources with no order between them keep
// the received order.
func order(resources []model.Resource, step model.Step) ([]model.Resource, error) {
	rank := map[model.ResourceKind]int{}
	for i, kind := range model.ResourceKinds() {
		rank[kind] = i
	}
	if step.IsTeardown() {
		for kind, r := range rank {
			rank[kind] = -r
		}
	}

	sorted := slices.Clone(resources)
	slices.SortStableFunc(sorted, func(a, b model.Resource) int { return rank[a.Kind] - rank[b.Kind] })

	// before has the resources that must run before each resource.
	inSet := map[string]bool{}
	for _, r := range sorted {
		inSet[r.ID] = true
	}
	before := map[string][]string{}
	for _, r := range sorted {
		for _, dep := range r.DependsOn {
			if !inSet[dep] {
				continue
			}
			if step.IsTeardown() {
				before[dep] = append(before[dep], r.ID)
			} else {
				before[r.ID] = append(before[r.ID], dep)
			}
		}
	}

	placed := map[string]bool{}
	ordered := make([]model.Resource, 0, len(sorted))
	for len(ordered) < len(sorted) {
		next := -1
		for i, r := range sorted {
			if placed[r.ID] {
				continue
			}
			ready := true
			for _, id := range before[r.ID] {
				if !placed[id] {
					ready = false
					break
				}
			}
			if ready {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("resources have circular dependencies: %w", model.ErrNotValid)
		}

		placed[sorted[next].ID] = true
		ordered = append(ordered, sorted[next])
	}

	return ordered, nil
}
