package activation

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/provider"
	"github.com/slok/activator/internal/storage"
)

// SyncHandlerConfig is the configuration of a handler backed by a synchronous provider.
type SyncHandlerConfig struct {
	Kind        model.ResourceKind
	DisplayName string
	Steps       []model.Step
	Provider    provider.Provider
	Repository  storage.Repository
	// Prepare sets the provider facing attributes of the resource before creating it.
	Prepare func(res *model.Resource, actx model.ActivationContext)
	Logger  log.Logger
}

func (c *SyncHandlerConfig) defaults() error {
	if err := c.Kind.Validate(); err != nil {
		return err
	}
	if c.Provider == nil {
		return fmt.Errorf("provider is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if len(c.Steps) == 0 {
		c.Steps = model.Steps()
	}
	if c.DisplayName == "" {
		c.DisplayName = string(c.Kind)
	}
	if c.Prepare == nil {
		c.Prepare = func(*model.Resource, model.ActivationContext) {}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "activation.SyncHandler", "kind": c.Kind})
	return nil
}

// SyncHandler is a Handler whose operations complete before returning.
type SyncHandler struct {
	kind        model.ResourceKind
	displayName string
	steps       []model.Step
	provider    provider.Provider
	repo        storage.Repository
	prepare     func(res *model.Resource, actx model.ActivationContext)
	logger      log.Logger
}

var _ Handler = &SyncHandler{}

// NewSyncHandler returns a new synchronous handler.
func NewSyncHandler(cfg SyncHandlerConfig) (*SyncHandler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &SyncHandler{
		kind:        cfg.Kind,
		displayName: cfg.DisplayName,
		steps:       cfg.Steps,
		provider:    cfg.Provider,
		repo:        cfg.Repository,
		prepare:     cfg.Prepare,
		logger:      cfg.Logger,
	}, nil
}

func (h *SyncHandler) Accepts(kind model.ResourceKind, step model.Step) bool {
	return kind == h.kind && acceptsStep(h.steps, step)
}

// Activate creates the resource on the provider.
func (h *SyncHandler) Activate(ctx context.Context, resourceID string, actx model.ActivationContext) *progress.Record {
	if !acceptsStep(h.steps, model.StepActivate) {
		return nothingToDo(h.displayName + " activation")
	}

	res, err := h.repo.GetResource(ctx, resourceID)
	if err != nil {
		return h.fail(model.StepActivate, resourceID, err)
	}

	h.prepare(res, actx)
	externalID, err := h.provider.Create(ctx, *res, actx)
	if err != nil {
		return h.fail(model.StepActivate, resourceID, err)
	}

	res.ExternalID = externalID
	res.State = model.LifecycleStateCreated
	if _, err := h.repo.UpdateResource(ctx, *res); err != nil {
		return h.fail(model.StepActivate, resourceID, err)
	}

	h.logger.Infof("%s %s activated as %s", h.displayName, res.Name, externalID)
	return h.succeeded(model.StepActivate, *res)
}

// FirstStart starts the resource for the first time.
func (h *SyncHandler) FirstStart(ctx context.Context, resourceID string) *progress.Record {
	if !acceptsStep(h.steps, model.StepFirstStart) {
		return nothingToDo(h.displayName + " first start")
	}
	return h.start(ctx, model.StepFirstStart, resourceID)
}

// Start starts the resource, an already started resource is a success.
func (h *SyncHandler) Start(ctx context.Context, resourceID string) *progress.Record {
	if !acceptsStep(h.steps, model.StepStart) {
		return nothingToDo(h.displayName + " start")
	}
	return h.start(ctx, model.StepStart, resourceID)
}

func (h *SyncHandler) start(ctx context.Context, step model.Step, resourceID string) *progress.Record {
	res, err := h.repo.GetResource(ctx, resourceID)
	if err != nil {
		return h.fail(step, resourceID, err)
	}

	err = h.provider.Start(ctx, *res)
	switch {
	case errors.Is(err, provider.ErrAlreadyStarted):
		h.logger.Infof("%s %s already started", h.displayName, res.Name)
	case err != nil:
		return h.fail(step, resourceID, err)
	}

	res.State = model.LifecycleStateStarted
	if _, err := h.repo.UpdateResource(ctx, *res); err != nil {
		return h.fail(step, resourceID, err)
	}

	return h.succeeded(step, *res)
}

// Stop stops the resource, an already stopped resource is a success.
func (h *SyncHandler) Stop(ctx context.Context, resourceID string) *progress.Record {
	if !acceptsStep(h.steps, model.StepStop) {
		return nothingToDo(h.displayName + " stop")
	}

	res, err := h.repo.GetResource(ctx, resourceID)
	if err != nil {
		return h.fail(model.StepStop, resourceID, err)
	}

	err = h.provider.Stop(ctx, *res)
	switch {
	case errors.Is(err, provider.ErrAlreadyStopped):
		h.logger.Infof("%s %s already stopped", h.displayName, res.Name)
	case err != nil:
		return h.fail(model.StepStop, resourceID, err)
	}

	res.State = model.LifecycleStateStopped
	if _, err := h.repo.UpdateResource(ctx, *res); err != nil {
		return h.fail(model.StepStop, resourceID, err)
	}

	return h.succeeded(model.StepStop, *res)
}

// Delete deletes the resource from the provider.
// Resources that were never activated are not sent to the provider.
func (h *SyncHandler) Delete(ctx context.Context, resourceID string) *progress.Record {
	if !acceptsStep(h.steps, model.StepDelete) {
		return nothingToDo(h.displayName + " deletion")
	}

	res, err := h.repo.GetResource(ctx, resourceID)
	if err != nil {
		return h.fail(model.StepDelete, resourceID, err)
	}

	if !deletable(*res) {
		h.logger.Infof("Skipping deletion of %s %s in %s state", h.displayName, res.Name, res.State)
		return nothingToDo(fmt.Sprintf("%s <%s> deletion", h.displayName, res.Name))
	}

	err = h.provider.Delete(ctx, *res)
	switch {
	case errors.Is(err, provider.ErrAlreadyDeleted):
		h.logger.Infof("%s %s already deleted", h.displayName, res.Name)
	case err != nil:
		return h.fail(model.StepDelete, resourceID, err)
	}

	res.State = model.LifecycleStateRemoved
	if _, err := h.repo.UpdateResource(ctx, *res); err != nil {
		return h.fail(model.StepDelete, resourceID, err)
	}

	return h.succeeded(model.StepDelete, *res)
}

// QueryStatus must not be called, synchronous handlers return complete records.
func (h *SyncHandler) QueryStatus(ctx context.Context, rec *progress.Record) (*progress.Record, error) {
	return nil, contractViolation(fmt.Sprintf("%s handler is synchronous, query status must not be called", h.displayName))
}

func (h *SyncHandler) fail(step model.Step, resourceID string, err error) *progress.Record {
	h.logger.Errorf("Could not %s %s %s: %s", stepVerb(step), h.displayName, resourceID, err)
	return failure(step, h.displayName, err)
}

func (h *SyncHandler) succeeded(step model.Step, res model.Resource) *progress.Record {
	return progress.Succeeded(newRecordID(), fmt.Sprintf("%s <%s> has been %s.", h.displayName, res.Name, stepPastVerb(step)))
}
