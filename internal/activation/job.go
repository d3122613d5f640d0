package activation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/provider"
	"github.com/slok/activator/internal/storage"
)

// JobHandlerConfig is the configuration of a handler backed by an asynchronous job provider.
type JobHandlerConfig struct {
	Kind        model.ResourceKind
	DisplayName string
	Steps       []model.Step
	Provider    provider.JobProvider
	// ProviderName is set on the records so stored records show who runs the job.
	ProviderName string
	Repository   storage.Repository
	// Timeouts are the suggested timeouts of the records by step.
	Timeouts map[model.Step]time.Duration
	Prepare  func(res *model.Resource, actx model.ActivationContext)
	Logger   log.Logger
}

func (c *JobHandlerConfig) defaults() error {
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
	if c.ProviderName == "" {
		c.ProviderName = "unknown"
	}
	if c.Timeouts == nil {
		c.Timeouts = map[model.Step]time.Duration{}
	}
	if c.Prepare == nil {
		c.Prepare = func(*model.Resource, model.ActivationContext) {}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "activation.JobHandler", "kind": c.Kind})
	return nil
}

// JobHandler is a Handler whose operations are accepted by the provider as jobs and
// completed asynchronously. The job token travels on the record payload.
type JobHandler struct {
	kind         model.ResourceKind
	displayName  string
	steps        []model.Step
	provider     provider.JobProvider
	providerName string
	repo         storage.Repository
	timeouts     map[model.Step]time.Duration
	prepare      func(res *model.Resource, actx model.ActivationContext)
	logger       log.Logger
}

var _ Handler = &JobHandler{}

// NewJobHandler returns a new asynchronous handler.
func NewJobHandler(cfg JobHandlerConfig) (*JobHandler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &JobHandler{
		kind:         cfg.Kind,
		displayName:  cfg.DisplayName,
		steps:        cfg.Steps,
		provider:     cfg.Provider,
		providerName: cfg.ProviderName,
		repo:         cfg.Repository,
		timeouts:     cfg.Timeouts,
		prepare:      cfg.Prepare,
		logger:       cfg.Logger,
	}, nil
}

func (h *JobHandler) Accepts(kind model.ResourceKind, step model.Step) bool {
	return kind == h.kind && acceptsStep(h.steps, step)
}

// Activate requests the resource creation.
func (h *JobHandler) Activate(ctx context.Context, resourceID string, actx model.ActivationContext) *progress.Record {
	if !acceptsStep(h.steps, model.StepActivate) {
		return nothingToDo(h.displayName + " activation")
	}

	res, err := h.repo.GetResource(ctx, resourceID)
	if err != nil {
		return h.fail(model.StepActivate, resourceID, err)
	}

	h.prepare(res, actx)
	job, err := h.provider.Create(ctx, *res, actx)
	if err != nil {
		return h.fail(model.StepActivate, resourceID, err)
	}

	// Stored now so a resource whose creation fails can still be deleted on the provider.
	res.ExternalID = job.ExternalID
	if _, err := h.repo.UpdateResource(ctx, *res); err != nil {
		return h.fail(model.StepActivate, resourceID, err)
	}

	return h.jobRecord(model.StepActivate, *res, job, model.LifecycleStateCreated)
}

// FirstStart requests the first start of the resource.
func (h *JobHandler) FirstStart(ctx context.Context, resourceID string) *progress.Record {
	if !acceptsStep(h.steps, model.StepFirstStart) {
		return nothingToDo(h.displayName + " first start")
	}
	return h.start(ctx, model.StepFirstStart, resourceID)
}

// Start requests the start of the resource, an already started resource is a success.
func (h *JobHandler) Start(ctx context.Context, resourceID string) *progress.Record {
	if !acceptsStep(h.steps, model.StepStart) {
		return nothingToDo(h.displayName + " start")
	}
	return h.start(ctx, model.StepStart, resourceID)
}

func (h *JobHandler) start(ctx context.Context, step model.Step, resourceID string) *progress.Record {
	res, err := h.repo.GetResource(ctx, resourceID)
	if err != nil {
		return h.fail(step, resourceID, err)
	}

	job, err := h.provider.Start(ctx, *res)
	switch {
	case errors.Is(err, provider.ErrAlreadyStarted):
		h.logger.Infof("%s %s already started", h.displayName, res.Name)
		return h.settle(ctx, step, *res, model.LifecycleStateStarted)
	case err != nil:
		return h.fail(step, resourceID, err)
	}

	return h.jobRecord(step, *res, job, model.LifecycleStateStarted)
}

// Stop requests the stop of the resource, an already stopped resource is a success.
func (h *JobHandler) Stop(ctx context.Context, resourceID string) *progress.Record {
	if !acceptsStep(h.steps, model.StepStop) {
		return nothingToDo(h.displayName + " stop")
	}

	res, err := h.repo.GetResource(ctx, resourceID)
	if err != nil {
		return h.fail(model.StepStop, resourceID, err)
	}

	job, err := h.provider.Stop(ctx, *res)
	switch {
	case errors.Is(err, provider.ErrAlreadyStopped):
		h.logger.Infof("%s %s already stopped", h.displayName, res.Name)
		return h.settle(ctx, model.StepStop, *res, model.LifecycleStateStopped)
	case err != nil:
		return h.fail(model.StepStop, resourceID, err)
	}

	return h.jobRecord(model.StepStop, *res, job, model.LifecycleStateStopped)
}

// Delete requests the deletion of the resource.
// Resources that were never activated are not sent to the provider.
func (h *JobHandler) Delete(ctx context.Context, resourceID string) *progress.Record {
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

	job, err := h.provider.Delete(ctx, *res)
	switch {
	case errors.Is(err, provider.ErrAlreadyDeleted):
		h.logger.Infof("%s %s already deleted", h.displayName, res.Name)
		return h.settle(ctx, model.StepDelete, *res, model.LifecycleStateRemoved)
	case err != nil:
		return h.fail(model.StepDelete, resourceID, err)
	}

	return h.jobRecord(model.StepDelete, *res, job, model.LifecycleStateRemoved)
}

// QueryStatus asks the provider for the job status of the record.
// When the job finishes the resource is moved to the record target state.
func (h *JobHandler) QueryStatus(ctx context.Context, rec *progress.Record) (*progress.Record, error) {
	if rec.IsComplete() {
		return rec.Clone(), nil
	}

	jobID, ok := rec.Payload(PayloadJob)
	if !ok || jobID == "" {
		return nil, contractViolation(fmt.Sprintf("record %s has no job", rec.ID()))
	}

	status, err := h.provider.JobStatus(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("could not get %s job %s status: %w: %w", h.displayName, jobID, model.ErrFatal, err)
	}

	out := rec.Clone()
	if status.Progress >= 0 {
		out.SetPercent(status.Progress)
	}

	switch status.State {
	case provider.JobStateFinished:
		if err := h.advance(ctx, out); err != nil {
			return nil, err
		}
		out.Succeed()
	case provider.JobStateCancelled, provider.JobStateError:
		step, _ := out.Payload(PayloadStep)
		msg := fmt.Sprintf("Unable to %s %s. %s", stepVerb(model.Step(step)), h.displayName, strings.Join(status.Messages, "\n"))
		h.logger.Errorf("%s job %s ended in %s: %s", h.displayName, jobID, status.State, msg)
		resourceID, _ := out.Payload(PayloadResource)
		if err := h.moveTo(ctx, resourceID, model.LifecycleStateUnknown); err != nil {
			return nil, err
		}
		out.Fail(msg)
	case provider.JobStateProcessing:
		out.SetStatus(progress.StatusRunning)
		out.SetSubtitle("processing")
	default:
		out.SetStatus(progress.StatusPending)
		out.SetSubtitle(strings.ToLower(string(status.State)))
	}

	return out, nil
}

// advance moves the resource of a record to the record target state.
func (h *JobHandler) advance(ctx context.Context, rec *progress.Record) error {
	resourceID, _ := rec.Payload(PayloadResource)
	target, _ := rec.Payload(PayloadTargetState)
	return h.moveTo(ctx, resourceID, model.LifecycleState(target))
}

func (h *JobHandler) moveTo(ctx context.Context, resourceID string, state model.LifecycleState) error {
	res, err := h.repo.GetResource(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("could not get resource %s: %w: %w", resourceID, model.ErrFatal, err)
	}
	res.State = state
	if _, err := h.repo.UpdateResource(ctx, *res); err != nil {
		return fmt.Errorf("could not update resource %s: %w: %w", resourceID, model.ErrFatal, err)
	}

	h.logger.Infof("%s %s is %s", h.displayName, res.Name, res.State)
	return nil
}

// settle moves the resource to a state the provider already has and returns a succeeded record.
func (h *JobHandler) settle(ctx context.Context, step model.Step, res model.Resource, state model.LifecycleState) *progress.Record {
	res.State = state
	if _, err := h.repo.UpdateResource(ctx, res); err != nil {
		return h.fail(step, res.ID, err)
	}
	return progress.Succeeded(newRecordID(), fmt.Sprintf("%s <%s> has been %s.", h.displayName, res.Name, stepPastVerb(step)))
}

func (h *JobHandler) jobRecord(step model.Step, res model.Resource, job provider.Job, target model.LifecycleState) *progress.Record {
	rec := progress.Running(newRecordID(), h.jobTitle(step, res))
	rec.SetPercent(0)
	rec.SetSuggestedTimeout(h.timeouts[step])
	rec.SetPayload(PayloadJob, job.ID)
	rec.SetPayload(PayloadProvider, h.providerName)
	rec.SetPayload(PayloadTargetState, string(target))
	rec.SetPayload(PayloadResource, res.ID)
	rec.SetPayload(PayloadStep, string(step))

	h.logger.Infof("%s job %s accepted for %s %s", step, job.ID, h.displayName, res.Name)
	return rec
}

func (h *JobHandler) jobTitle(step model.Step, res model.Resource) string {
	var verb string
	switch step {
	case model.StepActivate:
		verb = "Creating"
	case model.StepFirstStart, model.StepStart:
		verb = "Starting"
	case model.StepStop:
		verb = "Stopping"
	case model.StepDelete:
		verb = "Deleting"
	}
	return fmt.Sprintf("%s %s <%s>", verb, strings.ToLower(h.displayName), res.Name)
}

func (h *JobHandler) fail(step model.Step, resourceID string, err error) *progress.Record {
	h.logger.Errorf("Could not %s %s %s: %s", stepVerb(step), h.displayName, resourceID, err)
	return failure(step, h.displayName, err)
}
