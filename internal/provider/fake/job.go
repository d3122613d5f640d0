package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/provider"
)

// JobProviderConfig is the configuration for the fake job provider.
type JobProviderConfig struct {
	// PollsToFinish is the number of status queries a job needs to finish.
	PollsToFinish int
	Logger        log.Logger
}

func (c *JobProviderConfig) defaults() error {
	if c.PollsToFinish <= 0 {
		c.PollsToFinish = 3
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "provider.FakeJob"})
	return nil
}

type job struct {
	externalID string
	polls      int
	failMsg    string
	// apply changes the resource state once the job finishes.
	apply func()
	done  bool
}

// JobProvider is a fake implementation of provider.JobProvider.
// Jobs finish after a number of status queries.
type JobProvider struct {
	pollsToFinish int
	resources     map[string]*resourceState
	jobs          map[string]*job
	failJobs      []string
	faults        faults
	calls         int
	mu            sync.Mutex
	logger        log.Logger
}

var _ provider.JobProvider = &JobProvider{}

// NewJobProvider creates a new fake job provider.
func NewJobProvider(cfg JobProviderConfig) (*JobProvider, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &JobProvider{
		pollsToFinish: cfg.PollsToFinish,
		resources:     map[string]*resourceState{},
		jobs:          map[string]*job{},
		logger:        cfg.Logger,
	}, nil
}

// InjectError makes the next call of op fail with err.
func (p *JobProvider) InjectError(op Op, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults.inject(op, err)
}

// FailNextJob makes the next accepted job end in error with msg.
func (p *JobProvider) FailNextJob(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failJobs = append(p.failJobs, msg)
}

// Calls returns the number of operations the provider received.
func (p *JobProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Create accepts a resource creation job.
func (p *JobProvider) Create(ctx context.Context, res model.Resource, actx model.ActivationContext) (provider.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if err := p.faults.next(OpCreate); err != nil {
		return provider.Job{}, err
	}

	id := externalID(res.Kind)
	p.logger.Infof("Accepted creation of %s %s as %s (%s)", res.Kind, res.Name, id, actx)
	return p.newJob(id, func() { p.resources[id] = &resourceState{name: res.Name} }), nil
}

// Start accepts a resource start job.
func (p *JobProvider) Start(ctx context.Context, res model.Resource) (provider.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if err := p.faults.next(OpStart); err != nil {
		return provider.Job{}, err
	}

	r, err := p.checkResource(res)
	if err != nil {
		return provider.Job{}, err
	}
	if r.running {
		return provider.Job{}, fmt.Errorf("%s %s: %w", res.Kind, res.ExternalID, provider.ErrAlreadyStarted)
	}

	return p.newJob(res.ExternalID, func() { r.running = true }), nil
}

// Stop accepts a resource stop job.
func (p *JobProvider) Stop(ctx context.Context, res model.Resource) (provider.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if err := p.faults.next(OpStop); err != nil {
		return provider.Job{}, err
	}

	r, err := p.checkResource(res)
	if err != nil {
		return provider.Job{}, err
	}
	if !r.running {
		return provider.Job{}, fmt.Errorf("%s %s: %w", res.Kind, res.ExternalID, provider.ErrAlreadyStopped)
	}

	return p.newJob(res.ExternalID, func() { r.running = false }), nil
}

// Delete accepts a resource deletion job.
func (p *JobProvider) Delete(ctx context.Context, res model.Resource) (provider.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if err := p.faults.next(OpDelete); err != nil {
		return provider.Job{}, err
	}

	if _, ok := p.resources[res.ExternalID]; !ok {
		return provider.Job{}, fmt.Errorf("%s %s: %w", res.Kind, res.ExternalID, provider.ErrAlreadyDeleted)
	}
	if p.hasPendingJob(res.ExternalID) {
		return provider.Job{}, fmt.Errorf("%s %s: %w", res.Kind, res.ExternalID, provider.ErrConcurrentJobs)
	}

	id := res.ExternalID
	return p.newJob(id, func() { delete(p.resources, id) }), nil
}

// JobStatus returns the status of a job, every call moves the job forward.
func (p *JobProvider) JobStatus(ctx context.Context, jobID string) (provider.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.faults.next(OpJobStatus); err != nil {
		return provider.JobStatus{}, err
	}

	j, ok := p.jobs[jobID]
	if !ok {
		return provider.JobStatus{}, fmt.Errorf("job %s: %w", jobID, model.ErrNotFound)
	}

	if !j.done {
		j.polls++
	}
	status := provider.JobStatus{ID: jobID}
	switch {
	case j.polls == 1 && p.pollsToFinish > 1:
		status.State = provider.JobStateScheduled
		status.Progress = 0
	case j.polls < p.pollsToFinish:
		status.State = provider.JobStateProcessing
		status.Progress = j.polls * 100 / p.pollsToFinish
	case j.failMsg != "":
		j.done = true
		status.State = provider.JobStateError
		status.Progress = j.polls * 100 / p.pollsToFinish
		status.Messages = []string{j.failMsg}
	default:
		if !j.done {
			j.done = true
			j.apply()
		}
		status.State = provider.JobStateFinished
		status.Progress = 100
	}

	return status, nil
}

func (p *JobProvider) checkResource(res model.Resource) (*resourceState, error) {
	r, ok := p.resources[res.ExternalID]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", res.Kind, res.ExternalID, model.ErrNotFound)
	}
	if p.hasPendingJob(res.ExternalID) {
		return nil, fmt.Errorf("%s %s: %w", res.Kind, res.ExternalID, provider.ErrConcurrentJobs)
	}
	return r, nil
}

func (p *JobProvider) hasPendingJob(externalID string) bool {
	for _, j := range p.jobs {
		if j.externalID == externalID && !j.done {
			return true
		}
	}
	return false
}

func (p *JobProvider) newJob(externalID string, apply func()) provider.Job {
	j := &job{externalID: externalID, apply: apply}
	if len(p.failJobs) > 0 {
		j.failMsg = p.failJobs[0]
		p.failJobs = p.failJobs[1:]
	}

	id := ulid.Make().String()
	p.jobs[id] = j
	p.logger.Debugf("Job %s accepted for %s", id, externalID)

	return provider.Job{ID: id, ExternalID: externalID}
}
