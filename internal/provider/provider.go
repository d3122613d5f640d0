package provider

import (
	"context"
	"errors"

	"github.com/slok/activator/internal/model"
)

var (
	// ErrAlreadyStarted is returned when starting a resource that is already running.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when stopping a resource that is not running.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrAlreadyDeleted is returned when deleting a resource that doesn't exist anymore.
	ErrAlreadyDeleted = errors.New("already deleted")
	// ErrConcurrentJobs is returned when the provider is already running a job on the resource.
	ErrConcurrentJobs = errors.New("concurrent jobs on resource")
)

// Provider is a provisioning adapter that completes its operations before returning.
type Provider interface {
	// Create provisions the resource and returns the provider identifier of it.
	Create(ctx context.Context, res model.Resource, actx model.ActivationContext) (externalID string, err error)
	Start(ctx context.Context, res model.Resource) error
	Stop(ctx context.Context, res model.Resource) error
	Delete(ctx context.Context, res model.Resource) error
}

// JobProvider is a provisioning adapter that accepts operations and completes them
// asynchronously as jobs.
type JobProvider interface {
	Create(ctx context.Context, res model.Resource, actx model.ActivationContext) (Job, error)
	Start(ctx context.Context, res model.Resource) (Job, error)
	Stop(ctx context.Context, res model.Resource) (Job, error)
	Delete(ctx context.Context, res model.Resource) (Job, error)
	JobStatus(ctx context.Context, jobID string) (JobStatus, error)
}

// Job is an accepted asynchronous operation.
type Job struct {
	// ID is the token used to query the job status.
	ID string
	// ExternalID is the provider identifier of the resource, set on creation.
	ExternalID string
}

// JobState is the state of an asynchronous job on the provider.
type JobState string

const (
	JobStateWaiting    JobState = "WAITING"
	JobStateScheduled  JobState = "SCHEDULED"
	JobStateProcessing JobState = "PROCESSING"
	JobStateFinished   JobState = "FINISHED"
	JobStateCancelled  JobState = "CANCELLED"
	JobStateError      JobState = "ERROR"
)

// JobStatus is the status of a job.
type JobStatus struct {
	ID    string
	State JobState
	// Progress is the job completion percent, -1 when the provider doesn't know it.
	Progress int
	Messages []string
}
