package activation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/activator/internal/activation"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/provider"
	"github.com/slok/activator/internal/provider/fake"
	"github.com/slok/activator/internal/provider/providermock"
)

func queryUntilComplete(t *testing.T, h activation.Handler, rec *progress.Record) *progress.Record {
	t.Helper()
	for range 10 {
		if rec.IsComplete() {
			return rec
		}
		var err error
		rec, err = h.QueryStatus(context.Background(), rec)
		require.NoError(t, err)
	}
	require.FailNow(t, "record not complete")
	return nil
}

func TestJobHandlerLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, model.Resource{ID: "r1", Kind: model.ResourceKindDatabase, Name: "orders", State: model.LifecycleStateUnprovisioned})
	prov, err := fake.NewJobProvider(fake.JobProviderConfig{PollsToFinish: 2})
	require.NoError(t, err)

	h, err := activation.NewDatabaseHandler(activation.JobHandlerDeps{Provider: prov, ProviderName: "fake", Repository: repo})
	require.NoError(t, err)

	rec := h.Activate(ctx, "r1", model.ActivationContext{EnvLabel: "dev"})
	require.True(t, rec.IsRunning(), rec.ErrorMessage())
	assert.Equal(t, 0, rec.Percent())
	assert.Equal(t, 20*time.Minute, rec.SuggestedTimeout())
	assert.Equal(t, "Creating database <orders>", rec.Title())
	payload := rec.PayloadMap()
	assert.NotEmpty(t, payload[activation.PayloadJob])
	assert.Equal(t, "fake", payload[activation.PayloadProvider])
	assert.Equal(t, "CREATED", payload[activation.PayloadTargetState])
	assert.Equal(t, "r1", payload[activation.PayloadResource])
	assert.Equal(t, "ACTIVATE", payload[activation.PayloadStep])

	// The provider identifier is stored as soon as the job is accepted.
	res := getResource(t, repo, "r1")
	assert.Equal(t, model.LifecycleStateUnprovisioned, res.State)
	assert.Contains(t, res.ExternalID, "fake-database-")
	assert.Equal(t, "dev-orders", res.Attributes[activation.AttrProviderName])

	rec, err = h.QueryStatus(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusPending, rec.Status())

	rec, err = h.QueryStatus(ctx, rec)
	require.NoError(t, err)
	assert.True(t, rec.HasSucceeded())
	assert.Equal(t, 100, rec.Percent())
	assert.Equal(t, model.LifecycleStateCreated, getResource(t, repo, "r1").State)

	// Complete records are returned as they are.
	callsBefore := prov.Calls()
	again, err := h.QueryStatus(ctx, rec)
	require.NoError(t, err)
	assert.True(t, again.HasSucceeded())
	assert.Equal(t, callsBefore, prov.Calls())

	rec = queryUntilComplete(t, h, h.FirstStart(ctx, "r1"))
	require.True(t, rec.HasSucceeded())
	assert.Equal(t, model.LifecycleStateStarted, getResource(t, repo, "r1").State)

	// Already started databases don't create jobs.
	rec = h.Start(ctx, "r1")
	require.True(t, rec.HasSucceeded())
	assert.Equal(t, model.LifecycleStateStarted, getResource(t, repo, "r1").State)

	rec = queryUntilComplete(t, h, h.Stop(ctx, "r1"))
	require.True(t, rec.HasSucceeded())
	assert.Equal(t, model.LifecycleStateStopped, getResource(t, repo, "r1").State)

	rec = h.Stop(ctx, "r1")
	require.True(t, rec.HasSucceeded())
	assert.Equal(t, model.LifecycleStateStopped, getResource(t, repo, "r1").State)

	rec = queryUntilComplete(t, h, h.Delete(ctx, "r1"))
	require.True(t, rec.HasSucceeded())
	assert.Equal(t, model.LifecycleStateRemoved, getResource(t, repo, "r1").State)

	callsBefore = prov.Calls()
	rec = h.Delete(ctx, "r1")
	require.True(t, rec.HasSucceeded())
	assert.Equal(t, callsBefore, prov.Calls())
}

func TestJobHandlerFailedJob(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, model.Resource{ID: "r1", Kind: model.ResourceKindDatabase, Name: "orders", State: model.LifecycleStateUnprovisioned})
	prov, err := fake.NewJobProvider(fake.JobProviderConfig{PollsToFinish: 2})
	require.NoError(t, err)
	prov.FailNextJob("disk quota exceeded")

	h, err := activation.NewDatabaseHandler(activation.JobHandlerDeps{Provider: prov, Repository: repo})
	require.NoError(t, err)

	rec := queryUntilComplete(t, h, h.Activate(ctx, "r1", model.ActivationContext{EnvLabel: "dev"}))
	assert.True(t, rec.HasFailed())
	assert.Equal(t, "Unable to activate Database. disk quota exceeded", rec.ErrorMessage())
	res := getResource(t, repo, "r1")
	assert.Equal(t, model.LifecycleStateUnknown, res.State)
	assert.NotEmpty(t, res.ExternalID)
}

func TestJobHandlerDeleteAfterFailedActivation(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, model.Resource{ID: "r1", Kind: model.ResourceKindDatabase, Name: "orders", State: model.LifecycleStateUnprovisioned})
	prov, err := fake.NewJobProvider(fake.JobProviderConfig{PollsToFinish: 2})
	require.NoError(t, err)
	prov.FailNextJob("disk quota exceeded")

	h, err := activation.NewDatabaseHandler(activation.JobHandlerDeps{Provider: prov, Repository: repo})
	require.NoError(t, err)

	rec := queryUntilComplete(t, h, h.Activate(ctx, "r1", model.ActivationContext{EnvLabel: "dev"}))
	require.True(t, rec.HasFailed())

	// The partially created resource must be cleaned on the provider.
	callsBefore := prov.Calls()
	rec = queryUntilComplete(t, h, h.Delete(ctx, "r1"))
	require.True(t, rec.HasSucceeded(), rec.ErrorMessage())
	assert.Equal(t, callsBefore+1, prov.Calls())
	assert.Equal(t, model.LifecycleStateRemoved, getResource(t, repo, "r1").State)
}

func TestJobHandlerOperationErrors(t *testing.T) {
	tests := map[string]struct {
		state    model.LifecycleState
		run      func(h activation.Handler) *progress.Record
		mock     func(m *providermock.MockJobProvider)
		expMsg   string
		expState model.LifecycleState
	}{
		"Concurrent jobs should fail the start.": {
			state: model.LifecycleStateStopped,
			run:   func(h activation.Handler) *progress.Record { return h.Start(context.Background(), "r1") },
			mock: func(m *providermock.MockJobProvider) {
				m.On("Start", mock.Anything, mock.Anything).Once().Return(provider.Job{}, provider.ErrConcurrentJobs)
			},
			expMsg:   "Unable to start Database. concurrent jobs on resource",
			expState: model.LifecycleStateStopped,
		},

		"Deleting a resource already deleted on the provider should succeed without job.": {
			state: model.LifecycleStateUnknown,
			run:   func(h activation.Handler) *progress.Record { return h.Delete(context.Background(), "r1") },
			mock: func(m *providermock.MockJobProvider) {
				m.On("Delete", mock.Anything, mock.Anything).Once().Return(provider.Job{}, provider.ErrAlreadyDeleted)
			},
			expState: model.LifecycleStateRemoved,
		},

		"Deleting an unprovisioned resource should not call the provider.": {
			state:    model.LifecycleStateUnprovisioned,
			run:      func(h activation.Handler) *progress.Record { return h.Delete(context.Background(), "r1") },
			mock:     func(m *providermock.MockJobProvider) {},
			expState: model.LifecycleStateUnprovisioned,
		},

		"A creation error should fail the activation.": {
			state: model.LifecycleStateUnprovisioned,
			run: func(h activation.Handler) *progress.Record {
				return h.Activate(context.Background(), "r1", model.ActivationContext{})
			},
			mock: func(m *providermock.MockJobProvider) {
				m.On("Create", mock.Anything, mock.Anything, mock.Anything).Once().Return(provider.Job{}, errors.New("no capacity"))
			},
			expMsg:   "Unable to activate Database. no capacity",
			expState: model.LifecycleStateUnprovisioned,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo := newRepo(t, model.Resource{ID: "r1", Kind: model.ResourceKindDatabase, Name: "orders", State: test.state, ExternalID: "ext-1"})
			m := &providermock.MockJobProvider{}
			test.mock(m)

			h, err := activation.NewDatabaseHandler(activation.JobHandlerDeps{Provider: m, Repository: repo})
			require.NoError(err)

			rec := test.run(h)
			if test.expMsg != "" {
				assert.True(rec.HasFailed())
				assert.Equal(test.expMsg, rec.ErrorMessage())
			} else {
				assert.True(rec.HasSucceeded())
			}
			assert.Equal(test.expState, getResource(t, repo, "r1").State)
			m.AssertExpectations(t)
		})
	}
}

func TestJobHandlerQueryStatus(t *testing.T) {
	jobRecord := func() *progress.Record {
		rec := progress.Running("rec1", "Creating database <orders>")
		rec.SetPercent(0)
		rec.SetPayload(activation.PayloadJob, "job-1")
		rec.SetPayload(activation.PayloadTargetState, "CREATED")
		rec.SetPayload(activation.PayloadResource, "r1")
		rec.SetPayload(activation.PayloadStep, "ACTIVATE")
		return rec
	}

	tests := map[string]struct {
		record     func() *progress.Record
		mock       func(m *providermock.MockJobProvider)
		expErr     bool
		expErrIs   []error
		expErrMsg  string
		expStatus  progress.Status
		expPercent int
		expMsg     string
		expState   model.LifecycleState
	}{
		"A complete record should be returned without asking the provider.": {
			record:     func() *progress.Record { return progress.Succeeded("rec1", "done") },
			mock:       func(m *providermock.MockJobProvider) {},
			expStatus:  progress.StatusSucceeded,
			expPercent: 100,
			expState:   model.LifecycleStateUnprovisioned,
		},

		"A record without job should be a contract violation.": {
			record:   func() *progress.Record { return progress.Running("rec1", "no job") },
			mock:     func(m *providermock.MockJobProvider) {},
			expErr:   true,
			expErrIs: []error{model.ErrFatal, model.ErrContractViolation},
		},

		"A transport timeout should be fatal and keep the timeout on the message.": {
			record: jobRecord,
			mock: func(m *providermock.MockJobProvider) {
				err := &provider.TransportError{Op: "get action", Timeout: 30 * time.Second, Err: context.DeadlineExceeded}
				m.On("JobStatus", mock.Anything, "job-1").Once().Return(provider.JobStatus{}, err)
			},
			expErr:    true,
			expErrIs:  []error{model.ErrFatal},
			expErrMsg: "actual timeout (ms) : 30000",
		},

		"A waiting job should be pending.": {
			record: jobRecord,
			mock: func(m *providermock.MockJobProvider) {
				m.On("JobStatus", mock.Anything, "job-1").Once().Return(provider.JobStatus{ID: "job-1", State: provider.JobStateWaiting, Progress: -1}, nil)
			},
			expStatus:  progress.StatusPending,
			expPercent: 0,
			expState:   model.LifecycleStateUnprovisioned,
		},

		"A processing job should be running with its progress.": {
			record: jobRecord,
			mock: func(m *providermock.MockJobProvider) {
				m.On("JobStatus", mock.Anything, "job-1").Once().Return(provider.JobStatus{ID: "job-1", State: provider.JobStateProcessing, Progress: 40}, nil)
			},
			expStatus:  progress.StatusRunning,
			expPercent: 40,
			expState:   model.LifecycleStateUnprovisioned,
		},

		"A cancelled job should fail with all the messages.": {
			record: jobRecord,
			mock: func(m *providermock.MockJobProvider) {
				m.On("JobStatus", mock.Anything, "job-1").Once().Return(provider.JobStatus{ID: "job-1", State: provider.JobStateCancelled, Progress: 50, Messages: []string{"cancelled by operator", "rolled back"}}, nil)
			},
			expStatus:  progress.StatusFailed,
			expPercent: 50,
			expMsg:     "Unable to activate Database. cancelled by operator\nrolled back",
			expState:   model.LifecycleStateUnprovisioned,
		},

		"A finished job should succeed and move the resource to the target state.": {
			record: jobRecord,
			mock: func(m *providermock.MockJobProvider) {
				m.On("JobStatus", mock.Anything, "job-1").Once().Return(provider.JobStatus{ID: "job-1", State: provider.JobStateFinished, Progress: 100}, nil)
			},
			expStatus:  progress.StatusSucceeded,
			expPercent: 100,
			expState:   model.LifecycleStateCreated,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo := newRepo(t, model.Resource{ID: "r1", Kind: model.ResourceKindDatabase, Name: "orders", State: model.LifecycleStateUnprovisioned, ExternalID: "ext-1"})
			m := &providermock.MockJobProvider{}
			test.mock(m)

			h, err := activation.NewDatabaseHandler(activation.JobHandlerDeps{Provider: m, Repository: repo})
			require.NoError(err)

			in := test.record()
			gotRec, err := h.QueryStatus(context.Background(), in)
			m.AssertExpectations(t)

			if test.expErr {
				require.Error(err)
				for _, target := range test.expErrIs {
					assert.ErrorIs(err, target)
				}
				if test.expErrMsg != "" {
					assert.Contains(err.Error(), test.expErrMsg)
				}
				return
			}
			require.NoError(err)

			assert.NotSame(in, gotRec)
			assert.Equal(test.expStatus, gotRec.Status())
			assert.Equal(test.expPercent, gotRec.Percent())
			assert.Equal(test.expMsg, gotRec.ErrorMessage())
			assert.Equal(test.expState, getResource(t, repo, "r1").State)
		})
	}
}
