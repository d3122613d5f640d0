package activation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/activator/internal/activation"
	"github.com/slok/activator/internal/activation/activationmock"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/provider/providermock"
)

func acceptingHandler(kind model.ResourceKind, steps ...model.Step) *activationmock.MockHandler {
	h := &activationmock.MockHandler{}
	for _, step := range steps {
		h.On("Accepts", kind, step).Return(true)
	}
	h.On("Accepts", mock.Anything, mock.Anything).Return(false)
	return h
}

func TestNewRegistry(t *testing.T) {
	tests := map[string]struct {
		handlers func() []activation.Handler
		expErr   bool
	}{
		"Handlers accepting different kinds should be registered.": {
			handlers: func() []activation.Handler {
				return []activation.Handler{
					acceptingHandler(model.ResourceKindApp, model.Steps()...),
					acceptingHandler(model.ResourceKindSpace, model.StepActivate),
				}
			},
		},

		"Two handlers for the same kind and step should fail.": {
			handlers: func() []activation.Handler {
				return []activation.Handler{
					acceptingHandler(model.ResourceKindApp, model.StepActivate, model.StepStart),
					acceptingHandler(model.ResourceKindApp, model.StepStart),
				}
			},
			expErr: true,
		},

		"A nil handler should fail.": {
			handlers: func() []activation.Handler { return []activation.Handler{nil} },
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := activation.NewRegistry(test.handlers()...)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistryDefaultHandlers(t *testing.T) {
	repo := newRepo(t)
	cfg := activation.HandlerConfig{Provider: &providermock.MockProvider{}, Repository: repo}
	jobCfg := activation.JobHandlerDeps{Provider: &providermock.MockJobProvider{}, Repository: repo}

	org, err := activation.NewOrganizationHandler(cfg)
	require.NoError(t, err)
	space, err := activation.NewSpaceHandler(cfg)
	require.NoError(t, err)
	route, err := activation.NewRouteHandler(cfg)
	require.NoError(t, err)
	ups, err := activation.NewUserProvidedServiceHandler(cfg)
	require.NoError(t, err)
	app, err := activation.NewAppHandler(cfg)
	require.NoError(t, err)
	ms, err := activation.NewManagedServiceHandler(jobCfg)
	require.NoError(t, err)
	db, err := activation.NewDatabaseHandler(jobCfg)
	require.NoError(t, err)

	reg, err := activation.NewRegistry(org, space, route, ups, app, ms, db)
	require.NoError(t, err)

	h, err := reg.Handler(model.ResourceKindDatabase, model.StepStop)
	require.NoError(t, err)
	assert.Same(t, db, h)

	h, err = reg.Handler(model.ResourceKindApp, model.StepFirstStart)
	require.NoError(t, err)
	assert.Same(t, app, h)

	_, err = reg.Handler(model.ResourceKindOrganization, model.StepDelete)
	assert.True(t, errors.Is(err, activation.ErrNoHandler))

	_, err = reg.Handler(model.ResourceKindManagedService, model.StepStart)
	assert.True(t, errors.Is(err, activation.ErrNoHandler))
}

func TestRegistryDispatch(t *testing.T) {
	actx := model.ActivationContext{EnvLabel: "dev", CorrelationID: "c1"}
	res := model.Resource{ID: "r1", Kind: model.ResourceKindApp, Name: "shop"}

	tests := map[string]struct {
		step model.Step
		mock func(h *activationmock.MockHandler, rec *progress.Record)
	}{
		"Activate should be dispatched with the activation context.": {
			step: model.StepActivate,
			mock: func(h *activationmock.MockHandler, rec *progress.Record) {
				h.On("Activate", mock.Anything, "r1", actx).Once().Return(rec)
			},
		},

		"First start should be dispatched.": {
			step: model.StepFirstStart,
			mock: func(h *activationmock.MockHandler, rec *progress.Record) {
				h.On("FirstStart", mock.Anything, "r1").Once().Return(rec)
			},
		},

		"Start should be dispatched.": {
			step: model.StepStart,
			mock: func(h *activationmock.MockHandler, rec *progress.Record) {
				h.On("Start", mock.Anything, "r1").Once().Return(rec)
			},
		},

		"Stop should be dispatched.": {
			step: model.StepStop,
			mock: func(h *activationmock.MockHandler, rec *progress.Record) {
				h.On("Stop", mock.Anything, "r1").Once().Return(rec)
			},
		},

		"Delete should be dispatched.": {
			step: model.StepDelete,
			mock: func(h *activationmock.MockHandler, rec *progress.Record) {
				h.On("Delete", mock.Anything, "r1").Once().Return(rec)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			h := acceptingHandler(model.ResourceKindApp, model.Steps()...)
			expRec := progress.Succeeded("rec1", "done")
			test.mock(h, expRec)

			reg, err := activation.NewRegistry(h)
			require.NoError(err)

			gotH, gotRec, err := reg.Dispatch(context.Background(), res, test.step, actx)
			require.NoError(err)
			assert.Same(h, gotH)
			assert.Same(expRec, gotRec)
			h.AssertExpectations(t)
		})
	}

	t.Run("Resources without handler should fail.", func(t *testing.T) {
		reg, err := activation.NewRegistry()
		require.NoError(t, err)

		_, _, err = reg.Dispatch(context.Background(), res, model.StepStart, actx)
		assert.True(t, errors.Is(err, activation.ErrNoHandler))
	})
}
