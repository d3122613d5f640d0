package providermock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/provider"
)

// MockProvider is a mock of provider.Provider.
type MockProvider struct {
	mock.Mock
}

var _ provider.Provider = &MockProvider{}

func (m *MockProvider) Create(ctx context.Context, res model.Resource, actx model.ActivationContext) (string, error) {
	args := m.Called(ctx, res, actx)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) Start(ctx context.Context, res model.Resource) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

func (m *MockProvider) Stop(ctx context.Context, res model.Resource) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

func (m *MockProvider) Delete(ctx context.Context, res model.Resource) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

// MockJobProvider is a mock of provider.JobProvider.
type MockJobProvider struct {
	mock.Mock
}

var _ provider.JobProvider = &MockJobProvider{}

func (m *MockJobProvider) Create(ctx context.Context, res model.Resource, actx model.ActivationContext) (provider.Job, error) {
	args := m.Called(ctx, res, actx)
	return args.Get(0).(provider.Job), args.Error(1)
}

func (m *MockJobProvider) Start(ctx context.Context, res model.Resource) (provider.Job, error) {
	args := m.Called(ctx, res)
	return args.Get(0).(provider.Job), args.Error(1)
}

func (m *MockJobProvider) Stop(ctx context.Context, res model.Resource) (provider.Job, error) {
	args := m.Called(ctx, res)
	return args.Get(0).(provider.Job), args.Error(1)
}

func (m *MockJobProvider) Delete(ctx context.Context, res model.Resource) (provider.Job, error) {
	args := m.Called(ctx, res)
	return args.Get(0).(provider.Job), args.Error(1)
}

func (m *MockJobProvider) JobStatus(ctx context.Context, jobID string) (provider.JobStatus, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(provider.JobStatus), args.Error(1)
}
