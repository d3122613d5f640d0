package activationmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/activator/internal/activation"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
)

// MockHandler is a mock of activation.Handler.
type MockHandler struct {
	mock.Mock
}

var _ activation.Handler = &MockHandler{}

func (m *MockHandler) Accepts(kind model.ResourceKind, step model.Step) bool {
	args := m.Called(kind, step)
	return args.Bool(0)
}

func (m *MockHandler) Activate(ctx context.Context, resourceID string, actx model.ActivationContext) *progress.Record {
	args := m.Called(ctx, resourceID, actx)
	return record(args.Get(0))
}

func (m *MockHandler) FirstStart(ctx context.Context, resourceID string) *progress.Record {
	args := m.Called(ctx, resourceID)
	return record(args.Get(0))
}

func (m *MockHandler) Start(ctx context.Context, resourceID string) *progress.Record {
	args := m.Called(ctx, resourceID)
	return record(args.Get(0))
}

func (m *MockHandler) Stop(ctx context.Context, resourceID string) *progress.Record {
	args := m.Called(ctx, resourceID)
	return record(args.Get(0))
}

func (m *MockHandler) Delete(ctx context.Context, resourceID string) *progress.Record {
	args := m.Called(ctx, resourceID)
	return record(args.Get(0))
}

func (m *MockHandler) QueryStatus(ctx context.Context, rec *progress.Record) (*progress.Record, error) {
	args := m.Called(ctx, rec)
	return record(args.Get(0)), args.Error(1)
}

func record(v any) *progress.Record {
	if v == nil {
		return nil
	}
	return v.(*progress.Record)
}
