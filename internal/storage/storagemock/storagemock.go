package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/storage"
)

// MockRepository is a mock of storage.Repository.
type MockRepository struct {
	mock.Mock
}

var _ storage.Repository = &MockRepository{}

func (m *MockRepository) CreateResource(ctx context.Context, r model.Resource) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRepository) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*model.Resource), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetResourceByName(ctx context.Context, name string) (*model.Resource, error) {
	args := m.Called(ctx, name)
	if r := args.Get(0); r != nil {
		return r.(*model.Resource), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) ListResources(ctx context.Context) ([]model.Resource, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.([]model.Resource), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) UpdateResource(ctx context.Context, r model.Resource) (*model.Resource, error) {
	args := m.Called(ctx, r)
	if r := args.Get(0); r != nil {
		return r.(*model.Resource), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRecordRepository is a mock of storage.RecordRepository.
type MockRecordRepository struct {
	mock.Mock
}

var _ storage.RecordRepository = &MockRecordRepository{}

func (m *MockRecordRepository) SaveRecord(ctx context.Context, rec storage.StoredRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRecordRepository) GetRecord(ctx context.Context, id string) (*storage.StoredRecord, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*storage.StoredRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecordRepository) ListRecords(ctx context.Context, subject string) ([]storage.StoredRecord, error) {
	args := m.Called(ctx, subject)
	if r := args.Get(0); r != nil {
		return r.([]storage.StoredRecord), args.Error(1)
	}
	return nil, args.Error(1)
}
