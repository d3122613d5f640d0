package status_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/activator/internal/app/status"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/storage"
	"github.com/slok/activator/internal/storage/memory"
	"github.com/slok/activator/internal/storage/storagemock"
)

const resourceID = "01HZX3Q8V4N2J6K9M0P5R7T1WY"

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		cfg    status.ServiceConfig
		expErr bool
	}{
		"Valid config should create the service.": {
			cfg: status.ServiceConfig{
				Repository:       &storagemock.MockRepository{},
				RecordRepository: &storagemock.MockRecordRepository{},
			},
		},
		"Missing repository should fail.": {
			cfg:    status.ServiceConfig{RecordRepository: &storagemock.MockRecordRepository{}},
			expErr: true,
		},
		"Missing record repository should fail.": {
			cfg:    status.ServiceConfig{Repository: &storagemock.MockRepository{}},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := status.NewService(test.cfg)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		req         status.Request
		expErr      error
		expResource string
		expRecord   string
	}{
		"Getting a record by ID should return it.": {
			req:       status.Request{RecordID: "rec-1"},
			expRecord: "rec-1",
		},

		"Getting a resource by name should return its latest record.": {
			req:         status.Request{NameOrID: "orders"},
			expResource: resourceID,
			expRecord:   "rec-2",
		},

		"Getting a resource by ID should return its latest record.": {
			req:         status.Request{NameOrID: resourceID},
			expResource: resourceID,
			expRecord:   "rec-2",
		},

		"Getting a resource without records should return the resource only.": {
			req:         status.Request{NameOrID: "shop"},
			expResource: "01HZX3Q8V4N2J6K9M0P5R7T1WZ",
		},

		"Getting an environment should return its latest record.": {
			req:       status.Request{EnvLabel: "dev"},
			expRecord: "rec-env",
		},

		"Getting an environment without operations should fail.": {
			req:    status.Request{EnvLabel: "prod"},
			expErr: model.ErrNotFound,
		},

		"Getting a missing resource should fail.": {
			req:    status.Request{NameOrID: "missing"},
			expErr: model.ErrNotFound,
		},

		"Getting a missing record should fail.": {
			req:    status.Request{RecordID: "missing"},
			expErr: model.ErrNotFound,
		},

		"An empty request should fail.": {
			req:    status.Request{},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()

			repo, err := memory.NewRepository(memory.RepositoryConfig{})
			require.NoError(err)
			require.NoError(repo.CreateResource(ctx, model.Resource{ID: resourceID, Kind: model.ResourceKindDatabase, Name: "orders", State: model.LifecycleStateCreated}))
			require.NoError(repo.CreateResource(ctx, model.Resource{ID: "01HZX3Q8V4N2J6K9M0P5R7T1WZ", Kind: model.ResourceKindApp, Name: "shop", State: model.LifecycleStateUnprovisioned}))
			require.NoError(repo.SaveRecord(ctx, storage.StoredRecord{Subject: resourceID, Step: model.StepActivate, Record: progress.Succeeded("rec-1", "Creating database <orders>")}))
			require.NoError(repo.SaveRecord(ctx, storage.StoredRecord{Subject: resourceID, Step: model.StepStart, Record: progress.Succeeded("rec-2", "Starting database <orders>")}))
			require.NoError(repo.SaveRecord(ctx, storage.StoredRecord{Subject: "dev", Step: model.StepActivate, Record: progress.Succeeded("rec-env", "ACTIVATE 1 resources")}))

			svc, err := status.NewService(status.ServiceConfig{Repository: repo, RecordRepository: repo})
			require.NoError(err)

			got, err := svc.Run(ctx, test.req)
			if test.expErr != nil {
				assert.True(errors.Is(err, test.expErr), err)
				return
			}
			require.NoError(err)

			if test.expResource != "" {
				require.NotNil(got.Resource)
				assert.Equal(test.expResource, got.Resource.ID)
			} else {
				assert.Nil(got.Resource)
			}
			if test.expRecord != "" {
				require.NotNil(got.Record)
				assert.Equal(test.expRecord, got.Record.Record.ID())
			} else {
				assert.Nil(got.Record)
			}
		})
	}
}
