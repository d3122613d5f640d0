package storage

import (
	"context"

	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
)

// Repository is the interface for resource persistence.
//
// UpdateResource uses optimistic locking: the stored version must match the
// version of the resource being saved, otherwise model.ErrConflict is returned.
// On success the stored version is incremented and the stored resource returned.
type Repository interface {
	CreateResource(ctx context.Context, r model.Resource) error
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	GetResourceByName(ctx context.Context, name string) (*model.Resource, error)
	ListResources(ctx context.Context) ([]model.Resource, error)
	UpdateResource(ctx context.Context, r model.Resource) (*model.Resource, error)
}

// RecordRepository is the interface for progress record persistence.
type RecordRepository interface {
	// SaveRecord creates or replaces a record of a lifecycle step run.
	SaveRecord(ctx context.Context, rec StoredRecord) error
	GetRecord(ctx context.Context, id string) (*StoredRecord, error)
	// ListRecords returns the records of a subject, newest first.
	ListRecords(ctx context.Context, subject string) ([]StoredRecord, error)
}

// StoredRecord is a progress record with the information of what it tracks.
type StoredRecord struct {
	// Subject is what the record tracks, a resource ID or an environment label.
	Subject string
	Step    model.Step
	Record  *progress.Record
}
