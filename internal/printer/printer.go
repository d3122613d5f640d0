package printer

import (
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/storage"
)

// Printer knows how to print resources and lifecycle progress in different formats.
type Printer interface {
	PrintList(resources []model.Resource) error
	// PrintStatus prints a resource, a record or both, any of them can be nil.
	PrintStatus(res *model.Resource, rec *storage.StoredRecord) error
	PrintRecord(rec *progress.Record) error
	PrintMessage(msg string) error
}
