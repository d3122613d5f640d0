package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/storage"
)

// JSONPrinter prints resources and records in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents a resource in the list output (subset of fields).
type listItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	State      string    `json:"state"`
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// resourceOutput represents the full resource output.
type resourceOutput struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Kind       string            `json:"kind"`
	State      string            `json:"state"`
	ExternalID string            `json:"external_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	DependsOn  []string          `json:"depends_on,omitempty"`
	Version    int               `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// recordOutput represents a stored record output.
type recordOutput struct {
	Subject string           `json:"subject"`
	Step    string           `json:"step"`
	Record  *progress.Record `json:"record"`
}

// statusOutput represents the status output of a resource or a record.
type statusOutput struct {
	Resource *resourceOutput `json:"resource,omitempty"`
	Last     *recordOutput   `json:"last_record"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintList prints resources in JSON format with a subset of fields.
func (j *JSONPrinter) PrintList(resources []model.Resource) error {
	items := make([]listItem, len(resources))
	for i, r := range resources {
		items[i] = listItem{
			ID:         r.ID,
			Name:       r.Name,
			Kind:       string(r.Kind),
			State:      string(r.State),
			ExternalID: r.ExternalID,
			CreatedAt:  r.CreatedAt.UTC(),
		}
	}

	return j.encode(items)
}

// PrintStatus prints the resource and its latest record in JSON format.
func (j *JSONPrinter) PrintStatus(res *model.Resource, rec *storage.StoredRecord) error {
	var output statusOutput
	if res != nil {
		output.Resource = &resourceOutput{
			ID:         res.ID,
			Name:       res.Name,
			Kind:       string(res.Kind),
			State:      string(res.State),
			ExternalID: res.ExternalID,
			Attributes: res.Attributes,
			DependsOn:  res.DependsOn,
			Version:    res.Version,
			CreatedAt:  res.CreatedAt.UTC(),
			UpdatedAt:  res.UpdatedAt.UTC(),
		}
	}
	if rec != nil {
		output.Last = &recordOutput{
			Subject: rec.Subject,
			Step:    string(rec.Step),
			Record:  rec.Record,
		}
	}

	return j.encode(output)
}

// PrintRecord prints the record tree in JSON format.
func (j *JSONPrinter) PrintRecord(rec *progress.Record) error {
	return j.encode(rec)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
