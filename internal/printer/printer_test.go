package printer_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/printer"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/storage"
)

func resourceFixture() model.Resource {
	createdAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	return model.Resource{
		ID:         "01234567890ABCDEFGHIJKLMNOP",
		Kind:       model.ResourceKindDatabase,
		Name:       "orders",
		State:      model.LifecycleStateStarted,
		ExternalID: "db-1234",
		Attributes: map[string]string{"provider_name": "dev-orders", "engine": "postgres"},
		DependsOn:  []string{"01234567890ABCDEFGHIJKLMNOQ"},
		Version:    3,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt.Add(time.Minute),
	}
}

func recordFixture() *storage.StoredRecord {
	parent := progress.Running("rec-1", "ACTIVATE 2 resources")
	child := progress.Running("rec-2", "Creating database <orders>")
	child.SetSubtitle("processing")
	child.SetPercent(50)
	parent.AttachChild(child)
	parent.AttachChild(progress.Succeeded("rec-3", "Space dev has been created."))

	return &storage.StoredRecord{Subject: "dev", Step: model.StepActivate, Record: parent}
}

func TestTablePrinterPrintList(t *testing.T) {
	tests := map[string]struct {
		resources []model.Resource
		expLines  []string
	}{
		"No resources should not print anything.": {},

		"Resources should be printed with a header.": {
			resources: []model.Resource{
				resourceFixture(),
				{Name: "dev", Kind: model.ResourceKindSpace, State: model.LifecycleStateUnprovisioned, CreatedAt: time.Now()},
			},
			expLines: []string{
				"NAME    KIND      STATE          EXTERNAL ID  CREATED",
				"orders  database  STARTED        db-1234      ",
				"dev     space     UNPROVISIONED  -            ",
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			var buf bytes.Buffer
			err := printer.NewTablePrinter(&buf).PrintList(test.resources)
			require.NoError(err)

			if len(test.expLines) == 0 {
				assert.Empty(buf.String())
				return
			}
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(lines, len(test.expLines))
			for i, exp := range test.expLines {
				assert.True(strings.HasPrefix(lines[i], exp), "line %d: %q", i, lines[i])
			}
		})
	}
}

func TestTablePrinterPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	res := resourceFixture()
	err := p.PrintStatus(&res, recordFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Kind:        database")
	assert.Contains(t, out, "External ID: db-1234")
	assert.Contains(t, out, "Attribute:   engine=postgres\nAttribute:   provider_name=dev-orders")
	assert.Contains(t, out, "Last step:   ACTIVATE (rec-1)")
	assert.Contains(t, out, "075%] (RUN) ACTIVATE 2 resources : processing")
	assert.Contains(t, out, "   050%] (RUN) Creating database <orders> : processing")
}

func TestTablePrinterPrintStatusWithoutRecord(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	res := resourceFixture()
	err := p.PrintStatus(&res, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Last step:   -")
}

func TestJSONPrinterPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	res := resourceFixture()
	err := p.PrintStatus(&res, recordFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"kind": "database"`)
	assert.Contains(t, out, `"external_id": "db-1234"`)
	assert.Contains(t, out, `"subject": "dev"`)
	assert.Contains(t, out, `"step": "ACTIVATE"`)
	assert.Contains(t, out, `"title": "Creating database <orders>"`)
}

func TestJSONPrinterPrintList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintList([]model.Resource{resourceFixture()})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"name": "orders"`)
	assert.Contains(t, out, `"state": "STARTED"`)
	assert.NotContains(t, out, `"attributes"`)
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}
