package printer

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/storage"
)

// TablePrinter prints resources in a table format and records as a tree.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintList prints resources in a table format.
func (t *TablePrinter) PrintList(resources []model.Resource) error {
	if len(resources) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "NAME\tKIND\tSTATE\tEXTERNAL ID\tCREATED")
	for _, r := range resources {
		extID := r.ExternalID
		if extID == "" {
			extID = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Kind, r.State, extID, TimeAgo(r.CreatedAt))
	}

	return nil
}

// PrintStatus prints the detailed resource status followed by its latest record.
func (t *TablePrinter) PrintStatus(res *model.Resource, rec *storage.StoredRecord) error {
	if res != nil {
		fmt.Fprintf(t.writer, "Name:        %s\n", res.Name)
		fmt.Fprintf(t.writer, "ID:          %s\n", res.ID)
		fmt.Fprintf(t.writer, "Kind:        %s\n", res.Kind)
		fmt.Fprintf(t.writer, "State:       %s\n", res.State)
		if res.ExternalID != "" {
			fmt.Fprintf(t.writer, "External ID: %s\n", res.ExternalID)
		}
		if len(res.DependsOn) > 0 {
			fmt.Fprintf(t.writer, "Depends on:  %s\n", strings.Join(res.DependsOn, ", "))
		}
		for _, k := range slices.Sorted(maps.Keys(res.Attributes)) {
			fmt.Fprintf(t.writer, "Attribute:   %s=%s\n", k, res.Attributes[k])
		}
		fmt.Fprintf(t.writer, "Created:     %s\n", FormatTimestamp(res.CreatedAt))
		fmt.Fprintf(t.writer, "Updated:     %s\n", FormatTimestamp(res.UpdatedAt))
	}

	if rec == nil || rec.Record == nil {
		if res != nil {
			fmt.Fprintln(t.writer, "Last step:   -")
		}
		return nil
	}

	fmt.Fprintf(t.writer, "Last step:   %s (%s)\n", rec.Step, rec.Record.ID())
	fmt.Fprintf(t.writer, "Started:     %s\n", FormatTimestamp(rec.Record.StartTime()))
	if !rec.Record.EndTime().IsZero() {
		fmt.Fprintf(t.writer, "Ended:       %s\n", FormatTimestamp(rec.Record.EndTime()))
	}
	fmt.Fprintf(t.writer, "Elapsed:     %s\n", FormatElapsed(rec.Record.StartTime(), rec.Record.EndTime()))
	fmt.Fprintln(t.writer)

	return t.PrintRecord(rec.Record)
}

// PrintRecord prints the record tree, one line per record.
func (t *TablePrinter) PrintRecord(rec *progress.Record) error {
	if rec == nil {
		return nil
	}
	return rec.Display(t.writer)
}

// PrintMessage prints a simple message.
func (t *TablePrinter) PrintMessage(msg string) error {
	_, err := fmt.Fprintln(t.writer, msg)
	return err
}
