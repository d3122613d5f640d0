package progress

import (
	"fmt"
	"io"
	"strings"

	"github.com/slok/activator/internal/log"
)

const displayIndent = 3

// Lines renders the record tree as human readable lines, one per record.
func (r *Record) Lines() []string {
	var lines []string
	r.lines(0, &lines)
	return lines
}

// Display writes the record tree to w.
func (r *Record) Display(w io.Writer) error {
	for _, line := range r.Lines() {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("could not write record: %w", err)
		}
	}
	return nil
}

// LogDisplay logs the record tree with the logger at info level.
func (r *Record) LogDisplay(logger log.Logger) {
	for _, line := range r.Lines() {
		logger.Infof("%s", line)
	}
}

func (r *Record) lines(offset int, lines *[]string) {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", offset))
	if r.percent < 0 {
		b.WriteString(" -  ]")
	} else {
		fmt.Fprintf(&b, "%03d%%]", r.percent)
	}
	b.WriteString(statusTag(r.status))
	b.WriteString(r.title)
	if r.subtitle != "" {
		b.WriteString(" : ")
		b.WriteString(r.subtitle)
	}
	if r.status == StatusFailed {
		b.WriteString(" ** ")
		b.WriteString(r.errorMessage)
	}
	*lines = append(*lines, b.String())

	for _, child := range r.children {
		child.lines(offset+displayIndent, lines)
	}
}

func statusTag(s Status) string {
	switch s {
	case StatusFailed:
		return " (*KO) "
	case StatusSucceeded:
		return " (+OK) "
	case StatusRunning:
		return " (RUN) "
	default:
		return " (---) "
	}
}
