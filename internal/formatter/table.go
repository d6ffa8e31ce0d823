// Package formatter renders human-readable CLI output.
package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table writes aligned columnar output with a header row and a dashed
// separator, in the style of `kubectl get` listings.
type Table struct {
	w       *tabwriter.Writer
	headers []string
	limits  map[int]int
	started bool
}

// NewTable creates a table writing to w with the given column headers.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{
		w:       tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		headers: headers,
		limits:  make(map[int]int),
	}
}

// SetMaxWidth caps the display width of a column (0-indexed). Longer
// cells are truncated with a "..." suffix. A width of 0 means unlimited.
func (t *Table) SetMaxWidth(col, width int) *Table {
	t.limits[col] = width
	return t
}

// AddRow appends a data row. Rows shorter than the header are padded
// with empty cells; extra values are dropped.
func (t *Table) AddRow(values ...string) {
	if !t.started {
		t.started = true
		t.writeLine(t.headers)
		sep := make([]string, len(t.headers))
		for i, h := range t.headers {
			sep[i] = strings.Repeat("-", len(h))
		}
		t.writeLine(sep)
	}

	cells := make([]string, len(t.headers))
	for i := range cells {
		if i < len(values) {
			cells[i] = t.clip(i, values[i])
		}
	}
	t.writeLine(cells)
}

// Render flushes buffered rows. Call once after the last AddRow.
func (t *Table) Render() error {
	return t.w.Flush()
}

func (t *Table) writeLine(cells []string) {
	//nolint:errcheck // terminal output
	fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

func (t *Table) clip(col int, s string) string {
	max := t.limits[col]
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
