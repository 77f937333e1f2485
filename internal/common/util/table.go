package util

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// Table builds tab-aligned text a row at a time. Writing to a strings.Builder can't fail,
// so unlike tabwriter.Writer none of its methods return an error.
type Table struct {
	sb      *strings.Builder
	writer  *tabwriter.Writer
	columns int
}

// NewTable creates a table whose first row is header. Columns are separated by at least two spaces.
func NewTable(header ...string) *Table {
	sb := &strings.Builder{}
	t := &Table{
		sb:      sb,
		writer:  tabwriter.NewWriter(sb, 0, 4, 2, ' ', 0),
		columns: len(header),
	}
	if len(header) > 0 {
		cells := make([]interface{}, len(header))
		for i, h := range header {
			cells[i] = h
		}
		t.Row(cells...)
	}
	return t
}

// Row appends one row, formatting each cell with %v. Missing cells are left blank.
func (t *Table) Row(cells ...interface{}) {
	values := make([]string, 0, len(cells))
	for _, cell := range cells {
		values = append(values, fmt.Sprintf("%v", cell))
	}
	for len(values) < t.columns {
		values = append(values, "")
	}
	_, _ = fmt.Fprintln(t.writer, strings.Join(values, "\t"))
}

// Rowf appends a tab separated line formatted according to format.
func (t *Table) Rowf(format string, a ...interface{}) {
	_, _ = fmt.Fprintf(t.writer, format+"\n", a...)
}

// String flushes and returns the accumulated text.
func (t *Table) String() string {
	_ = t.writer.Flush()
	return t.sb.String()
}
