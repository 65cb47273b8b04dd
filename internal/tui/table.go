// Package tui renders styled terminal output for agentforge commands.
package tui

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines one column of a table.
type TableColumn struct {
	Name  string
	Width int
	Align Alignment
}

// Alignment defines text alignment within a column.
type Alignment int

// Alignment values.
const (
	AlignLeft Alignment = iota
	AlignRight
)

// Table writes fixed-width rows with a bold header. Cells longer than
// their column are truncated with an ellipsis.
type Table struct {
	w       io.Writer
	styles  *TableStyles
	columns []TableColumn
}

// NewTable creates a table with the given columns writing to w.
func NewTable(w io.Writer, columns []TableColumn) *Table {
	return &Table{
		w:       w,
		styles:  NewTableStyles(),
		columns: columns,
	}
}

// WriteHeader writes the header row.
func (t *Table) WriteHeader() {
	row := ""
	for i, col := range t.columns {
		if i > 0 {
			row += " "
		}
		row += fmt.Sprintf(t.formatSpec(col, 0), col.Name)
	}
	_, _ = fmt.Fprintln(t.w, t.styles.Header.Render(row))
}

// WriteRow writes one data row. Missing trailing values render empty.
func (t *Table) WriteRow(values ...string) {
	t.WriteStyledRow(values, -1, lipgloss.NewStyle())
}

// WriteStyledRow writes one data row with the cell at styledIndex
// rendered through style. Column padding accounts for the invisible
// escape codes the style adds.
func (t *Table) WriteStyledRow(values []string, styledIndex int, style lipgloss.Style) {
	row := ""
	for i, col := range t.columns {
		if i > 0 {
			row += " "
		}
		value := ""
		if i < len(values) {
			value = values[i]
		}
		value = truncateCell(value, col.Width)

		if i == styledIndex {
			styled := style.Render(value)
			row += fmt.Sprintf(t.formatSpec(col, ColorOffset(styled, value)), styled)
		} else {
			row += fmt.Sprintf(t.formatSpec(col, 0), value)
		}
	}
	_, _ = fmt.Fprintln(t.w, row)
}

// formatSpec returns the fmt verb for a column, widened by offset to
// compensate for ANSI escape codes in the cell.
func (t *Table) formatSpec(col TableColumn, offset int) string {
	width := col.Width + offset
	if col.Align == AlignRight {
		return fmt.Sprintf("%%%ds", width)
	}
	return fmt.Sprintf("%%-%ds", width)
}

// truncateCell shortens a cell to width runes, marking the cut with an
// ellipsis. Widths of one or less pass through untouched.
func truncateCell(value string, width int) string {
	if width <= 1 || utf8.RuneCountInString(value) <= width {
		return value
	}
	runes := []rune(value)
	return string(runes[:width-1]) + "…"
}

// ColorOffset is the difference between rendered and visible length
// caused by ANSI escape codes. Add it to a column width when padding a
// styled cell.
func ColorOffset(rendered, plain string) int {
	return len(rendered) - len(plain)
}
