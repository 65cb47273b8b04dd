package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testColumns() []TableColumn {
	return []TableColumn{
		{Name: "TASK", Width: 12, Align: AlignLeft},
		{Name: "STATUS", Width: 10, Align: AlignLeft},
		{Name: "STEPS", Width: 5, Align: AlignRight},
	}
}

func TestTableWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, testColumns())

	tbl.WriteHeader()

	out := buf.String()
	assert.Contains(t, out, "TASK")
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "STEPS")
}

func TestTableWriteRow(t *testing.T) {
	t.Run("pads and aligns cells", func(t *testing.T) {
		var buf bytes.Buffer
		tbl := NewTable(&buf, testColumns())

		tbl.WriteRow("task-1", "running", "4")

		line := strings.TrimRight(buf.String(), "\n")
		assert.Contains(t, line, "task-1")
		assert.Contains(t, line, "running")
		// Right-aligned numeric column keeps its width.
		assert.True(t, strings.HasSuffix(line, "    4"), "got %q", line)
	})

	t.Run("missing trailing values render empty", func(t *testing.T) {
		var buf bytes.Buffer
		tbl := NewTable(&buf, testColumns())

		tbl.WriteRow("task-2")

		assert.Contains(t, buf.String(), "task-2")
	})

	t.Run("long cells truncate with ellipsis", func(t *testing.T) {
		var buf bytes.Buffer
		tbl := NewTable(&buf, testColumns())

		tbl.WriteRow("task-20260825-120000-a1b2", "running", "4")

		out := buf.String()
		assert.Contains(t, out, "…")
		assert.NotContains(t, out, "task-20260825-120000-a1b2")
	})
}

func TestTableWriteStyledRow(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, testColumns())
	style := lipgloss.NewStyle().Bold(true)

	tbl.WriteStyledRow([]string{"task-3", "completed", "9"}, 1, style)

	out := buf.String()
	assert.Contains(t, out, "task-3")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "9")
}

func TestTruncateCell(t *testing.T) {
	tests := []struct {
		name  string
		value string
		width int
		want  string
	}{
		{"fits exactly", "hello", 5, "hello"},
		{"shorter than width", "hi", 5, "hi"},
		{"over width", "abcdefgh", 5, "abcd…"},
		{"width one passes through", "abcdefgh", 1, "abcdefgh"},
		{"unicode counts runes not bytes", "⚠⚠⚠⚠⚠⚠", 4, "⚠⚠⚠…"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, truncateCell(tc.value, tc.width))
		})
	}
}

func TestColorOffset(t *testing.T) {
	plain := "completed"
	rendered := "\x1b[1m" + plain + "\x1b[0m"
	require.Equal(t, len(rendered)-len(plain), ColorOffset(rendered, plain))
	assert.Equal(t, 0, ColorOffset(plain, plain))
}
