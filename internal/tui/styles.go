// Package tui renders styled terminal output for agentforge commands.
//
// All colors are lipgloss.AdaptiveColor pairs so output stays readable
// on both light and dark terminals. Status displays keep triple
// redundancy: icon + color + text, which also survives NO_COLOR.
//
// Commands that print styled text call CheckNoColor() first; it
// downgrades lipgloss to ASCII when NO_COLOR is set (any value) or
// TERM=dumb, per https://no-color.org/.
package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
)

//nolint:gochecknoglobals // Package-level palette shared by all components
var (
	// ColorPrimary is blue, used for active states and informational text.
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#0087AF", Dark: "#00D7FF"}

	// ColorSuccess is green, used for completed tasks and passing checks.
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}

	// ColorWarning is yellow, used for escalations and attention states.
	ColorWarning = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}

	// ColorError is red, used for failed tasks and failing checks.
	ColorError = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}

	// ColorMuted is gray, used for stopped tasks and secondary text.
	ColorMuted = lipgloss.AdaptiveColor{Light: "#585858", Dark: "#6C6C6C"}

	// StyleBold applies bold formatting to text.
	StyleBold = lipgloss.NewStyle().Bold(true)

	// StyleDim applies faint formatting to text.
	StyleDim = lipgloss.NewStyle().Faint(true)
)

// OutputStyles holds the message styles used by TTYOutput.
type OutputStyles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Dim     lipgloss.Style
}

// NewOutputStyles creates the default message styles.
func NewOutputStyles() *OutputStyles {
	return &OutputStyles{
		Success: lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true),
		Error: lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true),
		Warning: lipgloss.NewStyle().
			Foreground(ColorWarning),
		Info: lipgloss.NewStyle().
			Foreground(ColorPrimary),
		Dim: lipgloss.NewStyle().
			Foreground(ColorMuted),
	}
}

// TableStyles holds the styles used for table rendering.
type TableStyles struct {
	Header lipgloss.Style
	Cell   lipgloss.Style
	Dim    lipgloss.Style
}

// NewTableStyles creates the default table styles.
func NewTableStyles() *TableStyles {
	return &TableStyles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#DDDDDD"}),
		Cell: lipgloss.NewStyle(),
		Dim: lipgloss.NewStyle().
			Foreground(ColorMuted),
	}
}

// CheckNoColor downgrades lipgloss to plain ASCII when the terminal
// does not support color. Call at the start of commands that output
// styled text.
func CheckNoColor() {
	if !HasColorSupport() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// HasColorSupport reports whether styled output should use color.
// NO_COLOR set to any value, including empty, disables color, as does
// TERM=dumb.
func HasColorSupport() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return true
}

// TaskStatusColors returns the semantic color for each task status.
func TaskStatusColors() map[constants.TaskStatus]lipgloss.AdaptiveColor {
	return map[constants.TaskStatus]lipgloss.AdaptiveColor{
		constants.TaskStatusPending:   ColorPrimary,
		constants.TaskStatusRunning:   ColorPrimary,
		constants.TaskStatusCompleted: ColorSuccess,
		constants.TaskStatusFailed:    ColorError,
		constants.TaskStatusEscalated: ColorWarning,
		constants.TaskStatusStopped:   ColorMuted,
	}
}

// TaskStatusIcon returns the display icon for a task status.
func TaskStatusIcon(status constants.TaskStatus) string {
	icons := map[constants.TaskStatus]string{
		constants.TaskStatusPending:   "○",
		constants.TaskStatusRunning:   "●",
		constants.TaskStatusCompleted: "✓",
		constants.TaskStatusFailed:    "✗",
		constants.TaskStatusEscalated: "⚠",
		constants.TaskStatusStopped:   "◌",
	}
	if icon, ok := icons[status]; ok {
		return icon
	}
	return "?"
}

// FormatStatusWithIcon pairs a status icon with text. Color is applied
// by the caller's style; icon and text survive NO_COLOR on their own.
func FormatStatusWithIcon(status constants.TaskStatus, text string) string {
	return TaskStatusIcon(status) + " " + text
}

// IsAttentionStatus reports whether a task status has a follow-up the
// user should act on. Attention rows sort to the top of list output.
func IsAttentionStatus(status constants.TaskStatus) bool {
	switch status {
	case constants.TaskStatusEscalated, constants.TaskStatusStopped:
		return true
	default:
		return false
	}
}

// SuggestedAction returns the CLI command that moves a task in the
// given status forward. Empty when nothing is waiting on the user.
func SuggestedAction(status constants.TaskStatus) string {
	actions := map[constants.TaskStatus]string{
		constants.TaskStatusPending:   "agentforge resume",
		constants.TaskStatusStopped:   "agentforge resume",
		constants.TaskStatusEscalated: "agentforge show",
		constants.TaskStatusFailed:    "agentforge show",
	}
	return actions[status]
}

// RenderStatus renders a status with its icon and semantic color.
func RenderStatus(status constants.TaskStatus) string {
	style := lipgloss.NewStyle().Foreground(TaskStatusColors()[status])
	return TaskStatusIcon(status) + " " + style.Render(string(status))
}
