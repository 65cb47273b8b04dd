// Package tui renders styled terminal output for agentforge commands.
package tui

import (
	"encoding/json"
	"fmt"
	"io"
)

// Output is the rendering surface a command writes through. Text mode
// styles messages with lipgloss; JSON mode stays silent except for
// errors and explicit JSON payloads, so scripts get one parseable
// document per invocation.
type Output interface {
	// Success prints a success message.
	Success(msg string)
	// Error prints an error message.
	Error(err error)
	// Warning prints a warning message.
	Warning(msg string)
	// Info prints an informational message.
	Info(msg string)
	// JSON writes a value as indented JSON.
	JSON(v any) error
}

// TTYOutput writes styled messages for human-facing terminals.
type TTYOutput struct {
	w      io.Writer
	styles *OutputStyles
}

// NewTTYOutput creates a TTYOutput writing to w.
func NewTTYOutput(w io.Writer) *TTYOutput {
	return &TTYOutput{
		w:      w,
		styles: NewOutputStyles(),
	}
}

// Success prints a success message.
func (o *TTYOutput) Success(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Success.Render("✓ "+msg))
}

// Error prints an error message.
func (o *TTYOutput) Error(err error) {
	_, _ = fmt.Fprintln(o.w, o.styles.Error.Render("✗ "+err.Error()))
}

// Warning prints a warning message.
func (o *TTYOutput) Warning(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Warning.Render("⚠ "+msg))
}

// Info prints an informational message.
func (o *TTYOutput) Info(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Info.Render(msg))
}

// JSON writes a value as indented JSON.
func (o *TTYOutput) JSON(v any) error {
	return encodeIndented(o.w, v)
}

// JSONOutput suppresses decorative messages and emits machine-readable
// JSON only.
type JSONOutput struct {
	w io.Writer
}

// NewJSONOutput creates a JSONOutput writing to w.
func NewJSONOutput(w io.Writer) *JSONOutput {
	return &JSONOutput{w: w}
}

// Success is a no-op for JSON output.
func (o *JSONOutput) Success(_ string) {}

// Error writes the error as a one-line JSON object.
func (o *JSONOutput) Error(err error) {
	_ = json.NewEncoder(o.w).Encode(jsonErrorLine{Error: err.Error()})
}

// Warning is a no-op for JSON output.
func (o *JSONOutput) Warning(_ string) {}

// Info is a no-op for JSON output.
func (o *JSONOutput) Info(_ string) {}

// JSON writes a value as indented JSON.
func (o *JSONOutput) JSON(v any) error {
	return encodeIndented(o.w, v)
}

// jsonErrorLine is the shape of JSONOutput.Error lines.
type jsonErrorLine struct {
	Error string `json:"error"`
}

// NewOutput selects the output implementation for the given --output
// format. Anything other than "json" gets the styled terminal writer.
func NewOutput(w io.Writer, format string) Output {
	if format == "json" {
		return NewJSONOutput(w)
	}
	return NewTTYOutput(w)
}

func encodeIndented(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
