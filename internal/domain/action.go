package domain

import (
	"time"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
)

// Action is a single LLM-requested operation parsed from a response.
type Action struct {
	// Name identifies the registered executor to dispatch to.
	Name string `json:"action"`

	// Parameters holds the action's arguments. Never nil after parsing.
	Parameters map[string]any `json:"parameters"`

	// Reasoning is the LLM's optional explanation for choosing this action.
	Reasoning string `json:"reasoning,omitempty"`
}

// ActionRecord is one append-only entry in a task's action log.
// Records are never mutated or deleted once written.
//
// Example JSON representation:
//
//	{
//	    "step": 3,
//	    "action_name": "edit_file",
//	    "target": "src/m.py",
//	    "parameters": {"path": "src/m.py", "old_text": "X", "new_text": "Y"},
//	    "result": "FAILURE",
//	    "summary": "old_text not found",
//	    "timestamp": "2026-08-25T10:04:12Z",
//	    "duration_ms": 18,
//	    "error": "old_text not found"
//	}
type ActionRecord struct {
	// Step is the step number at which this action ran.
	Step int `json:"step"`

	// ActionName is the dispatched action's name.
	ActionName string `json:"action_name"`

	// Target is the file path the action operated on, when applicable.
	Target string `json:"target,omitempty"`

	// Parameters holds the action's arguments as dispatched.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Result is the recorded outcome.
	Result constants.ActionResult `json:"result"`

	// Summary is a short human-readable outcome description, at most 200 chars.
	Summary string `json:"summary"`

	// Timestamp is when the action completed.
	Timestamp time.Time `json:"timestamp"`

	// DurationMs is how long the action took, when measured.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// Error holds the failure detail when Result is FAILURE.
	Error string `json:"error,omitempty"`
}

// TruncateSummary enforces the summary length bound in place.
func (r *ActionRecord) TruncateSummary() {
	if len(r.Summary) > constants.ActionSummaryMaxLen {
		r.Summary = r.Summary[:constants.ActionSummaryMaxLen]
	}
}

// ToolResult is the structured outcome a tool executor returns to the dispatcher.
type ToolResult struct {
	// Status is success, failure, or partial.
	Status constants.ToolStatus `json:"status"`

	// Summary is a short human-readable outcome description.
	Summary string `json:"summary"`

	// Output carries the tool's full text output, when any.
	Output string `json:"output,omitempty"`

	// Error holds the failure detail when Status is failure.
	Error string `json:"error,omitempty"`

	// Fatal marks a failure the loop must not continue past.
	Fatal bool `json:"fatal,omitempty"`

	// Extras carries action-specific result data (counts, paths, hints).
	Extras map[string]any `json:"extras,omitempty"`
}

// Success reports whether the result status is success.
func (r *ToolResult) Success() bool {
	return r.Status == constants.ToolSuccess
}

// ActionResult maps the tool status onto the action log vocabulary.
func (r *ToolResult) ActionResult() constants.ActionResult {
	switch r.Status {
	case constants.ToolSuccess:
		return constants.ActionResultSuccess
	case constants.ToolPartial:
		return constants.ActionResultPartial
	case constants.ToolFailure:
		return constants.ActionResultFailure
	default:
		return constants.ActionResultFailure
	}
}

// StepOutcome is what the executor returns for a single step.
type StepOutcome struct {
	// Success reports whether the step ran to completion without an
	// executor-level error. Action-level failures still count as success.
	Success bool `json:"success"`

	// ActionName is the action the LLM chose this step.
	ActionName string `json:"action_name"`

	// Parameters holds the dispatched arguments.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Result is the action's recorded outcome.
	Result constants.ActionResult `json:"result"`

	// Summary is the action's outcome summary.
	Summary string `json:"summary"`

	// ShouldContinue reports whether the loop may take another step.
	ShouldContinue bool `json:"should_continue"`

	// TokensUsed is the prompt + response token total for this step.
	TokensUsed int `json:"tokens_used"`

	// DurationMs is the wall time of the whole step.
	DurationMs int64 `json:"duration_ms"`

	// Error holds the executor-level error when Success is false.
	Error string `json:"error,omitempty"`

	// LoopDetection carries the detection that halted the loop, if any.
	LoopDetection *LoopDetection `json:"loop_detection,omitempty"`
}

// LoopDetection describes a recognized non-progressive action pattern.
type LoopDetection struct {
	// Detected reports whether any pattern fired.
	Detected bool `json:"detected"`

	// Type classifies the pattern when Detected.
	Type constants.LoopType `json:"type,omitempty"`

	// Confidence is the detector's certainty in [0,1].
	Confidence float64 `json:"confidence"`

	// Description is a human-readable account of the pattern.
	Description string `json:"description,omitempty"`

	// Suggestions lists action-specific ways to break the loop.
	Suggestions []string `json:"suggestions,omitempty"`

	// Evidence lists the observations supporting the detection.
	Evidence []string `json:"evidence,omitempty"`
}
