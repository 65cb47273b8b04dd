// Package domain provides shared domain types for the AgentForge execution engine.
// These types are used across all internal packages to ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case per architecture requirements.
package domain

import (
	"time"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
)

// TaskSpec is the immutable descriptor of a task, written once at creation.
//
// Example JSON representation:
//
//	{
//	    "task_id": "fix-V-001",
//	    "task_type": "fix_violation",
//	    "goal": "Reduce complexity of parseConfig below 10",
//	    "success_criteria": ["run_check reports zero violations", "tests stay green"],
//	    "constraints": ["do not change public signatures"],
//	    "created_at": "2026-08-25T10:00:00Z"
//	}
type TaskSpec struct {
	// TaskID is the unique identifier for the task.
	TaskID string `json:"task_id"`

	// TaskType identifies the workflow that created this task (e.g. "fix_violation").
	TaskType string `json:"task_type"`

	// Goal is a one-sentence statement of what the task should accomplish.
	Goal string `json:"goal"`

	// SuccessCriteria is the ordered list of conditions defining done.
	SuccessCriteria []string `json:"success_criteria"`

	// Constraints is the ordered list of restrictions the LLM must respect.
	Constraints []string `json:"constraints"`

	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
}

// TaskState is the mutable execution state of a task, persisted after every step.
type TaskState struct {
	// TaskID links the state to its spec.
	TaskID string `json:"task_id"`

	// Status is the task lifecycle state (pending, running, completed, ...).
	Status constants.TaskStatus `json:"status"`

	// CurrentStep is the number of completed steps. Monotonically increasing.
	CurrentStep int `json:"current_step"`

	// Phase is the executor's position in the phase machine.
	// Always agrees with PhaseMachine.CurrentPhase after a transition.
	Phase constants.Phase `json:"phase"`

	// PhaseMachine is the serialized phase machine projection.
	PhaseMachine PhaseMachineState `json:"phase_machine_state"`

	// Verification aggregates check and test outcomes.
	Verification VerificationStatus `json:"verification"`

	// ContextData holds task-type-specific data: file_path, check_id,
	// line_number, precomputed analysis sections, modified-file list,
	// error details. Keys are free-form; well-known ones live in constants.
	ContextData map[string]any `json:"context_data"`

	// LastUpdated is when the state was last persisted.
	LastUpdated time.Time `json:"last_updated"`

	// Error holds the fatal error message when the task failed.
	Error string `json:"error,omitempty"`

	// SchemaVersion enables forward-compatible schema migrations.
	SchemaVersion string `json:"schema_version"`
}

// PhaseMachineState is the persisted projection of the phase machine.
// The transition table and per-phase configs are rebuilt by factory;
// only position and history are stored.
type PhaseMachineState struct {
	// CurrentPhase is the machine's current state.
	CurrentPhase constants.Phase `json:"current_phase"`

	// StepsInPhase counts steps taken since entering the current phase.
	StepsInPhase int `json:"steps_in_phase"`

	// PhaseHistory lists the phases entered, in order, excluding the current one.
	PhaseHistory []constants.Phase `json:"phase_history"`
}

// VerificationStatus aggregates conformance check and test outcomes.
type VerificationStatus struct {
	// ChecksPassing counts conformance checks currently passing.
	ChecksPassing int `json:"checks_passing"`

	// ChecksFailing counts conformance checks currently failing.
	ChecksFailing int `json:"checks_failing"`

	// TestsPassing reports whether the test suite last ran green.
	TestsPassing bool `json:"tests_passing"`

	// ReadyForCompletion is derived: checks_failing == 0 && tests_passing.
	// Recompute maintains the derivation.
	ReadyForCompletion bool `json:"ready_for_completion"`

	// LastCheckTime is when verification was last updated (nil if never).
	LastCheckTime *time.Time `json:"last_check_time,omitempty"`

	// Details stores free-form verification data (failing check names, counts).
	Details map[string]any `json:"details,omitempty"`
}

// Recompute re-derives ReadyForCompletion from the primary fields.
// Call after any mutation of ChecksFailing or TestsPassing.
func (v *VerificationStatus) Recompute() {
	v.ReadyForCompletion = v.ChecksFailing == 0 && v.TestsPassing
}

// FilesModified returns the modified-file list from context data.
// Returns nil when no files have been modified yet.
func (s *TaskState) FilesModified() []string {
	raw, ok := s.ContextData[constants.CtxFilesModified]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		files := make([]string, 0, len(v))
		for _, f := range v {
			if str, ok := f.(string); ok {
				files = append(files, str)
			}
		}
		return files
	default:
		return nil
	}
}

// AddModifiedFile records a file path in the modified list, deduplicated.
func (s *TaskState) AddModifiedFile(path string) {
	if path == "" {
		return
	}
	files := s.FilesModified()
	for _, f := range files {
		if f == path {
			return
		}
	}
	if s.ContextData == nil {
		s.ContextData = make(map[string]any)
	}
	s.ContextData[constants.CtxFilesModified] = append(files, path)
}

// RemoveModifiedFile drops a file path from the modified list. The test
// verification wrapper calls it when a revert restores the file, so a
// rolled-back change does not count as progress.
func (s *TaskState) RemoveModifiedFile(path string) {
	files := s.FilesModified()
	for i, f := range files {
		if f == path {
			s.ContextData[constants.CtxFilesModified] = append(files[:i], files[i+1:]...)
			return
		}
	}
}

// ContextString returns a string value from context data, empty when absent
// or not a string.
func (s *TaskState) ContextString(key string) string {
	if s.ContextData == nil {
		return ""
	}
	v, _ := s.ContextData[key].(string)
	return v
}

// Terminal reports whether the task's phase is absorbing.
func (s *TaskState) Terminal() bool {
	return s.Phase.Terminal()
}
