package constants

// TaskStatus represents the lifecycle state of a task as a whole,
// distinct from the execution phase the engine is in.
// Status values use snake_case for JSON serialization compatibility.
type TaskStatus string

// Task status constants define the valid states a task can be in.
// Every task ends in exactly one of completed, failed, escalated, or stopped.
const (
	// TaskStatusPending indicates a task is created but not yet started.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRunning indicates the executor loop is actively stepping the task.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusCompleted indicates the task reached COMPLETE with verification passing.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed indicates the task reached FAILED via a fatal result or set_error.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusEscalated indicates the LLM requested escalation or declared
	// the task unfixable.
	TaskStatusEscalated TaskStatus = "escalated"

	// TaskStatusStopped indicates the loop halted without a terminal phase:
	// budget exhaustion, loop detection, or no-progress cutoff.
	TaskStatusStopped TaskStatus = "stopped"
)

// String returns the string representation of the TaskStatus.
// This implements fmt.Stringer for convenient logging and debugging.
func (s TaskStatus) String() string {
	return string(s)
}

// Valid reports whether the status is one of the task lifecycle states.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusEscalated, TaskStatusStopped:
		return true
	default:
		return false
	}
}

// Phase represents the executor's coarse position in the canonical
// INIT → ANALYZE → PLAN → IMPLEMENT → VERIFY → COMPLETE trajectory.
// Phase values serialize uppercase; they are the on-wire vocabulary
// shared with prompts and audit snapshots.
type Phase string

// Phase constants define the guarded state machine's states.
// COMPLETE, FAILED, and ESCALATED are absorbing: once entered,
// no further steps are executed.
const (
	// PhaseInit is the initial phase of every task.
	PhaseInit Phase = "INIT"

	// PhaseAnalyze is the evidence-gathering phase.
	PhaseAnalyze Phase = "ANALYZE"

	// PhasePlan is the approach-selection phase.
	PhasePlan Phase = "PLAN"

	// PhaseImplement is the file-modification phase.
	PhaseImplement Phase = "IMPLEMENT"

	// PhaseVerify is the check-and-test phase.
	PhaseVerify Phase = "VERIFY"

	// PhaseComplete is the terminal success phase.
	PhaseComplete Phase = "COMPLETE"

	// PhaseFailed is the terminal failure phase.
	PhaseFailed Phase = "FAILED"

	// PhaseEscalated is the terminal human-handoff phase.
	PhaseEscalated Phase = "ESCALATED"
)

// String returns the string representation of the Phase.
func (p Phase) String() string {
	return string(p)
}

// terminalPhases provides O(1) lookup for absorbing phases.
//
//nolint:gochecknoglobals // Pre-built lookup for performance
var terminalPhases = map[Phase]struct{}{
	PhaseComplete:  {},
	PhaseFailed:    {},
	PhaseEscalated: {},
}

// Terminal reports whether the phase is absorbing.
func (p Phase) Terminal() bool {
	_, ok := terminalPhases[p]
	return ok
}

// Valid reports whether the phase is one of the machine's states.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInit, PhaseAnalyze, PhasePlan, PhaseImplement, PhaseVerify,
		PhaseComplete, PhaseFailed, PhaseEscalated:
		return true
	default:
		return false
	}
}

// ActionResult represents the recorded outcome of a dispatched action.
// Values serialize uppercase to match the action log vocabulary.
type ActionResult string

// Action result constants.
const (
	// ActionResultSuccess indicates the action achieved its effect.
	ActionResultSuccess ActionResult = "SUCCESS"

	// ActionResultFailure indicates the action failed or was reverted.
	ActionResultFailure ActionResult = "FAILURE"

	// ActionResultPartial indicates the action partially succeeded.
	ActionResultPartial ActionResult = "PARTIAL"

	// ActionResultSkipped indicates the action was not executed.
	ActionResultSkipped ActionResult = "SKIPPED"
)

// String returns the string representation of the ActionResult.
func (r ActionResult) String() string {
	return string(r)
}

// FactCategory classifies extracted facts. Values serialize uppercase.
type FactCategory string

// Fact category constants.
const (
	// FactCodeStructure describes the shape of the code under modification.
	FactCodeStructure FactCategory = "CODE_STRUCTURE"

	// FactInference captures reasoning conclusions.
	FactInference FactCategory = "INFERENCE"

	// FactPattern captures recognized recurring structures.
	FactPattern FactCategory = "PATTERN"

	// FactVerification captures check and test outcomes.
	FactVerification FactCategory = "VERIFICATION"

	// FactError captures failure details.
	FactError FactCategory = "ERROR"
)

// String returns the string representation of the FactCategory.
func (c FactCategory) String() string {
	return string(c)
}

// MemoryItemType classifies working memory entries.
// Values use snake_case for JSON serialization compatibility.
type MemoryItemType string

// Memory item type constants.
const (
	// MemoryItemActionResult is the recorded outcome of a recent action.
	MemoryItemActionResult MemoryItemType = "action_result"

	// MemoryItemLoadedContext is file or analysis content loaded for prompting.
	MemoryItemLoadedContext MemoryItemType = "loaded_context"

	// MemoryItemNote is a free-form annotation.
	MemoryItemNote MemoryItemType = "note"

	// MemoryItemFact is a persisted extracted fact.
	MemoryItemFact MemoryItemType = "fact"
)

// String returns the string representation of the MemoryItemType.
func (t MemoryItemType) String() string {
	return string(t)
}

// ToolStatus is the status field of a tool result.
// Values use lowercase per the tool adapter contract.
type ToolStatus string

// Tool status constants.
const (
	// ToolSuccess indicates the tool achieved its effect.
	ToolSuccess ToolStatus = "success"

	// ToolFailure indicates the tool failed.
	ToolFailure ToolStatus = "failure"

	// ToolPartial indicates the tool partially succeeded.
	ToolPartial ToolStatus = "partial"
)

// String returns the string representation of the ToolStatus.
func (s ToolStatus) String() string {
	return string(s)
}

// LoopType classifies a detected non-progressive action pattern.
// Values serialize uppercase.
type LoopType string

// Loop type constants, in detection priority order.
const (
	// LoopIdenticalAction fires on repeated identical failing actions.
	LoopIdenticalAction LoopType = "IDENTICAL_ACTION"

	// LoopErrorCycle fires on alternating A-B-A failure patterns.
	LoopErrorCycle LoopType = "ERROR_CYCLE"

	// LoopSemantic fires on varied actions failing with one error category.
	LoopSemantic LoopType = "SEMANTIC_LOOP"

	// LoopNoProgress fires on sustained non-mutating activity.
	LoopNoProgress LoopType = "NO_PROGRESS"
)

// String returns the string representation of the LoopType.
func (t LoopType) String() string {
	return string(t)
}
