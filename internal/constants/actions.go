// Package constants provides centralized constant values used throughout AgentForge.
// This file contains action names: the on-wire contract between the LLM and
// the tool dispatcher.
package constants

// Built-in actions the dispatcher resolves even without registration.
const (
	// ActionComplete signals the task is done; succeeds only when verification passes.
	ActionComplete = "complete"

	// ActionEscalate hands the task to a human; always succeeds.
	ActionEscalate = "escalate"

	// ActionCannotFix declares the task unfixable; always succeeds.
	ActionCannotFix = "cannot_fix"
)

// File actions operating within the task workspace.
const (
	// ActionReadFile reads a file's content.
	ActionReadFile = "read_file"

	// ActionWriteFile creates or overwrites a file.
	ActionWriteFile = "write_file"

	// ActionEditFile replaces old_text with new_text in a file.
	ActionEditFile = "edit_file"

	// ActionReplaceLines replaces a line range with new content.
	ActionReplaceLines = "replace_lines"

	// ActionInsertLines inserts content at a line number.
	ActionInsertLines = "insert_lines"

	// ActionExtractFunction extracts a line range into a new function.
	ActionExtractFunction = "extract_function"

	// ActionSimplifyConditional flattens a nested conditional.
	ActionSimplifyConditional = "simplify_conditional"
)

// Inspection and planning actions.
const (
	// ActionRunCheck runs a conformance check.
	ActionRunCheck = "run_check"

	// ActionRunTests runs the test suite.
	ActionRunTests = "run_tests"

	// ActionLoadContext loads a precomputed context item or file into working memory.
	ActionLoadContext = "load_context"

	// ActionPlanFix records a diagnosis and approach.
	ActionPlanFix = "plan_fix"
)

// ActionUnknown is the placeholder name used when no action could be parsed
// from an LLM response. It is dispatched normally so the loop detector sees
// the pattern.
const ActionUnknown = "unknown"
