package constants

// Context data keys. TaskState.ContextData is free-form, but these are
// the keys the engine itself reads and writes. Workflows may add their own.
const (
	// CtxFilePath is the path of the file the task targets.
	CtxFilePath = "file_path"

	// CtxCheckID is the conformance check the task is fixing.
	CtxCheckID = "check_id"

	// CtxLineNumber is the line the violation was reported at.
	CtxLineNumber = "line_number"

	// CtxDescription is the human-readable violation description.
	CtxDescription = "description"

	// CtxPrecomputed holds the map of precomputed analysis sections
	// rendered as tier-2 prompt blocks.
	CtxPrecomputed = "precomputed"

	// CtxFilesModified is the deduplicated list of files the task changed.
	CtxFilesModified = "files_modified"

	// CtxFingerprint is the project fingerprint block shown in prompts.
	CtxFingerprint = "project_fingerprint"

	// CtxPlan is the approach recorded by plan_fix.
	CtxPlan = "plan"

	// CtxCannotFixReason is the reason recorded by cannot_fix.
	CtxCannotFixReason = "cannot_fix_reason"

	// CtxCompletionSummary is the summary recorded by complete.
	CtxCompletionSummary = "completion_summary"
)

// Precomputed section names. Each names one tier-2 prompt block; the
// compactor targets several of them by name.
const (
	// SectionTargetSource is the source of the function under modification.
	SectionTargetSource = "target_source"

	// SectionCheckDefinition describes the conformance check being fixed.
	SectionCheckDefinition = "check_definition"

	// SectionSimilarFixes lists past fixes of the same check, best first.
	SectionSimilarFixes = "similar_fixes"

	// SectionSimilarImplementations lists compliant implementations of
	// comparable functions.
	SectionSimilarImplementations = "similar_implementations"

	// SectionActionHints carries workflow-specific action guidance.
	SectionActionHints = "action_hints"

	// SectionRelatedPatterns lists recurring structures near the target.
	SectionRelatedPatterns = "related_patterns"

	// SectionFileOverview summarizes the target file's layout.
	SectionFileOverview = "file_overview"

	// SectionAdditional carries auxiliary context, dropped first when over
	// budget.
	SectionAdditional = "additional"

	// SectionRelatedCode carries surrounding code, dropped when over budget.
	SectionRelatedCode = "related_code"

	// SectionExtractionCandidates lists code regions suitable for
	// extract_function, with line ranges.
	SectionExtractionCandidates = "extraction_candidates"
)
