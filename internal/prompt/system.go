package prompt

import (
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
)

// responseFormat closes every directive. The fenced block matches what
// the action parser looks for first.
const responseFormat = "Respond with exactly one action:\n\n" +
	"```action\n" +
	"action: <name>\n" +
	"parameters:\n" +
	"  <param>: <value>\n" +
	"reasoning: <one line>\n" +
	"```"

// systemPreamble opens every generic system prompt.
const systemPreamble = `You are an autonomous code-modification agent working on a {{ .TaskType }} task.

Goal: {{ .Goal }}

Rules:
- Respond with exactly one action per turn.
- Work in small, verifiable steps.
- Never invent file content you have not read.
- Your memory between steps is limited to the context shown; record what you learn.`

// Generic per-phase system prompt sources.
const (
	genericInitSystem = systemPreamble + `

You are in the {{ .Phase }} phase. Orient yourself: load the context you
need to understand what this task is about.`

	genericAnalyzeSystem = systemPreamble + `

You are in the {{ .Phase }} phase. Gather evidence about the target code.
Read the relevant source and establish why the change is needed before
modifying anything.`

	genericPlanSystem = systemPreamble + `

You are in the {{ .Phase }} phase. Commit to a single concrete approach
with plan_fix before touching any file.`

	genericImplementSystem = systemPreamble + `

You are in the {{ .Phase }} phase. Apply the planned change as the
smallest modification that can work. Modifications that break the test
suite are reverted automatically.`

	genericVerifySystem = systemPreamble + `

You are in the {{ .Phase }} phase. Confirm the modification by running
the checks and the tests. Declare complete only when verification passes.`

	genericTerminalSystem = systemPreamble + `

This task has ended in the {{ .Phase }} phase. No further actions are
expected.`
)

// Fix-workflow system prompt overrides.
const (
	fixImplementSystem = systemPreamble + `

You are in the {{ .Phase }} phase of a conformance fix. Prefer the
semantic refactoring tools (extract_function, simplify_conditional) over
raw text edits: they preserve behavior and keep the diff reviewable.
Modifications that break the test suite are reverted automatically.`

	fixVerifySystem = systemPreamble + `

You are in the {{ .Phase }} phase of a conformance fix. Run the failing
check first, then the tests. A passing check with broken tests is not
done.`
)

// Generic per-phase directives.
const (
	genericInitDirective      = "Decide what context you need and load it."
	genericAnalyzeDirective   = "Investigate the target code. Move on once you understand what has to change."
	genericPlanDirective      = "Record one concrete approach with plan_fix."
	genericImplementDirective = "Apply the planned change."
	genericVerifyDirective    = "Run verification. Use complete only when it passes."
	genericTerminalDirective  = "The task is finished. No action is required."
)

// Fix-workflow directive overrides.
const (
	fixAnalyzeDirective = "Identify why the check fails on the target. Read the source shown, " +
		"confirm the violation location, and record what you learn."
	fixPlanDirective = "Choose one approach that resolves the violation without changing behavior, " +
		"then record it with plan_fix."
	fixImplementDirective = "Apply the smallest modification that resolves the violation. " +
		"Prefer extract_function or simplify_conditional when candidates are listed."
	fixVerifyDirective = "Run the check for this task, then the tests. " +
		"Use complete only when both pass; otherwise keep fixing or escalate."
)

// genericSystemSource returns the default system prompt source for a phase.
func genericSystemSource(p constants.Phase) string {
	switch p {
	case constants.PhaseInit:
		return genericInitSystem
	case constants.PhaseAnalyze:
		return genericAnalyzeSystem
	case constants.PhasePlan:
		return genericPlanSystem
	case constants.PhaseImplement:
		return genericImplementSystem
	case constants.PhaseVerify:
		return genericVerifySystem
	default:
		return genericTerminalSystem
	}
}

// genericDirective returns the default directive for a phase.
func genericDirective(p constants.Phase) string {
	switch p {
	case constants.PhaseInit:
		return genericInitDirective
	case constants.PhaseAnalyze:
		return genericAnalyzeDirective
	case constants.PhasePlan:
		return genericPlanDirective
	case constants.PhaseImplement:
		return genericImplementDirective
	case constants.PhaseVerify:
		return genericVerifyDirective
	default:
		return genericTerminalDirective
	}
}

// actionCatalog describes every action the engine ships. Menus are
// composed from it per phase.
//
//nolint:gochecknoglobals // Read-only lookup table
var actionCatalog = map[string]ActionSpec{
	constants.ActionReadFile: {
		Name:        constants.ActionReadFile,
		Usage:       "read_file(path)",
		Description: "Read a file and load its content into working memory.",
	},
	constants.ActionWriteFile: {
		Name:        constants.ActionWriteFile,
		Usage:       "write_file(path, content)",
		Description: "Create or overwrite a file with the given content.",
	},
	constants.ActionEditFile: {
		Name:        constants.ActionEditFile,
		Usage:       "edit_file(path, old_text, new_text)",
		Description: "Replace one occurrence of old_text with new_text.",
	},
	constants.ActionReplaceLines: {
		Name:        constants.ActionReplaceLines,
		Usage:       "replace_lines(file_path, start_line, end_line, new_content)",
		Description: "Replace an inclusive 1-based line range with new content.",
	},
	constants.ActionInsertLines: {
		Name:        constants.ActionInsertLines,
		Usage:       "insert_lines(file_path, line_number, new_content)",
		Description: "Insert content before the given 1-based line number.",
	},
	constants.ActionExtractFunction: {
		Name:        constants.ActionExtractFunction,
		Usage:       "extract_function(file_path, source_function, start_line, end_line, new_function_name)",
		Description: "Move a line range out of source_function into a new function and call it.",
	},
	constants.ActionSimplifyConditional: {
		Name:        constants.ActionSimplifyConditional,
		Usage:       "simplify_conditional(file_path, function_name, if_line)",
		Description: "Flatten the nested conditional at if_line with early returns.",
	},
	constants.ActionRunCheck: {
		Name:        constants.ActionRunCheck,
		Usage:       "run_check(file_path?, check_id?)",
		Description: "Run the conformance check; defaults to the task's file and check.",
	},
	constants.ActionRunTests: {
		Name:        constants.ActionRunTests,
		Usage:       "run_tests(path?)",
		Description: "Run the test suite; defaults to the project root.",
	},
	constants.ActionLoadContext: {
		Name:        constants.ActionLoadContext,
		Usage:       "load_context(item)",
		Description: "Load a precomputed context item or a file path into working memory.",
	},
	constants.ActionPlanFix: {
		Name:        constants.ActionPlanFix,
		Usage:       "plan_fix(diagnosis, approach)",
		Description: "Record the diagnosis and the chosen approach.",
	},
	constants.ActionComplete: {
		Name:        constants.ActionComplete,
		Usage:       "complete(summary?)",
		Description: "Declare the task done. Succeeds only when verification passes.",
	},
	constants.ActionEscalate: {
		Name:        constants.ActionEscalate,
		Usage:       "escalate(reason)",
		Description: "Hand the task to a human with the stated reason.",
	},
	constants.ActionCannotFix: {
		Name:        constants.ActionCannotFix,
		Usage:       "cannot_fix(reason)",
		Description: "Declare the task unfixable with the stated reason.",
	},
}

// menuOf composes a menu from catalog entries, skipping unknown names.
func menuOf(names ...string) []ActionSpec {
	menu := make([]ActionSpec, 0, len(names))
	for _, name := range names {
		if spec, ok := actionCatalog[name]; ok {
			menu = append(menu, spec)
		}
	}
	return menu
}

// genericMenu returns the default action menu for a phase. Terminal
// phases have no menu.
func genericMenu(p constants.Phase) []ActionSpec {
	switch p {
	case constants.PhaseInit:
		return menuOf(
			constants.ActionReadFile,
			constants.ActionLoadContext,
			constants.ActionRunCheck,
			constants.ActionEscalate,
		)
	case constants.PhaseAnalyze:
		return menuOf(
			constants.ActionReadFile,
			constants.ActionLoadContext,
			constants.ActionRunCheck,
			constants.ActionRunTests,
			constants.ActionEscalate,
			constants.ActionCannotFix,
		)
	case constants.PhasePlan:
		return menuOf(
			constants.ActionPlanFix,
			constants.ActionReadFile,
			constants.ActionLoadContext,
			constants.ActionEscalate,
			constants.ActionCannotFix,
		)
	case constants.PhaseImplement:
		return menuOf(
			constants.ActionExtractFunction,
			constants.ActionSimplifyConditional,
			constants.ActionEditFile,
			constants.ActionReplaceLines,
			constants.ActionInsertLines,
			constants.ActionWriteFile,
			constants.ActionReadFile,
			constants.ActionRunCheck,
			constants.ActionRunTests,
			constants.ActionEscalate,
			constants.ActionCannotFix,
		)
	case constants.PhaseVerify:
		return menuOf(
			constants.ActionRunCheck,
			constants.ActionRunTests,
			constants.ActionReadFile,
			constants.ActionComplete,
			constants.ActionEscalate,
			constants.ActionCannotFix,
		)
	default:
		return nil
	}
}
