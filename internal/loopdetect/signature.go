package loopdetect

import (
	"strings"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

// ActionSignature is the comparable shape of an executed action. Two
// actions with equal signatures are attempts at the same thing.
type ActionSignature struct {
	// ActionType is a coarse category: edit, extract, check, read,
	// complete, or other.
	ActionType string

	// TargetFile is the file the action touched, if any.
	TargetFile string

	// TargetEntity is the function or symbol the action named, if any.
	TargetEntity string

	// Outcome is the action's result.
	Outcome constants.ActionResult

	// ErrorCategory is the coarse error class: not found, syntax,
	// control flow, broke tests, other, or empty for no error.
	ErrorCategory string
}

// NewActionSignature derives the signature of a recorded action.
func NewActionSignature(rec domain.ActionRecord) ActionSignature {
	return ActionSignature{
		ActionType:    actionType(rec.ActionName),
		TargetFile:    rec.Target,
		TargetEntity:  targetEntity(rec.Parameters),
		Outcome:       rec.Result,
		ErrorCategory: errorCategory(rec.Error),
	}
}

// actionType buckets action names into coarse categories.
func actionType(name string) string {
	switch name {
	case constants.ActionEditFile, constants.ActionWriteFile, constants.ActionReplaceLines,
		constants.ActionInsertLines, constants.ActionSimplifyConditional:
		return "edit"
	case constants.ActionExtractFunction:
		return "extract"
	case constants.ActionRunCheck, constants.ActionRunTests:
		return "check"
	case constants.ActionReadFile, constants.ActionLoadContext:
		return "read"
	case constants.ActionComplete, constants.ActionEscalate, constants.ActionCannotFix:
		return "complete"
	default:
		return "other"
	}
}

// targetEntity pulls the named symbol out of action parameters.
func targetEntity(params map[string]any) string {
	for _, key := range []string{"function_name", "new_name", "entity"} {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// errorCategory buckets error strings by substring.
func errorCategory(errText string) string {
	if errText == "" {
		return ""
	}
	lower := strings.ToLower(errText)
	switch {
	case strings.Contains(lower, "not found"):
		return "not found"
	case strings.Contains(lower, "syntax"):
		return "syntax"
	case strings.Contains(lower, "control flow") || strings.Contains(lower, "control-flow"):
		return "control flow"
	case strings.Contains(lower, "broke tests") || strings.Contains(lower, "broke the tests"):
		return "broke tests"
	default:
		return "other"
	}
}

// nonMutatingActions never change workspace files; a long run of them is
// a stall.
//
//nolint:gochecknoglobals // Read-only lookup table
var nonMutatingActions = map[string]bool{
	constants.ActionReadFile:    true,
	constants.ActionLoadContext: true,
	constants.ActionRunCheck:    true,
	constants.ActionRunTests:    true,
}
