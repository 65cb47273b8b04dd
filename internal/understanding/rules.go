package understanding

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
)

// Compiled patterns for the built-in rule sets. Ordered by specificity
// where the same output could plausibly match more than one.
var (
	checkPassedRegex         = regexp.MustCompile(`(?i)\b(?:all checks passed|check passed|no violations found)\b`)
	complexityRegex          = regexp.MustCompile(`Function '([^']+)' has complexity (\d+)`)
	lengthRegex              = regexp.MustCompile(`Function '([^']+)' has (\d+) lines`)
	violationCountRegex      = regexp.MustCompile(`(\d+) violations? found`)
	testsPassedRegex         = regexp.MustCompile(`(\d+) passed`)
	testsFailedRegex         = regexp.MustCompile(`(\d+) failed`)
	testFailureRegex         = regexp.MustCompile(`(?m)^(?:FAILED|ERROR)[ :]+(\S+)`)
	editNotFoundRegex        = regexp.MustCompile(`(?i)(?:old_text|string|pattern|text) not found`)
	extractionSuccessRegex   = regexp.MustCompile(`(?i)extracted (?:function )?'([^']+)'`)
	controlFlowBlockedRegex  = regexp.MustCompile(`(?i)(?:control[ -]flow|cannot extract[^\n]*(?:return|break|continue))`)
	postExtractionCheckRegex = regexp.MustCompile(`(?i)(?:post[- ]extraction check passed|check passed after extraction)`)
)

// registerBuiltins installs the default rule sets.
func (e *Extractor) registerBuiltins() {
	e.Register(constants.ActionRunCheck, conformanceRules())
	e.Register(constants.ActionRunTests, testRunnerRules())
	e.Register(constants.ActionEditFile, fileEditRules())
	e.Register(constants.ActionExtractFunction, extractionRules())
}

// conformanceRules reads conformance checker output.
func conformanceRules() []Rule {
	return []Rule{
		{
			Name:       "check-passed",
			Regex:      checkPassedRegex,
			Category:   constants.FactVerification,
			Confidence: 1.0,
			Format: func(_ []string, _ string) string {
				return "Conformance check passed"
			},
		},
		{
			Name:       "complexity-violation",
			Regex:      complexityRegex,
			Category:   constants.FactVerification,
			Confidence: 1.0,
			Format: func(m []string, _ string) string {
				return fmt.Sprintf("Function '%s' has complexity %s", m[1], m[2])
			},
		},
		{
			Name:       "length-violation",
			Regex:      lengthRegex,
			Category:   constants.FactVerification,
			Confidence: 1.0,
			Format: func(m []string, _ string) string {
				return fmt.Sprintf("Function '%s' has %s lines", m[1], m[2])
			},
		},
		{
			Name:       "violation-count",
			Regex:      violationCountRegex,
			Category:   constants.FactVerification,
			Confidence: 0.9,
			Format: func(m []string, _ string) string {
				return fmt.Sprintf("%s violations found", m[1])
			},
		},
	}
}

// testRunnerRules reads test runner output.
func testRunnerRules() []Rule {
	return []Rule{
		{
			Name:       "passed-count",
			Regex:      testsPassedRegex,
			Category:   constants.FactVerification,
			Confidence: 1.0,
			Format: func(m []string, _ string) string {
				return fmt.Sprintf("%s tests passed", m[1])
			},
		},
		{
			Name:       "failed-count",
			Category:   constants.FactError,
			Confidence: 1.0,
			// A zero count is not a failure report.
			Match: func(output string, _ constants.ActionResult) bool {
				m := testsFailedRegex.FindStringSubmatch(output)
				return m != nil && m[1] != "0"
			},
			Format: func(_ []string, output string) string {
				m := testsFailedRegex.FindStringSubmatch(output)
				return fmt.Sprintf("%s tests failed", m[1])
			},
		},
		{
			Name:       "specific-failure",
			Regex:      testFailureRegex,
			Category:   constants.FactError,
			Confidence: 0.9,
			Format: func(m []string, _ string) string {
				return "Test failure: " + m[1]
			},
		},
	}
}

// fileEditRules reads file editor output.
func fileEditRules() []Rule {
	return []Rule{
		{
			Name:       "edit-not-found",
			Regex:      editNotFoundRegex,
			Category:   constants.FactError,
			Confidence: 0.9,
			Format: func(_ []string, output string) string {
				return "Edit target not found: " + firstLine(output)
			},
		},
		{
			Name:       "edit-success",
			Category:   constants.FactInference,
			Confidence: 0.9,
			Match: func(_ string, result constants.ActionResult) bool {
				return result == constants.ActionResultSuccess
			},
			Format: func(_ []string, output string) string {
				line := firstLine(output)
				if line == "" {
					return "Edit applied"
				}
				return "Edit applied: " + line
			},
		},
	}
}

// extractionRules reads function extractor output.
func extractionRules() []Rule {
	return []Rule{
		{
			Name:       "extraction-success",
			Regex:      extractionSuccessRegex,
			Category:   constants.FactCodeStructure,
			Confidence: 1.0,
			Format: func(m []string, _ string) string {
				return fmt.Sprintf("Extracted function '%s'", m[1])
			},
		},
		{
			Name:       "extraction-control-flow-blocked",
			Regex:      controlFlowBlockedRegex,
			Category:   constants.FactError,
			Confidence: 0.9,
			Format: func(_ []string, output string) string {
				line := firstLine(output)
				if strings.Contains(strings.ToLower(line), "control") || strings.Contains(strings.ToLower(line), "cannot extract") {
					return "Extraction blocked: " + line
				}
				return "Extraction blocked by control flow in the selected range"
			},
		},
		{
			Name:       "post-extraction-check-passed",
			Regex:      postExtractionCheckRegex,
			Category:   constants.FactVerification,
			Confidence: 1.0,
			Format: func(_ []string, _ string) string {
				return "Check passed after extraction"
			},
		},
	}
}
