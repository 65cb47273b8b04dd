// Package loopdetect recognizes non-progressive action patterns in the
// executor's recent history: the same failing action repeated, two
// actions alternating, different actions dying on one error, or a long
// stretch of pure inspection. Detections carry suggestions the prompt
// can surface to steer the next attempt.
package loopdetect

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

// Config holds the detection thresholds. Zero values take the defaults.
type Config struct {
	// IdenticalThreshold is the repeat count for IDENTICAL_ACTION.
	IdenticalThreshold int

	// CycleThreshold is the A-B-A occurrence count for ERROR_CYCLE.
	CycleThreshold int

	// SemanticThreshold is the window size for SEMANTIC_LOOP.
	SemanticThreshold int

	// NoProgressThreshold is the window size for NO_PROGRESS.
	NoProgressThreshold int
}

// withDefaults fills zero fields from the package defaults.
func (c Config) withDefaults() Config {
	if c.IdenticalThreshold <= 0 {
		c.IdenticalThreshold = constants.DefaultIdenticalThreshold
	}
	if c.CycleThreshold <= 0 {
		c.CycleThreshold = constants.DefaultCycleThreshold
	}
	if c.SemanticThreshold <= 0 {
		c.SemanticThreshold = constants.DefaultSemanticThreshold
	}
	if c.NoProgressThreshold <= 0 {
		c.NoProgressThreshold = constants.DefaultNoProgressThreshold
	}
	return c
}

// Detector checks recent actions for loop patterns.
type Detector struct {
	cfg    Config
	logger zerolog.Logger
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config, logger zerolog.Logger) *Detector {
	return &Detector{cfg: cfg.withDefaults(), logger: logger}
}

// Check runs the detections in order of diagnostic strength and returns
// the first that fires. The actions must be chronological; facts are the
// task's active facts and may be nil.
func (d *Detector) Check(recent []domain.ActionRecord, facts []domain.Fact) domain.LoopDetection {
	checks := []func([]domain.ActionRecord, []domain.Fact) *domain.LoopDetection{
		d.checkIdenticalAction,
		d.checkErrorCycle,
		d.checkSemanticLoop,
		d.checkNoProgress,
	}

	for _, check := range checks {
		if detection := check(recent, facts); detection != nil {
			d.logger.Debug().
				Str("type", detection.Type.String()).
				Float64("confidence", detection.Confidence).
				Str("description", detection.Description).
				Msg("loop detected")
			return *detection
		}
	}

	return domain.LoopDetection{Detected: false}
}

// checkIdenticalAction fires when the last N actions are the same failing
// action with identical parameters, or identical error text.
func (d *Detector) checkIdenticalAction(recent []domain.ActionRecord, _ []domain.Fact) *domain.LoopDetection {
	n := d.cfg.IdenticalThreshold
	if len(recent) < n {
		return nil
	}
	window := recent[len(recent)-n:]

	first := window[0]
	sameParams := true
	sameError := first.Error != ""
	for _, rec := range window {
		if rec.ActionName != first.ActionName || rec.Result != constants.ActionResultFailure {
			return nil
		}
		if !paramsEqual(rec.Parameters, first.Parameters) {
			sameParams = false
		}
		if rec.Error != first.Error {
			sameError = false
		}
	}
	if !sameParams && !sameError {
		return nil
	}

	return &domain.LoopDetection{
		Detected:    true,
		Type:        constants.LoopIdenticalAction,
		Confidence:  1.0,
		Description: fmt.Sprintf("Action '%s' failed identically %d times in a row", first.ActionName, n),
		Suggestions: suggestionsFor(first.ActionName, errorCategory(first.Error)),
		Evidence:    evidence(window),
	}
}

// checkErrorCycle fires on an A-B-A alternation among recent failures.
func (d *Detector) checkErrorCycle(recent []domain.ActionRecord, _ []domain.Fact) *domain.LoopDetection {
	failures := make([]domain.ActionRecord, 0, len(recent))
	for _, rec := range recent {
		if rec.Result == constants.ActionResultFailure {
			failures = append(failures, rec)
		}
	}
	if len(failures) < 3 {
		return nil
	}

	types := make([]string, len(failures))
	for i, rec := range failures {
		types[i] = actionType(rec.ActionName)
	}

	cycles := 0
	for i := 0; i+2 < len(types); i++ {
		if types[i] == types[i+2] && types[i] != types[i+1] {
			cycles++
		}
	}
	if cycles < d.cfg.CycleThreshold {
		return nil
	}

	last := failures[len(failures)-1]
	prev := failures[len(failures)-2]
	return &domain.LoopDetection{
		Detected:   true,
		Type:       constants.LoopErrorCycle,
		Confidence: 0.9,
		Description: fmt.Sprintf("Failures alternate between %s and %s actions without progress",
			actionType(prev.ActionName), actionType(last.ActionName)),
		Suggestions: suggestionsFor(last.ActionName, errorCategory(last.Error)),
		Evidence:    evidence(failures),
	}
}

// checkSemanticLoop fires when varied actions keep dying on one error
// class, or the same error fact keeps being extracted.
func (d *Detector) checkSemanticLoop(recent []domain.ActionRecord, facts []domain.Fact) *domain.LoopDetection {
	n := d.cfg.SemanticThreshold
	if len(recent) >= n {
		window := recent[len(recent)-n:]

		types := make(map[string]bool, n)
		category := ""
		uniform := true
		for i, rec := range window {
			if rec.Result != constants.ActionResultFailure {
				uniform = false
				break
			}
			types[actionType(rec.ActionName)] = true
			cat := errorCategory(rec.Error)
			if i == 0 {
				category = cat
			} else if cat != category {
				uniform = false
				break
			}
		}
		if uniform && len(types) >= 2 && category != "" {
			last := window[len(window)-1]
			return &domain.LoopDetection{
				Detected:   true,
				Type:       constants.LoopSemantic,
				Confidence: 0.85,
				Description: fmt.Sprintf("Different actions keep failing with the same error class: %s",
					category),
				Suggestions: suggestionsFor(last.ActionName, category),
				Evidence:    evidence(window),
			}
		}
	}

	if statements, ok := repeatedFactStatements(facts, constants.FactError); ok {
		return &domain.LoopDetection{
			Detected:    true,
			Type:        constants.LoopSemantic,
			Confidence:  0.8,
			Description: "The same error keeps being observed: " + statements[0],
			Suggestions: []string{
				"The current approach repeatedly produces this error; try a structurally different fix",
				"Escalate if the error is outside the task's control",
			},
			Evidence: statements,
		}
	}

	return nil
}

// checkNoProgress fires on a long run of purely non-mutating actions, or
// a verification result that refuses to change.
func (d *Detector) checkNoProgress(recent []domain.ActionRecord, facts []domain.Fact) *domain.LoopDetection {
	n := d.cfg.NoProgressThreshold
	if len(recent) >= n {
		window := recent[len(recent)-n:]
		allNonMutating := true
		for _, rec := range window {
			if !nonMutatingActions[rec.ActionName] {
				allNonMutating = false
				break
			}
		}
		if allNonMutating {
			return &domain.LoopDetection{
				Detected:    true,
				Type:        constants.LoopNoProgress,
				Confidence:  0.75,
				Description: fmt.Sprintf("%d consecutive actions only inspected; nothing was modified", n),
				Suggestions: []string{
					"Enough context is loaded; make the edit now",
					"If the fix is unclear, record a plan with plan_fix before editing",
				},
				Evidence: evidence(window),
			}
		}
	}

	if statements, ok := repeatedFactStatements(facts, constants.FactVerification); ok {
		return &domain.LoopDetection{
			Detected:    true,
			Type:        constants.LoopNoProgress,
			Confidence:  0.7,
			Description: "Verification keeps reporting the same result: " + statements[0],
			Suggestions: []string{
				"Re-running checks will not change the outcome; modify the code first",
			},
			Evidence: statements,
		}
	}

	return nil
}

// repeatedFactStatements reports whether the last three facts of a
// category carry identical statements.
func repeatedFactStatements(facts []domain.Fact, category constants.FactCategory) ([]string, bool) {
	matching := make([]domain.Fact, 0, len(facts))
	for _, fact := range facts {
		if fact.Category == category {
			matching = append(matching, fact)
		}
	}
	if len(matching) < 3 {
		return nil, false
	}

	last := matching[len(matching)-3:]
	if last[0].Statement == last[1].Statement && last[1].Statement == last[2].Statement {
		return []string{last[0].Statement, last[1].Statement, last[2].Statement}, true
	}
	return nil, false
}

// paramsEqual compares parameter maps by canonical JSON encoding.
func paramsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}

// evidence renders records as short lines for the detection payload.
func evidence(records []domain.ActionRecord) []string {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		line := fmt.Sprintf("step %d: %s -> %s", rec.Step, rec.ActionName, rec.Result)
		if rec.Error != "" {
			line += " (" + rec.Error + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

// suggestionsFor maps an action name and error class to concrete ways of
// breaking the loop.
func suggestionsFor(actionName, category string) []string {
	switch {
	case actionName == constants.ActionEditFile && category == "not found":
		return []string{
			"Use replace_lines with explicit line numbers instead of text matching",
			"Re-read the file first; its content may differ in whitespace",
		}
	case actionName == constants.ActionExtractFunction && category == "control flow":
		return []string{
			"Pick a line range that contains no return, break, or continue",
			"Simplify the conditional before extracting",
		}
	case category == "broke tests":
		return []string{
			"Read the failing test to understand the expected behavior",
			"Make a smaller change and verify before continuing",
		}
	case category == "syntax":
		return []string{
			"Re-read the modified region and fix the syntax before anything else",
		}
	case actionName == constants.ActionRunCheck || actionName == constants.ActionRunTests:
		return []string{
			"The check result will not change until the code does; edit first",
		}
	default:
		return []string{
			"Try a structurally different approach",
			"Escalate if no alternative approach exists",
		}
	}
}
