// Package understanding turns raw tool output into typed facts.
// Each tool has an ordered rule set; every rule that matches the output
// contributes one fact. Facts feed working memory and, from there, the
// prompt's known-facts section.
package understanding

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

// Rule matches one recognizable shape of tool output.
type Rule struct {
	// Name identifies the rule inside a fact's source field (tool:rule).
	Name string

	// Regex is matched against the full output. Nil when Match is set.
	Regex *regexp.Regexp

	// Match is a predicate alternative for rules that need more than a
	// regular expression (result codes, multi-token checks).
	Match func(output string, result constants.ActionResult) bool

	// Category classifies the produced fact.
	Category constants.FactCategory

	// Confidence is the produced fact's confidence.
	Confidence float64

	// Format builds the fact statement from the submatches (nil for
	// predicate rules, which receive only the output).
	Format func(matches []string, output string) string
}

// Fallback supplies facts from an LLM when rules come up short.
// It is consulted only when enabled and rules produced fewer than two facts.
type Fallback interface {
	ExtractFacts(ctx context.Context, toolName, output string) ([]domain.Fact, error)
}

// Extractor holds per-tool rule sets.
type Extractor struct {
	rules    map[string][]Rule
	fallback Fallback
	logger   zerolog.Logger
}

// NewExtractor creates an extractor with the built-in rule sets for the
// conformance checker, test runner, file editor, and function extractor.
func NewExtractor(logger zerolog.Logger) *Extractor {
	e := &Extractor{
		rules:  make(map[string][]Rule),
		logger: logger,
	}
	e.registerBuiltins()
	return e
}

// WithFallback attaches an LLM fallback and returns the extractor.
func (e *Extractor) WithFallback(fb Fallback) *Extractor {
	e.fallback = fb
	return e
}

// Register sets the rule set for a tool, replacing any existing one.
func (e *Extractor) Register(toolName string, rules []Rule) {
	e.rules[toolName] = rules
}

// Extract runs the tool's rule set over the output. Every matching rule
// emits a fact. When nothing matches, a single generic success or failure
// fact is emitted at confidence 0.7. The LLM fallback, when enabled, runs
// only if rules produced fewer than two facts.
func (e *Extractor) Extract(ctx context.Context, toolName, output string, result constants.ActionResult, step int, useLLMFallback bool) []domain.Fact {
	facts := make([]domain.Fact, 0, 2)

	for _, rule := range e.rules[toolName] {
		fact, ok := e.apply(rule, toolName, output, result, step)
		if ok {
			facts = append(facts, fact)
		}
	}

	if len(facts) == 0 {
		facts = append(facts, e.genericFact(toolName, result, step))
	}

	if useLLMFallback && e.fallback != nil && len(facts) < 2 {
		extra, err := e.fallback.ExtractFacts(ctx, toolName, output)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("tool", toolName).
				Msg("llm fact fallback failed")
		} else {
			for _, fact := range extra {
				if fact.ID == "" {
					fact.ID = NewFactID()
				}
				fact.Step = step
				facts = append(facts, fact)
			}
		}
	}

	return facts
}

// apply evaluates one rule against the output.
func (e *Extractor) apply(rule Rule, toolName, output string, result constants.ActionResult, step int) (domain.Fact, bool) {
	var statement string

	switch {
	case rule.Regex != nil:
		matches := rule.Regex.FindStringSubmatch(output)
		if matches == nil {
			return domain.Fact{}, false
		}
		statement = rule.Format(matches, output)
	case rule.Match != nil:
		if !rule.Match(output, result) {
			return domain.Fact{}, false
		}
		statement = rule.Format(nil, output)
	default:
		return domain.Fact{}, false
	}

	if statement == "" {
		return domain.Fact{}, false
	}

	return domain.Fact{
		ID:         NewFactID(),
		Category:   rule.Category,
		Statement:  statement,
		Confidence: rule.Confidence,
		Source:     toolName + ":" + rule.Name,
		Step:       step,
	}, true
}

// genericFact covers outputs no rule recognizes.
func (e *Extractor) genericFact(toolName string, result constants.ActionResult, step int) domain.Fact {
	verb := "succeeded"
	category := constants.FactInference
	if result != constants.ActionResultSuccess {
		verb = "failed"
		category = constants.FactError
	}
	return domain.Fact{
		ID:         NewFactID(),
		Category:   category,
		Statement:  fmt.Sprintf("%s %s", toolName, verb),
		Confidence: constants.GenericFactConfidence,
		Source:     toolName + ":generic",
		Step:       step,
	}
}

// NewFactID generates a unique fact ID.
// Format: fact-{uuid8} (e.g., fact-a1b2c3d4)
func NewFactID() string {
	return "fact-" + uuid.New().String()[:8]
}

// firstLine trims an output down to its first non-empty line.
func firstLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
