package prompt

import (
	"fmt"
	"strings"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/llm"
)

// charsPerToken is the coarse character-to-token ratio used when a
// truncation has to fall back to cutting characters instead of lines.
const charsPerToken = 4

// compactionStep is one tier of the progressive compactor. Steps apply
// in order; each returns whether it changed anything.
type compactionStep struct {
	desc  string
	apply func(sections []section, counter llm.TokenCounter) ([]section, bool)
}

// compactionSteps is the priority-ordered compaction table. The runner
// re-estimates after every applied step and stops as soon as the prompt
// fits the budget, so later tiers only run when the earlier ones were
// not enough.
//
//nolint:gochecknoglobals // Fixed priority table
var compactionSteps = []compactionStep{
	{
		desc:  "truncate target_source",
		apply: truncateStep(constants.SectionTargetSource, constants.TargetSourceTokenCap),
	},
	{
		desc:  "keep first similar_fixes",
		apply: keepEntriesStep(constants.SectionSimilarFixes, constants.SimilarEntriesKeep),
	},
	{
		desc:  "keep first similar_implementations",
		apply: keepEntriesStep(constants.SectionSimilarImplementations, constants.SimilarEntriesKeep),
	},
	{
		desc:  "cap understanding facts",
		apply: keepLinesStep(sectionUnderstanding, constants.PromptFactCap),
	},
	{
		desc:  "truncate action_hints",
		apply: truncateStep(constants.SectionActionHints, constants.ActionHintsTokenCap),
	},
	{
		desc: "truncate related_patterns and file_overview",
		apply: func(sections []section, counter llm.TokenCounter) ([]section, bool) {
			out, changedPatterns := mutateSection(sections, constants.SectionRelatedPatterns, func(content string) string {
				return truncateMiddle(content, constants.AuxSectionTokenCap, counter)
			})
			out, changedOverview := mutateSection(out, constants.SectionFileOverview, func(content string) string {
				return truncateMiddle(content, constants.AuxSectionTokenCap, counter)
			})
			return out, changedPatterns || changedOverview
		},
	},
	{
		desc:  "keep most recent action",
		apply: keepLinesTailStep(sectionRecent, 1),
	},
	{
		desc:  "remove additional",
		apply: removeStep(constants.SectionAdditional),
	},
	{
		desc:  "remove related_code",
		apply: removeStep(constants.SectionRelatedCode),
	},
}

// compact applies the priority steps until the estimate fits the budget
// or the table is exhausted. It returns the surviving sections, the
// final estimate, and the descriptions of the steps applied.
func (b *Builder) compact(systemTokens int, sections []section) ([]section, int, []string) {
	var applied []string
	estimate := systemTokens + b.counter.Count(renderSections(sections))
	for _, step := range compactionSteps {
		if estimate <= b.maxTokens {
			break
		}
		next, changed := step.apply(sections, b.counter)
		if !changed {
			continue
		}
		sections = next
		applied = append(applied, step.desc)
		estimate = systemTokens + b.counter.Count(renderSections(sections))
	}
	return sections, estimate, applied
}

// mutateSection applies fn to the named section's content, returning a
// new slice when the content changed. Preserved sections are never touched.
func mutateSection(sections []section, name string, fn func(string) string) ([]section, bool) {
	if preserved(name) {
		return sections, false
	}
	for i, sec := range sections {
		if sec.name != name {
			continue
		}
		next := fn(sec.content)
		if next == sec.content {
			return sections, false
		}
		out := make([]section, len(sections))
		copy(out, sections)
		out[i].content = next
		return out, true
	}
	return sections, false
}

// truncateStep caps the named section at maxTokens via middle truncation.
func truncateStep(name string, maxTokens int) func([]section, llm.TokenCounter) ([]section, bool) {
	return func(sections []section, counter llm.TokenCounter) ([]section, bool) {
		return mutateSection(sections, name, func(content string) string {
			return truncateMiddle(content, maxTokens, counter)
		})
	}
}

// keepEntriesStep keeps the first n blank-line-delimited entries of the
// named section.
func keepEntriesStep(name string, n int) func([]section, llm.TokenCounter) ([]section, bool) {
	return func(sections []section, _ llm.TokenCounter) ([]section, bool) {
		return mutateSection(sections, name, func(content string) string {
			return keepFirstEntries(content, n)
		})
	}
}

// keepLinesStep keeps the first n lines of the named section.
func keepLinesStep(name string, n int) func([]section, llm.TokenCounter) ([]section, bool) {
	return func(sections []section, _ llm.TokenCounter) ([]section, bool) {
		return mutateSection(sections, name, func(content string) string {
			return keepFirstLines(content, n)
		})
	}
}

// keepLinesTailStep keeps the last n lines of the named section.
func keepLinesTailStep(name string, n int) func([]section, llm.TokenCounter) ([]section, bool) {
	return func(sections []section, _ llm.TokenCounter) ([]section, bool) {
		return mutateSection(sections, name, func(content string) string {
			return keepLastLines(content, n)
		})
	}
}

// removeStep drops the named section entirely.
func removeStep(name string) func([]section, llm.TokenCounter) ([]section, bool) {
	return func(sections []section, _ llm.TokenCounter) ([]section, bool) {
		if preserved(name) {
			return sections, false
		}
		for i, sec := range sections {
			if sec.name == name {
				out := make([]section, 0, len(sections)-1)
				out = append(out, sections[:i]...)
				out = append(out, sections[i+1:]...)
				return out, true
			}
		}
		return sections, false
	}
}

// truncateMiddle cuts lines out of the middle of content until it fits
// maxTokens, keeping the head and tail around an omission marker. Content
// that cannot be trimmed by whole lines falls back to a character cut.
func truncateMiddle(content string, maxTokens int, counter llm.TokenCounter) string {
	if counter.Count(content) <= maxTokens {
		return content
	}

	lines := strings.Split(content, "\n")
	for keep := len(lines) - 1; keep >= 2; keep = keep * 3 / 4 {
		head := (keep + 1) / 2
		tail := keep / 2
		candidate := joinWithGap(lines, head, tail)
		if counter.Count(candidate) <= maxTokens {
			return candidate
		}
	}

	// One or two oversized lines: cut characters instead. The 90% factor
	// leaves room for the marker.
	limit := maxTokens * charsPerToken * 9 / 20
	if limit < 1 {
		limit = 1
	}
	if len(content) <= 2*limit {
		return content
	}
	return content[:limit] + "\n... (truncated) ...\n" + content[len(content)-limit:]
}

// joinWithGap joins the first head and last tail lines around a marker
// noting how many lines were omitted.
func joinWithGap(lines []string, head, tail int) string {
	omitted := len(lines) - head - tail
	noun := "lines"
	if omitted == 1 {
		noun = "line"
	}
	parts := make([]string, 0, head+tail+1)
	parts = append(parts, lines[:head]...)
	parts = append(parts, fmt.Sprintf("... (%d %s omitted) ...", omitted, noun))
	parts = append(parts, lines[len(lines)-tail:]...)
	return strings.Join(parts, "\n")
}

// keepFirstEntries keeps the first n blank-line-delimited entries and
// notes how many were dropped.
func keepFirstEntries(content string, n int) string {
	entries := splitEntries(content)
	if len(entries) <= n {
		return content
	}
	kept := make([]string, 0, n+1)
	kept = append(kept, entries[:n]...)
	kept = append(kept, fmt.Sprintf("... (%d more omitted)", len(entries)-n))
	return strings.Join(kept, "\n\n")
}

// splitEntries splits content into blank-line-delimited entries.
func splitEntries(content string) []string {
	parts := strings.Split(content, "\n\n")
	entries := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			entries = append(entries, trimmed)
		}
	}
	return entries
}

// keepFirstLines keeps the first n lines and notes how many were dropped.
func keepFirstLines(content string, n int) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) <= n {
		return content
	}
	kept := make([]string, 0, n+1)
	kept = append(kept, lines[:n]...)
	kept = append(kept, fmt.Sprintf("... (%d more omitted)", len(lines)-n))
	return strings.Join(kept, "\n")
}

// keepLastLines keeps the last n lines.
func keepLastLines(content string, n int) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) <= n {
		return content
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
