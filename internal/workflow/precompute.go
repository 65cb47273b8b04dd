package workflow

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/tools"
)

// minCandidateLines is the smallest block worth proposing for extraction.
const minCandidateLines = 4

// maxCandidates bounds the extraction_candidates section.
const maxCandidates = 3

// controlFlowRegex matches statements that cannot cross an extraction
// boundary.
var controlFlowRegex = regexp.MustCompile(`^[ \t]*(return|break|continue)\b`)

// precomputedSections builds the tier-2 analysis blocks the fix template
// renders. Sections with nothing to say are omitted; the prompt builder
// skips absent names.
func precomputedSections(v Violation, content string) map[string]any {
	sections := make(map[string]any)
	sections[constants.SectionCheckDefinition] = checkDefinition(v)
	sections[constants.SectionFileOverview] = fileOverview(v.File, content)

	if span, ok := tools.FunctionAt(content, v.Line); ok {
		sections[constants.SectionTargetSource] = fmt.Sprintf("File: %s, function %s (lines %d-%d)\n%s",
			v.File, span.Name, span.Start, span.End, tools.NumberedListing(content, span.Start, span.End))
		if candidates := extractionCandidates(content, span); len(candidates) > 0 {
			sections[constants.SectionExtractionCandidates] = strings.Join(candidates, "\n")
		}
	} else {
		start, end := windowAround(v.Line, len(sourceLines(content)))
		sections[constants.SectionTargetSource] = fmt.Sprintf("File: %s (lines %d-%d)\n%s",
			v.File, start, end, tools.NumberedListing(content, start, end))
	}

	if hint := actionHint(v.CheckID); hint != "" {
		sections[constants.SectionActionHints] = hint
	}
	return sections
}

// checkDefinition phrases the violation for the check_definition block.
func checkDefinition(v Violation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Check: %s", v.CheckID)
	if v.Description != "" {
		fmt.Fprintf(&b, "\n%s", v.Description)
	}
	if v.Line > 0 {
		fmt.Fprintf(&b, "\nReported at %s line %d", v.File, v.Line)
	} else {
		fmt.Fprintf(&b, "\nReported in %s", v.File)
	}
	return b.String()
}

// fileOverview summarizes the file's layout: every function with its
// line range.
func fileOverview(file, content string) string {
	total := len(sourceLines(content))
	spans := tools.Functions(content)
	if len(spans) == 0 {
		return fmt.Sprintf("%s: %d lines, no function definitions", file, total)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d lines, %d functions", file, total, len(spans))
	for _, span := range spans {
		fmt.Fprintf(&b, "\n  %s (lines %d-%d, %d lines)", span.Name, span.Start, span.End, span.End-span.Start+1)
	}
	return b.String()
}

// extractionCandidates proposes nested blocks inside the function that
// extract_function could move out cleanly: an introducer statement plus
// its deeper-indented body, free of control flow. Longest first; the
// first line doubles as the action menu hint.
func extractionCandidates(content string, span tools.FunctionSpan) []string {
	lines := sourceLines(content)
	if span.End > len(lines) {
		return nil
	}

	// The def line is span.Start; body statements sit at the minimum
	// indent of the lines after it.
	bodyIndent := -1
	for i := span.Start; i < span.End; i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if w := indentOf(line); bodyIndent < 0 || w < bodyIndent {
			bodyIndent = w
		}
	}
	if bodyIndent < 0 {
		return nil
	}

	type candidate struct {
		start, end int
		label      string
	}
	var picked []candidate
	for i := span.Start; i < span.End; i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" || indentOf(line) != bodyIndent {
			continue
		}

		end := i
		for j := i + 1; j < span.End; j++ {
			if strings.TrimSpace(lines[j]) == "" {
				continue
			}
			if indentOf(lines[j]) <= bodyIndent {
				break
			}
			end = j
		}
		if end == i {
			continue
		}

		start := i
		i = end
		if end-start+1 < minCandidateLines {
			continue
		}
		label := blockLabel(line)
		if label == "" {
			continue
		}
		clean := true
		for k := start; k <= end; k++ {
			if controlFlowRegex.MatchString(lines[k]) {
				clean = false
				break
			}
		}
		if !clean {
			continue
		}
		picked = append(picked, candidate{start: start + 1, end: end + 1, label: label})
	}

	sort.SliceStable(picked, func(i, j int) bool {
		li := picked[i].end - picked[i].start
		lj := picked[j].end - picked[j].start
		if li != lj {
			return li > lj
		}
		return picked[i].start < picked[j].start
	})
	if len(picked) > maxCandidates {
		picked = picked[:maxCandidates]
	}

	out := make([]string, 0, len(picked))
	for _, c := range picked {
		out = append(out, fmt.Sprintf("lines %d-%d of %s: %s (%d lines)",
			c.start, c.end, span.Name, c.label, c.end-c.start+1))
	}
	return out
}

// blockLabel names a candidate by its introducing statement. Empty
// means the block cannot be extracted on its own (branch continuations,
// try halves, nested definitions, multi-line expressions).
func blockLabel(introducer string) string {
	s := strings.TrimSpace(introducer)
	switch {
	case strings.HasPrefix(s, "if "):
		return "nested conditional"
	case strings.HasPrefix(s, "for ") || strings.HasPrefix(s, "while "):
		return "loop body"
	case strings.HasPrefix(s, "with "):
		return "guarded block"
	default:
		return ""
	}
}

// actionHint maps well-known check families to a preferred first move.
func actionHint(checkID string) string {
	id := strings.ToLower(checkID)
	switch {
	case strings.Contains(id, "long") || strings.Contains(id, "length") || strings.Contains(id, "complex"):
		return "Prefer extract_function over line edits for size and complexity checks."
	case strings.Contains(id, "nest") || strings.Contains(id, "conditional"):
		return "Prefer simplify_conditional to flatten nested branches before editing lines."
	default:
		return ""
	}
}

// windowAround clamps a viewing window around the reported line for
// files where no enclosing function exists.
func windowAround(line, total int) (start, end int) {
	const radius = 20
	if line < 1 {
		line = 1
	}
	start = line - radius
	if start < 1 {
		start = 1
	}
	end = line + radius
	if end > total {
		end = total
	}
	if end < start {
		end = start
	}
	return start, end
}

// sourceLines splits content into lines, dropping the trailing empty
// element a final newline produces.
func sourceLines(content string) []string {
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// indentOf counts leading spaces and tabs.
func indentOf(line string) int {
	for i, r := range line {
		if r != ' ' && r != '\t' {
			return i
		}
	}
	return len(line)
}
