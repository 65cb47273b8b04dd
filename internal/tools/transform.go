package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

// indentStep is one Python indentation level.
const indentStep = 4

var (
	// controlFlowRegex finds statements that cannot leave their function.
	controlFlowRegex = regexp.MustCompile(`^[ \t]*(return|break|continue)\b`)

	// ifStmtRegex matches a plain if statement and captures indent and
	// condition. elif lines deliberately do not match.
	ifStmtRegex = regexp.MustCompile(`^([ \t]*)if[ \t]+(.+?):[ \t]*$`)
)

// TransformTools implements the mechanical Python refactoring actions:
// extract_function moves a line range into a helper, simplify_conditional
// merges a nested if into its parent. Both work line-wise on the source
// text; the verification wrappers around them handle test regression and
// syntax damage.
type TransformTools struct {
	root   string
	logger zerolog.Logger
}

// NewTransformTools creates the refactoring toolset over a workspace root.
func NewTransformTools(root string, logger zerolog.Logger) *TransformTools {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	return &TransformTools{
		root:   abs,
		logger: logger.With().Str("component", "transform_tools").Logger(),
	}
}

// ExtractFunction moves start_line..end_line out of source_function into a
// new zero-argument helper defined directly above it, leaving a call at the
// original location. The range must lie strictly inside the source
// function's body and contain no return, break, or continue.
func (t *TransformTools) ExtractFunction(_ context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	raw := stringParam(params, "file_path", "path")
	abs, err := resolvePath(t.root, raw)
	if err != nil {
		return nil, err
	}

	source := stringParam(params, "source_function")
	newName := stringParam(params, "new_function_name")
	start, startOK := intParam(params, "start_line")
	end, endOK := intParam(params, "end_line")
	if source == "" || newName == "" || !startOK || !endOK {
		return failureResult("extract_function requires source_function, new_function_name, start_line, and end_line"), nil
	}

	content, err := os.ReadFile(abs) //#nosec G304 -- path is validated against the workspace root
	if err != nil {
		return failureResult(fmt.Sprintf("Cannot read %s: %v", raw, err)), nil
	}

	lines := splitLines(string(content))
	fnStart, fnEnd, ok := FunctionRegion(string(content), source)
	if !ok {
		return failureResult(fmt.Sprintf("Function '%s' not found in %s", source, raw)), nil
	}
	if start <= fnStart || end > fnEnd || start > end {
		return failureResult(fmt.Sprintf("Lines %d-%d are outside the body of '%s' (lines %d-%d)", start, end, source, fnStart, fnEnd)), nil
	}
	if kw := crossingControlFlow(lines[start-1 : end]); kw != "" {
		return failureResult(fmt.Sprintf("Cannot extract lines %d-%d: control flow ('%s') would cross the function boundary", start, end, kw)), nil
	}

	defIndent := indentWidth(lines[fnStart-1])
	region := lines[start-1 : end]
	regionIndent := blockIndent(region)

	helper := buildHelper(newName, region, defIndent, regionIndent)
	call := strings.Repeat(" ", regionIndent) + newName + "()"

	out := make([]string, 0, len(lines)+len(helper))
	out = append(out, lines[:fnStart-1]...)
	out = append(out, helper...)
	out = append(out, lines[fnStart-1:start-1]...)
	out = append(out, call)
	out = append(out, lines[end:]...)

	if err := writeLines(abs, out); err != nil {
		return failureResult(fmt.Sprintf("Cannot write %s: %v", raw, err)), nil
	}
	state.AddModifiedFile(raw)

	moved := end - start + 1
	t.logger.Debug().
		Str("file", raw).
		Str("function", newName).
		Int("lines", moved).
		Msg("function extracted")

	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: fmt.Sprintf("Extracted '%s' from '%s' (%d lines) in %s", newName, source, moved, raw),
		Output:  strings.Join(helper, "\n"),
	}, nil
}

// SimplifyConditional merges the nested if directly under if_line into its
// parent, producing one combined condition one level shallower. The outer
// if must hold nothing but the nested if, and neither may carry an elif or
// else branch.
func (t *TransformTools) SimplifyConditional(_ context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	raw := stringParam(params, "file_path", "path")
	abs, err := resolvePath(t.root, raw)
	if err != nil {
		return nil, err
	}
	ifLine, ok := intParam(params, "if_line")
	if !ok {
		return failureResult("simplify_conditional requires if_line"), nil
	}

	content, err := os.ReadFile(abs) //#nosec G304 -- path is validated against the workspace root
	if err != nil {
		return failureResult(fmt.Sprintf("Cannot read %s: %v", raw, err)), nil
	}

	lines := splitLines(string(content))
	if ifLine < 1 || ifLine > len(lines) {
		return failureResult(fmt.Sprintf("Line %d is out of range for %s (%d lines)", ifLine, raw, len(lines))), nil
	}

	if fn := stringParam(params, "function_name"); fn != "" {
		fnStart, fnEnd, found := FunctionRegion(string(content), fn)
		if found && (ifLine <= fnStart || ifLine > fnEnd) {
			return failureResult(fmt.Sprintf("Line %d is not inside function '%s' (lines %d-%d)", ifLine, fn, fnStart, fnEnd)), nil
		}
	}

	outer := ifStmtRegex.FindStringSubmatch(lines[ifLine-1])
	if outer == nil {
		return failureResult(fmt.Sprintf("Line %d is not an if statement", ifLine)), nil
	}
	outerIndent := len(outer[1])

	innerIdx := nextCodeLine(lines, ifLine)
	if innerIdx < 0 {
		return failureResult(fmt.Sprintf("Nothing follows the if at line %d", ifLine)), nil
	}
	inner := ifStmtRegex.FindStringSubmatch(lines[innerIdx])
	if inner == nil || len(inner[1]) <= outerIndent {
		return failureResult(fmt.Sprintf("No nested if directly under line %d to merge", ifLine)), nil
	}
	innerIndent := len(inner[1])

	bodyEnd := innerIdx + 1
	for bodyEnd < len(lines) {
		line := lines[bodyEnd]
		if strings.TrimSpace(line) == "" || indentWidth(line) > innerIndent {
			bodyEnd++
			continue
		}
		break
	}

	if bodyEnd < len(lines) {
		next := strings.TrimSpace(lines[bodyEnd])
		width := indentWidth(lines[bodyEnd])
		isBranch := strings.HasPrefix(next, "else") || strings.HasPrefix(next, "elif")
		switch {
		case width == innerIndent && isBranch:
			return failureResult(fmt.Sprintf("Cannot merge: the nested if at line %d has an else branch", innerIdx+1)), nil
		case width == outerIndent && isBranch:
			return failureResult(fmt.Sprintf("Cannot merge: the if at line %d has an else branch", ifLine)), nil
		case width > outerIndent:
			return failureResult(fmt.Sprintf("Cannot merge: the if at line %d holds more than the nested if", ifLine)), nil
		}
	}

	cond1 := guardCondition(outer[2])
	cond2 := guardCondition(inner[2])
	merged := outer[1] + "if " + cond1 + " and " + cond2 + ":"
	shift := innerIndent - outerIndent

	out := make([]string, 0, len(lines)-1)
	out = append(out, lines[:ifLine-1]...)
	out = append(out, merged)
	out = append(out, lines[ifLine:innerIdx]...)
	for i := innerIdx + 1; i < bodyEnd; i++ {
		if strings.TrimSpace(lines[i]) == "" {
			out = append(out, "")
			continue
		}
		out = append(out, dedent(lines[i], shift))
	}
	out = append(out, lines[bodyEnd:]...)

	if err := writeLines(abs, out); err != nil {
		return failureResult(fmt.Sprintf("Cannot write %s: %v", raw, err)), nil
	}
	state.AddModifiedFile(raw)

	t.logger.Debug().
		Str("file", raw).
		Int("if_line", ifLine).
		Msg("nested conditional merged")

	newEnd := bodyEnd - 1
	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: fmt.Sprintf("Merged nested if at line %d into 'if %s and %s:' in %s", ifLine, cond1, cond2, raw),
		Output:  NumberedListing(strings.Join(out, "\n"), ifLine, newEnd),
	}, nil
}

// buildHelper renders the new function at the enclosing def's indent with
// the moved lines re-indented one level below it, followed by a separating
// blank line.
func buildHelper(name string, region []string, defIndent, regionIndent int) []string {
	prefix := strings.Repeat(" ", defIndent)
	bodyPrefix := prefix + strings.Repeat(" ", indentStep)

	helper := make([]string, 0, len(region)+2)
	helper = append(helper, prefix+"def "+name+"():")
	for _, line := range region {
		if strings.TrimSpace(line) == "" {
			helper = append(helper, "")
			continue
		}
		helper = append(helper, bodyPrefix+dedent(line, regionIndent))
	}
	helper = append(helper, "")
	return helper
}

// crossingControlFlow returns the first keyword in the region that would
// change meaning when moved into another function, or "".
func crossingControlFlow(region []string) string {
	for _, line := range region {
		if m := controlFlowRegex.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

// guardCondition parenthesizes a condition containing a bare or, so the
// merged and keeps its meaning.
func guardCondition(cond string) string {
	trimmed := strings.TrimSpace(cond)
	if strings.Contains(trimmed, " or ") {
		return "(" + trimmed + ")"
	}
	return trimmed
}

// blockIndent is the smallest indent among non-blank lines.
func blockIndent(lines []string) int {
	width := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if w := indentWidth(line); width < 0 || w < width {
			width = w
		}
	}
	if width < 0 {
		return 0
	}
	return width
}

// dedent strips up to width leading whitespace characters.
func dedent(line string, width int) string {
	i := 0
	for i < len(line) && i < width && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return line[i:]
}

// nextCodeLine returns the 0-based index of the first non-blank line at or
// after the 0-based position from, or -1.
func nextCodeLine(lines []string, from int) int {
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			return i
		}
	}
	return -1
}
