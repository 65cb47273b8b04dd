package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// ContextWriter is the slice of working memory the file tools need:
// load_context stores content for prompting and plan_fix pins the plan.
type ContextWriter interface {
	LoadContext(key, content string, step, expiresAfterSteps int) error
	AddNote(key, content string, step int) error
	Pin(key string) error
}

// FileTools implements the file action set over a workspace root.
// Every path parameter is resolved against the root; paths that escape it
// are rejected before any filesystem access.
type FileTools struct {
	root   string
	memory ContextWriter
	logger zerolog.Logger
}

// NewFileTools creates the file toolset rooted at the given workspace
// directory. The memory writer backs load_context and plan_fix; it may be
// nil, in which case those two actions fail.
func NewFileTools(root string, memory ContextWriter, logger zerolog.Logger) *FileTools {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	return &FileTools{
		root:   abs,
		memory: memory,
		logger: logger.With().Str("component", "file_tools").Logger(),
	}
}

// Register installs the file executors on a dispatcher.
func (t *FileTools) Register(d *Dispatcher) {
	d.Register(constants.ActionReadFile, t.readFile)
	d.Register(constants.ActionWriteFile, t.WriteFile)
	d.Register(constants.ActionEditFile, t.EditFile)
	d.Register(constants.ActionReplaceLines, t.ReplaceLines)
	d.Register(constants.ActionInsertLines, t.InsertLines)
	d.Register(constants.ActionLoadContext, t.loadContext)
	d.Register(constants.ActionPlanFix, t.planFix)
}

// Root returns the absolute workspace root.
func (t *FileTools) Root() string {
	return t.root
}

// resolvePath joins a raw path parameter with the workspace root and rejects
// results outside it.
func resolvePath(root, raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("path parameter: %w", forgeerrors.ErrEmptyValue)
	}
	p := raw
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", forgeerrors.ErrWorkspaceEscape, raw)
	}
	return p, nil
}

func (t *FileTools) readFile(_ context.Context, _ string, params map[string]any, _ *domain.TaskState) (*domain.ToolResult, error) {
	raw := stringParam(params, "path", "file_path")
	abs, err := resolvePath(t.root, raw)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(abs) //#nosec G304 -- path is validated against the workspace root
	if err != nil {
		return failureResult(fmt.Sprintf("Cannot read %s: %v", raw, err)), nil
	}

	lines := splitLines(string(content))
	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: fmt.Sprintf("Read %s (%d lines)", raw, len(lines)),
		Output:  string(content),
		Extras:  map[string]any{"lines": len(lines)},
	}, nil
}

// WriteFile creates or replaces a file. Exported so verification wrappers
// can compose it.
func (t *FileTools) WriteFile(_ context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	raw := stringParam(params, "path", "file_path")
	abs, err := resolvePath(t.root, raw)
	if err != nil {
		return nil, err
	}
	content := stringParam(params, "content")

	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return failureResult(fmt.Sprintf("Cannot write %s: %v", raw, err)), nil
	}
	if err := os.WriteFile(abs, []byte(content), 0o600); err != nil {
		return failureResult(fmt.Sprintf("Cannot write %s: %v", raw, err)), nil
	}

	state.AddModifiedFile(raw)
	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: fmt.Sprintf("Wrote %s (%d bytes)", raw, len(content)),
	}, nil
}

// EditFile replaces the first occurrence of old_text with new_text.
func (t *FileTools) EditFile(_ context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	raw := stringParam(params, "path", "file_path")
	abs, err := resolvePath(t.root, raw)
	if err != nil {
		return nil, err
	}
	oldText := stringParam(params, "old_text")
	newText := stringParam(params, "new_text")
	if oldText == "" {
		return failureResult("edit_file requires old_text"), nil
	}

	content, err := os.ReadFile(abs) //#nosec G304 -- path is validated against the workspace root
	if err != nil {
		return failureResult(fmt.Sprintf("Cannot read %s: %v", raw, err)), nil
	}

	text := string(content)
	count := strings.Count(text, oldText)
	if count == 0 {
		return failureResult(fmt.Sprintf("old_text not found in %s", raw)), nil
	}

	updated := strings.Replace(text, oldText, newText, 1)
	if err := os.WriteFile(abs, []byte(updated), 0o600); err != nil {
		return failureResult(fmt.Sprintf("Cannot write %s: %v", raw, err)), nil
	}

	state.AddModifiedFile(raw)
	result := &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: fmt.Sprintf("Replaced 1 occurrence in %s", raw),
	}
	if count > 1 {
		result.Summary = fmt.Sprintf("Replaced 1 of %d occurrences in %s", count, raw)
		result.Extras = map[string]any{"occurrences": count}
	}
	return result, nil
}

// ReplaceLines replaces a 1-based inclusive line range; empty new_content
// deletes the range.
func (t *FileTools) ReplaceLines(_ context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	raw := stringParam(params, "file_path", "path")
	abs, err := resolvePath(t.root, raw)
	if err != nil {
		return nil, err
	}
	start, okStart := intParam(params, "start_line")
	end, okEnd := intParam(params, "end_line")
	if !okStart || !okEnd {
		return failureResult("replace_lines requires start_line and end_line"), nil
	}

	content, err := os.ReadFile(abs) //#nosec G304 -- path is validated against the workspace root
	if err != nil {
		return failureResult(fmt.Sprintf("Cannot read %s: %v", raw, err)), nil
	}

	lines := splitLines(string(content))
	if start < 1 || end < start || end > len(lines) {
		return failureResult(fmt.Sprintf("line range %d-%d out of bounds (%s has %d lines)", start, end, raw, len(lines))), nil
	}

	replacement := contentLines(stringParam(params, "new_content"))
	updated := make([]string, 0, len(lines)-(end-start+1)+len(replacement))
	updated = append(updated, lines[:start-1]...)
	updated = append(updated, replacement...)
	updated = append(updated, lines[end:]...)

	if err := writeLines(abs, updated); err != nil {
		return failureResult(fmt.Sprintf("Cannot write %s: %v", raw, err)), nil
	}

	state.AddModifiedFile(raw)
	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: fmt.Sprintf("Replaced lines %d-%d in %s", start, end, raw),
		Extras:  map[string]any{"lines_before": end - start + 1, "lines_after": len(replacement)},
	}, nil
}

// InsertLines inserts content before line_number; len(lines)+1 appends.
func (t *FileTools) InsertLines(_ context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	raw := stringParam(params, "file_path", "path")
	abs, err := resolvePath(t.root, raw)
	if err != nil {
		return nil, err
	}
	lineNumber, ok := intParam(params, "line_number")
	if !ok {
		return failureResult("insert_lines requires line_number"), nil
	}

	content, err := os.ReadFile(abs) //#nosec G304 -- path is validated against the workspace root
	if err != nil {
		return failureResult(fmt.Sprintf("Cannot read %s: %v", raw, err)), nil
	}

	lines := splitLines(string(content))
	// line_number len+1 appends at the end of the file.
	if lineNumber < 1 || lineNumber > len(lines)+1 {
		return failureResult(fmt.Sprintf("line %d out of bounds (%s has %d lines)", lineNumber, raw, len(lines))), nil
	}

	insertion := contentLines(stringParam(params, "new_content"))
	updated := make([]string, 0, len(lines)+len(insertion))
	updated = append(updated, lines[:lineNumber-1]...)
	updated = append(updated, insertion...)
	updated = append(updated, lines[lineNumber-1:]...)

	if err := writeLines(abs, updated); err != nil {
		return failureResult(fmt.Sprintf("Cannot write %s: %v", raw, err)), nil
	}

	state.AddModifiedFile(raw)
	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: fmt.Sprintf("Inserted %d lines at line %d in %s", len(insertion), lineNumber, raw),
	}, nil
}

// loadContext pulls a precomputed analysis section or a workspace file into
// working memory so the next prompts can show it.
func (t *FileTools) loadContext(_ context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	if t.memory == nil {
		return failureResult("load_context unavailable: no working memory attached"), nil
	}

	if item := stringParam(params, "item"); item != "" {
		content := precomputedItem(state, item)
		if content == "" {
			return failureResult(fmt.Sprintf("No precomputed context item: %s", item)), nil
		}
		if err := t.memory.LoadContext(item, content, state.CurrentStep, constants.LoadedContextExpirySteps); err != nil {
			return nil, fmt.Errorf("storing context item: %w", err)
		}
		return &domain.ToolResult{
			Status:  constants.ToolSuccess,
			Summary: fmt.Sprintf("Loaded context '%s' (%d chars)", item, len(content)),
			Output:  content,
		}, nil
	}

	raw := stringParam(params, "path", "file_path")
	abs, err := resolvePath(t.root, raw)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(abs) //#nosec G304 -- path is validated against the workspace root
	if err != nil {
		return failureResult(fmt.Sprintf("Cannot read %s: %v", raw, err)), nil
	}

	key := "file:" + raw
	if err := t.memory.LoadContext(key, string(content), state.CurrentStep, constants.LoadedContextExpirySteps); err != nil {
		return nil, fmt.Errorf("storing context file: %w", err)
	}
	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: fmt.Sprintf("Loaded %s into context (%d chars)", raw, len(content)),
		Output:  string(content),
	}, nil
}

// planFix records the diagnosis and approach, pinned so compaction and
// eviction never drop the plan while the task runs.
func (t *FileTools) planFix(_ context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	diagnosis := stringParam(params, "diagnosis")
	approach := stringParam(params, "approach")
	if diagnosis == "" || approach == "" {
		return failureResult("plan_fix requires diagnosis and approach"), nil
	}

	if state.ContextData == nil {
		state.ContextData = make(map[string]any)
	}
	state.ContextData[constants.CtxPlan] = map[string]any{
		"diagnosis": diagnosis,
		"approach":  approach,
	}

	if t.memory != nil {
		note := fmt.Sprintf("Diagnosis: %s\nApproach: %s", diagnosis, approach)
		if err := t.memory.AddNote("plan", note, state.CurrentStep); err != nil {
			return nil, fmt.Errorf("storing plan: %w", err)
		}
		if err := t.memory.Pin("plan"); err != nil {
			return nil, fmt.Errorf("pinning plan: %w", err)
		}
	}

	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: "Plan recorded: " + firstLine(approach),
	}, nil
}

// precomputedItem reads one named section from the precomputed context map.
func precomputedItem(state *domain.TaskState, item string) string {
	if state.ContextData == nil {
		return ""
	}
	switch pre := state.ContextData[constants.CtxPrecomputed].(type) {
	case map[string]any:
		switch v := pre[item].(type) {
		case string:
			return v
		case nil:
			return ""
		default:
			return fmt.Sprintf("%v", v)
		}
	case map[string]string:
		return pre[item]
	default:
		return ""
	}
}

// splitLines splits file content into lines without a trailing empty
// element for content ending in a newline.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// contentLines splits a new_content parameter into lines. Empty content
// means zero lines, which deletes the target range.
func contentLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// writeLines writes lines back with a trailing newline.
func writeLines(path string, lines []string) error {
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
