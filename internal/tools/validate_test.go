package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

// probeRunner fails any probe command containing a configured substring.
type probeRunner struct {
	failures map[string]string
	commands []string
}

func (r *probeRunner) Run(_ context.Context, _, command string) (stdout, stderr string, exitCode int, err error) {
	r.commands = append(r.commands, command)
	for substr, probeStderr := range r.failures {
		if strings.Contains(command, substr) {
			return "", probeStderr, 1, nil
		}
	}
	return "", "", 0, nil
}

var _ CommandRunner = (*probeRunner)(nil)

// newValidateHarness builds a wrapper whose inner action overwrites the
// target file.
func newValidateHarness(t *testing.T, runner CommandRunner) (*ValidateWrapper, string) {
	t.Helper()

	root := t.TempDir()
	w := NewValidateWrapperWithRunner(root, writeExecutor(root), "python3", runner, zerolog.Nop())
	return w, root
}

func TestValidateWrapper_Execute(t *testing.T) {
	params := func(content string) map[string]any {
		return map[string]any{"file_path": "mod.py", "new_content": content}
	}

	t.Run("keeps file when both probes pass", func(t *testing.T) {
		runner := &probeRunner{}
		w, root := newValidateHarness(t, runner)
		writeWorkspaceFile(t, root, "mod.py", "x = 1\n")

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = 2\n"), testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Success())
		assert.Equal(t, "Replaced lines 2-2 in mod.py", result.Summary)
		assert.Equal(t, "x = 2\n", readWorkspaceFile(t, root, "mod.py"))
		require.Len(t, runner.commands, 2)
		assert.Contains(t, runner.commands[0], "import ast")
		assert.Contains(t, runner.commands[1], "importlib.util")
	})

	t.Run("reverts when syntax probe fails", func(t *testing.T) {
		runner := &probeRunner{failures: map[string]string{
			"import ast": "  File \"mod.py\", line 1\nSyntaxError: invalid syntax",
		}}
		w, root := newValidateHarness(t, runner)
		writeWorkspaceFile(t, root, "mod.py", "x = 1\n")

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = (\n"), testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Success())
		assert.Equal(t, "Code validation failed - REVERTED: SyntaxError: invalid syntax", result.Summary)
		assert.Equal(t, "SyntaxError: invalid syntax", result.Error)
		assert.Equal(t, true, result.Extras["reverted"])
		assert.Equal(t, "x = 1\n", readWorkspaceFile(t, root, "mod.py"))
		assert.Len(t, runner.commands, 1)
	})

	t.Run("reverts when import probe fails", func(t *testing.T) {
		runner := &probeRunner{failures: map[string]string{
			"importlib.util": "Traceback (most recent call last):\nNameError: name 'missing' is not defined",
		}}
		w, root := newValidateHarness(t, runner)
		writeWorkspaceFile(t, root, "mod.py", "x = 1\n")

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = missing\n"), testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Success())
		assert.Equal(t, "Code validation failed - REVERTED: NameError: name 'missing' is not defined", result.Summary)
		assert.Equal(t, "x = 1\n", readWorkspaceFile(t, root, "mod.py"))
		assert.Len(t, runner.commands, 2)
	})

	t.Run("skips non python files", func(t *testing.T) {
		runner := &probeRunner{}
		w, root := newValidateHarness(t, runner)
		writeWorkspaceFile(t, root, "notes.txt", "old\n")

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, map[string]any{
			"file_path":   "notes.txt",
			"new_content": "new\n",
		}, testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Success())
		assert.Empty(t, runner.commands)
		assert.Equal(t, "new\n", readWorkspaceFile(t, root, "notes.txt"))
	})

	t.Run("passes inner failure through without probes", func(t *testing.T) {
		runner := &probeRunner{}
		inner := func(_ context.Context, _ string, _ map[string]any, _ *domain.TaskState) (*domain.ToolResult, error) {
			return failureResult("line range 9-9 out of bounds (mod.py has 1 lines)"), nil
		}
		root := t.TempDir()
		w := NewValidateWrapperWithRunner(root, inner, "python3", runner, zerolog.Nop())
		writeWorkspaceFile(t, root, "mod.py", "x = 1\n")

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = 2\n"), testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Success())
		assert.Empty(t, runner.commands)
	})

	t.Run("removes file the action created", func(t *testing.T) {
		runner := &probeRunner{failures: map[string]string{"import ast": "SyntaxError: bad"}}
		w, root := newValidateHarness(t, runner)

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = (\n"), testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Success())
		assert.NoFileExists(t, root+"/mod.py")
	})
}

func TestLastErrorLine(t *testing.T) {
	assert.Equal(t, "SyntaxError: invalid syntax", lastErrorLine("  File \"f.py\", line 2\nSyntaxError: invalid syntax\n"))
	assert.Equal(t, "b", lastErrorLine("a\nb\n\n"))
	assert.Empty(t, lastErrorLine("\n\n"))
	assert.Empty(t, lastErrorLine(""))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'/tmp/work/f.py'", shellQuote("/tmp/work/f.py"))
	assert.Equal(t, `'/tmp/it'\''s.py'`, shellQuote("/tmp/it's.py"))
}
