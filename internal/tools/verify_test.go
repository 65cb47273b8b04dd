package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// scriptedTests plays back a fixed sequence of run_tests results.
type scriptedTests struct {
	script []*domain.ToolResult
	calls  int
}

func (s *scriptedTests) exec(_ context.Context, _ string, _ map[string]any, _ *domain.TaskState) (*domain.ToolResult, error) {
	if s.calls >= len(s.script) {
		s.calls++
		return nil, forgeerrors.ErrCommandNotConfigured
	}
	result := s.script[s.calls]
	s.calls++
	return result, nil
}

func testsPass(passed int) *domain.ToolResult {
	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: fmt.Sprintf("Tests PASSED (%d passed)", passed),
		Output:  fmt.Sprintf("%d passed", passed),
	}
}

func testsFail(failed, passed int) *domain.ToolResult {
	return &domain.ToolResult{
		Status:  constants.ToolFailure,
		Summary: fmt.Sprintf("Tests FAILED (%d failed, %d passed)", failed, passed),
		Output:  fmt.Sprintf("%d failed, %d passed", failed, passed),
	}
}

// writeExecutor is an inner action that overwrites the target file with
// new_content.
func writeExecutor(root string) Executor {
	return func(_ context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
		raw := stringParam(params, "file_path", "path")
		abs, err := resolvePath(root, raw)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(abs, []byte(stringParam(params, "new_content")), 0o600); err != nil {
			return nil, err
		}
		state.AddModifiedFile(raw)
		return &domain.ToolResult{
			Status:  constants.ToolSuccess,
			Summary: "Replaced lines 2-2 in " + raw,
		}, nil
	}
}

// snapshotRecorder captures SaveVersionedArtifact calls.
type snapshotRecorder struct {
	kinds     []string
	baseNames []string
	contents  []string
}

func (s *snapshotRecorder) SaveVersionedArtifact(_ context.Context, _, kind, baseName string, content []byte) (string, error) {
	s.kinds = append(s.kinds, kind)
	s.baseNames = append(s.baseNames, baseName)
	s.contents = append(s.contents, string(content))
	return filepath.Join(kind, "v1", baseName), nil
}

var _ SnapshotStore = (*snapshotRecorder)(nil)

func TestVerifyWrapper_Execute(t *testing.T) {
	params := func(content string) map[string]any {
		return map[string]any{"file_path": "f.py", "new_content": content}
	}

	t.Run("annotates result when tests stay green", func(t *testing.T) {
		root := t.TempDir()
		writeWorkspaceFile(t, root, "f.py", "x = 300\n")
		tests := &scriptedTests{script: []*domain.ToolResult{testsPass(3), testsPass(3)}}
		w := NewVerifyWrapper(root, writeExecutor(root), tests.exec, zerolog.Nop())

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = MAX\n"), testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Success())
		assert.Equal(t, "Replaced lines 2-2 in f.py - ✓ Tests verified (0 failed before, 0 after)", result.Summary)
		assert.Equal(t, "x = MAX\n", readWorkspaceFile(t, root, "f.py"))
		assert.Equal(t, 2, tests.calls)
	})

	t.Run("reverts when modification breaks tests", func(t *testing.T) {
		root := t.TempDir()
		writeWorkspaceFile(t, root, "f.py", "x = 300\n")
		tests := &scriptedTests{script: []*domain.ToolResult{testsPass(4), testsFail(3, 1)}}
		w := NewVerifyWrapper(root, writeExecutor(root), tests.exec, zerolog.Nop())
		st := testState()

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = broken(\n"), st)

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Success())
		assert.Equal(t, "REVERTED - Modification broke tests (0 failed before, 3 after)", result.Summary)
		assert.Equal(t, "Modification broke tests", result.Error)
		assert.Equal(t, true, result.Extras["reverted"])
		assert.Equal(t, 0, result.Extras["failed_before"])
		assert.Equal(t, 3, result.Extras["failed_after"])
		assert.Equal(t, "x = 300\n", readWorkspaceFile(t, root, "f.py"))
		assert.Empty(t, st.FilesModified())
	})

	t.Run("keeps earlier modification marker on revert", func(t *testing.T) {
		root := t.TempDir()
		writeWorkspaceFile(t, root, "f.py", "x = 300\n")
		tests := &scriptedTests{script: []*domain.ToolResult{testsPass(4), testsFail(3, 1)}}
		w := NewVerifyWrapper(root, writeExecutor(root), tests.exec, zerolog.Nop())
		st := testState()
		st.AddModifiedFile("f.py")

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = broken(\n"), st)

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Success())
		assert.Equal(t, []string{"f.py"}, st.FilesModified())
	})

	t.Run("allows modification when baseline already failing", func(t *testing.T) {
		root := t.TempDir()
		writeWorkspaceFile(t, root, "f.py", "x = 300\n")
		tests := &scriptedTests{script: []*domain.ToolResult{testsFail(2, 5), testsFail(2, 5)}}
		w := NewVerifyWrapper(root, writeExecutor(root), tests.exec, zerolog.Nop())

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = MAX\n"), testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Success())
		assert.Equal(t, "Replaced lines 2-2 in f.py - ○ No new failures (2 failed before, 2 after)", result.Summary)
		assert.Equal(t, "x = MAX\n", readWorkspaceFile(t, root, "f.py"))
	})

	t.Run("reverts when failure count rises", func(t *testing.T) {
		root := t.TempDir()
		writeWorkspaceFile(t, root, "f.py", "x = 300\n")
		tests := &scriptedTests{script: []*domain.ToolResult{testsFail(1, 6), testsFail(4, 3)}}
		w := NewVerifyWrapper(root, writeExecutor(root), tests.exec, zerolog.Nop())

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = worse(\n"), testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Success())
		assert.Equal(t, "REVERTED - Modification broke tests (1 failed before, 4 after)", result.Summary)
		assert.Equal(t, "x = 300\n", readWorkspaceFile(t, root, "f.py"))
	})

	t.Run("counts a failing suite without totals as one failure", func(t *testing.T) {
		root := t.TempDir()
		writeWorkspaceFile(t, root, "f.py", "x = 300\n")
		crashed := &domain.ToolResult{
			Status:  constants.ToolFailure,
			Summary: "Tests FAILED",
			Output:  "Traceback (most recent call last):\n  ImportError: cannot import name 'broken'",
		}
		tests := &scriptedTests{script: []*domain.ToolResult{testsPass(4), crashed}}
		w := NewVerifyWrapper(root, writeExecutor(root), tests.exec, zerolog.Nop())

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = broken(\n"), testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Success())
		assert.Equal(t, "REVERTED - Modification broke tests (0 failed before, 1 after)", result.Summary)
		assert.Equal(t, 1, result.Extras["failed_after"])
		assert.Equal(t, "x = 300\n", readWorkspaceFile(t, root, "f.py"))
	})

	t.Run("removes file created by the action on revert", func(t *testing.T) {
		root := t.TempDir()
		tests := &scriptedTests{script: []*domain.ToolResult{testsPass(4), testsFail(1, 3)}}
		w := NewVerifyWrapper(root, writeExecutor(root), tests.exec, zerolog.Nop())

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("print()\n"), testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Success())
		_, statErr := os.Stat(filepath.Join(root, "f.py"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("passes inner failure through without post run", func(t *testing.T) {
		root := t.TempDir()
		tests := &scriptedTests{script: []*domain.ToolResult{testsPass(4)}}
		inner := func(_ context.Context, _ string, _ map[string]any, _ *domain.TaskState) (*domain.ToolResult, error) {
			return failureResult("old_text not found in f.py"), nil
		}
		w := NewVerifyWrapper(root, inner, tests.exec, zerolog.Nop())

		result, err := w.Execute(context.Background(), constants.ActionEditFile, map[string]any{"file_path": "f.py"}, testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "old_text not found in f.py", result.Summary)
		assert.Equal(t, 1, tests.calls)
	})

	t.Run("delegates when no file path resolves", func(t *testing.T) {
		root := t.TempDir()
		tests := &scriptedTests{}
		inner := &successExec{}
		w := NewVerifyWrapper(root, inner.exec, tests.exec, zerolog.Nop())

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, map[string]any{}, testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, 1, inner.calls)
		assert.Zero(t, tests.calls)
	})

	t.Run("treats unavailable test runner as zero failures", func(t *testing.T) {
		root := t.TempDir()
		writeWorkspaceFile(t, root, "f.py", "x = 300\n")
		tests := &scriptedTests{}
		w := NewVerifyWrapper(root, writeExecutor(root), tests.exec, zerolog.Nop())

		result, err := w.Execute(context.Background(), constants.ActionReplaceLines, params("x = MAX\n"), testState())

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Success())
		assert.Equal(t, "Replaced lines 2-2 in f.py - ○ No new failures (0 failed before, 0 after)", result.Summary)
		assert.Equal(t, "x = MAX\n", readWorkspaceFile(t, root, "f.py"))
	})

	t.Run("saves pre-action snapshot", func(t *testing.T) {
		root := t.TempDir()
		writeWorkspaceFile(t, root, "src/f.py", "x = 300\n")
		tests := &scriptedTests{script: []*domain.ToolResult{testsPass(4), testsPass(4)}}
		w := NewVerifyWrapper(root, writeExecutor(root), tests.exec, zerolog.Nop())
		snapshots := &snapshotRecorder{}
		w.SetSnapshotStore(snapshots)

		_, err := w.Execute(context.Background(), constants.ActionReplaceLines, map[string]any{
			"file_path":   "src/f.py",
			"new_content": "x = MAX\n",
		}, testState())

		require.NoError(t, err)
		require.Len(t, snapshots.kinds, 1)
		assert.Equal(t, constants.ArtifactKindSnapshots, snapshots.kinds[0])
		assert.Equal(t, "f.py", snapshots.baseNames[0])
		assert.Equal(t, "x = 300\n", snapshots.contents[0])
	})
}
