package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

// SnapshotStore persists pre-modification file snapshots for the audit trail.
// The state store's versioned artifact writer satisfies it.
type SnapshotStore interface {
	SaveVersionedArtifact(ctx context.Context, taskID, kind, baseName string, content []byte) (string, error)
}

// VerifyWrapper guards a destructive file action with a test run on either
// side. If the modification introduces new test failures, the file is
// restored to its pre-action content and the action reports failure.
type VerifyWrapper struct {
	root      string
	inner     Executor
	runTests  Executor
	snapshots SnapshotStore
	logger    zerolog.Logger
}

// NewVerifyWrapper wraps inner with test verification. runTests is the
// registered run_tests executor; root is the workspace root used to resolve
// the action's file path.
func NewVerifyWrapper(root string, inner, runTests Executor, logger zerolog.Logger) *VerifyWrapper {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	return &VerifyWrapper{
		root:     abs,
		inner:    inner,
		runTests: runTests,
		logger:   logger.With().Str("component", "verify_wrapper").Logger(),
	}
}

// SetSnapshotStore configures pre-modification snapshots. When set, the
// original file content is saved as a versioned artifact before each
// wrapped action.
func (w *VerifyWrapper) SetSnapshotStore(s SnapshotStore) {
	w.snapshots = s
}

// Execute runs the wrapped action between a baseline and a post-action test
// run.
func (w *VerifyWrapper) Execute(ctx context.Context, name string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	raw := stringParam(params, "file_path", "path")
	abs, err := resolvePath(w.root, raw)
	if err != nil {
		// No usable file path: nothing to snapshot or revert.
		return w.inner(ctx, name, params, state)
	}

	wasModified := false
	for _, f := range state.FilesModified() {
		if f == raw {
			wasModified = true
			break
		}
	}

	baselineOK, baselineFailed := w.testOutcome(ctx, state)

	snapshot, readErr := os.ReadFile(abs) //#nosec G304 -- path is validated against the workspace root
	existed := readErr == nil
	if existed {
		w.saveSnapshot(ctx, state.TaskID, abs, snapshot)
	}

	result, err := w.inner(ctx, name, params, state)
	if err != nil || result == nil || !result.Success() {
		return result, err
	}

	afterOK, afterFailed := w.testOutcome(ctx, state)

	worsened := (baselineOK && !afterOK) || afterFailed > baselineFailed
	if worsened {
		w.restore(abs, snapshot, existed)
		if !wasModified {
			state.RemoveModifiedFile(raw)
		}
		w.logger.Warn().
			Str("action", name).
			Str("file", raw).
			Int("failed_before", baselineFailed).
			Int("failed_after", afterFailed).
			Msg("Modification reverted after test regression")

		return &domain.ToolResult{
			Status:  constants.ToolFailure,
			Summary: fmt.Sprintf("REVERTED - Modification broke tests (%d failed before, %d after)", baselineFailed, afterFailed),
			Error:   "Modification broke tests",
			Extras: map[string]any{
				"reverted":      true,
				"failed_before": baselineFailed,
				"failed_after":  afterFailed,
			},
		}, nil
	}

	if afterOK {
		result.Summary = fmt.Sprintf("%s - ✓ Tests verified (%d failed before, %d after)", result.Summary, baselineFailed, afterFailed)
	} else {
		result.Summary = fmt.Sprintf("%s - ○ No new failures (%d failed before, %d after)", result.Summary, baselineFailed, afterFailed)
	}
	return result, nil
}

// testOutcome runs the test suite and reduces the result to a pass flag and
// a failure count. A test runner that cannot run at all counts as failing
// with zero failures.
func (w *VerifyWrapper) testOutcome(ctx context.Context, state *domain.TaskState) (ok bool, failed int) {
	result, err := w.runTests(ctx, constants.ActionRunTests, map[string]any{}, state)
	if err != nil || result == nil {
		w.logger.Warn().Err(err).Msg("Baseline test run unavailable")
		return false, 0
	}
	failed = failedCount(result.Output)
	if failed == 0 {
		failed = failedCount(result.Summary)
	}
	// A failing suite with no parsable count still represents at least
	// one failure; without this a crash-style failure reads "0 failed".
	if failed == 0 && !result.Success() {
		failed = 1
	}
	return result.Success(), failed
}

// saveSnapshot persists the pre-action content as a versioned artifact.
// Snapshot failures are logged, never fatal.
func (w *VerifyWrapper) saveSnapshot(ctx context.Context, taskID, abs string, content []byte) {
	if w.snapshots == nil {
		return
	}
	if _, err := w.snapshots.SaveVersionedArtifact(ctx, taskID, constants.ArtifactKindSnapshots, filepath.Base(abs), content); err != nil {
		w.logger.Warn().Err(err).Str("file", abs).Msg("Snapshot not saved")
	}
}

// restore puts the file back the way it was, or removes it if the action
// created it.
func (w *VerifyWrapper) restore(abs string, snapshot []byte, existed bool) {
	if !existed {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			w.logger.Error().Err(err).Str("file", abs).Msg("Failed to remove created file during revert")
		}
		return
	}
	if err := os.WriteFile(abs, snapshot, 0o600); err != nil {
		w.logger.Error().Err(err).Str("file", abs).Msg("Failed to restore file during revert")
	}
}
