package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// createTestSpec creates a test spec with the given ID.
func createTestSpec(id string) *domain.TaskSpec {
	return &domain.TaskSpec{
		TaskID:   id,
		TaskType: "fix_violation",
		Goal:     "Fix the magic number violation in parser.go",
		SuccessCriteria: []string{
			"all checks pass",
			"tests pass",
		},
		Constraints: []string{"do not change public signatures"},
	}
}

// setupTestStore creates a test store with a temp directory.
func setupTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	tmpDir := t.TempDir()

	store, err := NewFileStore(tmpDir)
	require.NoError(t, err)

	return store, tmpDir
}

// createTask is a shorthand that creates a task and fails the test on error.
func createTask(t *testing.T, store *FileStore, id string) *domain.TaskState {
	t.Helper()
	state, err := store.CreateTask(context.Background(), createTestSpec(id), nil)
	require.NoError(t, err)
	return state
}

func TestNewFileStore(t *testing.T) {
	t.Run("with custom path", func(t *testing.T) {
		tmpDir := t.TempDir()
		store, err := NewFileStore(tmpDir)
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.Equal(t, tmpDir, store.home)
	})

	t.Run("with empty path uses env override", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(constants.ForgeHomeEnvVar, tmpDir)

		store, err := NewFileStore("")
		require.NoError(t, err)
		assert.Equal(t, tmpDir, store.home)
	})

	t.Run("with empty path and no env uses default", func(t *testing.T) {
		t.Setenv(constants.ForgeHomeEnvVar, "")

		store, err := NewFileStore("")
		require.NoError(t, err)
		assert.Contains(t, store.home, constants.ForgeHome)
	})
}

func TestFileStore_CreateTask(t *testing.T) {
	t.Run("creates task successfully", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)

		spec := createTestSpec("fix-V-001")
		state, err := store.CreateTask(context.Background(), spec, map[string]any{"violation_id": "V-001"})
		require.NoError(t, err)
		require.NotNil(t, state)

		assert.Equal(t, "fix-V-001", state.TaskID)
		assert.Equal(t, constants.TaskStatusPending, state.Status)
		assert.Equal(t, constants.PhaseInit, state.Phase)
		assert.Equal(t, constants.PhaseInit, state.PhaseMachine.CurrentPhase)
		assert.Equal(t, 0, state.CurrentStep)
		assert.False(t, state.Verification.ReadyForCompletion)
		assert.Equal(t, constants.StateSchemaVersion, state.SchemaVersion)
		assert.Equal(t, "V-001", state.ContextData["violation_id"])

		// Verify files exist
		taskDir := filepath.Join(tmpDir, constants.TasksDir, "fix-V-001")
		for _, name := range []string{constants.SpecFileName, constants.StateFileName} {
			_, err = os.Stat(filepath.Join(taskDir, name))
			require.NoError(t, err)
		}

		// Verify artifact subdirectories exist
		for _, kind := range []string{constants.ArtifactKindInputs, constants.ArtifactKindOutputs, constants.ArtifactKindSnapshots} {
			info, statErr := os.Stat(filepath.Join(taskDir, constants.ArtifactsDir, kind))
			require.NoError(t, statErr)
			assert.True(t, info.IsDir())
		}

		// Verify spec content on disk
		data, err := os.ReadFile(filepath.Join(taskDir, constants.SpecFileName)) //#nosec G304 -- test file path
		require.NoError(t, err)
		var loaded domain.TaskSpec
		require.NoError(t, json.Unmarshal(data, &loaded))
		assert.Equal(t, spec.Goal, loaded.Goal)
		assert.False(t, loaded.CreatedAt.IsZero())
	})

	t.Run("errors on duplicate task", func(t *testing.T) {
		store, _ := setupTestStore(t)

		_, err := store.CreateTask(context.Background(), createTestSpec("fix-V-002"), nil)
		require.NoError(t, err)

		_, err = store.CreateTask(context.Background(), createTestSpec("fix-V-002"), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, forgeerrors.ErrTaskExists)
	})

	t.Run("repairs partially created directory", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)

		// Simulate a crash after mkdir but before the state write.
		require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, constants.TasksDir, "fix-V-003"), 0o750))

		state, err := store.CreateTask(context.Background(), createTestSpec("fix-V-003"), nil)
		require.NoError(t, err)
		assert.Equal(t, "fix-V-003", state.TaskID)
	})

	t.Run("errors on nil spec", func(t *testing.T) {
		store, _ := setupTestStore(t)

		_, err := store.CreateTask(context.Background(), nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, forgeerrors.ErrEmptyValue)
	})

	t.Run("errors on invalid task ID", func(t *testing.T) {
		store, _ := setupTestStore(t)

		for _, id := range []string{"", "../escape", "a/b", ".hidden", "id with spaces"} {
			_, err := store.CreateTask(context.Background(), createTestSpec(id), nil)
			require.Error(t, err, "id %q should be rejected", id)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		store, _ := setupTestStore(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := store.CreateTask(ctx, createTestSpec("fix-V-004"), nil)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestFileStore_LoadSpec(t *testing.T) {
	t.Run("loads saved spec", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-010")

		spec, err := store.LoadSpec(context.Background(), "fix-V-010")
		require.NoError(t, err)
		assert.Equal(t, "fix-V-010", spec.TaskID)
		assert.Equal(t, "fix_violation", spec.TaskType)
		assert.Len(t, spec.SuccessCriteria, 2)
	})

	t.Run("errors on missing task", func(t *testing.T) {
		store, _ := setupTestStore(t)

		_, err := store.LoadSpec(context.Background(), "no-such-task")
		require.ErrorIs(t, err, forgeerrors.ErrTaskNotFound)
	})
}

func TestFileStore_Load(t *testing.T) {
	t.Run("round trips state", func(t *testing.T) {
		store, _ := setupTestStore(t)
		created := createTask(t, store, "fix-V-020")

		loaded, err := store.Load(context.Background(), "fix-V-020")
		require.NoError(t, err)
		assert.Equal(t, created.TaskID, loaded.TaskID)
		assert.Equal(t, created.Status, loaded.Status)
		assert.Equal(t, created.Phase, loaded.Phase)
	})

	t.Run("errors on missing task", func(t *testing.T) {
		store, _ := setupTestStore(t)

		_, err := store.Load(context.Background(), "no-such-task")
		require.ErrorIs(t, err, forgeerrors.ErrTaskNotFound)
	})

	t.Run("quarantines corrupted state", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)
		createTask(t, store, "fix-V-021")

		statePath := filepath.Join(tmpDir, constants.TasksDir, "fix-V-021", constants.StateFileName)
		require.NoError(t, os.WriteFile(statePath, []byte("{not json"), 0o600))

		_, err := store.Load(context.Background(), "fix-V-021")
		require.ErrorIs(t, err, forgeerrors.ErrTaskNotFound)

		// Original file moved aside, not deleted
		_, err = os.Stat(statePath + constants.CorruptedSuffix)
		require.NoError(t, err)
		_, err = os.Stat(statePath)
		require.True(t, os.IsNotExist(err))
	})

	t.Run("migrates schema 1.0 and re-saves", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)
		createTask(t, store, "fix-V-022")

		// Rewrite state as an old-format file: no phase machine projection,
		// verification that would derive ready but predates the flag.
		old := map[string]any{
			"task_id":      "fix-V-022",
			"status":       "running",
			"current_step": 7,
			"phase":        "IMPLEMENT",
			"verification_status": map[string]any{
				"checks_passing": 5,
				"checks_failing": 0,
				"tests_passing":  true,
			},
			"context_data":   map[string]any{"files_modified": []string{"parser.go"}},
			"last_updated":   time.Now().UTC().Format(time.RFC3339),
			"schema_version": "1.0",
		}
		data, err := json.Marshal(old)
		require.NoError(t, err)
		statePath := filepath.Join(tmpDir, constants.TasksDir, "fix-V-022", constants.StateFileName)
		require.NoError(t, os.WriteFile(statePath, data, 0o600))

		loaded, err := store.Load(context.Background(), "fix-V-022")
		require.NoError(t, err)
		assert.Equal(t, constants.StateSchemaVersion, loaded.SchemaVersion)
		assert.Equal(t, constants.PhaseImplement, loaded.Phase)
		assert.Equal(t, constants.PhaseImplement, loaded.PhaseMachine.CurrentPhase)
		assert.NotNil(t, loaded.PhaseMachine.PhaseHistory)
		assert.False(t, loaded.Verification.ReadyForCompletion)
		assert.Equal(t, 7, loaded.CurrentStep)
		assert.Equal(t, []string{"parser.go"}, loaded.FilesModified())

		// Migration persisted: the raw file now carries the new version.
		raw, err := os.ReadFile(statePath) //#nosec G304 -- test file path
		require.NoError(t, err)
		var onDisk map[string]any
		require.NoError(t, json.Unmarshal(raw, &onDisk))
		assert.Equal(t, constants.StateSchemaVersion, onDisk["schema_version"])
	})

	t.Run("errors on unsupported schema version", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)
		createTask(t, store, "fix-V-023")

		statePath := filepath.Join(tmpDir, constants.TasksDir, "fix-V-023", constants.StateFileName)
		data := []byte(`{"task_id":"fix-V-023","status":"pending","schema_version":"9.9"}`)
		require.NoError(t, os.WriteFile(statePath, data, 0o600))

		_, err := store.Load(context.Background(), "fix-V-023")
		require.ErrorIs(t, err, forgeerrors.ErrSchemaUnsupported)
	})
}

func TestFileStore_Save(t *testing.T) {
	t.Run("persists mutations and bumps last_updated", func(t *testing.T) {
		store, _ := setupTestStore(t)
		state := createTask(t, store, "fix-V-030")
		before := state.LastUpdated

		time.Sleep(5 * time.Millisecond)
		state.Status = constants.TaskStatusRunning
		state.AddModifiedFile("parser.go")
		require.NoError(t, store.Save(context.Background(), state))

		loaded, err := store.Load(context.Background(), "fix-V-030")
		require.NoError(t, err)
		assert.Equal(t, constants.TaskStatusRunning, loaded.Status)
		assert.Equal(t, []string{"parser.go"}, loaded.FilesModified())
		assert.True(t, loaded.LastUpdated.After(before) || loaded.LastUpdated.Equal(before))
	})

	t.Run("errors on missing task", func(t *testing.T) {
		store, _ := setupTestStore(t)

		state := &domain.TaskState{TaskID: "ghost", Status: constants.TaskStatusPending}
		err := store.Save(context.Background(), state)
		require.ErrorIs(t, err, forgeerrors.ErrTaskNotFound)
	})

	t.Run("errors on nil state", func(t *testing.T) {
		store, _ := setupTestStore(t)

		err := store.Save(context.Background(), nil)
		require.ErrorIs(t, err, forgeerrors.ErrEmptyValue)
	})
}

func TestFileStore_IncrementStep(t *testing.T) {
	t.Run("increments sequentially", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-040")

		for want := 1; want <= 3; want++ {
			got, err := store.IncrementStep(context.Background(), "fix-V-040")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		loaded, err := store.Load(context.Background(), "fix-V-040")
		require.NoError(t, err)
		assert.Equal(t, 3, loaded.CurrentStep)
	})

	t.Run("is safe under concurrent increments", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-041")

		const workers = 8
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.IncrementStep(context.Background(), "fix-V-041")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		loaded, err := store.Load(context.Background(), "fix-V-041")
		require.NoError(t, err)
		assert.Equal(t, workers, loaded.CurrentStep)
	})
}

func TestFileStore_RecordAction(t *testing.T) {
	t.Run("appends records in order", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-050")

		for step := 1; step <= 3; step++ {
			rec := &domain.ActionRecord{
				Step:       step,
				ActionName: "read_file",
				Target:     "parser.go",
				Result:     constants.ActionResultSuccess,
				Summary:    fmt.Sprintf("read attempt %d", step),
			}
			require.NoError(t, store.RecordAction(context.Background(), "fix-V-050", rec))
		}

		records, err := store.Actions(context.Background(), "fix-V-050")
		require.NoError(t, err)
		require.Len(t, records, 3)
		for i, rec := range records {
			assert.Equal(t, i+1, rec.Step)
			assert.False(t, rec.Timestamp.IsZero())
		}
	})

	t.Run("truncates long summaries", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-051")

		long := make([]byte, 500)
		for i := range long {
			long[i] = 'x'
		}
		rec := &domain.ActionRecord{
			Step:       1,
			ActionName: "run_tests",
			Result:     constants.ActionResultFailure,
			Summary:    string(long),
		}
		require.NoError(t, store.RecordAction(context.Background(), "fix-V-051", rec))

		records, err := store.Actions(context.Background(), "fix-V-051")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.LessOrEqual(t, len(records[0].Summary), constants.ActionSummaryMaxLen)
	})

	t.Run("errors on missing task", func(t *testing.T) {
		store, _ := setupTestStore(t)

		rec := &domain.ActionRecord{Step: 1, ActionName: "read_file", Result: constants.ActionResultSuccess}
		err := store.RecordAction(context.Background(), "ghost", rec)
		require.ErrorIs(t, err, forgeerrors.ErrTaskNotFound)
	})
}

func TestFileStore_Actions(t *testing.T) {
	t.Run("returns empty slice for no log", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-060")

		records, err := store.Actions(context.Background(), "fix-V-060")
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.NotNil(t, records)
	})

	t.Run("skips torn trailing line", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)
		createTask(t, store, "fix-V-061")

		rec := &domain.ActionRecord{Step: 1, ActionName: "read_file", Result: constants.ActionResultSuccess}
		require.NoError(t, store.RecordAction(context.Background(), "fix-V-061", rec))

		// Simulate a crash mid-append.
		logPath := filepath.Join(tmpDir, constants.TasksDir, "fix-V-061", constants.ActionLogFileName)
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o600) //#nosec G304 -- test file path
		require.NoError(t, err)
		_, err = f.WriteString(`{"step":2,"action":"wri`)
		require.NoError(t, err)
		require.NoError(t, f.Close())

		records, err := store.Actions(context.Background(), "fix-V-061")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, 1, records[0].Step)
	})
}

func TestFileStore_RecentActions(t *testing.T) {
	store, _ := setupTestStore(t)
	createTask(t, store, "fix-V-070")

	for step := 1; step <= 5; step++ {
		rec := &domain.ActionRecord{Step: step, ActionName: "edit_file", Result: constants.ActionResultSuccess}
		require.NoError(t, store.RecordAction(context.Background(), "fix-V-070", rec))
	}

	t.Run("returns last n chronological", func(t *testing.T) {
		records, err := store.RecentActions(context.Background(), "fix-V-070", 3)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, 3, records[0].Step)
		assert.Equal(t, 5, records[2].Step)
	})

	t.Run("zero limit returns all", func(t *testing.T) {
		records, err := store.RecentActions(context.Background(), "fix-V-070", 0)
		require.NoError(t, err)
		assert.Len(t, records, 5)
	})
}

func TestFileStore_UpdatePhase(t *testing.T) {
	t.Run("keeps phase and machine in agreement", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-080")

		require.NoError(t, store.UpdatePhase(context.Background(), "fix-V-080", constants.PhaseAnalyze))

		loaded, err := store.Load(context.Background(), "fix-V-080")
		require.NoError(t, err)
		assert.Equal(t, constants.PhaseAnalyze, loaded.Phase)
		assert.Equal(t, constants.PhaseAnalyze, loaded.PhaseMachine.CurrentPhase)
	})

	t.Run("rejects unknown phase", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-081")

		err := store.UpdatePhase(context.Background(), "fix-V-081", constants.Phase("LIMBO"))
		require.ErrorIs(t, err, forgeerrors.ErrUnknownPhase)
	})
}

func TestFileStore_UpdatePhaseMachine(t *testing.T) {
	store, _ := setupTestStore(t)
	createTask(t, store, "fix-V-090")

	machine := domain.PhaseMachineState{
		CurrentPhase: constants.PhasePlan,
		StepsInPhase: 2,
		PhaseHistory: []constants.Phase{constants.PhaseInit, constants.PhaseAnalyze},
	}
	require.NoError(t, store.UpdatePhaseMachine(context.Background(), "fix-V-090", machine))

	loaded, err := store.Load(context.Background(), "fix-V-090")
	require.NoError(t, err)
	assert.Equal(t, constants.PhasePlan, loaded.Phase)
	assert.Equal(t, constants.PhasePlan, loaded.PhaseMachine.CurrentPhase)
	assert.Equal(t, 2, loaded.PhaseMachine.StepsInPhase)
	assert.Len(t, loaded.PhaseMachine.PhaseHistory, 2)
}

func TestFileStore_UpdateVerification(t *testing.T) {
	t.Run("derives ready when clean", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-100")

		err := store.UpdateVerification(context.Background(), "fix-V-100", 5, 0, true, map[string]any{"check": "lint"})
		require.NoError(t, err)

		loaded, err := store.Load(context.Background(), "fix-V-100")
		require.NoError(t, err)
		assert.Equal(t, 5, loaded.Verification.ChecksPassing)
		assert.Zero(t, loaded.Verification.ChecksFailing)
		assert.True(t, loaded.Verification.TestsPassing)
		assert.True(t, loaded.Verification.ReadyForCompletion)
		require.NotNil(t, loaded.Verification.LastCheckTime)
	})

	t.Run("not ready with failing checks", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-101")

		err := store.UpdateVerification(context.Background(), "fix-V-101", 4, 1, true, nil)
		require.NoError(t, err)

		loaded, err := store.Load(context.Background(), "fix-V-101")
		require.NoError(t, err)
		assert.False(t, loaded.Verification.ReadyForCompletion)
	})
}

func TestFileStore_UpdateContextData(t *testing.T) {
	store, _ := setupTestStore(t)
	createTask(t, store, "fix-V-110")

	require.NoError(t, store.UpdateContextData(context.Background(), "fix-V-110", "attempts", 2))

	loaded, err := store.Load(context.Background(), "fix-V-110")
	require.NoError(t, err)
	assert.InDelta(t, 2, loaded.ContextData["attempts"], 0.01)

	t.Run("rejects empty key", func(t *testing.T) {
		err := store.UpdateContextData(context.Background(), "fix-V-110", "", 1)
		require.ErrorIs(t, err, forgeerrors.ErrEmptyValue)
	})
}

func TestFileStore_SetError(t *testing.T) {
	t.Run("moves task to failed", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-120")
		require.NoError(t, store.UpdatePhase(context.Background(), "fix-V-120", constants.PhaseImplement))

		require.NoError(t, store.SetError(context.Background(), "fix-V-120", "provider unreachable"))

		loaded, err := store.Load(context.Background(), "fix-V-120")
		require.NoError(t, err)
		assert.Equal(t, "provider unreachable", loaded.Error)
		assert.Equal(t, constants.PhaseFailed, loaded.Phase)
		assert.Equal(t, constants.PhaseFailed, loaded.PhaseMachine.CurrentPhase)
		assert.Equal(t, constants.TaskStatusFailed, loaded.Status)
		assert.Contains(t, loaded.PhaseMachine.PhaseHistory, constants.PhaseImplement)
	})

	t.Run("keeps terminal phase, records message", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-121")
		require.NoError(t, store.UpdatePhase(context.Background(), "fix-V-121", constants.PhaseComplete))

		require.NoError(t, store.SetError(context.Background(), "fix-V-121", "late failure"))

		loaded, err := store.Load(context.Background(), "fix-V-121")
		require.NoError(t, err)
		assert.Equal(t, constants.PhaseComplete, loaded.Phase)
		assert.Equal(t, "late failure", loaded.Error)
	})
}

func TestFileStore_Artifacts(t *testing.T) {
	t.Run("saves and retrieves artifact", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-130")

		path, err := store.SaveArtifact(context.Background(), "fix-V-130", constants.ArtifactKindOutputs, "report.md", []byte("# Report"))
		require.NoError(t, err)
		assert.Contains(t, path, constants.ArtifactKindOutputs)

		data, err := store.GetArtifact(context.Background(), "fix-V-130", constants.ArtifactKindOutputs, "report.md")
		require.NoError(t, err)
		assert.Equal(t, []byte("# Report"), data)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-131")

		_, err := store.SaveArtifact(context.Background(), "fix-V-131", "scratch", "x.txt", []byte("x"))
		require.ErrorIs(t, err, forgeerrors.ErrInvalidArgument)
	})

	t.Run("rejects path traversal in name", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-132")

		for _, name := range []string{"../evil.txt", "a/b.txt", "a\\b.txt"} {
			_, err := store.SaveArtifact(context.Background(), "fix-V-132", constants.ArtifactKindInputs, name, []byte("x"))
			require.ErrorIs(t, err, forgeerrors.ErrPathTraversal, "name %q", name)
		}
	})

	t.Run("errors on missing artifact", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-133")

		_, err := store.GetArtifact(context.Background(), "fix-V-133", constants.ArtifactKindOutputs, "nope.md")
		require.ErrorIs(t, err, forgeerrors.ErrArtifactNotFound)
	})

	t.Run("versions artifacts sequentially", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-134")

		first, err := store.SaveVersionedArtifact(context.Background(), "fix-V-134", constants.ArtifactKindSnapshots, "parser.go.snap", []byte("v1"))
		require.NoError(t, err)
		assert.Equal(t, "parser.go.1.snap", first)

		second, err := store.SaveVersionedArtifact(context.Background(), "fix-V-134", constants.ArtifactKindSnapshots, "parser.go.snap", []byte("v2"))
		require.NoError(t, err)
		assert.Equal(t, "parser.go.2.snap", second)

		names, err := store.ListArtifacts(context.Background(), "fix-V-134", constants.ArtifactKindSnapshots)
		require.NoError(t, err)
		assert.Equal(t, []string{"parser.go.1.snap", "parser.go.2.snap"}, names)
	})

	t.Run("list returns empty for missing dir", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)
		createTask(t, store, "fix-V-135")
		require.NoError(t, os.RemoveAll(filepath.Join(tmpDir, constants.TasksDir, "fix-V-135", constants.ArtifactsDir)))

		names, err := store.ListArtifacts(context.Background(), "fix-V-135", constants.ArtifactKindInputs)
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestFileStore_ListTasks(t *testing.T) {
	t.Run("lists newest first", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-140")
		time.Sleep(5 * time.Millisecond)
		createTask(t, store, "fix-V-141")
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, store.UpdateStatus(context.Background(), "fix-V-140", constants.TaskStatusRunning))

		tasks, err := store.ListTasks(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "fix-V-140", tasks[0].TaskID)
	})

	t.Run("filters by status", func(t *testing.T) {
		store, _ := setupTestStore(t)
		createTask(t, store, "fix-V-142")
		createTask(t, store, "fix-V-143")
		require.NoError(t, store.UpdateStatus(context.Background(), "fix-V-143", constants.TaskStatusCompleted))

		tasks, err := store.ListTasks(context.Background(), constants.TaskStatusCompleted)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "fix-V-143", tasks[0].TaskID)
	})

	t.Run("empty store lists nothing", func(t *testing.T) {
		store, _ := setupTestStore(t)

		tasks, err := store.ListTasks(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("skips corrupted entries", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)
		createTask(t, store, "fix-V-144")
		createTask(t, store, "fix-V-145")

		statePath := filepath.Join(tmpDir, constants.TasksDir, "fix-V-144", constants.StateFileName)
		require.NoError(t, os.WriteFile(statePath, []byte("garbage"), 0o600))

		tasks, err := store.ListTasks(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "fix-V-145", tasks[0].TaskID)
	})
}

func TestFileStore_DeleteTask(t *testing.T) {
	t.Run("removes task directory", func(t *testing.T) {
		store, tmpDir := setupTestStore(t)
		createTask(t, store, "fix-V-150")

		require.NoError(t, store.DeleteTask(context.Background(), "fix-V-150"))

		_, err := os.Stat(filepath.Join(tmpDir, constants.TasksDir, "fix-V-150"))
		require.True(t, os.IsNotExist(err))

		_, err = store.Load(context.Background(), "fix-V-150")
		require.ErrorIs(t, err, forgeerrors.ErrTaskNotFound)
	})

	t.Run("errors on missing task", func(t *testing.T) {
		store, _ := setupTestStore(t)

		err := store.DeleteTask(context.Background(), "ghost")
		require.ErrorIs(t, err, forgeerrors.ErrTaskNotFound)
	})
}

func TestGenerateTaskID(t *testing.T) {
	t.Run("has expected format", func(t *testing.T) {
		id := GenerateTaskID()
		assert.Regexp(t, `^task-\d{8}-\d{6}$`, id)
	})

	t.Run("unique adds millisecond suffix on collision", func(t *testing.T) {
		id := GenerateTaskID()
		unique := GenerateTaskIDUnique(map[string]bool{id: true})
		assert.NotEqual(t, id, unique)
		assert.Regexp(t, `^task-\d{8}-\d{6}-\d{3}$`, unique)
	})
}

func TestMigrateState(t *testing.T) {
	t.Run("current version untouched", func(t *testing.T) {
		st := &domain.TaskState{SchemaVersion: constants.StateSchemaVersion, Phase: constants.PhasePlan}
		migrated, err := migrateState(st)
		require.NoError(t, err)
		assert.False(t, migrated)
	})

	t.Run("empty version treated as 1.0", func(t *testing.T) {
		st := &domain.TaskState{Phase: constants.PhaseAnalyze}
		migrated, err := migrateState(st)
		require.NoError(t, err)
		assert.True(t, migrated)
		assert.Equal(t, constants.PhaseAnalyze, st.PhaseMachine.CurrentPhase)
		assert.Equal(t, constants.StateSchemaVersion, st.SchemaVersion)
	})

	t.Run("missing phase defaults to INIT", func(t *testing.T) {
		st := &domain.TaskState{SchemaVersion: constants.StateSchemaVersion10}
		migrated, err := migrateState(st)
		require.NoError(t, err)
		assert.True(t, migrated)
		assert.Equal(t, constants.PhaseInit, st.Phase)
		assert.Equal(t, constants.PhaseInit, st.PhaseMachine.CurrentPhase)
	})
}
