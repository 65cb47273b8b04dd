package executor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxxentropy/agentforge-sub001/internal/audit"
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

func TestExecutor_RunUntilComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("completes and writes the audit summary", func(t *testing.T) {
		h := newHarness(t, nil, "action: complete")
		h.createTask(t, "task-1")
		h.readyToComplete(t, "task-1")

		outcomes, err := h.executor.RunUntilComplete(ctx, "task-1", 0, nil)

		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.False(t, outcomes[0].ShouldContinue)

		st, err := h.store.Load(ctx, "task-1")
		require.NoError(t, err)
		assert.Equal(t, constants.TaskStatusCompleted, st.Status)
		assert.Equal(t, constants.PhaseComplete, st.Phase)

		summary, err := audit.ReadSummary(filepath.Join(h.auditRoot, "task-1"))
		require.NoError(t, err)
		assert.Equal(t, "task-1", summary.TaskID)
		assert.Equal(t, string(constants.TaskStatusCompleted), summary.FinalStatus)
		assert.Equal(t, 1, summary.TotalSteps)
		assert.Positive(t, summary.TotalTokens)

		snaps, err := audit.ReadSnapshots(filepath.Join(h.auditRoot, "task-1"))
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Equal(t, constants.ActionComplete, snaps[0].Action)
		assert.Equal(t, "VERIFY", snaps[0].Phase)
	})

	t.Run("escalation maps to escalated status", func(t *testing.T) {
		h := newHarness(t, nil, "action: escalate")
		h.createTask(t, "task-2")

		outcomes, err := h.executor.RunUntilComplete(ctx, "task-2", 0, nil)

		require.NoError(t, err)
		require.Len(t, outcomes, 1)

		st, err := h.store.Load(ctx, "task-2")
		require.NoError(t, err)
		assert.Equal(t, constants.TaskStatusEscalated, st.Status)
		assert.Equal(t, constants.PhaseEscalated, st.Phase)
	})

	t.Run("iteration cap stops a healthy run", func(t *testing.T) {
		h := newHarness(t, nil, "action: read_file", "action: list_files")
		h.createTask(t, "task-3")

		outcomes, err := h.executor.RunUntilComplete(ctx, "task-3", 2, nil)

		require.NoError(t, err)
		require.Len(t, outcomes, 2)
		assert.True(t, outcomes[0].ShouldContinue)
		assert.True(t, outcomes[1].ShouldContinue)
		assert.Equal(t, 2, h.provider.CallCount())

		st, err := h.store.Load(ctx, "task-3")
		require.NoError(t, err)
		assert.Equal(t, constants.TaskStatusStopped, st.Status)
	})

	t.Run("marks a pending task running before stepping", func(t *testing.T) {
		h := newHarness(t, nil, "action: read_file")
		h.createTask(t, "task-4")

		var seen constants.TaskStatus
		_, err := h.executor.RunUntilComplete(ctx, "task-4", 1, func(*domain.StepOutcome) {
			st, loadErr := h.store.Load(ctx, "task-4")
			require.NoError(t, loadErr)
			seen = st.Status
		})

		require.NoError(t, err)
		assert.Equal(t, constants.TaskStatusRunning, seen)
	})

	t.Run("identical failing actions trip the loop detector", func(t *testing.T) {
		script := make([]string, 6)
		for i := range script {
			script[i] = "action: poke_config"
		}
		h := newHarness(t, nil, script...)
		h.createTask(t, "task-5")

		outcomes, err := h.executor.RunUntilComplete(ctx, "task-5", 0, nil)

		require.NoError(t, err)
		require.Len(t, outcomes, 3)

		last := outcomes[len(outcomes)-1]
		assert.False(t, last.ShouldContinue)
		require.NotNil(t, last.LoopDetection)
		assert.True(t, last.LoopDetection.Detected)
		assert.Equal(t, constants.LoopIdenticalAction, last.LoopDetection.Type)
		assert.NotEmpty(t, last.LoopDetection.Suggestions)

		st, err := h.store.Load(ctx, "task-5")
		require.NoError(t, err)
		assert.Equal(t, constants.TaskStatusStopped, st.Status)

		summary, err := audit.ReadSummary(filepath.Join(h.auditRoot, "task-5"))
		require.NoError(t, err)
		assert.Equal(t, string(constants.TaskStatusStopped), summary.FinalStatus)
		assert.Equal(t, 3, summary.TotalSteps)
	})

	t.Run("callback sees every step", func(t *testing.T) {
		h := newHarness(t, nil, "action: read_file", "action: list_files")
		h.createTask(t, "task-6")

		var actions []string
		_, err := h.executor.RunUntilComplete(ctx, "task-6", 2, func(o *domain.StepOutcome) {
			actions = append(actions, o.ActionName)
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"read_file", "list_files"}, actions)
	})

	t.Run("cancellation mid run stops stepping", func(t *testing.T) {
		h := newHarness(t, nil, "action: read_file", "action: list_files")
		h.createTask(t, "task-7")

		runCtx, cancel := context.WithCancel(ctx)
		outcomes, err := h.executor.RunUntilComplete(runCtx, "task-7", 10, func(*domain.StepOutcome) {
			cancel()
		})

		require.NoError(t, err)
		assert.Len(t, outcomes, 1)
		cancel()
	})

	t.Run("returns an error when the task does not exist", func(t *testing.T) {
		h := newHarness(t, nil)

		_, err := h.executor.RunUntilComplete(ctx, "ghost", 1, nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("script exhaustion stops the run as a step failure", func(t *testing.T) {
		h := newHarness(t, nil)
		h.createTask(t, "task-8")

		outcomes, err := h.executor.RunUntilComplete(ctx, "task-8", 5, nil)

		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.False(t, outcomes[0].Success)
		assert.Contains(t, outcomes[0].Error, "llm call")

		st, err := h.store.Load(ctx, "task-8")
		require.NoError(t, err)
		assert.Equal(t, constants.TaskStatusStopped, st.Status)
	})
}

func TestExecutor_tryLoopBreak(t *testing.T) {
	ctx := context.Background()

	t.Run("forces a guarded forward transition when the phase budget is spent", func(t *testing.T) {
		h := newHarness(t, nil)
		h.createTask(t, "task-lb")
		require.NoError(t, h.store.UpdateVerification(ctx, "task-lb", 0, 2, false, nil))
		require.NoError(t, h.store.UpdatePhaseMachine(ctx, "task-lb", domain.PhaseMachineState{
			CurrentPhase: constants.PhaseVerify,
			StepsInPhase: 5,
			PhaseHistory: []constants.Phase{constants.PhaseInit, constants.PhaseImplement},
		}))

		broke := h.executor.tryLoopBreak(ctx, "task-lb", nil, &domain.StepOutcome{
			ActionName: "run_check",
			Result:     constants.ActionResultFailure,
		})

		assert.True(t, broke)
		st, err := h.store.Load(ctx, "task-lb")
		require.NoError(t, err)
		assert.Equal(t, constants.PhaseImplement, st.Phase)
	})

	t.Run("declines when no transition is available", func(t *testing.T) {
		h := newHarness(t, nil)
		h.createTask(t, "task-nb")
		require.NoError(t, h.store.UpdatePhaseMachine(ctx, "task-nb", domain.PhaseMachineState{
			CurrentPhase: constants.PhaseAnalyze,
			StepsInPhase: 1,
			PhaseHistory: []constants.Phase{constants.PhaseInit},
		}))

		broke := h.executor.tryLoopBreak(ctx, "task-nb", nil, &domain.StepOutcome{
			ActionName: "read_file",
			Result:     constants.ActionResultFailure,
		})

		assert.False(t, broke)
		st, err := h.store.Load(ctx, "task-nb")
		require.NoError(t, err)
		assert.Equal(t, constants.PhaseAnalyze, st.Phase)
	})

	t.Run("declines on a terminal task", func(t *testing.T) {
		h := newHarness(t, nil)
		h.createTask(t, "task-tb")
		require.NoError(t, h.store.UpdatePhase(ctx, "task-tb", constants.PhaseFailed))

		broke := h.executor.tryLoopBreak(ctx, "task-tb", nil, &domain.StepOutcome{
			ActionName: "read_file",
			Result:     constants.ActionResultFailure,
		})

		assert.False(t, broke)
	})
}

func TestExecutor_RunMany(t *testing.T) {
	ctx := context.Background()

	t.Run("runs tasks concurrently to completion", func(t *testing.T) {
		h := newHarness(t, nil, "action: complete", "action: complete")
		h.createTask(t, "task-a")
		h.createTask(t, "task-b")
		h.readyToComplete(t, "task-a")
		h.readyToComplete(t, "task-b")

		var mu sync.Mutex
		steps := 0
		results, err := h.executor.RunMany(ctx, []string{"task-a", "task-b"}, 0, func(*domain.StepOutcome) {
			mu.Lock()
			steps++
			mu.Unlock()
		})

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Len(t, results["task-a"], 1)
		assert.Len(t, results["task-b"], 1)
		assert.Equal(t, 2, steps)

		for _, id := range []string{"task-a", "task-b"} {
			st, loadErr := h.store.Load(ctx, id)
			require.NoError(t, loadErr)
			assert.Equal(t, constants.TaskStatusCompleted, st.Status)
		}
	})

	t.Run("missing task surfaces as the group error", func(t *testing.T) {
		h := newHarness(t, nil)

		_, err := h.executor.RunMany(ctx, []string{"ghost"}, 1, nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ghost")
	})
}
