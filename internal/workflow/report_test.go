package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

func TestSummaryFor(t *testing.T) {
	t.Run("prefers the completion summary", func(t *testing.T) {
		st := &domain.TaskState{
			Status: constants.TaskStatusCompleted,
			Error:  "stale error",
			ContextData: map[string]any{
				constants.CtxCompletionSummary: "Reduced complexity from 12 to 8",
				constants.CtxCannotFixReason:   "should not win",
			},
		}
		assert.Equal(t, "Reduced complexity from 12 to 8", summaryFor(st))
	})

	t.Run("falls back to the cannot-fix reason", func(t *testing.T) {
		st := &domain.TaskState{
			Status: constants.TaskStatusEscalated,
			ContextData: map[string]any{
				constants.CtxCannotFixReason: "violation requires an API change",
			},
		}
		assert.Equal(t, "Cannot fix: violation requires an API change", summaryFor(st))
	})

	t.Run("reports the fatal error", func(t *testing.T) {
		st := &domain.TaskState{
			Status: constants.TaskStatusFailed,
			Error:  "llm call: context deadline exceeded",
		}
		assert.Equal(t, "llm call: context deadline exceeded", summaryFor(st))
	})

	t.Run("maps terminal statuses", func(t *testing.T) {
		assert.Equal(t, "Task complete",
			summaryFor(&domain.TaskState{Status: constants.TaskStatusCompleted}))
		assert.Equal(t, "Escalated to human review",
			summaryFor(&domain.TaskState{Status: constants.TaskStatusEscalated}))
		assert.Equal(t, "Task failed",
			summaryFor(&domain.TaskState{Status: constants.TaskStatusFailed}))
	})

	t.Run("describes a stopped run", func(t *testing.T) {
		st := &domain.TaskState{
			Status:      constants.TaskStatusStopped,
			Phase:       constants.PhaseImplement,
			CurrentStep: 6,
		}
		assert.Equal(t, "Stopped in IMPLEMENT after 6 steps", summaryFor(st))
	})
}

func TestRenderReport(t *testing.T) {
	spec := &domain.TaskSpec{Goal: "Fix the complexity violation in src/m.py at line 4"}

	t.Run("renders every populated section", func(t *testing.T) {
		r := &FixReport{
			TaskID:     "task-20260825-100000",
			Status:     constants.TaskStatusCompleted,
			Phase:      constants.PhaseComplete,
			Steps:      3,
			TokensUsed: 8200,
			Verification: domain.VerificationStatus{
				ChecksPassing:      1,
				ChecksFailing:      0,
				TestsPassing:       true,
				ReadyForCompletion: true,
			},
			FilesModified: []string{"src/m.py"},
			Facts: []domain.Fact{
				{Category: constants.FactVerification, Statement: "Conformance check passed", Confidence: 1.0},
			},
			Summary: "Task complete",
		}

		md := renderReport(spec, r)

		assert.Contains(t, md, "# Fix Report: task-20260825-100000")
		assert.Contains(t, md, "- Status: completed")
		assert.Contains(t, md, "- Phase: COMPLETE")
		assert.Contains(t, md, "- Steps: 3")
		assert.Contains(t, md, "- Tokens used: 8200")
		assert.Contains(t, md, "- Checks: 1 passing, 0 failing")
		assert.Contains(t, md, "- Tests passing: true")
		assert.Contains(t, md, "## Goal\n\nFix the complexity violation in src/m.py at line 4")
		assert.Contains(t, md, "## Files Modified\n\n- src/m.py")
		assert.Contains(t, md, "- [VERIFICATION] Conformance check passed (confidence 1.0)")
		assert.Contains(t, md, "## Outcome\n\nTask complete")
	})

	t.Run("omits empty sections", func(t *testing.T) {
		r := &FixReport{
			TaskID:  "task-20260825-100001",
			Status:  constants.TaskStatusStopped,
			Phase:   constants.PhaseImplement,
			Steps:   2,
			Summary: "Stopped in IMPLEMENT after 2 steps",
		}

		md := renderReport(spec, r)

		assert.NotContains(t, md, "Tokens used")
		assert.NotContains(t, md, "## Files Modified")
		assert.NotContains(t, md, "## Established Facts")
		assert.Contains(t, md, "- Tests passing: false")
	})
}
