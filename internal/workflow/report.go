package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

// FixReport summarizes a task's final standing after a run.
type FixReport struct {
	// TaskID identifies the task the report describes.
	TaskID string `json:"task_id"`

	// Status is the task's lifecycle state after the run.
	Status constants.TaskStatus `json:"status"`

	// Phase is the phase machine's final position.
	Phase constants.Phase `json:"phase"`

	// Steps counts completed steps across the task's whole life.
	Steps int `json:"steps"`

	// TokensUsed totals prompt and response tokens for this run only.
	TokensUsed int `json:"tokens_used,omitempty"`

	// Verification is the final check and test standing.
	Verification domain.VerificationStatus `json:"verification"`

	// FilesModified lists every file the task changed.
	FilesModified []string `json:"files_modified,omitempty"`

	// Facts are the active facts the task established.
	Facts []domain.Fact `json:"facts,omitempty"`

	// Summary is the closing statement: the completion summary, the
	// cannot-fix reason, or the fatal error.
	Summary string `json:"summary"`

	// ReportFile names the markdown artifact under outputs, when saved.
	ReportFile string `json:"report_file,omitempty"`
}

// buildReport loads the final state and saves the markdown report as a
// versioned output artifact. The artifact is best-effort; the report
// value is not.
func (w *Workflow) buildReport(ctx context.Context, taskID string, tokens int) (*FixReport, error) {
	st, err := w.store.Load(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("loading final state: %w", err)
	}
	spec, err := w.store.LoadSpec(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("loading task spec: %w", err)
	}
	facts, err := w.openMemory(taskID).ActiveFacts()
	if err != nil {
		w.logger.Warn().Err(err).Str("task_id", taskID).Msg("facts unavailable for report")
	}

	report := &FixReport{
		TaskID:        taskID,
		Status:        st.Status,
		Phase:         st.Phase,
		Steps:         st.CurrentStep,
		TokensUsed:    tokens,
		Verification:  st.Verification,
		FilesModified: st.FilesModified(),
		Facts:         facts,
		Summary:       summaryFor(st),
	}

	name, err := w.store.SaveVersionedArtifact(ctx, taskID, constants.ArtifactKindOutputs,
		constants.TaskReportFileName, []byte(renderReport(spec, report)))
	if err != nil {
		w.logger.Warn().Err(err).Str("task_id", taskID).Msg("report artifact not saved")
		return report, nil
	}
	report.ReportFile = name

	w.logger.Info().
		Str("task_id", taskID).
		Str("status", string(report.Status)).
		Int("steps", report.Steps).
		Str("report", name).
		Msg("fix run finished")
	return report, nil
}

// summaryFor picks the most specific closing statement the run left
// behind.
func summaryFor(st *domain.TaskState) string {
	if s := st.ContextString(constants.CtxCompletionSummary); s != "" {
		return s
	}
	if r := st.ContextString(constants.CtxCannotFixReason); r != "" {
		return "Cannot fix: " + r
	}
	if st.Error != "" {
		return st.Error
	}
	switch st.Status {
	case constants.TaskStatusCompleted:
		return "Task complete"
	case constants.TaskStatusEscalated:
		return "Escalated to human review"
	case constants.TaskStatusFailed:
		return "Task failed"
	default:
		return fmt.Sprintf("Stopped in %s after %d steps", st.Phase, st.CurrentStep)
	}
}

// renderReport produces the markdown saved under outputs and shown by
// the CLI.
func renderReport(spec *domain.TaskSpec, r *FixReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Fix Report: %s\n\n", r.TaskID)
	fmt.Fprintf(&b, "- Status: %s\n", r.Status)
	fmt.Fprintf(&b, "- Phase: %s\n", r.Phase)
	fmt.Fprintf(&b, "- Steps: %d\n", r.Steps)
	if r.TokensUsed > 0 {
		fmt.Fprintf(&b, "- Tokens used: %d\n", r.TokensUsed)
	}
	fmt.Fprintf(&b, "- Checks: %d passing, %d failing\n", r.Verification.ChecksPassing, r.Verification.ChecksFailing)
	fmt.Fprintf(&b, "- Tests passing: %t\n", r.Verification.TestsPassing)

	fmt.Fprintf(&b, "\n## Goal\n\n%s\n", spec.Goal)

	if len(r.FilesModified) > 0 {
		b.WriteString("\n## Files Modified\n\n")
		for _, f := range r.FilesModified {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	if len(r.Facts) > 0 {
		b.WriteString("\n## Established Facts\n\n")
		for _, fact := range r.Facts {
			fmt.Fprintf(&b, "- [%s] %s (confidence %.1f)\n", fact.Category, fact.Statement, fact.Confidence)
		}
	}

	fmt.Fprintf(&b, "\n## Outcome\n\n%s\n", r.Summary)
	return b.String()
}
