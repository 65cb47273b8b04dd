// Package cli provides the command-line interface for agentforge.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maxxentropy/agentforge-sub001/internal/audit"
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/errors"
	"github.com/maxxentropy/agentforge-sub001/internal/state"
	"github.com/maxxentropy/agentforge-sub001/internal/tui"
)

var (
	glamourRenderer     *glamour.TermRenderer //nolint:gochecknoglobals // cached renderer for performance
	glamourRendererOnce sync.Once             //nolint:gochecknoglobals // sync.Once for renderer initialization
)

// getGlamourRenderer returns a cached glamour renderer for markdown
// rendering. Nil when the terminal profile cannot be detected; callers
// fall back to plain text.
func getGlamourRenderer() *glamour.TermRenderer {
	glamourRendererOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			glamourRenderer = r
		}
	})
	return glamourRenderer
}

// AddShowCommand adds the show command to the root command.
func AddShowCommand(root *cobra.Command) {
	root.AddCommand(newShowCmd())
}

// newShowCmd creates the show command.
func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task's full report",
		Long: `Render the markdown report a finished run saved under the task's
output artifacts, plus token totals from the audit trail when auditing
was enabled.

Each run writes a new report version; show always displays the latest.
Tasks that have not finished a run yet fall back to the live status
view.

Examples:
  agentforge show task-20260825-143022-a1b2
  agentforge show task-20260825-143022-a1b2 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runShow(cmd.Context(), cmd, os.Stdout, args[0])
			// If JSON error was already output, silence cobra's error printing
			// but still return error for non-zero exit code
			if stderrors.Is(err, errors.ErrJSONErrorOutput) {
				cmd.SilenceErrors = true
			}
			return err
		},
	}

	return cmd
}

// runShow executes the show command.
func runShow(ctx context.Context, cmd *cobra.Command, w io.Writer, taskID string) error {
	// Check context cancellation at entry
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	logger := GetLogger()
	outputFormat := cmd.Flag("output").Value.String()

	tui.CheckNoColor()
	out := tui.NewOutput(w, outputFormat)

	store, err := newTaskStore()
	if err != nil {
		return handleStatusError(outputFormat, w, taskID, err)
	}

	st, err := store.Load(ctx, taskID)
	if err != nil {
		return handleStatusError(outputFormat, w, taskID, err)
	}

	reportName, markdown, err := latestReport(ctx, store, taskID)
	if err != nil {
		logger.Debug().Err(err).Str("task_id", taskID).Msg("failed to read report artifact")
		return handleStatusError(outputFormat, w, taskID, err)
	}

	summary := readAuditSummary(taskID, logger)

	if outputFormat == OutputJSON {
		return out.JSON(showResponse{
			TaskID:     taskID,
			Status:     string(st.Status),
			Phase:      string(st.Phase),
			Step:       st.CurrentStep,
			ReportFile: reportName,
			Report:     markdown,
			Audit:      summary,
		})
	}

	if markdown == "" {
		// No finished run yet; show the live standing instead.
		spec, specErr := store.LoadSpec(ctx, taskID)
		if specErr != nil {
			return handleStatusError(outputFormat, w, taskID, specErr)
		}
		displayStatus(out, spec, st)
		out.Info("")
		out.Info("No report saved yet. A report is written when a run finishes.")
		return nil
	}

	renderMarkdown(w, markdown)
	displayAuditSummary(out, summary)
	return nil
}

// showResponse is the JSON shape of the show command.
type showResponse struct {
	TaskID     string         `json:"task_id"`
	Status     string         `json:"status"`
	Phase      string         `json:"phase"`
	Step       int            `json:"step"`
	ReportFile string         `json:"report_file,omitempty"`
	Report     string         `json:"report,omitempty"`
	Audit      *audit.Summary `json:"audit,omitempty"`
}

// latestReport loads the newest report version from the task's output
// artifacts. Returns empty strings when no report exists yet.
func latestReport(ctx context.Context, store *state.FileStore, taskID string) (string, string, error) {
	names, err := store.ListArtifacts(ctx, taskID, constants.ArtifactKindOutputs)
	if err != nil {
		return "", "", err
	}

	name := latestReportName(names)
	if name == "" {
		return "", "", nil
	}

	content, err := store.GetArtifact(ctx, taskID, constants.ArtifactKindOutputs, name)
	if err != nil {
		return "", "", err
	}
	return name, string(content), nil
}

// latestReportName picks the highest report version from artifact
// names. Versioned artifacts are named base.N.ext, so lexical order is
// wrong past version 9 and the number must be compared numerically.
func latestReportName(names []string) string {
	ext := filepath.Ext(constants.TaskReportFileName)
	base := strings.TrimSuffix(constants.TaskReportFileName, ext)
	pattern := base + ".%d" + ext

	best, bestVersion := "", 0
	for _, name := range names {
		var v int
		if _, err := fmt.Sscanf(name, pattern, &v); err == nil && v > bestVersion {
			best, bestVersion = name, v
		}
	}
	return best
}

// readAuditSummary loads the audit summary for a task, nil when
// auditing was off or the task has not finished a run.
func readAuditSummary(taskID string, logger zerolog.Logger) *audit.Summary {
	home, err := forgeHome()
	if err != nil {
		return nil
	}
	summary, err := audit.ReadSummary(audit.TaskDir(home, taskID))
	if err != nil {
		logger.Debug().Err(err).Str("task_id", taskID).Msg("no audit summary")
		return nil
	}
	return summary
}

// renderMarkdown writes markdown through glamour, falling back to the
// raw text when no renderer is available.
func renderMarkdown(w io.Writer, markdown string) {
	if renderer := getGlamourRenderer(); renderer != nil {
		if rendered, err := renderer.Render(markdown); err == nil {
			_, _ = fmt.Fprint(w, rendered)
			return
		}
	}
	_, _ = fmt.Fprintln(w, markdown)
}

// displayAuditSummary prints token accounting from the audit trail.
func displayAuditSummary(out tui.Output, summary *audit.Summary) {
	if summary == nil {
		return
	}
	out.Info(fmt.Sprintf("Audit: %d steps, %d tokens (%d prompt, %d response)",
		summary.TotalSteps, summary.TotalTokens, summary.PromptTokens, summary.ResponseTokens))
	if summary.CompactionEvents > 0 {
		out.Info(fmt.Sprintf("       %d compaction(s) saved %d tokens",
			summary.CompactionEvents, summary.TokensSaved))
	}
}
