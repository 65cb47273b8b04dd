// Package cli provides the command-line interface for agentforge.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	"github.com/maxxentropy/agentforge-sub001/internal/errors"
	"github.com/maxxentropy/agentforge-sub001/internal/tui"
)

// AddStatusCommand adds the status command to the root command.
func AddStatusCommand(root *cobra.Command) {
	root.AddCommand(newStatusCmd())
}

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the current standing of a task",
		Long: `Display a task's lifecycle status, execution phase, step count,
verification standing, and the files it has modified so far.

Status reads persisted state only; it never touches the workspace or
the LLM and is safe to run while a task is executing elsewhere.

Examples:
  agentforge status task-20260825-143022-a1b2
  agentforge status task-20260825-143022-a1b2 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runStatus(cmd.Context(), cmd, os.Stdout, args[0])
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

// runStatus executes the status command.
func runStatus(ctx context.Context, cmd *cobra.Command, w io.Writer, taskID string) error {
	// Check context cancellation at entry
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

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

	spec, err := store.LoadSpec(ctx, taskID)
	if err != nil {
		return handleStatusError(outputFormat, w, taskID, err)
	}

	if outputFormat == OutputJSON {
		return out.JSON(buildStatusResponse(spec, st))
	}

	displayStatus(out, spec, st)
	return nil
}

// statusResponse is the JSON shape of the status command.
type statusResponse struct {
	TaskID        string                    `json:"task_id"`
	Status        string                    `json:"status"`
	Phase         string                    `json:"phase"`
	Step          int                       `json:"step"`
	Goal          string                    `json:"goal"`
	Verification  domain.VerificationStatus `json:"verification"`
	FilesModified []string                  `json:"files_modified,omitempty"`
	Error         string                    `json:"error,omitempty"`
	LastUpdated   time.Time                 `json:"last_updated"`
}

func buildStatusResponse(spec *domain.TaskSpec, st *domain.TaskState) statusResponse {
	return statusResponse{
		TaskID:        st.TaskID,
		Status:        string(st.Status),
		Phase:         string(st.Phase),
		Step:          st.CurrentStep,
		Goal:          spec.Goal,
		Verification:  st.Verification,
		FilesModified: st.FilesModified(),
		Error:         st.Error,
		LastUpdated:   st.LastUpdated,
	}
}

// displayStatus renders the task standing for a terminal.
func displayStatus(out tui.Output, spec *domain.TaskSpec, st *domain.TaskState) {
	out.Info(fmt.Sprintf("%s  %s", tui.RenderStatus(st.Status), st.TaskID))
	if spec.Goal != "" {
		out.Info(fmt.Sprintf("  Goal:     %s", spec.Goal))
	}
	out.Info(fmt.Sprintf("  Phase:    %s", st.Phase))
	out.Info(fmt.Sprintf("  Step:     %d", st.CurrentStep))
	out.Info(fmt.Sprintf("  Checks:   %d passing, %d failing",
		st.Verification.ChecksPassing, st.Verification.ChecksFailing))
	out.Info(fmt.Sprintf("  Tests:    %s", passFailWord(st.Verification.TestsPassing)))
	if files := st.FilesModified(); len(files) > 0 {
		out.Info(fmt.Sprintf("  Files:    %s", strings.Join(files, ", ")))
	}
	if st.Error != "" {
		out.Warning(fmt.Sprintf("  Error:    %s", st.Error))
	}
	out.Info(fmt.Sprintf("  Updated:  %s", tui.RelativeTime(st.LastUpdated)))

	if action := tui.SuggestedAction(st.Status); action != "" {
		out.Info("")
		out.Info(fmt.Sprintf("Next: %s %s", action, st.TaskID))
	}
}

// handleStatusError handles errors based on output format.
func handleStatusError(format string, w io.Writer, taskID string, err error) error {
	if format == OutputJSON {
		_ = encodeJSONIndented(w, taskErrorResponse{
			TaskID: taskID,
			Error:  err.Error(),
		})
		return errors.ErrJSONErrorOutput
	}
	return err
}

// taskErrorResponse is the JSON error shape for task lookup commands.
type taskErrorResponse struct {
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error"`
}
