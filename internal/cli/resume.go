// Package cli provides the command-line interface for agentforge.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/maxxentropy/agentforge-sub001/internal/errors"
	"github.com/maxxentropy/agentforge-sub001/internal/signal"
	"github.com/maxxentropy/agentforge-sub001/internal/tui"
)

// AddResumeCommand adds the resume command to the root command.
func AddResumeCommand(root *cobra.Command) {
	root.AddCommand(newResumeCmd())
}

// resumeOptions contains all options for the resume command.
type resumeOptions struct {
	taskID        string
	maxIterations int
	workspaceRoot string
	llmCommand    string
}

// newResumeCmd creates the resume command.
func newResumeCmd() *cobra.Command {
	var opts resumeOptions

	cmd := &cobra.Command{
		Use:   "resume <task-id>",
		Short: "Continue an interrupted or stopped task",
		Long: `Continue a task from its persisted state. Working memory, extracted
facts, and verification standing reload from disk; the executor picks up
at the step after the last completed one.

Only non-terminal tasks can resume. Completed, failed, and escalated
tasks are done; inspect them with 'agentforge show'.

File paths in the task are workspace-relative, so run resume from the
same workspace the task was created in (or pass --workspace).

Examples:
  agentforge resume task-20260825-143022-a1b2
  agentforge resume task-20260825-143022-a1b2 --max-iterations 5
  agentforge resume task-20260825-143022-a1b2 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.taskID = args[0]
			err := runResume(cmd.Context(), cmd, os.Stdout, opts)
			// If JSON error was already output, silence cobra's error printing
			// but still return error for non-zero exit code
			if stderrors.Is(err, errors.ErrJSONErrorOutput) {
				cmd.SilenceErrors = true
			}
			return err
		},
	}

	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0,
		"Cap on executor steps for this run (0 uses config)")
	cmd.Flags().StringVarP(&opts.workspaceRoot, "workspace", "w", "",
		"Workspace root directory (defaults to the current directory)")
	cmd.Flags().StringVar(&opts.llmCommand, "llm", "",
		"LLM command to invoke (overrides llm.command from config)")

	return cmd
}

// runResume executes the resume command.
func runResume(ctx context.Context, cmd *cobra.Command, w io.Writer, opts resumeOptions) error {
	// Check context cancellation at entry
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Create signal handler for graceful shutdown on Ctrl+C
	sigHandler := signal.NewHandler(ctx)
	defer sigHandler.Stop()
	ctx = sigHandler.Context()

	logger := GetLogger()
	outputFormat := cmd.Flag("output").Value.String()

	tui.CheckNoColor()
	out := tui.NewOutput(w, outputFormat)

	wf, err := buildWorkflow(ctx, out, runOptions{ //nolint:contextcheck // context is properly checked and used
		taskID:        opts.taskID,
		maxIterations: opts.maxIterations,
		workspaceRoot: opts.workspaceRoot,
		llmCommand:    opts.llmCommand,
	})
	if err != nil {
		return handleRunError(outputFormat, w, opts.taskID, err)
	}

	report, err := wf.Resume(ctx, opts.taskID) //nolint:contextcheck // context is properly checked and used

	// Check if we were interrupted by Ctrl+C
	select {
	case <-sigHandler.Interrupted():
		return handleInterruption(out, opts.taskID, err)
	default:
	}

	if err != nil {
		if stderrors.Is(err, errors.ErrTaskTerminal) {
			return handleTerminalTask(outputFormat, w, out, opts.taskID, err)
		}
		logger.Error().Err(err).
			Str("task_id", opts.taskID).
			Msg("resume failed")
		return handleRunError(outputFormat, w, opts.taskID, err)
	}

	return displayReport(out, outputFormat, report)
}

// handleTerminalTask explains that a finished task cannot be resumed.
func handleTerminalTask(format string, w io.Writer, out tui.Output, taskID string, err error) error {
	if format == OutputJSON {
		_ = encodeJSONIndented(w, runErrorResponse{
			Success: false,
			TaskID:  taskID,
			Error:   err.Error(),
		})
		return errors.ErrJSONErrorOutput
	}
	out.Warning(fmt.Sprintf("Task %s already finished", taskID))
	out.Info(fmt.Sprintf("  View its report with: agentforge show %s", taskID))
	return err
}
