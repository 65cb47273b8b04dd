// Package cli provides the command-line interface for agentforge.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maxxentropy/agentforge-sub001/internal/config"
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	"github.com/maxxentropy/agentforge-sub001/internal/errors"
	"github.com/maxxentropy/agentforge-sub001/internal/executor"
	"github.com/maxxentropy/agentforge-sub001/internal/signal"
	"github.com/maxxentropy/agentforge-sub001/internal/tui"
	"github.com/maxxentropy/agentforge-sub001/internal/workflow"
)

// AddRunCommand adds the run command to the root command.
func AddRunCommand(root *cobra.Command) {
	root.AddCommand(newRunCmd())
}

// runOptions contains all options for the run command.
type runOptions struct {
	file          string
	checkID       string
	line          int
	description   string
	taskID        string
	maxIterations int
	workspaceRoot string
	llmCommand    string
}

// newRunCmd creates the run command.
func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fix one conformance check violation",
		Long: `Create a fix task for a failing conformance check and run it to
termination. The engine analyzes the file, plans an approach, applies
verified modifications, and re-runs the check and the test suite until
the violation is resolved or the step budget runs out.

Task state persists under ~/.agentforge/tasks; an interrupted run can be
continued with 'agentforge resume'.

Examples:
  agentforge run --file src/parser.py --check complexity-10
  agentforge run --file src/api.py --check no-bare-except --line 42
  agentforge run --file src/db.py --check complexity-10 --max-iterations 10
  agentforge run --file src/db.py --check complexity-10 --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runRun(cmd.Context(), cmd, os.Stdout, opts)
			// If JSON error was already output, silence cobra's error printing
			// but still return error for non-zero exit code
			if stderrors.Is(err, errors.ErrJSONErrorOutput) {
				cmd.SilenceErrors = true
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "",
		"Workspace-relative path of the file the check flagged (required)")
	cmd.Flags().StringVarP(&opts.checkID, "check", "c", "",
		"Identifier of the failing conformance check (required)")
	cmd.Flags().IntVarP(&opts.line, "line", "l", 0,
		"Line number the check reported (0 when unknown)")
	cmd.Flags().StringVarP(&opts.description, "description", "d", "",
		"Human-readable finding from the check")
	cmd.Flags().StringVar(&opts.taskID, "task-id", "",
		"Pin the task identifier (generated when empty)")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0,
		"Cap on executor steps for this run (0 uses config)")
	cmd.Flags().StringVarP(&opts.workspaceRoot, "workspace", "w", "",
		"Workspace root directory (defaults to the current directory)")
	cmd.Flags().StringVar(&opts.llmCommand, "llm", "",
		"LLM command to invoke (overrides llm.command from config)")

	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("check")

	return cmd
}

// runRun executes the run command.
func runRun(ctx context.Context, cmd *cobra.Command, w io.Writer, opts runOptions) error {
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

	wf, err := buildWorkflow(ctx, out, opts) //nolint:contextcheck // context is properly checked and used
	if err != nil {
		return handleRunError(outputFormat, w, opts.taskID, err)
	}

	violation := workflow.Violation{
		TaskID:      opts.taskID,
		File:        opts.file,
		CheckID:     opts.checkID,
		Line:        opts.line,
		Description: opts.description,
	}

	report, err := wf.FixViolation(ctx, violation) //nolint:contextcheck // context is properly checked and used

	// Check if we were interrupted by Ctrl+C
	select {
	case <-sigHandler.Interrupted():
		return handleInterruption(out, opts.taskID, err)
	default:
	}

	if err != nil {
		logger.Error().Err(err).
			Str("file", opts.file).
			Str("check", opts.checkID).
			Msg("fix run failed")
		return handleRunError(outputFormat, w, opts.taskID, err)
	}

	return displayReport(out, outputFormat, report)
}

// buildWorkflow wires the store, provider, and engine config for a run.
func buildWorkflow(ctx context.Context, out tui.Output, opts runOptions) (*workflow.Workflow, error) {
	logger := GetLogger()

	workspaceRoot, err := workspaceRootOrCwd(opts.workspaceRoot)
	if err != nil {
		return nil, err
	}

	overrides := &config.Config{}
	overrides.LLM.Command = opts.llmCommand
	overrides.Engine.MaxIterations = opts.maxIterations

	cfg, err := loadEngineConfig(ctx, logger, overrides)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("workspace_root", workspaceRoot).
		Str("llm_command", cfg.LLM.Command).
		Int("max_iterations", cfg.Engine.MaxIterations).
		Msg("run configuration resolved")

	store, err := newTaskStore()
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	return workflow.New(store, provider, engineConfig(cfg, workspaceRoot),
		workflow.WithLogger(logger),
		workflow.WithStepCallback(stepProgress(out)),
	), nil
}

// stepProgress returns a callback that prints one line per completed step.
// JSON output mode discards these lines; only the final report is emitted.
func stepProgress(out tui.Output) executor.StepCallback {
	step := 0
	return func(outcome *domain.StepOutcome) {
		step++
		if !outcome.Success {
			out.Warning(fmt.Sprintf("Step %d: %s failed: %s", step, outcome.ActionName, outcome.Error))
			return
		}
		line := fmt.Sprintf("Step %d: %s %s (%s)",
			step, outcome.ActionName, outcome.Result, formatDuration(outcome.DurationMs))
		out.Info(line)
	}
}

// handleInterruption tells the user how to continue after Ctrl+C.
// Task state was persisted after the last completed step.
func handleInterruption(out tui.Output, taskID string, err error) error {
	out.Warning("\nInterrupt received - task state saved")
	if taskID != "" {
		out.Info(fmt.Sprintf("Resume with: agentforge resume %s", taskID))
	} else {
		out.Info("Run 'agentforge list' to find the task, then 'agentforge resume <task-id>'.")
	}
	if err != nil {
		return err
	}
	return context.Canceled
}

// handleRunError handles errors based on output format.
func handleRunError(format string, w io.Writer, taskID string, err error) error {
	if format == OutputJSON {
		_ = encodeJSONIndented(w, runErrorResponse{
			Success: false,
			TaskID:  taskID,
			Error:   err.Error(),
		})
		return errors.ErrJSONErrorOutput
	}
	return err
}

// runErrorResponse represents the JSON output for failed run operations.
type runErrorResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id,omitempty"`
	Error   string `json:"error"`
}

// displayReport outputs the final report in the appropriate format.
func displayReport(out tui.Output, format string, report *workflow.FixReport) error {
	if format == OutputJSON {
		return out.JSON(report)
	}

	headline := fmt.Sprintf("Task %s: %s", report.TaskID, report.Status)
	switch report.Status {
	case constants.TaskStatusCompleted:
		out.Success(headline)
	case constants.TaskStatusFailed:
		out.Error(stderrors.New(headline))
	default:
		out.Warning(headline)
	}

	out.Info(fmt.Sprintf("  Phase:    %s", report.Phase))
	out.Info(fmt.Sprintf("  Steps:    %d", report.Steps))
	if report.TokensUsed > 0 {
		out.Info(fmt.Sprintf("  Tokens:   %d", report.TokensUsed))
	}
	out.Info(fmt.Sprintf("  Checks:   %d passing, %d failing",
		report.Verification.ChecksPassing, report.Verification.ChecksFailing))
	out.Info(fmt.Sprintf("  Tests:    %s", passFailWord(report.Verification.TestsPassing)))
	if len(report.FilesModified) > 0 {
		out.Info(fmt.Sprintf("  Files:    %s", strings.Join(report.FilesModified, ", ")))
	}
	if report.Summary != "" {
		out.Info(fmt.Sprintf("  Summary:  %s", report.Summary))
	}
	out.Info("")
	out.Info(fmt.Sprintf("Full report: agentforge show %s", report.TaskID))

	return nil
}

// passFailWord renders a boolean test standing for display.
func passFailWord(passing bool) string {
	if passing {
		return "passing"
	}
	return "failing"
}

// formatDuration converts milliseconds to a human-readable duration string.
func formatDuration(ms int64) string {
	seconds := ms / 1000
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	secs := seconds % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, secs)
}
