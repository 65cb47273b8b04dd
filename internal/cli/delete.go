// Package cli provides the command-line interface for agentforge.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/errors"
	"github.com/maxxentropy/agentforge-sub001/internal/tui"
)

// AddDeleteCommand adds the delete command to the root command.
func AddDeleteCommand(root *cobra.Command) {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <task-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task and its stored data",
		Long: `Remove a task's state, action log, working memory, and artifacts
from the task store.

This operation cannot be undone. Running tasks cannot be deleted; stop
the run first or wait for it to finish. Use --force to skip
confirmation.

Examples:
  agentforge delete task-20260825-143022-a1b2          # Confirm and delete
  agentforge delete task-20260825-143022-a1b2 --force  # Delete without confirmation`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runDelete(cmd.Context(), cmd, os.Stdout, args[0], force)
			// If JSON error was already output, silence cobra's error printing
			// but still return error for non-zero exit code
			if stderrors.Is(err, errors.ErrJSONErrorOutput) {
				cmd.SilenceErrors = true
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	root.AddCommand(cmd)
}

// runDelete executes the delete command.
func runDelete(ctx context.Context, cmd *cobra.Command, w io.Writer, taskID string, force bool) error {
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
		return handleDeleteError(outputFormat, w, taskID, err)
	}

	st, err := store.Load(ctx, taskID)
	if err != nil {
		return handleDeleteError(outputFormat, w, taskID, err)
	}

	// Running tasks own their store directory; deleting it underneath
	// the executor would corrupt the next persist.
	if st.Status == constants.TaskStatusRunning {
		return handleDeleteError(outputFormat, w, taskID,
			fmt.Errorf("task '%s' is still running: %w", taskID, errors.ErrTaskRunning))
	}

	confirmed, err := deleteConfirmation(taskID, force, outputFormat, w)
	if err != nil {
		return err
	}
	if !confirmed {
		_, _ = fmt.Fprintln(w, "Operation canceled.")
		return nil
	}

	if err := store.DeleteTask(ctx, taskID); err != nil {
		return handleDeleteError(outputFormat, w, taskID, err)
	}

	if outputFormat == OutputJSON {
		return out.JSON(deleteResult{Status: "deleted", TaskID: taskID})
	}

	out.Success(fmt.Sprintf("Task '%s' deleted", taskID))
	return nil
}

// deleteConfirmation handles the user confirmation flow.
// Returns (true, nil) when force is set or the user confirmed.
func deleteConfirmation(taskID string, force bool, outputFormat string, w io.Writer) (bool, error) {
	if force {
		return true, nil
	}

	if !terminalCheck() {
		if outputFormat == OutputJSON {
			_ = encodeJSONIndented(w, deleteResult{
				Status: "error",
				TaskID: taskID,
				Error:  "cannot delete task: use --force in non-interactive mode",
			})
			return false, errors.ErrJSONErrorOutput
		}
		return false, fmt.Errorf("cannot delete task '%s': %w", taskID, errors.ErrNonInteractiveMode)
	}

	confirmed, err := confirmDelete(taskID)
	if err != nil {
		return false, fmt.Errorf("failed to get confirmation: %w", err)
	}

	return confirmed, nil
}

// deleteResult is the JSON shape of the delete command.
type deleteResult struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
	Error  string `json:"error,omitempty"`
}

// handleDeleteError reports a delete failure in the requested format.
func handleDeleteError(format string, w io.Writer, taskID string, err error) error {
	if format == OutputJSON {
		_ = encodeJSONIndented(w, deleteResult{
			Status: "error",
			TaskID: taskID,
			Error:  err.Error(),
		})
		return errors.ErrJSONErrorOutput
	}
	return err
}
