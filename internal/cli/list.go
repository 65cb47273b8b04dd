// Package cli provides the command-line interface for agentforge.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	"github.com/maxxentropy/agentforge-sub001/internal/errors"
	"github.com/maxxentropy/agentforge-sub001/internal/tui"
)

// AddListCommand adds the list command to the root command.
func AddListCommand(root *cobra.Command) {
	root.AddCommand(newListCmd())
}

// newListCmd creates the list command.
func newListCmd() *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long: `Display all tasks under the agentforge home, newest first, with
their status, phase, step count, and last update time.

Examples:
  agentforge list                      # All tasks as a styled table
  agentforge list --status escalated   # Only tasks awaiting review
  agentforge list --output json        # Machine-readable array`,
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runList(cmd.Context(), cmd, os.Stdout, statusFilter)
			// If JSON error was already output, silence cobra's error printing
			// but still return error for non-zero exit code
			if stderrors.Is(err, errors.ErrJSONErrorOutput) {
				cmd.SilenceErrors = true
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "",
		"Filter by status (pending|running|completed|failed|escalated|stopped)")

	return cmd
}

// runList executes the list command.
func runList(ctx context.Context, cmd *cobra.Command, w io.Writer, statusFilter string) error {
	// Check context cancellation at entry
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	logger := GetLogger()
	outputFormat := cmd.Flag("output").Value.String()

	tui.CheckNoColor()

	status := constants.TaskStatus(statusFilter)
	if statusFilter != "" && !status.Valid() {
		return fmt.Errorf("invalid status filter '%s' (expected one of pending, running, completed, failed, escalated, stopped): %w",
			statusFilter, errors.ErrInvalidArgument)
	}

	store, err := newTaskStore()
	if err != nil {
		return err
	}

	tasks, err := store.ListTasks(ctx, status)
	if err != nil {
		logger.Debug().Err(err).Msg("failed to list tasks")
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	if len(tasks) == 0 {
		if outputFormat == OutputJSON {
			_, _ = fmt.Fprintln(w, "[]")
		} else if statusFilter != "" {
			_, _ = fmt.Fprintf(w, "No %s tasks.\n", statusFilter)
		} else {
			_, _ = fmt.Fprintln(w, "No tasks. Run 'agentforge run' to create one.")
		}
		return nil
	}

	if outputFormat == OutputJSON {
		return outputTasksJSON(w, tasks)
	}

	outputTasksTable(w, tasks)
	return nil
}

// listEntry is one task in the list command's JSON array.
type listEntry struct {
	TaskID      string    `json:"task_id"`
	Status      string    `json:"status"`
	Phase       string    `json:"phase"`
	Step        int       `json:"step"`
	LastUpdated time.Time `json:"last_updated"`
}

// outputTasksJSON writes the tasks as a JSON array.
func outputTasksJSON(w io.Writer, tasks []*domain.TaskState) error {
	entries := make([]listEntry, 0, len(tasks))
	for _, st := range tasks {
		entries = append(entries, listEntry{
			TaskID:      st.TaskID,
			Status:      string(st.Status),
			Phase:       string(st.Phase),
			Step:        st.CurrentStep,
			LastUpdated: st.LastUpdated,
		})
	}
	return encodeJSONIndented(w, entries)
}

// outputTasksTable writes the tasks as a styled table with the status
// cell colored by its semantic color.
func outputTasksTable(w io.Writer, tasks []*domain.TaskState) {
	table := tui.NewTable(w, []tui.TableColumn{
		{Name: "TASK", Width: 26, Align: tui.AlignLeft},
		{Name: "STATUS", Width: 12, Align: tui.AlignLeft},
		{Name: "PHASE", Width: 10, Align: tui.AlignLeft},
		{Name: "STEP", Width: 4, Align: tui.AlignRight},
		{Name: "UPDATED", Width: 15, Align: tui.AlignLeft},
	})
	table.WriteHeader()

	colors := tui.TaskStatusColors()
	attention := 0
	for _, st := range tasks {
		if tui.IsAttentionStatus(st.Status) {
			attention++
		}
		table.WriteStyledRow([]string{
			st.TaskID,
			tui.FormatStatusWithIcon(st.Status, string(st.Status)),
			string(st.Phase),
			fmt.Sprintf("%d", st.CurrentStep),
			tui.RelativeTime(st.LastUpdated),
		}, 1, lipgloss.NewStyle().Foreground(colors[st.Status]))
	}

	_, _ = fmt.Fprintln(w)
	if attention > 0 {
		_, _ = fmt.Fprintf(w, "%d task(s), %d needing attention. Inspect with 'agentforge status <task-id>'.\n",
			len(tasks), attention)
	} else {
		_, _ = fmt.Fprintf(w, "%d task(s).\n", len(tasks))
	}
}
