package cli

// This file contains shared helpers for testing CLI run functions.
// These helpers are only available in test files (*_test.go).

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	"github.com/maxxentropy/agentforge-sub001/internal/prompt"
	"github.com/maxxentropy/agentforge-sub001/internal/state"
)

// newTestCommand builds a root command with global flags and a child
// command the run functions can read the output flag through.
func newTestCommand(t *testing.T, use string) *cobra.Command {
	t.Helper()

	rootCmd := &cobra.Command{Use: "agentforge"}
	AddGlobalFlags(rootCmd, &GlobalFlags{})

	childCmd := &cobra.Command{Use: use}
	rootCmd.AddCommand(childCmd)

	return childCmd
}

// setJSONOutput switches the inherited output flag to JSON.
func setJSONOutput(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	require.NoError(t, cmd.Root().PersistentFlags().Set("output", OutputJSON))
}

// newTestStore creates a file store rooted at a temp directory and
// points the environment at it so newTaskStore() finds the same files.
func newTestStore(t *testing.T) *state.FileStore {
	t.Helper()

	t.Setenv(constants.ForgeHomeEnvVar, t.TempDir())

	store, err := state.NewFileStore("")
	require.NoError(t, err)
	return store
}

// createTestTask writes a pending task into the store.
func createTestTask(t *testing.T, store *state.FileStore, taskID string) {
	t.Helper()

	spec := &domain.TaskSpec{
		TaskID:          taskID,
		TaskType:        prompt.TaskTypeFixViolation,
		Goal:            "Fix complexity-10 in src/parser.py",
		SuccessCriteria: []string{"run_check reports zero violations"},
		CreatedAt:       time.Now().UTC(),
	}
	_, err := store.CreateTask(context.Background(), spec, nil)
	require.NoError(t, err)
}

// mockTerminalCheckFunc replaces terminalCheck with a stub. The
// returned cleanup function should be deferred to restore the original.
func mockTerminalCheckFunc(isTerminal bool) func() {
	original := terminalCheck
	terminalCheck = func() bool { return isTerminal }
	return func() { terminalCheck = original }
}
