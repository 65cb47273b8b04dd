package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/errors"
)

func TestDeleteCommand_Structure(t *testing.T) {
	flags := &GlobalFlags{}
	rootCmd := &cobra.Command{Use: "agentforge"}
	AddGlobalFlags(rootCmd, flags)
	AddDeleteCommand(rootCmd)

	deleteCmd, _, err := rootCmd.Find([]string{"delete"})
	require.NoError(t, err)
	assert.NotNil(t, deleteCmd)
	assert.Equal(t, "delete", deleteCmd.Name())
	assert.Contains(t, deleteCmd.Aliases, "rm")

	forceFlag := deleteCmd.Flag("force")
	require.NotNil(t, forceFlag, "--force flag should exist")
	assert.Equal(t, "f", forceFlag.Shorthand)
}

func TestDeleteCommand_RequiresArg(t *testing.T) {
	flags := &GlobalFlags{}
	rootCmd := &cobra.Command{Use: "agentforge"}
	AddGlobalFlags(rootCmd, flags)
	AddDeleteCommand(rootCmd)

	rootCmd.SetArgs([]string{"delete"})
	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestRunDelete_TaskNotFound(t *testing.T) {
	newTestStore(t)
	deleteCmd := newTestCommand(t, "delete")

	var buf bytes.Buffer
	err := runDelete(context.Background(), deleteCmd, &buf, "nonexistent", true)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)
}

func TestRunDelete_TaskNotFound_JSON(t *testing.T) {
	newTestStore(t)
	deleteCmd := newTestCommand(t, "delete")
	setJSONOutput(t, deleteCmd)

	var buf bytes.Buffer
	err := runDelete(context.Background(), deleteCmd, &buf, "nonexistent", true)

	require.ErrorIs(t, err, errors.ErrJSONErrorOutput)

	var result map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "error", result["status"])
	assert.Equal(t, "nonexistent", result["task_id"])
	assert.Contains(t, result["error"], "not found")
}

func TestRunDelete_WithForceFlag(t *testing.T) {
	store := newTestStore(t)
	createTestTask(t, store, "task-to-delete")

	deleteCmd := newTestCommand(t, "delete")

	var buf bytes.Buffer
	err := runDelete(context.Background(), deleteCmd, &buf, "task-to-delete", true)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "deleted")

	_, err = store.Load(context.Background(), "task-to-delete")
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)
}

func TestRunDelete_RunningTaskRefused(t *testing.T) {
	store := newTestStore(t)
	createTestTask(t, store, "task-running")
	require.NoError(t, store.UpdateStatus(context.Background(), "task-running", constants.TaskStatusRunning))

	deleteCmd := newTestCommand(t, "delete")

	var buf bytes.Buffer
	err := runDelete(context.Background(), deleteCmd, &buf, "task-running", true)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTaskRunning)

	// Task state must survive the refused delete
	_, err = store.Load(context.Background(), "task-running")
	assert.NoError(t, err)
}

func TestRunDelete_NonInteractiveWithoutForce(t *testing.T) {
	store := newTestStore(t)
	createTestTask(t, store, "task-interactive")

	cleanup := mockTerminalCheckFunc(false)
	defer cleanup()

	deleteCmd := newTestCommand(t, "delete")

	var buf bytes.Buffer
	err := runDelete(context.Background(), deleteCmd, &buf, "task-interactive", false)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNonInteractiveMode)
}

func TestRunDelete_JSONOutput(t *testing.T) {
	store := newTestStore(t)
	createTestTask(t, store, "task-delete-json")

	deleteCmd := newTestCommand(t, "delete")
	setJSONOutput(t, deleteCmd)

	var buf bytes.Buffer
	err := runDelete(context.Background(), deleteCmd, &buf, "task-delete-json", true)
	require.NoError(t, err)

	var result map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "deleted", result["status"])
	assert.Equal(t, "task-delete-json", result["task_id"])
}

func TestRunDelete_ContextCancellation(t *testing.T) {
	newTestStore(t)
	deleteCmd := newTestCommand(t, "delete")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := runDelete(ctx, deleteCmd, &buf, "task-canceled", true)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
