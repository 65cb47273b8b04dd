// Package errors provides centralized error handling for AgentForge.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrTaskNotFound indicates that the requested task does not exist on disk,
	// or that its state file was quarantined after a corruption check.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists indicates an attempt to create a task that already exists.
	ErrTaskExists = errors.New("task already exists")

	// ErrStateCorrupted indicates a task state file failed to parse and was
	// moved aside for inspection.
	ErrStateCorrupted = errors.New("task state corrupted")

	// ErrSchemaUnsupported indicates a state file carries a schema version
	// newer than this binary understands.
	ErrSchemaUnsupported = errors.New("unsupported state schema version")

	// ErrLockTimeout indicates a file lock could not be acquired within the timeout period.
	ErrLockTimeout = errors.New("lock acquisition timeout")

	// ErrPathTraversal indicates an attempt to use path traversal in a filename.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrArtifactNotFound indicates the requested artifact file was not found.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrTooManyVersions indicates too many versioned artifacts exist.
	ErrTooManyVersions = errors.New("too many versions")

	// ErrInvalidTransition indicates a phase transition that the transition
	// table does not permit.
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrGuardBlocked indicates a phase transition that the table permits but
	// a guard predicate rejected.
	ErrGuardBlocked = errors.New("transition blocked by guard")

	// ErrUnknownPhase indicates a phase name that is not part of the machine.
	ErrUnknownPhase = errors.New("unknown phase")

	// ErrBudgetExhausted indicates the step budget for a task has been consumed.
	ErrBudgetExhausted = errors.New("step budget exhausted")

	// ErrActionNotRegistered indicates no executor is registered for an action name.
	ErrActionNotRegistered = errors.New("no executor registered for action")

	// ErrActionPanic indicates an action executor panicked during dispatch.
	ErrActionPanic = errors.New("action executor panicked")

	// ErrProviderNotFound indicates the requested LLM provider is not registered.
	ErrProviderNotFound = errors.New("llm provider not found")

	// ErrProviderEmptyResponse indicates the LLM returned an empty response.
	ErrProviderEmptyResponse = errors.New("llm returned empty response")

	// ErrResponseUnparseable indicates no action could be recovered from an
	// LLM response by any parsing strategy.
	ErrResponseUnparseable = errors.New("llm response unparseable")

	// ErrMaxRetriesExceeded indicates the maximum retry attempts have been reached.
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")

	// ErrMemoryKeyEmpty indicates a working memory item was added without a key.
	ErrMemoryKeyEmpty = errors.New("memory item key cannot be empty")

	// ErrMemoryKeyNotFound indicates no working memory item exists for a key.
	ErrMemoryKeyNotFound = errors.New("memory item not found")

	// ErrFactNotFound indicates the requested fact does not exist in the store.
	ErrFactNotFound = errors.New("fact not found")

	// ErrTemplateNotFound indicates the requested prompt template does not exist.
	ErrTemplateNotFound = errors.New("prompt template not found")

	// ErrTokenBudgetTooSmall indicates a context could not be compacted below
	// the configured token limit even at maximum compaction.
	ErrTokenBudgetTooSmall = errors.New("context exceeds token budget after compaction")

	// ErrVerificationRevert indicates a modification was reverted because it
	// introduced new test failures.
	ErrVerificationRevert = errors.New("modification reverted after test regression")

	// ErrSnapshotMissing indicates a file snapshot needed for revert was not taken.
	ErrSnapshotMissing = errors.New("file snapshot missing")

	// ErrWorkspaceEscape indicates a tool tried to touch a file outside the
	// task workspace root.
	ErrWorkspaceEscape = errors.New("path outside workspace root")

	// ErrCommandTimeout indicates a command exceeded its timeout duration.
	ErrCommandTimeout = errors.New("command timeout exceeded")

	// ErrCommandFailed indicates that a command execution failed.
	ErrCommandFailed = errors.New("command failed")

	// ErrCommandNotConfigured indicates that a mock command was not configured in tests.
	ErrCommandNotConfigured = errors.New("command not configured")

	// ErrMCPServerUnavailable indicates an MCP server could not be started or initialized.
	ErrMCPServerUnavailable = errors.New("mcp server unavailable")

	// ErrMCPToolFailed indicates an MCP tool call returned an error result.
	ErrMCPToolFailed = errors.New("mcp tool call failed")

	// ErrTaskTerminal indicates an operation that requires an active task was
	// attempted on a task already in a terminal phase.
	ErrTaskTerminal = errors.New("task is in a terminal phase")

	// ErrTaskRunning indicates a destructive operation was attempted on a
	// task that is still running.
	ErrTaskRunning = errors.New("task is still running")

	// ErrConfigNil indicates that a nil config was passed to validation.
	ErrConfigNil = errors.New("config is nil")

	// ErrConfigNotFound indicates that the configuration file was not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalidEngine indicates an invalid engine configuration value.
	ErrConfigInvalidEngine = errors.New("invalid engine configuration")

	// ErrConfigInvalidLLM indicates an invalid LLM configuration value.
	ErrConfigInvalidLLM = errors.New("invalid LLM configuration")

	// ErrConfigInvalidMemory indicates an invalid memory configuration value.
	ErrConfigInvalidMemory = errors.New("invalid memory configuration")

	// ErrConfigInvalidTools indicates an invalid tools configuration value.
	ErrConfigInvalidTools = errors.New("invalid tools configuration")

	// ErrConfigInvalidLogging indicates an invalid logging configuration value.
	ErrConfigInvalidLogging = errors.New("invalid logging configuration")

	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrValueOutOfRange indicates that a value is outside the allowed range.
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrInvalidDuration indicates that a duration format is invalid.
	ErrInvalidDuration = errors.New("invalid duration format")

	// ErrInvalidArgument indicates that an invalid argument was provided.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidOutputFormat indicates an invalid output format was specified.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrNoTasksFound indicates that no tasks exist under the home directory.
	ErrNoTasksFound = errors.New("no tasks found")

	// ErrNonInteractiveMode indicates that an operation requiring confirmation
	// was attempted in non-interactive mode without the force flag.
	ErrNonInteractiveMode = errors.New("use --force in non-interactive mode")

	// ErrJSONErrorOutput indicates that an error has already been output as JSON.
	// This ensures a non-zero exit code while preventing duplicate error messages.
	// Commands should silence cobra's error printing when this is returned.
	ErrJSONErrorOutput = errors.New("error output as JSON")

	// ErrLoggerClosed indicates a write was attempted on a closed audit logger.
	ErrLoggerClosed = errors.New("audit logger is closed")
)

// ExitCode2Error wraps an error to indicate exit code 2 should be used.
type ExitCode2Error struct {
	Err error
}

// NewExitCode2Error wraps an error to indicate exit code 2.
func NewExitCode2Error(err error) *ExitCode2Error {
	return &ExitCode2Error{Err: err}
}

// Error implements the error interface.
func (e *ExitCode2Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitCode2Error) Unwrap() error {
	return e.Err
}

// IsExitCode2Error checks if an error should result in exit code 2.
func IsExitCode2Error(err error) bool {
	var e *ExitCode2Error
	return errors.As(err, &e)
}
