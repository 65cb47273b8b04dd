package errors

import "errors"

// ErrorInfo holds user-facing message and suggested action for an error.
type ErrorInfo struct {
	// Message is the user-friendly error description.
	Message string
	// Action is a suggested action to resolve the issue (empty if none).
	Action string
}

// errorEntry pairs a sentinel error with its user-facing info.
type errorEntry struct {
	err  error
	info ErrorInfo
}

// errorInfoEntries is the pre-built mapping of sentinel errors to their user-facing messages.
// This single source of truth ensures UserMessage and Actionable stay in sync.
// Using a slice (not a map) because errors.Is() requires proper error chain traversal.
//
//nolint:gochecknoglobals // Pre-built mapping for efficiency
var errorInfoEntries = []errorEntry{
	// ===================
	// Tasks & State
	// ===================
	{
		err: ErrTaskNotFound,
		info: ErrorInfo{
			Message: "The specified task was not found.",
			Action:  "Run 'agentforge list' to see known tasks.",
		},
	},
	{
		err: ErrTaskExists,
		info: ErrorInfo{
			Message: "A task with this ID already exists.",
			Action:  "Use a different task ID or delete the existing task first.",
		},
	},
	{
		err: ErrStateCorrupted,
		info: ErrorInfo{
			Message: "The task state file is corrupted. It was moved aside with a .corrupted suffix.",
			Action:  "Inspect the quarantined file, then delete the task with 'agentforge delete <task-id>'.",
		},
	},
	{
		err: ErrSchemaUnsupported,
		info: ErrorInfo{
			Message: "The task was written by a newer version of agentforge.",
			Action:  "Upgrade agentforge to the latest release.",
		},
	},
	{
		err: ErrLockTimeout,
		info: ErrorInfo{
			Message: "Could not acquire lock. Another process may be using the task.",
			Action:  "Wait and try again, or check for stuck agentforge processes.",
		},
	},
	{
		err: ErrNoTasksFound,
		info: ErrorInfo{
			Message: "No tasks found.",
			Action:  "Start a new task with 'agentforge run'.",
		},
	},
	{
		err: ErrTaskTerminal,
		info: ErrorInfo{
			Message: "The task has already finished.",
			Action:  "Run 'agentforge show <task-id>' to see the final report.",
		},
	},
	{
		err: ErrTaskRunning,
		info: ErrorInfo{
			Message: "The task is still running.",
			Action:  "Wait for it to finish or use --force to delete anyway.",
		},
	},

	// ===================
	// Phases & Budget
	// ===================
	{
		err: ErrInvalidTransition,
		info: ErrorInfo{
			Message: "Cannot transition the task to this phase.",
			Action:  "Run 'agentforge status <task-id>' to see the current phase.",
		},
	},
	{
		err: ErrGuardBlocked,
		info: ErrorInfo{
			Message: "The phase transition was blocked by a readiness check.",
			Action:  "Let the task gather more evidence, or escalate it.",
		},
	},
	{
		err: ErrBudgetExhausted,
		info: ErrorInfo{
			Message: "The task used up its step budget.",
			Action:  "Increase engine.max_budget in config or simplify the task.",
		},
	},

	// ===================
	// LLM Provider
	// ===================
	{
		err: ErrProviderNotFound,
		info: ErrorInfo{
			Message: "The specified LLM provider is not available.",
			Action:  "Check llm.provider in your config against registered providers.",
		},
	},
	{
		err: ErrProviderEmptyResponse,
		info: ErrorInfo{
			Message: "The LLM returned an empty response.",
			Action:  "Try again. If the issue persists, check your API key and quota.",
		},
	},
	{
		err: ErrResponseUnparseable,
		info: ErrorInfo{
			Message: "The LLM response did not contain a recognizable action.",
			Action:  "This may be a temporary issue. The step was recorded and the loop will retry.",
		},
	},
	{
		err: ErrMaxRetriesExceeded,
		info: ErrorInfo{
			Message: "Maximum retry attempts reached.",
			Action:  "Review the errors, fix issues manually, or increase retry limit in config.",
		},
	},

	// ===================
	// Tools & Verification
	// ===================
	{
		err: ErrActionNotRegistered,
		info: ErrorInfo{
			Message: "No executor is registered for the requested action.",
			Action:  "Check the tool set registered for this task type.",
		},
	},
	{
		err: ErrVerificationRevert,
		info: ErrorInfo{
			Message: "The modification broke tests and was reverted.",
			Action:  "Review the failing tests in the task audit trail.",
		},
	},
	{
		err: ErrWorkspaceEscape,
		info: ErrorInfo{
			Message: "A tool tried to access a file outside the task workspace.",
			Action:  "Check the file paths in the task spec.",
		},
	},
	{
		err: ErrCommandTimeout,
		info: ErrorInfo{
			Message: "Command execution timed out.",
			Action:  "Increase tools.command_timeout or check if the command is stuck.",
		},
	},
	{
		err: ErrMCPServerUnavailable,
		info: ErrorInfo{
			Message: "An MCP server could not be started.",
			Action:  "Check the server command and args in the tools.mcp_servers config.",
		},
	},

	// ===================
	// Configuration
	// ===================
	{
		err: ErrConfigNotFound,
		info: ErrorInfo{
			Message: "Configuration file not found.",
			Action:  "Create ~/.agentforge/config.yaml or rely on defaults.",
		},
	},
	{
		err: ErrConfigNil,
		info: ErrorInfo{
			Message: "Configuration is not loaded.",
			Action:  "Ensure the config file exists and is valid YAML.",
		},
	},
	{
		err: ErrConfigInvalidEngine,
		info: ErrorInfo{
			Message: "Invalid engine configuration.",
			Action:  "Check the 'engine' section of your config for invalid values.",
		},
	},
	{
		err: ErrConfigInvalidLLM,
		info: ErrorInfo{
			Message: "Invalid LLM configuration.",
			Action:  "Check the 'llm' section of your config for invalid values.",
		},
	},
	{
		err: ErrConfigInvalidMemory,
		info: ErrorInfo{
			Message: "Invalid memory configuration.",
			Action:  "Check the 'memory' section of your config for invalid values.",
		},
	},
	{
		err: ErrConfigInvalidTools,
		info: ErrorInfo{
			Message: "Invalid tools configuration.",
			Action:  "Check the 'tools' section of your config for invalid values.",
		},
	},
	{
		err: ErrConfigInvalidLogging,
		info: ErrorInfo{
			Message: "Invalid logging configuration.",
			Action:  "Set logging.level to trace, debug, info, warn, or error.",
		},
	},
	{
		err: ErrInvalidDuration,
		info: ErrorInfo{
			Message: "Invalid duration format.",
			Action:  "Use formats like '30s', '5m', '1h' for durations.",
		},
	},
	{
		err: ErrValueOutOfRange,
		info: ErrorInfo{
			Message: "Value is outside the allowed range.",
			Action:  "Check the documentation for valid value ranges.",
		},
	},
	{
		err: ErrEmptyValue,
		info: ErrorInfo{
			Message: "A required value was not provided.",
			Action:  "Provide the required value and try again.",
		},
	},

	// ===================
	// Misc
	// ===================
	{
		err: ErrInvalidArgument,
		info: ErrorInfo{
			Message: "An invalid argument was provided.",
			Action:  "Check the command help for valid arguments.",
		},
	},
	{
		err: ErrNonInteractiveMode,
		info: ErrorInfo{
			Message: "This operation requires confirmation in non-interactive mode.",
			Action:  "Use --force flag to skip confirmation.",
		},
	},
}

// errorInfoMap provides O(1) lookup for direct sentinel error matches.
// Built once from errorInfoEntries during package initialization.
//
//nolint:gochecknoglobals // Pre-built mapping for O(1) lookup performance
var errorInfoMap = buildErrorInfoMap()

// buildErrorInfoMap creates a map from the errorInfoEntries slice.
// This is called once during package init for O(1) direct lookups.
func buildErrorInfoMap() map[error]ErrorInfo {
	m := make(map[error]ErrorInfo, len(errorInfoEntries))
	for _, entry := range errorInfoEntries {
		m[entry.err] = entry.info
	}
	return m
}

// getErrorInfo looks up the ErrorInfo for a given error.
// It first tries O(1) direct map lookup for unwrapped sentinel errors,
// then falls back to errors.Is() traversal for wrapped errors.
// Returns an ErrorInfo with the original error message if not found.
func getErrorInfo(err error) ErrorInfo {
	// Fast path: O(1) lookup for direct sentinel errors
	if info, ok := errorInfoMap[err]; ok {
		return info
	}

	// Slow path: errors.Is() for wrapped errors
	for _, entry := range errorInfoEntries {
		if errors.Is(err, entry.err) {
			return entry.info
		}
	}

	return ErrorInfo{Message: err.Error()}
}

// UserMessage returns a user-friendly message for common errors.
// This function maps sentinel errors to helpful, actionable messages
// that are suitable for display to end users.
//
// For unrecognized errors, it returns the error's original message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return getErrorInfo(err).Message
}

// Actionable returns a user-friendly error message along with a suggested
// action the user can take to resolve or work around the issue.
//
// For errors that are not recoverable or have no clear action, the action
// string will be empty.
func Actionable(err error) (message, action string) {
	if err == nil {
		return "", ""
	}
	info := getErrorInfo(err)
	return info.Message, info.Action
}
