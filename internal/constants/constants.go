// Package constants provides centralized constant values used throughout AgentForge.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// AppName is the canonical binary and client name.
const AppName = "agentforge"

// File names used by AgentForge for state persistence.
const (
	// SpecFileName is the name of the JSON file that stores the immutable task spec.
	SpecFileName = "spec.json"

	// StateFileName is the name of the JSON file that stores mutable task state.
	StateFileName = "state.json"

	// ActionLogFileName is the name of the append-only JSONL action log.
	ActionLogFileName = "actions.jsonl"

	// MemoryFileName is the name of the JSON file that stores the working memory buffer.
	MemoryFileName = "memory.json"

	// CorruptedSuffix is appended to state files that fail to parse.
	// Quarantined files are preserved for inspection and never loaded again.
	CorruptedSuffix = ".corrupted"
)

// Directory names and paths used by AgentForge for organizing data.
const (
	// ForgeHome is the hidden directory name where AgentForge stores all its data.
	// This directory is created in the user's home directory.
	ForgeHome = ".agentforge"

	// TasksDir is the directory name where per-task state directories live.
	TasksDir = "tasks"

	// ArtifactsDir is the directory name where task artifacts are stored.
	ArtifactsDir = "artifacts"

	// ArtifactKindInputs holds input records captured at task creation.
	ArtifactKindInputs = "inputs"

	// ArtifactKindOutputs holds output documents produced during execution.
	ArtifactKindOutputs = "outputs"

	// ArtifactKindSnapshots holds pre-modification file snapshots.
	ArtifactKindSnapshots = "snapshots"

	// AuditDir is the directory name where per-task audit trails are stored.
	AuditDir = "audit"

	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"
)

// Timeout configurations for various operations.
const (
	// DefaultLLMTimeout is the default maximum duration for a single LLM call.
	DefaultLLMTimeout = 5 * time.Minute

	// DefaultCommandTimeout is the default maximum duration for tool subprocesses
	// such as test runners and conformance checkers.
	DefaultCommandTimeout = 300 * time.Second

	// MCPConnectTimeout is the maximum duration for connecting to and
	// initializing one MCP server.
	MCPConnectTimeout = 10 * time.Second
)

// Retry configuration defaults for recoverable operations.
const (
	// MaxRetryAttempts is the maximum number of retry attempts for recoverable errors.
	MaxRetryAttempts = 3

	// InitialBackoff is the initial backoff duration before the first retry.
	// Subsequent retries use exponential backoff based on this value.
	InitialBackoff = 1 * time.Second

	// BackoffMultiplier is the factor applied to the backoff after each attempt.
	BackoffMultiplier = 2
)

// File locking configuration.
const (
	// LockTimeout is the maximum duration to wait for an advisory file lock.
	LockTimeout = 5 * time.Second

	// LockRetryInterval is the delay between lock acquisition attempts.
	LockRetryInterval = 50 * time.Millisecond
)

// MaxVersionNumber caps versioned artifact filenames to prevent runaway versioning.
const MaxVersionNumber = 10000

// Step budget defaults for the adaptive budget.
const (
	// DefaultBaseBudget is the step allowance a task starts with.
	DefaultBaseBudget = 15

	// DefaultMaxBudget is the absolute step ceiling regardless of progress.
	DefaultMaxBudget = 50

	// ProgressBudgetFactor is how many extra steps each progress point buys.
	ProgressBudgetFactor = 3

	// DefaultMaxIterations caps a single run of the executor loop.
	DefaultMaxIterations = 30

	// LoopDetectionWindow is how many recent action records the loop
	// detector and budget inspect between steps.
	LoopDetectionWindow = 10
)

// Working memory defaults.
const (
	// DefaultMaxMemoryItems is the unpinned working memory capacity.
	DefaultMaxMemoryItems = 5

	// RecentActionLimit is how many recent action results a prompt shows.
	RecentActionLimit = 3

	// LoadedContextExpirySteps is how many steps load_context content stays
	// in working memory before expiring.
	LoadedContextExpirySteps = 3
)

// Fact store defaults.
const (
	// DefaultCompactionThreshold is the active fact count that triggers compaction.
	DefaultCompactionThreshold = 15

	// DefaultMaxFacts is how many active facts survive a compaction.
	DefaultMaxFacts = 20

	// PromptFactConfidenceFloor is the minimum confidence for a fact to appear in a prompt.
	PromptFactConfidenceFloor = 0.7

	// PromptFactCap is the maximum number of facts rendered into a prompt.
	PromptFactCap = 10

	// GenericFactConfidence is the confidence of the fallback success/failure fact.
	GenericFactConfidence = 0.7
)

// Loop detection thresholds.
const (
	// DefaultIdenticalThreshold is the consecutive identical failure count for IDENTICAL_ACTION.
	DefaultIdenticalThreshold = 3

	// DefaultCycleThreshold is the A-B-A pattern count for ERROR_CYCLE.
	DefaultCycleThreshold = 2

	// DefaultSemanticThreshold is the shared-error-category failure count for SEMANTIC_LOOP.
	DefaultSemanticThreshold = 4

	// DefaultNoProgressThreshold is the consecutive non-mutating action count for NO_PROGRESS.
	DefaultNoProgressThreshold = 4
)

// Prompt construction limits.
const (
	// DefaultMaxPromptTokens is the token budget a built prompt must fit within.
	DefaultMaxPromptTokens = 4000

	// MinPromptTokens is the floor below which a built prompt draws a validation warning.
	MinPromptTokens = 100

	// TargetSourceTokenCap caps the target_source section during compaction.
	TargetSourceTokenCap = 800

	// ActionHintsTokenCap caps the action_hints section during compaction.
	ActionHintsTokenCap = 100

	// AuxSectionTokenCap caps related_patterns and file_overview during compaction.
	AuxSectionTokenCap = 300

	// SimilarEntriesKeep is how many similar_fixes or similar_implementations
	// entries survive compaction.
	SimilarEntriesKeep = 2
)

// ActionSummaryMaxLen is the maximum length of an ActionRecord summary.
const ActionSummaryMaxLen = 200

// Schema version constants for data migration support.
const (
	// StateSchemaVersion10 is the legacy schema without phase machine state.
	StateSchemaVersion10 = "1.0"

	// StateSchemaVersion is the current version of the task state schema.
	// This enables forward-compatible schema migrations.
	StateSchemaVersion = "2.0"
)

// Environment variables recognized by the engine.
const (
	// AuditEnabledEnvVar toggles the audit logger. "false" disables it; default is enabled.
	AuditEnabledEnvVar = "AGENTFORGE_AUDIT_ENABLED"

	// ForgeHomeEnvVar overrides the AgentForge home directory location.
	ForgeHomeEnvVar = "AGENTFORGE_HOME"
)
