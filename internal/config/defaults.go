package config

import (
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
)

// DefaultConfig returns a new Config with sensible default values.
// These defaults are used as the base layer that can be overridden by
// config files, environment variables, and CLI flags.
//
// The values here must match setDefaults in load.go, which registers
// the same defaults on the Viper instance.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			// Provider: "command" shells out to an agent CLI, so a run
			// needs no API credentials of its own.
			Provider: "command",

			// Command: the Claude CLI in non-interactive print mode.
			Command: "claude",
			Args:    []string{"-p"},

			// Timeout: 5 minutes covers slow completions on large prompts.
			Timeout: constants.DefaultLLMTimeout,

			// Retry: transient failures are retried with backoff.
			Retry: true,

			// MaxPromptTokens: the compaction budget for built prompts.
			MaxPromptTokens: constants.DefaultMaxPromptTokens,

			// TokenEncoding: empty keeps the chars/4 estimate; name a
			// BPE encoding for exact counts.
			TokenEncoding: "",
		},
		Engine: EngineConfig{
			// MaxIterations: hard cap per run, regardless of budget.
			MaxIterations: constants.DefaultMaxIterations,

			// BaseBudget/MaxBudget: the adaptive step allowance starts
			// at the base and grows toward the ceiling while the task
			// makes progress.
			BaseBudget: constants.DefaultBaseBudget,
			MaxBudget:  constants.DefaultMaxBudget,

			// NoProgressThreshold: consecutive non-advancing steps
			// before budget growth stops.
			NoProgressThreshold: constants.DefaultNoProgressThreshold,
		},
		Memory: MemoryConfig{
			// MaxItems: recent action results kept verbatim in prompts.
			MaxItems: constants.DefaultMaxMemoryItems,

			// CompactionThreshold: total items before older entries are
			// summarized.
			CompactionThreshold: constants.DefaultCompactionThreshold,

			// MaxFacts: established facts retained per task.
			MaxFacts: constants.DefaultMaxFacts,
		},
		Tools: ToolsConfig{
			// CheckCommand/TestCommand: empty means the project has not
			// configured verification; the tools report unavailable.
			CheckCommand: "",
			TestCommand:  "",

			// Interpreter: probes modified Python files for syntax
			// errors before the test suite runs.
			Interpreter: "python3",

			// CommandTimeout: bound on each verification subprocess.
			CommandTimeout: constants.DefaultCommandTimeout,
		},
		Audit: AuditConfig{
			// Enabled: the audit trail is the only way to reconstruct
			// what a task did, so it stays on unless switched off.
			Enabled: true,

			// MaxTaskDirs: oldest per-task audit dirs are pruned past
			// this count.
			MaxTaskDirs: constants.DefaultAuditMaxTaskDirs,
		},
		Logging: LoggingConfig{
			// Level: info keeps the log file readable; debug is a flag
			// away when a run needs dissecting.
			Level: "info",
		},
	}
}
