// Package config provides configuration management for AgentForge with
// layered precedence.
//
// Configuration sources are loaded in the following order (highest
// precedence first):
//  1. CLI flags (passed via LoadWithOverrides)
//  2. Environment variables (AGENTFORGE_* prefix)
//  3. Project config (.agentforge/config.yaml)
//  4. Global config (~/.agentforge/config.yaml)
//  5. Built-in defaults
//
// Each higher level completely overrides the lower level for the same key.
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import "time"

// Config is the root configuration structure for AgentForge.
// It contains all configuration sections for the application.
type Config struct {
	// LLM contains settings for the language model provider.
	LLM LLMConfig `yaml:"llm" mapstructure:"llm"`

	// Engine contains settings for the executor loop and step budget.
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`

	// Memory contains settings for the working memory buffer.
	Memory MemoryConfig `yaml:"memory" mapstructure:"memory"`

	// Tools contains settings for verification commands and tool execution.
	Tools ToolsConfig `yaml:"tools" mapstructure:"tools"`

	// Audit contains settings for the per-step audit trail.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Logging contains settings for log output.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// LLMConfig contains settings for the language model provider.
// The default provider shells out to a CLI binary for each completion,
// so a run needs nothing beyond an installed agent CLI.
type LLMConfig struct {
	// Provider names the registered provider implementation to use.
	// Default: "command"
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Command is the binary the command provider invokes.
	// Default: "claude"
	Command string `yaml:"command" mapstructure:"command"`

	// Args are fixed arguments passed on every invocation.
	// Example: ["-p", "--model", "sonnet"]
	// Default: ["-p"]
	Args []string `yaml:"args" mapstructure:"args"`

	// Timeout is the maximum duration for a single LLM call.
	// Default: 5 minutes
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Retry wraps the provider with exponential backoff on transient
	// failures (empty responses, timeouts).
	// Default: true
	Retry bool `yaml:"retry" mapstructure:"retry"`

	// MaxPromptTokens is the prompt budget that triggers tiered
	// compaction in the prompt builder.
	// Default: 4000
	MaxPromptTokens int `yaml:"max_prompt_tokens" mapstructure:"max_prompt_tokens"`

	// TokenEncoding names the BPE encoding used to size prompts against
	// the budget, e.g. "cl100k_base". An unknown name falls back to the
	// estimate with a warning.
	// Default: "" (four characters per token estimate)
	TokenEncoding string `yaml:"token_encoding" mapstructure:"token_encoding"`
}

// EngineConfig contains settings for the executor loop.
type EngineConfig struct {
	// MaxIterations caps the number of steps in a single run,
	// independent of the adaptive budget.
	// Default: 30
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`

	// BaseBudget is the step allowance a task starts with.
	// Default: 15
	BaseBudget int `yaml:"base_budget" mapstructure:"base_budget"`

	// MaxBudget is the ceiling the allowance can grow to when the task
	// keeps making progress.
	// Default: 50
	MaxBudget int `yaml:"max_budget" mapstructure:"max_budget"`

	// NoProgressThreshold is the number of consecutive non-advancing
	// steps after which the budget stops growing.
	// Default: 4
	NoProgressThreshold int `yaml:"no_progress_threshold" mapstructure:"no_progress_threshold"`
}

// MemoryConfig contains settings for the working memory buffer.
type MemoryConfig struct {
	// MaxItems is the number of recent action results kept verbatim.
	// Default: 5
	MaxItems int `yaml:"max_items" mapstructure:"max_items"`

	// CompactionThreshold is the total item count that triggers
	// summarization of older entries.
	// Default: 15
	CompactionThreshold int `yaml:"compaction_threshold" mapstructure:"compaction_threshold"`

	// MaxFacts is the number of established facts retained per task.
	// Default: 20
	MaxFacts int `yaml:"max_facts" mapstructure:"max_facts"`
}

// ToolsConfig contains settings for verification commands and tool
// execution. Check and test commands may be empty, in which case the
// corresponding tools report themselves unavailable instead of failing.
type ToolsConfig struct {
	// CheckCommand re-runs the conformance check being fixed.
	// {file} and {check} placeholders are substituted per task.
	// Example: "conformance run --check {check} {file}"
	// Default: "" (check verification unavailable)
	CheckCommand string `yaml:"check_command" mapstructure:"check_command"`

	// TestCommand runs the project test suite.
	// Example: "pytest -q"
	// Default: "" (test verification unavailable)
	TestCommand string `yaml:"test_command" mapstructure:"test_command"`

	// Interpreter syntax-probes modified Python files before tests run.
	// Default: "python3"
	Interpreter string `yaml:"interpreter" mapstructure:"interpreter"`

	// CommandTimeout bounds each check, test, and probe subprocess.
	// Default: 5 minutes
	CommandTimeout time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`

	// MCPServers lists external MCP tool servers to bridge into the
	// dispatcher, keyed by server name.
	// Default: none
	MCPServers map[string]MCPServer `yaml:"mcp_servers" mapstructure:"mcp_servers"`
}

// MCPServer describes one external MCP tool server. The keyed name
// becomes the action prefix, so a "search" tool on a server named
// "docs" registers as mcp_docs_search.
type MCPServer struct {
	// Command is the server binary to spawn.
	Command string `yaml:"command" mapstructure:"command"`

	// Args are arguments passed to the server binary.
	Args []string `yaml:"args" mapstructure:"args"`

	// Env is extra environment for the server process. The config layer
	// lowercases map keys; servers that need exact-case variables should
	// inherit them from the shell instead.
	Env map[string]string `yaml:"env" mapstructure:"env"`

	// Enabled toggles the server without removing its entry.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// AuditConfig contains settings for the per-step audit trail.
type AuditConfig struct {
	// Enabled toggles audit logging. The AGENTFORGE_AUDIT_ENABLED
	// environment variable maps onto this field through the standard
	// env binding.
	// Default: true
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// MaxTaskDirs is the number of per-task audit directories kept
	// before the oldest are pruned.
	// Default: 50
	MaxTaskDirs int `yaml:"max_task_dirs" mapstructure:"max_task_dirs"`
}

// LoggingConfig contains settings for log output.
type LoggingConfig struct {
	// Level is the minimum level written to the log file: trace, debug,
	// info, warn, or error. Console verbosity is controlled separately
	// by the --verbose and --quiet flags.
	// Default: "info"
	Level string `yaml:"level" mapstructure:"level"`
}
