package config

import (
	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first validation failure found.
//
// Validation rules:
//   - LLM provider and command must not be empty
//   - LLM timeout and prompt token budget must be positive
//   - Engine iteration cap, budgets, and progress threshold must be positive
//   - Engine max budget must not be below the base budget
//   - Memory sizes must be positive
//   - Tools command timeout must be positive and interpreter non-empty
//   - Logging level must parse as a zerolog level
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.ErrConfigNil
	}

	if err := validateLLMConfig(&cfg.LLM); err != nil {
		return err
	}

	if err := validateEngineConfig(&cfg.Engine); err != nil {
		return err
	}

	if err := validateMemoryConfig(&cfg.Memory); err != nil {
		return err
	}

	if err := validateToolsConfig(&cfg.Tools); err != nil {
		return err
	}

	return validateLoggingConfig(&cfg.Logging)
}

// validateLLMConfig checks LLM-specific configuration values.
func validateLLMConfig(cfg *LLMConfig) error {
	if cfg.Provider == "" {
		return errors.Wrap(errors.ErrConfigInvalidLLM,
			"llm.provider must not be empty")
	}

	if cfg.Command == "" {
		return errors.Wrap(errors.ErrConfigInvalidLLM,
			"llm.command must not be empty")
	}

	if cfg.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidLLM,
			"llm.timeout must be positive, got %s", cfg.Timeout)
	}

	if cfg.MaxPromptTokens < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidLLM,
			"llm.max_prompt_tokens must be at least 1, got %d", cfg.MaxPromptTokens)
	}

	return nil
}

// validateEngineConfig checks engine-specific configuration values.
func validateEngineConfig(cfg *EngineConfig) error {
	if cfg.MaxIterations < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidEngine,
			"engine.max_iterations must be at least 1, got %d", cfg.MaxIterations)
	}

	if cfg.BaseBudget < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidEngine,
			"engine.base_budget must be at least 1, got %d", cfg.BaseBudget)
	}

	if cfg.MaxBudget < cfg.BaseBudget {
		return errors.Wrapf(errors.ErrConfigInvalidEngine,
			"engine.max_budget must not be below engine.base_budget, got %d < %d",
			cfg.MaxBudget, cfg.BaseBudget)
	}

	if cfg.NoProgressThreshold < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidEngine,
			"engine.no_progress_threshold must be at least 1, got %d", cfg.NoProgressThreshold)
	}

	return nil
}

// validateMemoryConfig checks memory-specific configuration values.
func validateMemoryConfig(cfg *MemoryConfig) error {
	if cfg.MaxItems < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidMemory,
			"memory.max_items must be at least 1, got %d", cfg.MaxItems)
	}

	if cfg.CompactionThreshold < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidMemory,
			"memory.compaction_threshold must be at least 1, got %d", cfg.CompactionThreshold)
	}

	if cfg.MaxFacts < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidMemory,
			"memory.max_facts must be at least 1, got %d", cfg.MaxFacts)
	}

	return nil
}

// validateToolsConfig checks tools-specific configuration values.
// Check and test commands may be empty; the corresponding verification
// tools report themselves unavailable instead.
func validateToolsConfig(cfg *ToolsConfig) error {
	if cfg.CommandTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidTools,
			"tools.command_timeout must be positive, got %s", cfg.CommandTimeout)
	}

	if cfg.Interpreter == "" {
		return errors.Wrap(errors.ErrConfigInvalidTools,
			"tools.interpreter must not be empty")
	}

	return nil
}

// validateLoggingConfig checks logging-specific configuration values.
func validateLoggingConfig(cfg *LoggingConfig) error {
	if _, err := zerolog.ParseLevel(cfg.Level); err != nil {
		return errors.Wrapf(errors.ErrConfigInvalidLogging,
			"logging.level %q is not a valid level", cfg.Level)
	}

	return nil
}
