// Package cli provides the command-line interface for agentforge.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/audit"
	"github.com/maxxentropy/agentforge-sub001/internal/budget"
	"github.com/maxxentropy/agentforge-sub001/internal/config"
	"github.com/maxxentropy/agentforge-sub001/internal/errors"
	"github.com/maxxentropy/agentforge-sub001/internal/llm"
	"github.com/maxxentropy/agentforge-sub001/internal/loopdetect"
	"github.com/maxxentropy/agentforge-sub001/internal/memory"
	"github.com/maxxentropy/agentforge-sub001/internal/state"
	"github.com/maxxentropy/agentforge-sub001/internal/tools"
	"github.com/maxxentropy/agentforge-sub001/internal/tui"
	"github.com/maxxentropy/agentforge-sub001/internal/workflow"
)

// providerCommand is the name the built-in subprocess provider registers
// under. llm.provider in the config selects among registered providers;
// this is the only one the CLI ships.
const providerCommand = "command"

// newTaskStore creates the file-backed task store under the agentforge home.
func newTaskStore() (*state.FileStore, error) {
	store, err := state.NewFileStore("")
	if err != nil {
		return nil, fmt.Errorf("failed to create task store: %w", err)
	}
	return store, nil
}

// buildProvider constructs the LLM provider the config names. The command
// provider is registered under "command"; any other llm.provider value
// fails with ErrProviderNotFound.
func buildProvider(cfg *config.Config, logger zerolog.Logger) (llm.Provider, error) {
	base := llm.NewCommandProvider(cfg.LLM.Command,
		llm.WithArgs(cfg.LLM.Args...),
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithCommandLogger(logger),
	)

	var provider llm.Provider = base
	if cfg.LLM.Retry {
		provider = llm.WithRetry(base, logger)
	}

	registry := llm.NewRegistry()
	registry.Register(providerCommand, provider)

	return registry.Resolve(cfg.LLM.Provider)
}

// engineConfig maps the loaded file config onto the workflow's run config.
// The workspace root comes from the CLI, never from the config file.
func engineConfig(cfg *config.Config, workspaceRoot string) workflow.Config {
	return workflow.Config{
		WorkspaceRoot:   workspaceRoot,
		CheckCommand:    cfg.Tools.CheckCommand,
		TestCommand:     cfg.Tools.TestCommand,
		Interpreter:     cfg.Tools.Interpreter,
		CommandTimeout:  cfg.Tools.CommandTimeout,
		MaxIterations:   cfg.Engine.MaxIterations,
		MaxPromptTokens: cfg.LLM.MaxPromptTokens,
		TokenEncoding:   cfg.LLM.TokenEncoding,
		LLMTimeout:      cfg.LLM.Timeout,
		Memory: memory.Config{
			MaxItems:            cfg.Memory.MaxItems,
			CompactionThreshold: cfg.Memory.CompactionThreshold,
			MaxFacts:            cfg.Memory.MaxFacts,
		},
		Budget: budget.Config{
			BaseBudget:          cfg.Engine.BaseBudget,
			MaxBudget:           cfg.Engine.MaxBudget,
			NoProgressThreshold: cfg.Engine.NoProgressThreshold,
		},
		Detector: loopdetect.Config{
			NoProgressThreshold: cfg.Engine.NoProgressThreshold,
		},
		Audit: audit.Config{
			MaxTaskDirs: cfg.Audit.MaxTaskDirs,
			Enabled:     cfg.Audit.Enabled,
		},
		MCPServers: mcpServerConfigs(cfg.Tools.MCPServers),
	}
}

// mcpServerConfigs converts config-file server entries into the tool
// bridge's launch descriptors.
func mcpServerConfigs(servers map[string]config.MCPServer) map[string]tools.MCPServerConfig {
	if len(servers) == 0 {
		return nil
	}
	out := make(map[string]tools.MCPServerConfig, len(servers))
	for name, srv := range servers {
		out[name] = tools.MCPServerConfig{
			Command: srv.Command,
			Args:    srv.Args,
			Env:     srv.Env,
			Enabled: srv.Enabled,
		}
	}
	return out
}

// loadEngineConfig loads the layered config with CLI overrides applied.
// A load failure falls back to defaults so a broken config file does not
// strand tasks; validation errors still fail the command.
func loadEngineConfig(ctx context.Context, logger zerolog.Logger, overrides *config.Config) (*config.Config, error) {
	cfg, err := config.LoadWithOverrides(ctx, overrides)
	if err == nil {
		return cfg, nil
	}
	if isConfigValidationError(err) {
		return nil, err
	}
	logger.Warn().Err(err).Msg("failed to load config, using defaults")
	return config.DefaultConfig(), nil
}

// isConfigValidationError reports whether the load failure is a validation
// problem the user must fix rather than a missing or unreadable file.
func isConfigValidationError(err error) bool {
	for _, sentinel := range []error{
		errors.ErrConfigInvalidLLM,
		errors.ErrConfigInvalidEngine,
		errors.ErrConfigInvalidMemory,
		errors.ErrConfigInvalidTools,
		errors.ErrConfigInvalidLogging,
	} {
		if stderrors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// workspaceRootOrCwd resolves the workspace root flag, defaulting to the
// current directory.
func workspaceRootOrCwd(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return cwd, nil
}

// displayError prints an error with its suggested action, if any.
func displayError(out tui.Output, err error) {
	message, action := errors.Actionable(err)
	out.Error(stderrors.New(message))
	if action != "" {
		out.Info("  " + action)
	}
}
