package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// changeToTempDir moves the working directory to a fresh temp dir so
// Load finds no project config, restoring the original on cleanup.
func changeToTempDir(t *testing.T) string {
	t.Helper()

	tempDir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tempDir))
	t.Cleanup(func() {
		_ = os.Chdir(oldWd)
	})
	return tempDir
}

// isolateHome points the global config lookup at an empty temp dir so
// the developer's real ~/.agentforge cannot leak into tests.
func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv(constants.ForgeHomeEnvVar, t.TempDir())
}

func TestLoad_ReturnsDefaultsWhenNoConfigFile(t *testing.T) {
	changeToTempDir(t)
	isolateHome(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err, "Load should not fail when no config file exists")
	require.NotNil(t, cfg, "Config should not be nil")

	assert.Equal(t, "command", cfg.LLM.Provider, "should use default provider")
	assert.Equal(t, "claude", cfg.LLM.Command, "should use default command")
	assert.Equal(t, constants.DefaultLLMTimeout, cfg.LLM.Timeout, "should use default LLM timeout")
	assert.True(t, cfg.LLM.Retry, "retry should default on")
	assert.Equal(t, constants.DefaultMaxIterations, cfg.Engine.MaxIterations, "should use default iteration cap")
	assert.Equal(t, constants.DefaultBaseBudget, cfg.Engine.BaseBudget, "should use default base budget")
	assert.Equal(t, "python3", cfg.Tools.Interpreter, "should use default interpreter")
	assert.True(t, cfg.Audit.Enabled, "audit should default on")
	assert.Equal(t, "info", cfg.Logging.Level, "should use default log level")
}

func TestLoadFromPaths_ProjectConfigOverridesGlobal(t *testing.T) {
	ctx := context.Background()

	globalDir := t.TempDir()
	projectDir := t.TempDir()

	globalConfig := filepath.Join(globalDir, "config.yaml")
	err := os.WriteFile(globalConfig, []byte(`
llm:
  command: crush
  timeout: 10m
engine:
  max_iterations: 40
`), 0o600)
	require.NoError(t, err)

	projectConfig := filepath.Join(projectDir, "config.yaml")
	err = os.WriteFile(projectConfig, []byte(`
llm:
  command: aider
`), 0o600)
	require.NoError(t, err)

	cfg, err := LoadFromPaths(ctx, projectConfig, globalConfig)
	require.NoError(t, err, "LoadFromPaths should succeed")

	// Project config overrides global for llm.command
	assert.Equal(t, "aider", cfg.LLM.Command, "project config should override global for llm.command")

	// Global config values that aren't overridden should persist
	assert.Equal(t, 10*time.Minute, cfg.LLM.Timeout, "global timeout should be preserved")
	assert.Equal(t, 40, cfg.Engine.MaxIterations, "global max_iterations should be preserved")
}

func TestLoadFromPaths_GlobalConfigOnly(t *testing.T) {
	ctx := context.Background()

	globalDir := t.TempDir()

	globalConfig := filepath.Join(globalDir, "config.yaml")
	err := os.WriteFile(globalConfig, []byte(`
llm:
  command: gemini
  args: ["-y"]
tools:
  check_command: "lint run --check {check} {file}"
  test_command: "pytest -q"
`), 0o600)
	require.NoError(t, err)

	cfg, err := LoadFromPaths(ctx, "", globalConfig)
	require.NoError(t, err, "LoadFromPaths should succeed with only global config")

	assert.Equal(t, "gemini", cfg.LLM.Command, "should use global llm.command")
	assert.Equal(t, []string{"-y"}, cfg.LLM.Args, "should use global llm.args")
	assert.Equal(t, "lint run --check {check} {file}", cfg.Tools.CheckCommand)
	assert.Equal(t, "pytest -q", cfg.Tools.TestCommand)
}

func TestLoadFromPaths_MissingFilesUseDefaults(t *testing.T) {
	ctx := context.Background()

	cfg, err := LoadFromPaths(ctx,
		filepath.Join(t.TempDir(), "missing.yaml"),
		filepath.Join(t.TempDir(), "also-missing.yaml"))
	require.NoError(t, err, "missing explicit paths should be skipped")

	assert.Equal(t, "claude", cfg.LLM.Command, "should fall back to defaults")
}

func TestLoad_EnvVarOverridesConfigFile(t *testing.T) {
	ctx := context.Background()

	tempDir := t.TempDir()
	forgeDir := filepath.Join(tempDir, constants.ForgeHome)
	require.NoError(t, os.MkdirAll(forgeDir, 0o750))

	configPath := filepath.Join(forgeDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(`
llm:
  command: crush
`), 0o600)
	require.NoError(t, err)

	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tempDir))
	defer func() {
		_ = os.Chdir(oldWd)
	}()
	isolateHome(t)

	// Set env var to override (should take precedence)
	t.Setenv("AGENTFORGE_LLM_COMMAND", "aider")

	cfg, err := Load(ctx)
	require.NoError(t, err, "Load should succeed")

	assert.Equal(t, "aider", cfg.LLM.Command, "env var should override config file")
}

func TestLoad_EnvVarMapping(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		envVar   string
		value    string
		validate func(*testing.T, *Config)
	}{
		{
			envVar: "AGENTFORGE_LLM_COMMAND",
			value:  "gemini",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "gemini", c.LLM.Command)
			},
		},
		{
			envVar: "AGENTFORGE_ENGINE_MAX_ITERATIONS",
			value:  "12",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, 12, c.Engine.MaxIterations)
			},
		},
		{
			envVar: "AGENTFORGE_MEMORY_MAX_FACTS",
			value:  "8",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, 8, c.Memory.MaxFacts)
			},
		},
		{
			envVar: "AGENTFORGE_TOOLS_INTERPRETER",
			value:  "python3.12",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "python3.12", c.Tools.Interpreter)
			},
		},
		{
			envVar: constants.AuditEnabledEnvVar,
			value:  "false",
			validate: func(t *testing.T, c *Config) {
				assert.False(t, c.Audit.Enabled)
			},
		},
		{
			envVar: "AGENTFORGE_LOGGING_LEVEL",
			value:  "debug",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "debug", c.Logging.Level)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			changeToTempDir(t)
			isolateHome(t)
			t.Setenv(tt.envVar, tt.value)

			cfg, err := Load(ctx)
			require.NoError(t, err, "Load should succeed")
			tt.validate(t, cfg)
		})
	}
}

func TestLoadWithOverrides_AppliesCLIOverrides(t *testing.T) {
	ctx := context.Background()

	changeToTempDir(t)
	isolateHome(t)

	overrides := &Config{
		LLM: LLMConfig{
			Command: "crush",
			Timeout: 90 * time.Second,
		},
		Engine: EngineConfig{
			MaxIterations: 7,
		},
	}

	cfg, err := LoadWithOverrides(ctx, overrides)
	require.NoError(t, err, "LoadWithOverrides should succeed")

	// Verify overrides are applied
	assert.Equal(t, "crush", cfg.LLM.Command, "override llm command")
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout, "override llm timeout")
	assert.Equal(t, 7, cfg.Engine.MaxIterations, "override iteration cap")

	// Verify non-overridden values keep defaults
	assert.Equal(t, "command", cfg.LLM.Provider, "default provider")
	assert.Equal(t, constants.DefaultMaxBudget, cfg.Engine.MaxBudget, "default max budget")
}

func TestLoadWithOverrides_NilOverrides(t *testing.T) {
	ctx := context.Background()

	changeToTempDir(t)
	isolateHome(t)

	cfg, err := LoadWithOverrides(ctx, nil)
	require.NoError(t, err, "LoadWithOverrides with nil should succeed")

	assert.Equal(t, "claude", cfg.LLM.Command, "should use default command")
}

func TestLoadWithOverrides_InvalidAfterOverrides(t *testing.T) {
	ctx := context.Background()

	changeToTempDir(t)
	isolateHome(t)

	// A max budget below the base budget fails re-validation.
	overrides := &Config{
		Engine: EngineConfig{
			MaxBudget: 3,
		},
	}

	_, err := LoadWithOverrides(ctx, overrides)
	require.Error(t, err)
	assert.ErrorIs(t, err, forgeerrors.ErrConfigInvalidEngine)
}

func TestLoadFromPaths_DurationParsing(t *testing.T) {
	ctx := context.Background()

	tempDir := t.TempDir()

	configPath := filepath.Join(tempDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(`
llm:
  timeout: 10m
tools:
  command_timeout: 90s
`), 0o600)
	require.NoError(t, err)

	cfg, err := LoadFromPaths(ctx, configPath, "")
	require.NoError(t, err, "LoadFromPaths should succeed")

	assert.Equal(t, 10*time.Minute, cfg.LLM.Timeout, "LLM timeout should be 10m")
	assert.Equal(t, 90*time.Second, cfg.Tools.CommandTimeout, "command timeout should be 90s")
}

func TestLoadFromPaths_MCPServers(t *testing.T) {
	ctx := context.Background()

	tempDir := t.TempDir()

	// Viper lowercases every config key, including nested map keys, so
	// env names must be written lowercase here.
	configPath := filepath.Join(tempDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(`
tools:
  mcp_servers:
    docs:
      command: docs-server
      args: ["--stdio"]
      env:
        docs_root: /srv/docs
      enabled: true
    scratch:
      command: scratch-server
      enabled: false
`), 0o600)
	require.NoError(t, err)

	cfg, err := LoadFromPaths(ctx, configPath, "")
	require.NoError(t, err, "LoadFromPaths should succeed")

	require.Len(t, cfg.Tools.MCPServers, 2)

	docs := cfg.Tools.MCPServers["docs"]
	assert.Equal(t, "docs-server", docs.Command)
	assert.Equal(t, []string{"--stdio"}, docs.Args)
	assert.Equal(t, map[string]string{"docs_root": "/srv/docs"}, docs.Env)
	assert.True(t, docs.Enabled)

	scratch := cfg.Tools.MCPServers["scratch"]
	assert.Equal(t, "scratch-server", scratch.Command)
	assert.False(t, scratch.Enabled)
}

func TestLoadFromPaths_InvalidConfigFile(t *testing.T) {
	ctx := context.Background()

	tempDir := t.TempDir()

	configPath := filepath.Join(tempDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(`
llm:
  command: crush
  invalid yaml here: [
`), 0o600)
	require.NoError(t, err)

	_, err = LoadFromPaths(ctx, configPath, "")
	require.Error(t, err, "invalid YAML should fail")
}

func TestLoadFromPaths_InvalidValuesFailValidation(t *testing.T) {
	ctx := context.Background()

	tempDir := t.TempDir()

	configPath := filepath.Join(tempDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(`
engine:
  max_iterations: 0
`), 0o600)
	require.NoError(t, err)

	_, err = LoadFromPaths(ctx, configPath, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, forgeerrors.ErrConfigInvalidEngine)
}

func TestMergeServerMaps(t *testing.T) {
	t.Parallel()

	base := map[string]MCPServer{
		"docs": {Command: "docs-server", Enabled: true},
	}
	merged := mergeServerMaps(base, map[string]MCPServer{
		"docs":    {Command: "docs-server-v2", Enabled: true},
		"scratch": {Command: "scratch-server"},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, "docs-server-v2", merged["docs"].Command, "override replaces per key")
	assert.Equal(t, "scratch-server", merged["scratch"].Command)

	// nil destination allocates
	fromNil := mergeServerMaps(nil, map[string]MCPServer{"x": {Command: "x"}})
	require.Len(t, fromNil, 1)

	// empty source leaves destination untouched
	assert.Nil(t, mergeServerMaps(nil, nil))
}
