package config

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// newViperInstance creates a new Viper instance with standard AgentForge
// configuration. This includes environment variable prefix (AGENTFORGE_),
// key replacer, and defaults.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("AGENTFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// isConfigNotFoundError returns true if the error is a viper config file
// not found error. This helps consolidate the common pattern of checking
// for missing config files.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

// unmarshalAndValidate unmarshals viper config into Config struct and validates it.
func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Load reads configuration from all available sources with proper precedence.
// Configuration is loaded in the following order (highest precedence first):
//  1. Environment variables (AGENTFORGE_* prefix)
//  2. Project config (.agentforge/config.yaml)
//  3. Global config (~/.agentforge/config.yaml)
//  4. Built-in defaults
//
// For CLI flag overrides, use LoadWithOverrides instead.
//
// The function returns an error only for actual configuration problems,
// not for missing config files (which are expected in many scenarios).
//
// The context parameter carries the logger; config file reads are fast
// local I/O and are not cancelled through it.
func Load(ctx context.Context) (*Config, error) {
	v := newViperInstance()

	// Global config provides user-wide defaults that can be overridden
	// per-project.
	if err := loadGlobalConfig(v); err != nil {
		return nil, err
	}

	// Project config merges over global.
	if err := loadProjectConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Logger()
	logger.Debug().
		Str("llm.provider", cfg.LLM.Provider).
		Dur("llm.timeout", cfg.LLM.Timeout).
		Dur("tools.command_timeout", cfg.Tools.CommandTimeout).
		Int("engine.max_iterations", cfg.Engine.MaxIterations).
		Msg("configuration loaded and unmarshaled")

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &cfg, nil
}

// loadGlobalConfig attempts to load the global config file
// (~/.agentforge/config.yaml). Returns nil if the file doesn't exist or
// the home directory cannot be determined.
func loadGlobalConfig(v *viper.Viper) error {
	globalConfigPath, ok := getGlobalConfigPathIfExists()
	if !ok {
		return nil
	}

	v.SetConfigFile(globalConfigPath)
	if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read global config file")
	}
	return nil
}

// getGlobalConfigPathIfExists returns the global config path if it exists.
// Returns empty string and false if the home directory cannot be
// determined or the config file does not exist.
func getGlobalConfigPathIfExists() (string, bool) {
	globalDir, err := GlobalConfigDir()
	if err != nil {
		return "", false
	}

	globalConfigPath := filepath.Join(globalDir, constants.GlobalConfigName)
	if _, err := os.Stat(globalConfigPath); err != nil {
		return "", false
	}

	return globalConfigPath, true
}

// loadProjectConfig attempts to load the project config file
// (.agentforge/config.yaml). Returns nil if the file doesn't exist.
func loadProjectConfig(v *viper.Viper) error {
	projectConfigPath := ProjectConfigPath()
	if !fileExists(projectConfigPath) {
		return nil
	}

	v.SetConfigFile(projectConfigPath)
	if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read project config file")
	}
	return nil
}

// fileExists returns true if the file at path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadWithOverrides loads configuration and applies CLI flag overrides.
// The overrides parameter contains values from CLI flags which have the
// highest precedence in the configuration hierarchy.
//
// Only non-zero values in overrides are applied. Zero values are ignored
// to allow partial overrides.
func LoadWithOverrides(ctx context.Context, overrides *Config) (*Config, error) {
	cfg, err := Load(ctx)
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		applyOverrides(cfg, overrides)
	}

	// Re-validate after applying overrides
	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration after overrides")
	}

	return cfg, nil
}

// LoadFromPaths loads configuration from specific file paths for testing.
// This function allows precise control over which config files are loaded.
//
// projectConfigPath is the path to project-level config (higher priority).
// globalConfigPath is the path to global config (lower priority).
// Either path can be empty to skip that level.
func LoadFromPaths(_ context.Context, projectConfigPath, globalConfigPath string) (*Config, error) {
	v := newViperInstance()

	if globalConfigPath != "" {
		v.SetConfigFile(globalConfigPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read global config: %s", globalConfigPath)
		}
	}

	if projectConfigPath != "" {
		v.SetConfigFile(projectConfigPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read project config: %s", projectConfigPath)
		}
	}

	return unmarshalAndValidate(v)
}

// setDefaults configures all default values on the Viper instance.
// These defaults match the values from DefaultConfig().
// IMPORTANT: Keys must match the YAML tag names exactly for proper mapping.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.provider", "command")
	v.SetDefault("llm.command", "claude")
	v.SetDefault("llm.args", []string{"-p"})
	v.SetDefault("llm.timeout", "5m")
	v.SetDefault("llm.retry", true)
	v.SetDefault("llm.max_prompt_tokens", 4000)
	v.SetDefault("llm.token_encoding", "")

	// Engine defaults
	v.SetDefault("engine.max_iterations", 30)
	v.SetDefault("engine.base_budget", 15)
	v.SetDefault("engine.max_budget", 50)
	v.SetDefault("engine.no_progress_threshold", 4)

	// Memory defaults
	v.SetDefault("memory.max_items", 5)
	v.SetDefault("memory.compaction_threshold", 15)
	v.SetDefault("memory.max_facts", 20)

	// Tools defaults
	v.SetDefault("tools.check_command", "")
	v.SetDefault("tools.test_command", "")
	v.SetDefault("tools.interpreter", "python3")
	v.SetDefault("tools.command_timeout", "5m")
	v.SetDefault("tools.mcp_servers", map[string]any{})

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.max_task_dirs", 50)

	// Logging defaults
	v.SetDefault("logging.level", "info")
}

// applyOverrides merges non-zero override values into the config.
// Only non-zero values are applied to allow partial overrides.
//
// IMPORTANT: Boolean fields (LLM.Retry, Audit.Enabled) cannot be
// overridden to false using this function because Go's zero value for
// bool is false, making it impossible to distinguish "explicitly set to
// false" from "not set". CLI implementations should handle boolean flags
// separately:
//
//	// Example CLI handling for bool flags:
//	if cmd.Flags().Changed("audit") {
//	    cfg.Audit.Enabled = auditFlag  // Use flag value directly
//	}
func applyOverrides(cfg, overrides *Config) {
	applyLLMOverrides(cfg, overrides)
	applyEngineOverrides(cfg, overrides)

	// Memory overrides
	if overrides.Memory.MaxItems != 0 {
		cfg.Memory.MaxItems = overrides.Memory.MaxItems
	}
	if overrides.Memory.CompactionThreshold != 0 {
		cfg.Memory.CompactionThreshold = overrides.Memory.CompactionThreshold
	}
	if overrides.Memory.MaxFacts != 0 {
		cfg.Memory.MaxFacts = overrides.Memory.MaxFacts
	}

	applyToolsOverrides(cfg, overrides)

	// Audit overrides (Enabled is a bool - see the caveat above)
	if overrides.Audit.MaxTaskDirs != 0 {
		cfg.Audit.MaxTaskDirs = overrides.Audit.MaxTaskDirs
	}

	// Logging overrides
	if overrides.Logging.Level != "" {
		cfg.Logging.Level = overrides.Logging.Level
	}
}

// applyLLMOverrides applies LLM-related overrides to the config.
// This is extracted from applyOverrides to reduce cognitive complexity.
func applyLLMOverrides(cfg, overrides *Config) {
	if overrides.LLM.Provider != "" {
		cfg.LLM.Provider = overrides.LLM.Provider
	}
	if overrides.LLM.Command != "" {
		cfg.LLM.Command = overrides.LLM.Command
	}
	if len(overrides.LLM.Args) > 0 {
		cfg.LLM.Args = overrides.LLM.Args
	}
	if overrides.LLM.Timeout != 0 {
		cfg.LLM.Timeout = overrides.LLM.Timeout
	}
	// Retry is a bool - we can't distinguish false from unset, so we
	// don't override it here. Use explicit flag handling in CLI.
	if overrides.LLM.MaxPromptTokens != 0 {
		cfg.LLM.MaxPromptTokens = overrides.LLM.MaxPromptTokens
	}
	if overrides.LLM.TokenEncoding != "" {
		cfg.LLM.TokenEncoding = overrides.LLM.TokenEncoding
	}
}

// applyEngineOverrides applies engine-related overrides to the config.
// This is extracted from applyOverrides to reduce cognitive complexity.
func applyEngineOverrides(cfg, overrides *Config) {
	if overrides.Engine.MaxIterations != 0 {
		cfg.Engine.MaxIterations = overrides.Engine.MaxIterations
	}
	if overrides.Engine.BaseBudget != 0 {
		cfg.Engine.BaseBudget = overrides.Engine.BaseBudget
	}
	if overrides.Engine.MaxBudget != 0 {
		cfg.Engine.MaxBudget = overrides.Engine.MaxBudget
	}
	if overrides.Engine.NoProgressThreshold != 0 {
		cfg.Engine.NoProgressThreshold = overrides.Engine.NoProgressThreshold
	}
}

// applyToolsOverrides applies tools-related overrides to the config.
// This is extracted from applyOverrides to reduce cognitive complexity.
func applyToolsOverrides(cfg, overrides *Config) {
	if overrides.Tools.CheckCommand != "" {
		cfg.Tools.CheckCommand = overrides.Tools.CheckCommand
	}
	if overrides.Tools.TestCommand != "" {
		cfg.Tools.TestCommand = overrides.Tools.TestCommand
	}
	if overrides.Tools.Interpreter != "" {
		cfg.Tools.Interpreter = overrides.Tools.Interpreter
	}
	if overrides.Tools.CommandTimeout != 0 {
		cfg.Tools.CommandTimeout = overrides.Tools.CommandTimeout
	}
	cfg.Tools.MCPServers = mergeServerMaps(cfg.Tools.MCPServers, overrides.Tools.MCPServers)
}

// mergeServerMaps merges src map into dst map, creating dst if nil.
// Returns the merged map (which may be the same as dst if it was non-nil).
func mergeServerMaps(dst, src map[string]MCPServer) map[string]MCPServer {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]MCPServer, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// viperDecoderOption returns the decoder options for Viper unmarshal.
// This configures mapstructure to handle time.Duration conversion from strings.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}
