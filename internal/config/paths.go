package config

import (
	"os"
	"path/filepath"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// GlobalConfigDir returns the path to the global AgentForge configuration
// directory. This is typically ~/.agentforge on Unix systems; the
// AGENTFORGE_HOME environment variable relocates it.
//
// Returns an error if the home directory cannot be determined.
func GlobalConfigDir() (string, error) {
	if home := os.Getenv(constants.ForgeHomeEnvVar); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, constants.ForgeHome), nil
}

// ProjectConfigDir returns the relative path to the project configuration
// directory. This is always .agentforge relative to the project root.
func ProjectConfigDir() string {
	return constants.ForgeHome
}

// GlobalConfigPath returns the full path to the global configuration file.
// This is typically ~/.agentforge/config.yaml on Unix systems.
//
// Returns an error if the home directory cannot be determined.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "get global config path")
	}
	return filepath.Join(dir, constants.GlobalConfigName), nil
}

// ProjectConfigPath returns the relative path to the project configuration
// file. This is always .agentforge/config.yaml relative to the project root.
func ProjectConfigPath() string {
	return filepath.Join(ProjectConfigDir(), constants.GlobalConfigName)
}
