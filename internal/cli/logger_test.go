package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/logging"
)

func TestInitLoggerWithWriter_Levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		verbose       bool
		quiet         bool
		expectedLevel zerolog.Level
	}{
		{
			name:          "default is info level",
			expectedLevel: zerolog.InfoLevel,
		},
		{
			name:          "verbose enables debug level",
			verbose:       true,
			expectedLevel: zerolog.DebugLevel,
		},
		{
			name:          "quiet enables warn level",
			quiet:         true,
			expectedLevel: zerolog.WarnLevel,
		},
		{
			name:          "verbose takes precedence over quiet",
			verbose:       true,
			quiet:         true,
			expectedLevel: zerolog.DebugLevel,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := InitLoggerWithWriter(tc.verbose, tc.quiet, &buf)
			assert.Equal(t, tc.expectedLevel, logger.GetLevel())
		})
	}
}

func TestInitLoggerWithWriter_CustomOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := InitLoggerWithWriter(true, false, &buf)

	logger.Debug().Msg("debug message")

	assert.Contains(t, buf.String(), "debug message")
}

func TestSelectLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, zerolog.InfoLevel, selectLevel(false, false))
	assert.Equal(t, zerolog.DebugLevel, selectLevel(true, false))
	assert.Equal(t, zerolog.WarnLevel, selectLevel(false, true))
	assert.Equal(t, zerolog.DebugLevel, selectLevel(true, true))
}

func TestSelectOutput_NonTTY(t *testing.T) {
	// Tests run without a TTY on stderr, so selectOutput returns the
	// plain JSON writer regardless of NO_COLOR.
	output := selectOutput()
	assert.Equal(t, os.Stderr, output)
}

func TestSelectOutput_RespectsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	output := selectOutput()
	assert.Equal(t, os.Stderr, output)
}

func TestLogEntryStructure_MatchesExpectedFields(t *testing.T) {
	t.Parallel()

	configureZerologGlobals()

	var buf bytes.Buffer
	logger := InitLoggerWithWriter(false, false, &buf)

	logger.Info().
		Str("task_id", "task-123").
		Str("action", "read_file").
		Int64("duration_ms", 150).
		Msg("step completed")

	output := buf.String()

	// Renamed global fields: ts for timestamp, event for message
	assert.Contains(t, output, `"ts":`)
	assert.Contains(t, output, `"level":`)
	assert.Contains(t, output, `"event":`)
	assert.Contains(t, output, `"task_id":"task-123"`)
	assert.Contains(t, output, `"action":"read_file"`)
	assert.Contains(t, output, `"duration_ms":150`)
	assert.Contains(t, output, "step completed")
}

func TestConfigureZerologGlobals_Idempotent(t *testing.T) {
	t.Parallel()

	configureZerologGlobals()
	configureZerologGlobals()

	assert.Equal(t, "ts", zerolog.TimestampFieldName)
	assert.Equal(t, "event", zerolog.MessageFieldName)
}

func TestCreateLogFileWriter_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(constants.ForgeHomeEnvVar, tmpDir)

	writer, err := createLogFileWriter()
	require.NoError(t, err)
	require.NotNil(t, writer)
	defer func() { _ = writer.Close() }()

	logDir := filepath.Join(tmpDir, constants.LogsDir)
	info, err := os.Stat(logDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateLogFileWriter_FailsOnInvalidPath(t *testing.T) {
	// A file where the home directory should be makes MkdirAll fail
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "not_a_directory")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o600))

	t.Setenv(constants.ForgeHomeEnvVar, filePath)

	writer, err := createLogFileWriter()
	require.Error(t, err)
	assert.Nil(t, writer)
	assert.Contains(t, err.Error(), "failed to create log directory")
}

func TestInitLogger_WritesToFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(constants.ForgeHomeEnvVar, tmpDir)

	logFileWriter = nil

	logger := InitLogger(false, false)
	logger.Info().Str("task_id", "task-log-test").Msg("run started")

	CloseLogFile()

	logPath := filepath.Join(tmpDir, constants.LogsDir, constants.CLILogFileName)
	data, err := os.ReadFile(logPath) //#nosec G304 -- path is constructed from test temp dir
	require.NoError(t, err)
	assert.Contains(t, string(data), "task-log-test")
	assert.Contains(t, string(data), "run started")
}

func TestInitLogger_RedactsSensitiveDataInFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(constants.ForgeHomeEnvVar, tmpDir)

	logFileWriter = nil

	logger := InitLogger(false, false)
	logger.Info().Msg("invoking provider with key sk-ant-REDACTED")

	CloseLogFile()

	logPath := filepath.Join(tmpDir, constants.LogsDir, constants.CLILogFileName)
	data, err := os.ReadFile(logPath) //#nosec G304 -- path is constructed from test temp dir
	require.NoError(t, err)

	content := string(data)
	assert.NotContains(t, content, "verysecretkey", "API key should be redacted from log file")
	assert.Contains(t, content, "[REDACTED]")
	assert.Contains(t, content, "invoking provider")
}

func TestInitLogger_HandlesFileCreationFailure(t *testing.T) {
	t.Setenv(constants.ForgeHomeEnvVar, "/dev/null/invalid")

	logFileWriter = nil

	// Falls back to console-only logging
	logger := InitLogger(false, false)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	assert.Nil(t, logFileWriter)
}

func TestCloseLogFile_NoOpWhenNil(_ *testing.T) {
	logFileWriter = nil

	// Should not panic
	CloseLogFile()
}

func TestForgeHome_UsesEnvironmentVariable(t *testing.T) {
	customHome := "/custom/agentforge/home"
	t.Setenv(constants.ForgeHomeEnvVar, customHome)

	home, err := forgeHome()
	require.NoError(t, err)
	assert.Equal(t, customHome, home)
}

func TestForgeHome_DefaultsToUserHome(t *testing.T) {
	t.Setenv(constants.ForgeHomeEnvVar, "")

	home, err := forgeHome()
	require.NoError(t, err)

	userHome, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(userHome, constants.ForgeHome), home)
}

func TestLogFilePath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(constants.ForgeHomeEnvVar, tmpDir)

	path, err := LogFilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, constants.LogsDir, constants.CLILogFileName), path)
}

func TestPrepareLoggerSetup(t *testing.T) {
	t.Run("creates setup with level, hook, and file writer", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(constants.ForgeHomeEnvVar, tmpDir)

		setup, err := prepareLoggerSetup(true, false)

		require.NoError(t, err)
		assert.Equal(t, zerolog.DebugLevel, setup.level)
		assert.NotNil(t, setup.hook)
		assert.NotNil(t, setup.console)
		assert.NotNil(t, setup.fileWriter)
	})

	t.Run("file writer failure leaves console-only setup", func(t *testing.T) {
		t.Setenv(constants.ForgeHomeEnvVar, "/dev/null/invalid")

		setup, err := prepareLoggerSetup(false, false)

		require.Error(t, err)
		assert.NotNil(t, setup)
		assert.Equal(t, zerolog.InfoLevel, setup.level)
		assert.NotNil(t, setup.console)
		assert.Nil(t, setup.fileWriter)
	})
}

func TestBuildLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	setup := &loggerSetup{
		level: zerolog.DebugLevel,
		hook:  logging.NewSensitiveDataHook(),
	}

	logger := buildLogger(setup, &buf)

	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	assert.NotEqual(t, zerolog.Logger{}, logger)
}

func TestFilteringWriteCloser(t *testing.T) {
	t.Parallel()

	t.Run("write delegates to filter", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		fwc := &filteringWriteCloser{
			filter: logging.NewFilteringWriter(&buf),
			closer: io.NopCloser(&buf),
		}

		input := []byte("plain log line")
		n, err := fwc.Write(input)

		require.NoError(t, err)
		assert.Equal(t, len(input), n)
		assert.Contains(t, buf.String(), "plain log line")
	})

	t.Run("close delegates to closer", func(t *testing.T) {
		t.Parallel()

		tmpFile := filepath.Join(t.TempDir(), "test.log")
		file, err := os.Create(tmpFile) //#nosec G304 -- test file
		require.NoError(t, err)

		fwc := &filteringWriteCloser{
			filter: logging.NewFilteringWriter(file),
			closer: file,
		}

		require.NoError(t, fwc.Close())

		// A closed file rejects further writes
		_, err = file.WriteString("should fail")
		require.Error(t, err)
	})
}
