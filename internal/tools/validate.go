package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

// ValidateWrapper checks that a Python file still parses and imports after a
// line-level modification. Line splicing can produce syntactically valid-
// looking text that breaks the module, so the probe runs before the test
// verification verdict. On failure the file is reverted.
type ValidateWrapper struct {
	root        string
	inner       Executor
	interpreter string
	runner      CommandRunner
	timeout     time.Duration
	logger      zerolog.Logger
}

// NewValidateWrapper wraps inner with Python validation using python3 and
// the default command runner.
func NewValidateWrapper(root string, inner Executor, logger zerolog.Logger) *ValidateWrapper {
	return NewValidateWrapperWithRunner(root, inner, "python3", &DefaultCommandRunner{}, logger)
}

// NewValidateWrapperWithRunner wraps inner with a custom interpreter and
// runner (for testing).
func NewValidateWrapperWithRunner(root string, inner Executor, interpreter string, runner CommandRunner, logger zerolog.Logger) *ValidateWrapper {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	return &ValidateWrapper{
		root:        abs,
		inner:       inner,
		interpreter: interpreter,
		runner:      runner,
		timeout:     constants.DefaultCommandTimeout,
		logger:      logger.With().Str("component", "validate_wrapper").Logger(),
	}
}

// Execute runs the wrapped action, then parses and imports the modified
// Python file. Non-Python files pass through untouched.
func (w *ValidateWrapper) Execute(ctx context.Context, name string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	raw := stringParam(params, "file_path", "path")
	abs, err := resolvePath(w.root, raw)
	if err != nil || !strings.HasSuffix(abs, ".py") {
		return w.inner(ctx, name, params, state)
	}

	snapshot, readErr := os.ReadFile(abs) //#nosec G304 -- path is validated against the workspace root
	existed := readErr == nil

	result, err := w.inner(ctx, name, params, state)
	if err != nil || result == nil || !result.Success() {
		return result, err
	}

	if probeErr := w.probe(ctx, abs); probeErr != "" {
		w.revert(abs, snapshot, existed)
		w.logger.Warn().
			Str("file", raw).
			Str("error", probeErr).
			Msg("Python validation failed, modification reverted")

		msg := "Code validation failed - REVERTED: " + probeErr
		return &domain.ToolResult{
			Status:  constants.ToolFailure,
			Summary: msg,
			Error:   probeErr,
			Extras:  map[string]any{"reverted": true},
		}, nil
	}

	return result, nil
}

// probe parses the file as an AST and then imports it in a subprocess.
// Returns the first error line, or empty when both probes pass.
func (w *ValidateWrapper) probe(ctx context.Context, abs string) string {
	astCmd := fmt.Sprintf(
		`%s -c 'import ast, sys; ast.parse(open(sys.argv[1], encoding="utf-8").read())' %s`,
		w.interpreter, shellQuote(abs))
	if msg := w.runProbe(ctx, astCmd); msg != "" {
		return msg
	}

	importCmd := fmt.Sprintf(
		`%s -c 'import importlib.util, sys; spec = importlib.util.spec_from_file_location("_probe", sys.argv[1]); mod = importlib.util.module_from_spec(spec); spec.loader.exec_module(mod)' %s`,
		w.interpreter, shellQuote(abs))
	return w.runProbe(ctx, importCmd)
}

// runProbe executes one validation command and reduces its outcome to an
// error line.
func (w *ValidateWrapper) runProbe(ctx context.Context, command string) string {
	probeCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	stdout, stderr, exitCode, err := w.runner.Run(probeCtx, w.root, command)
	if exitCode == 0 && err == nil {
		return ""
	}

	if msg := lastErrorLine(stderr); msg != "" {
		return msg
	}
	if msg := lastErrorLine(stdout); msg != "" {
		return msg
	}
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("validation exited with code %d", exitCode)
}

// revert restores the pre-action file content.
func (w *ValidateWrapper) revert(abs string, snapshot []byte, existed bool) {
	if !existed {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			w.logger.Error().Err(err).Str("file", abs).Msg("Failed to remove file during validation revert")
		}
		return
	}
	if err := os.WriteFile(abs, snapshot, 0o600); err != nil {
		w.logger.Error().Err(err).Str("file", abs).Msg("Failed to restore file during validation revert")
	}
}

// lastErrorLine returns the final non-empty line of interpreter output,
// which for Python tracebacks is the exception summary.
func lastErrorLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// shellQuote single-quotes a path for sh -c.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
