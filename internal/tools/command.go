package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/clock"
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

// CommandRunner defines the interface for executing shell commands.
// This allows for testing by injecting mock implementations.
type CommandRunner interface {
	// Run executes a shell command and returns its output.
	Run(ctx context.Context, workDir, command string) (stdout, stderr string, exitCode int, err error)
}

// DefaultCommandRunner implements CommandRunner using os/exec.
//
// Commands come from the tool configuration, the same trust model as
// Makefiles and CI configs. The sh -c invocation is intentional so check and
// test commands can use pipes and redirects.
type DefaultCommandRunner struct{}

// Run executes a shell command using sh -c.
func (r *DefaultCommandRunner) Run(ctx context.Context, workDir, command string) (stdout, stderr string, exitCode int, err error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workDir

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}

	return stdout, stderr, exitCode, err
}

// Ensure DefaultCommandRunner implements CommandRunner.
var _ CommandRunner = (*DefaultCommandRunner)(nil)

// CommandConfig configures the check and test commands.
// The placeholders {file}, {check}, and {path} are substituted with the
// action's parameters before execution.
type CommandConfig struct {
	// WorkDir is the directory commands run in, normally the workspace root.
	WorkDir string

	// CheckCommand runs one conformance check, e.g.
	// "conformance check --check {check} {file}".
	CheckCommand string

	// TestCommand runs the test suite, e.g. "pytest {path} -q".
	TestCommand string

	// Timeout bounds each command. Zero means DefaultCommandTimeout.
	Timeout time.Duration
}

// CommandTools implements run_check and run_tests over a command runner.
type CommandTools struct {
	runner CommandRunner
	cfg    CommandConfig
	clk    clock.Clock
	logger zerolog.Logger
}

// NewCommandTools creates the command toolset with the default runner.
func NewCommandTools(cfg CommandConfig, logger zerolog.Logger) *CommandTools {
	return NewCommandToolsWithRunner(cfg, &DefaultCommandRunner{}, logger)
}

// NewCommandToolsWithRunner creates the command toolset with a custom runner
// (for testing).
func NewCommandToolsWithRunner(cfg CommandConfig, runner CommandRunner, logger zerolog.Logger) *CommandTools {
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultCommandTimeout
	}
	return &CommandTools{
		runner: runner,
		cfg:    cfg,
		clk:    clock.RealClock{},
		logger: logger.With().Str("component", "command_tools").Logger(),
	}
}

// SetClock replaces the time source behind verification timestamps.
func (t *CommandTools) SetClock(clk clock.Clock) {
	if clk != nil {
		t.clk = clk
	}
}

// Register installs the command executors on a dispatcher.
func (t *CommandTools) Register(d *Dispatcher) {
	d.Register(constants.ActionRunCheck, t.RunCheck)
	d.Register(constants.ActionRunTests, t.RunTests)
}

// RunCheck executes the conformance check command and folds the outcome into
// the task's verification state.
func (t *CommandTools) RunCheck(ctx context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	file := stringParam(params, "file_path", "path")
	if file == "" {
		file = state.ContextString(constants.CtxFilePath)
	}
	checkID := stringParam(params, "check_id", "check")
	if checkID == "" {
		checkID = state.ContextString(constants.CtxCheckID)
	}

	command := substitute(t.cfg.CheckCommand, file, checkID, "")
	if command == "" {
		return failureResult("run_check unavailable: no check command configured"), nil
	}

	output, exitCode, timedOut := t.run(ctx, command)
	if timedOut {
		return &domain.ToolResult{
			Status:  constants.ToolFailure,
			Summary: fmt.Sprintf("Check timed out after %s", t.cfg.Timeout),
			Output:  output,
			Error:   "command timed out",
		}, nil
	}

	now := t.clk.Now().UTC()
	state.Verification.LastCheckTime = &now

	if exitCode == 0 {
		state.Verification.ChecksPassing = 1
		state.Verification.ChecksFailing = 0
		state.Verification.Recompute()

		return &domain.ToolResult{
			Status:  constants.ToolSuccess,
			Summary: checkSummary("Check PASSED", checkID, output, 0),
			Output:  output,
			Extras:  map[string]any{"exit_code": exitCode},
		}, nil
	}

	violations, _ := violationCount(output)
	state.Verification.ChecksPassing = 0
	state.Verification.ChecksFailing = 1
	if state.Verification.Details == nil {
		state.Verification.Details = make(map[string]any)
	}
	state.Verification.Details["violations"] = violations
	state.Verification.Recompute()

	return &domain.ToolResult{
		Status:  constants.ToolFailure,
		Summary: checkSummary("Check FAILED", checkID, output, violations),
		Output:  output,
		Error:   firstLine(output),
		Extras:  map[string]any{"exit_code": exitCode, "violations": violations},
	}, nil
}

// RunTests executes the test command and folds the outcome into the task's
// verification state.
func (t *CommandTools) RunTests(ctx context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	path := stringParam(params, "path", "test_path")

	command := substitute(t.cfg.TestCommand, "", "", path)
	if command == "" {
		return failureResult("run_tests unavailable: no test command configured"), nil
	}

	output, exitCode, timedOut := t.run(ctx, command)
	if timedOut {
		return &domain.ToolResult{
			Status:  constants.ToolFailure,
			Summary: fmt.Sprintf("Tests timed out after %s", t.cfg.Timeout),
			Output:  output,
			Error:   "command timed out",
		}, nil
	}

	passed := passedCount(output)
	failed := failedCount(output)

	now := t.clk.Now().UTC()
	state.Verification.LastCheckTime = &now
	state.Verification.TestsPassing = exitCode == 0
	state.Verification.Recompute()

	if exitCode == 0 {
		summary := "Tests PASSED"
		if passed > 0 {
			summary = fmt.Sprintf("Tests PASSED (%d passed)", passed)
		}
		return &domain.ToolResult{
			Status:  constants.ToolSuccess,
			Summary: summary,
			Output:  output,
			Extras:  map[string]any{"passed": passed, "failed": 0},
		}, nil
	}

	summary := fmt.Sprintf("Tests FAILED (%d failed, %d passed)", failed, passed)
	return &domain.ToolResult{
		Status:  constants.ToolFailure,
		Summary: summary,
		Output:  output,
		Error:   firstLine(output),
		Extras:  map[string]any{"passed": passed, "failed": failed},
	}, nil
}

// run executes one command with the configured timeout and returns the
// combined output.
func (t *CommandTools) run(ctx context.Context, command string) (output string, exitCode int, timedOut bool) {
	cmdCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	started := t.clk.Now()
	t.logger.Debug().
		Str("command", command).
		Str("work_dir", t.cfg.WorkDir).
		Msg("executing command")

	stdout, stderr, exitCode, runErr := t.runner.Run(cmdCtx, t.cfg.WorkDir, command)

	output = stdout
	if stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += stderr
	}

	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		t.logger.Error().
			Str("command", command).
			Dur("duration", t.clk.Now().Sub(started)).
			Msg("command timed out")
		return output, exitCode, true
	}

	if runErr != nil && exitCode == 0 {
		// Start failures (missing binary) have no exit code.
		exitCode = 1
		if output == "" {
			output = runErr.Error()
		}
	}

	t.logger.Debug().
		Str("command", command).
		Int("exit_code", exitCode).
		Dur("duration", t.clk.Now().Sub(started)).
		Msg("command completed")

	return output, exitCode, false
}

// substitute fills the command template placeholders.
func substitute(template, file, check, path string) string {
	if template == "" {
		return ""
	}
	r := strings.NewReplacer("{file}", file, "{check}", check, "{path}", path)
	return strings.TrimSpace(r.Replace(template))
}

// checkSummary builds a run_check summary line. The violation count is
// embedded so budget tracking can observe decreases across runs.
func checkSummary(verdict, checkID, output string, violations int) string {
	summary := verdict
	if checkID != "" {
		summary += ": " + checkID
	}
	if violations > 0 {
		summary += fmt.Sprintf(" - %d violations found", violations)
	} else if verdict == "Check FAILED" {
		if line := firstLine(output); line != "" {
			summary += " - " + line
		}
	}
	return summary
}

// Output count patterns shared by the command tools and the verification
// wrapper.
var (
	passedCountRegex    = regexp.MustCompile(`(\d+) passed`)
	failedCountRegex    = regexp.MustCompile(`(\d+) failed`)
	violationCountRegex = regexp.MustCompile(`(\d+) violations? found`)
)

// passedCount parses a "N passed" count from test output, 0 when absent.
func passedCount(output string) int {
	return firstCount(passedCountRegex, output)
}

// failedCount parses a "N failed" count from test output, 0 when absent.
func failedCount(output string) int {
	return firstCount(failedCountRegex, output)
}

// violationCount parses a "N violations found" count from check output.
func violationCount(output string) (int, bool) {
	m := violationCountRegex.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func firstCount(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
