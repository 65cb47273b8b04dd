package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/ctxutil"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// CommandExecutor abstracts command execution for testing.
// The production implementation uses exec.Cmd to run subprocesses,
// while tests can provide a mock implementation.
type CommandExecutor interface {
	// Execute runs the command and returns stdout, stderr, and any error.
	Execute(ctx context.Context, cmd *exec.Cmd) (stdout, stderr []byte, err error)
}

// DefaultExecutor is the production implementation of CommandExecutor.
type DefaultExecutor struct{}

// Execute runs the command and captures its output.
func (e *DefaultExecutor) Execute(_ context.Context, cmd *exec.Cmd) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// CommandProvider invokes a configured CLI binary for each completion.
// The system and user messages are piped to stdin separated by a blank
// line; stdout is taken verbatim as the response text. The binary is
// expected to run non-interactively, e.g. `claude -p`.
//
// CLI output carries no token accounting, so responses report zero
// usage and the caller estimates.
type CommandProvider struct {
	command  string
	args     []string
	timeout  time.Duration
	executor CommandExecutor
	logger   zerolog.Logger
}

// CommandProviderOption is a functional option for CommandProvider.
type CommandProviderOption func(*CommandProvider)

// WithArgs sets the fixed arguments passed on every invocation.
func WithArgs(args ...string) CommandProviderOption {
	return func(p *CommandProvider) {
		p.args = args
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) CommandProviderOption {
	return func(p *CommandProvider) {
		p.timeout = timeout
	}
}

// WithExecutor sets the command executor, for tests.
func WithExecutor(executor CommandExecutor) CommandProviderOption {
	return func(p *CommandProvider) {
		p.executor = executor
	}
}

// WithCommandLogger sets the logger.
func WithCommandLogger(logger zerolog.Logger) CommandProviderOption {
	return func(p *CommandProvider) {
		p.logger = logger
	}
}

// NewCommandProvider creates a provider that shells out to the command.
func NewCommandProvider(command string, opts ...CommandProviderOption) *CommandProvider {
	p := &CommandProvider{
		command:  command,
		timeout:  constants.DefaultLLMTimeout,
		executor: &DefaultExecutor{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate runs the command once and returns its stdout as the response.
func (p *CommandProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, p.command, p.args...) //#nosec G204 // Command comes from operator config
	cmd.Stdin = strings.NewReader(p.prompt(req))

	start := time.Now()
	stdout, stderr, err := p.executor.Execute(runCtx, cmd)
	if err != nil {
		if runCtx.Err() != nil {
			return nil, runCtx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %s", forgeerrors.ErrCommandFailed, p.command, condense(stderr))
	}

	text := string(stdout)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", forgeerrors.ErrProviderEmptyResponse, p.command)
	}

	p.logger.Debug().
		Str("command", p.command).
		Int("response_chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("llm command completed")

	return &Response{Text: text}, nil
}

// prompt joins the system and user messages for stdin delivery.
func (p *CommandProvider) prompt(req *Request) string {
	if req.System == "" {
		return req.User
	}
	return req.System + "\n\n" + req.User
}

// condense flattens stderr into a single trimmed line for error text.
func condense(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if s == "" {
		return "no stderr output"
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

// Compile-time check that CommandProvider implements Provider.
var _ Provider = (*CommandProvider)(nil)
