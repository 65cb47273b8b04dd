// Package tools provides the action dispatcher and the executors behind the
// actions an LLM can request: file edits, conformance checks, test runs, and
// the verification wrappers that revert modifications which break tests.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors, internal/ctxutil
//   - MUST NOT import: internal/state, internal/executor, internal/prompt, internal/llm
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/ctxutil"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
)

// Executor runs a single action. Implementations receive the action name so
// one function can serve several registered actions (the MCP bridge does
// this). A returned error is converted by the dispatcher into a failure
// result; it never reaches the executor loop.
type Executor func(ctx context.Context, name string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error)

// Dispatcher maps action names to executors.
// It is safe for concurrent use after registration.
type Dispatcher struct {
	mu        sync.RWMutex
	executors map[string]Executor
	logger    zerolog.Logger
}

// NewDispatcher creates an empty dispatcher. The built-in actions complete,
// escalate, and cannot_fix resolve without registration.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		executors: make(map[string]Executor),
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Register adds an executor for an action name.
// Registering the same name again replaces the previous executor, which is
// how wrappers and MCP tools override defaults.
func (d *Dispatcher) Register(name string, exec Executor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executors[name] = exec
}

// Has reports whether an executor is registered for the name.
// Built-ins count as registered.
func (d *Dispatcher) Has(name string) bool {
	d.mu.RLock()
	_, ok := d.executors[name]
	d.mu.RUnlock()
	if ok {
		return true
	}
	_, ok = builtins[name]
	return ok
}

// Names returns all registered action names, built-ins included, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.executors)+len(builtins))
	for name := range d.executors {
		names = append(names, name)
	}
	d.mu.RUnlock()

	for name := range builtins {
		if !contains(names, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Execute resolves and invokes the executor for an action. Errors and panics
// from the executor are captured and returned as failure results; Execute
// itself never fails. The task state may be mutated by the executor and must
// be persisted by the caller.
func (d *Dispatcher) Execute(ctx context.Context, name string, params map[string]any, state *domain.TaskState) *domain.ToolResult {
	if err := ctxutil.Canceled(ctx); err != nil {
		return failureResult(fmt.Sprintf("Action failed: %v", err))
	}
	if params == nil {
		params = map[string]any{}
	}

	d.mu.RLock()
	exec, ok := d.executors[name]
	d.mu.RUnlock()

	if !ok {
		exec, ok = builtins[name]
	}
	if !ok {
		msg := "No executor for: " + name
		d.logger.Warn().Str("action", name).Msg("Unregistered action requested")
		return failureResult(msg)
	}

	result := d.invoke(ctx, exec, name, params, state)
	d.logger.Debug().
		Str("action", name).
		Str("status", result.Status.String()).
		Msg("action dispatched")
	return result
}

// invoke runs the executor with panic capture.
func (d *Dispatcher) invoke(ctx context.Context, exec Executor, name string, params map[string]any, state *domain.TaskState) (result *domain.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("action", name).
				Interface("panic", r).
				Msg("Action executor panicked")
			result = failureResult(fmt.Sprintf("Action failed: %v", r))
		}
	}()

	res, err := exec(ctx, name, params, state)
	if err != nil {
		return failureResult(fmt.Sprintf("Action failed: %v", err))
	}
	if res == nil {
		return failureResult("Action failed: executor returned no result")
	}
	return res
}

// failureResult builds a failure with the same summary and error text.
func failureResult(msg string) *domain.ToolResult {
	return &domain.ToolResult{
		Status:  constants.ToolFailure,
		Summary: msg,
		Error:   msg,
	}
}

// Built-in executors, resolved even without registration.
//
//nolint:gochecknoglobals // Read-only lookup table
var builtins = map[string]Executor{
	constants.ActionComplete:  builtinComplete,
	constants.ActionEscalate:  builtinEscalate,
	constants.ActionCannotFix: builtinCannotFix,
}

// builtinComplete succeeds only when verification says the task is done.
func builtinComplete(_ context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	if !state.Verification.ReadyForCompletion {
		return &domain.ToolResult{
			Status:  constants.ToolFailure,
			Summary: "Verification not passing",
			Error:   "Verification not passing",
		}, nil
	}

	summary := stringParam(params, "summary")
	if summary == "" {
		summary = "Task complete"
	}
	if state.ContextData == nil {
		state.ContextData = make(map[string]any)
	}
	state.ContextData[constants.CtxCompletionSummary] = summary

	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: summary,
	}, nil
}

// builtinEscalate always succeeds; the loop stops and a human takes over.
func builtinEscalate(_ context.Context, _ string, params map[string]any, _ *domain.TaskState) (*domain.ToolResult, error) {
	summary := "Escalated to human review"
	if reason := stringParam(params, "reason"); reason != "" {
		summary = "Escalated: " + reason
	}
	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: summary,
	}, nil
}

// builtinCannotFix always succeeds and stashes the reason for reporting.
func builtinCannotFix(_ context.Context, _ string, params map[string]any, state *domain.TaskState) (*domain.ToolResult, error) {
	reason := stringParam(params, "reason")
	if state.ContextData == nil {
		state.ContextData = make(map[string]any)
	}
	state.ContextData[constants.CtxCannotFixReason] = reason

	summary := "Cannot fix"
	if reason != "" {
		summary = "Cannot fix: " + reason
	}
	return &domain.ToolResult{
		Status:  constants.ToolSuccess,
		Summary: summary,
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
