// Package executor runs the engine's step loop. One step is: load task
// state, build the bounded prompt, call the model, parse and dispatch the
// chosen action, extract facts from the result, advance the guarded phase
// machine, and persist everything. The loop repeats until a terminal
// phase, a budget stop, or max iterations.
//
// Step failures never propagate as errors; every step returns a
// StepOutcome and the caller decides whether the run goes on.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/audit"
	"github.com/maxxentropy/agentforge-sub001/internal/budget"
	"github.com/maxxentropy/agentforge-sub001/internal/clock"
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	"github.com/maxxentropy/agentforge-sub001/internal/llm"
	"github.com/maxxentropy/agentforge-sub001/internal/loopdetect"
	"github.com/maxxentropy/agentforge-sub001/internal/memory"
	"github.com/maxxentropy/agentforge-sub001/internal/phase"
	"github.com/maxxentropy/agentforge-sub001/internal/prompt"
	"github.com/maxxentropy/agentforge-sub001/internal/state"
	"github.com/maxxentropy/agentforge-sub001/internal/tools"
	"github.com/maxxentropy/agentforge-sub001/internal/understanding"
)

// MemoryOpener yields the working memory store for one task.
type MemoryOpener func(taskDir, taskID string) memory.Store

// MachineFactory rebuilds a phase machine from its persisted projection.
// The machine is a value object; a fresh instance is built every step.
type MachineFactory func(projection domain.PhaseMachineState) *phase.Machine

// Executor orchestrates single steps and full runs over one task store.
// Safe for concurrent use across distinct tasks; steps of the same task
// must not interleave.
type Executor struct {
	store      state.Store
	builder    *prompt.Builder
	provider   llm.Provider
	dispatcher *tools.Dispatcher
	extractor  *understanding.Extractor
	memoryFor  MemoryOpener
	machineFor MachineFactory
	counter    llm.TokenCounter
	auditCfg   audit.Config
	budgetCfg  budget.Config
	detectCfg  loopdetect.Config
	llmTimeout time.Duration
	factLLM    bool
	clock      clock.Clock
	logger     zerolog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithExtractor sets the understanding extractor.
func WithExtractor(e *understanding.Extractor) Option {
	return func(ex *Executor) {
		if e != nil {
			ex.extractor = e
		}
	}
}

// WithMemoryOpener overrides how per-task working memory is opened.
func WithMemoryOpener(open MemoryOpener) Option {
	return func(ex *Executor) {
		if open != nil {
			ex.memoryFor = open
		}
	}
}

// WithMachineFactory overrides how phase machines are rebuilt.
func WithMachineFactory(factory MachineFactory) Option {
	return func(ex *Executor) {
		if factory != nil {
			ex.machineFor = factory
		}
	}
}

// WithTokenCounter sets the counter used when a provider reports no usage.
func WithTokenCounter(c llm.TokenCounter) Option {
	return func(ex *Executor) {
		if c != nil {
			ex.counter = c
		}
	}
}

// WithAuditConfig sets the audit template applied to each run. The task
// ID is filled in per run.
func WithAuditConfig(cfg audit.Config) Option {
	return func(ex *Executor) {
		ex.auditCfg = cfg
	}
}

// WithBudgetConfig sets the adaptive budget parameters.
func WithBudgetConfig(cfg budget.Config) Option {
	return func(ex *Executor) {
		ex.budgetCfg = cfg
	}
}

// WithDetectorConfig sets the loop detection thresholds.
func WithDetectorConfig(cfg loopdetect.Config) Option {
	return func(ex *Executor) {
		ex.detectCfg = cfg
	}
}

// WithLLMTimeout caps each provider call.
func WithLLMTimeout(d time.Duration) Option {
	return func(ex *Executor) {
		if d > 0 {
			ex.llmTimeout = d
		}
	}
}

// WithLLMFactFallback enables the extractor's LLM fallback for outputs
// the rule sets barely understand.
func WithLLMFactFallback(enabled bool) Option {
	return func(ex *Executor) {
		ex.factLLM = enabled
	}
}

// WithClock sets the clock for deterministic tests.
func WithClock(clk clock.Clock) Option {
	return func(ex *Executor) {
		if clk != nil {
			ex.clock = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(ex *Executor) {
		ex.logger = logger.With().Str("component", "executor").Logger()
	}
}

// NewExecutor wires an executor over its collaborators. Defaults: the
// built-in extraction rules, file-backed working memory, the standard
// phase machine, chars/4 token estimation, audit enabled, and the
// package default budget and detector thresholds.
func NewExecutor(store state.Store, builder *prompt.Builder, provider llm.Provider, dispatcher *tools.Dispatcher, opts ...Option) *Executor {
	ex := &Executor{
		store:      store,
		builder:    builder,
		provider:   provider,
		dispatcher: dispatcher,
		counter:    llm.EstimateCounter{},
		auditCfg:   audit.Config{MaxTaskDirs: 50, Enabled: true},
		llmTimeout: constants.DefaultLLMTimeout,
		clock:      clock.RealClock{},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(ex)
	}
	if ex.extractor == nil {
		ex.extractor = understanding.NewExtractor(ex.logger)
	}
	if ex.memoryFor == nil {
		logger := ex.logger
		ex.memoryFor = func(taskDir, taskID string) memory.Store {
			return memory.NewFileBuffer(taskDir, taskID, memory.Config{}, logger)
		}
	}
	if ex.machineFor == nil {
		logger := ex.logger
		ex.machineFor = func(projection domain.PhaseMachineState) *phase.Machine {
			return phase.NewMachine(projection, logger)
		}
	}
	return ex
}

// ExecuteStep runs one step of the task and reports what happened.
// Errors are folded into the outcome; the call itself never fails.
func (ex *Executor) ExecuteStep(ctx context.Context, taskID string) *domain.StepOutcome {
	return ex.executeStep(ctx, taskID, nil)
}

// executeStep is the single-step procedure. auditLog may be nil.
func (ex *Executor) executeStep(ctx context.Context, taskID string, auditLog *audit.Logger) (outcome *domain.StepOutcome) {
	start := ex.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			ex.logger.Error().
				Str("task_id", taskID).
				Interface("panic", r).
				Msg("step panicked")
			outcome = ex.failedOutcome("", fmt.Errorf("step panic: %v", r), start)
		}
	}()

	st, err := ex.store.Load(ctx, taskID)
	if err != nil {
		return ex.failedOutcome("", fmt.Errorf("loading task state: %w", err), start)
	}

	ex.repairStepGap(ctx, st)

	if st.Phase.Terminal() {
		return &domain.StepOutcome{
			Success:        true,
			ActionName:     "already_complete",
			Result:         constants.ActionResultSkipped,
			Summary:        fmt.Sprintf("Task already in terminal phase %s", st.Phase),
			ShouldContinue: false,
			DurationMs:     ex.sinceMs(start),
		}
	}
	phaseBefore := st.Phase

	system, user, err := ex.builder.BuildMessages(ctx, taskID)
	if err != nil {
		return ex.failedOutcome("", fmt.Errorf("building prompt: %w", err), start)
	}

	llmCtx, cancel := context.WithTimeout(ctx, ex.llmTimeout)
	resp, err := ex.provider.Generate(llmCtx, &llm.Request{System: system, User: user})
	cancel()
	if err != nil {
		return ex.failedOutcome("", fmt.Errorf("llm call: %w", err), start)
	}

	usage := resp.Usage
	if usage.Total() == 0 {
		usage = llm.TokenUsage{
			PromptTokens:   ex.counter.Count(system) + ex.counter.Count(user),
			ResponseTokens: ex.counter.Count(resp.Text),
		}
	}

	action := llm.ParseAction(resp.Text)
	for _, warning := range llm.ValidateAction(action) {
		ex.logger.Warn().
			Str("task_id", taskID).
			Str("action", action.Name).
			Str("warning", warning).
			Msg("action validation warning")
	}

	result := ex.dispatcher.Execute(ctx, action.Name, action.Parameters, st)

	stepNum := st.CurrentStep + 1
	target := actionTarget(action.Parameters)
	record := &domain.ActionRecord{
		Step:       stepNum,
		ActionName: action.Name,
		Target:     target,
		Parameters: action.Parameters,
		Result:     result.ActionResult(),
		Summary:    result.Summary,
		Timestamp:  ex.clock.Now().UTC(),
		DurationMs: ex.sinceMs(start),
		Error:      result.Error,
	}
	if err := ex.store.RecordAction(ctx, taskID, record); err != nil {
		return ex.failedOutcome(action.Name, fmt.Errorf("recording action: %w", err), start)
	}

	// Persist tool-side state mutations (context data, verification,
	// modified files) before the counter moves.
	if err := ex.store.Save(ctx, st); err != nil {
		return ex.failedOutcome(action.Name, fmt.Errorf("saving state: %w", err), start)
	}
	newStep, err := ex.store.IncrementStep(ctx, taskID)
	if err != nil {
		return ex.failedOutcome(action.Name, fmt.Errorf("advancing step: %w", err), start)
	}
	st.CurrentStep = newStep

	mem := ex.memoryFor(ex.store.TaskDir(taskID), taskID)
	if err := mem.AddActionResult(action.Name, result.ActionResult(), result.Summary, stepNum, target); err != nil {
		ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to record action result in working memory")
	}

	facts := ex.extractor.Extract(ctx, action.Name, extractionText(result), result.ActionResult(), stepNum, ex.factLLM)
	if err := mem.AddFacts(facts); err != nil {
		ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to persist facts")
	}

	active, err := mem.ActiveFacts()
	if err != nil {
		ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to read facts for phase context")
	}

	machine := ex.machineFor(st.PhaseMachine)
	machine.RecordStep()
	pctx := phaseContext(st, machine, active, action.Name, result.ActionResult(), result.Fatal)
	ex.advancePhase(machine, pctx, action.Name, result)
	if err := ex.store.UpdatePhaseMachine(ctx, taskID, machine.Projection()); err != nil {
		return ex.failedOutcome(action.Name, fmt.Errorf("persisting phase: %w", err), start)
	}
	st.Phase = machine.Current()
	st.PhaseMachine = machine.Projection()

	if result.Fatal && result.Error != "" {
		if err := ex.store.SetError(ctx, taskID, result.Error); err != nil {
			ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to record fatal error")
		}
	}

	snap := &audit.StepSnapshot{
		Step:           stepNum,
		Phase:          phaseBefore.String(),
		Action:         action.Name,
		Parameters:     action.Parameters,
		ResultStatus:   string(result.Status),
		ResultSummary:  result.Summary,
		PromptTokens:   usage.PromptTokens,
		ResponseTokens: usage.ResponseTokens,
		ContextHash:    audit.ContextHash(system, user),
	}
	if err := auditLog.Snapshot(snap); err != nil {
		ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to write audit snapshot")
	}

	return &domain.StepOutcome{
		Success:        true,
		ActionName:     action.Name,
		Parameters:     action.Parameters,
		Result:         result.ActionResult(),
		Summary:        result.Summary,
		ShouldContinue: !st.Phase.Terminal(),
		TokensUsed:     usage.Total(),
		DurationMs:     ex.sinceMs(start),
	}
}

// repairStepGap re-syncs the step counter when the last run crashed
// between recording an action and advancing the counter. The opposite
// gap (counter ahead of the log) is tolerated as is.
func (ex *Executor) repairStepGap(ctx context.Context, st *domain.TaskState) {
	recent, err := ex.store.RecentActions(ctx, st.TaskID, 1)
	if err != nil || len(recent) == 0 {
		return
	}
	if recent[0].Step <= st.CurrentStep {
		return
	}

	newStep, err := ex.store.IncrementStep(ctx, st.TaskID)
	if err != nil {
		ex.logger.Warn().Err(err).Str("task_id", st.TaskID).Msg("failed to repair step counter gap")
		return
	}
	st.CurrentStep = newStep
	ex.logger.Warn().
		Str("task_id", st.TaskID).
		Int("step", newStep).
		Msg("step counter lagged the action log, repaired")
}

// advancePhase applies action semantics first, then the machine's own
// auto-transition: a succeeded complete forces COMPLETE, escalate and
// cannot_fix force ESCALATED, a fatal result forces FAILED. Terminal
// targets bypass guards when the table blocks them.
func (ex *Executor) advancePhase(machine *phase.Machine, pctx phase.Context, actionName string, result *domain.ToolResult) {
	if target, ok := terminalTarget(actionName, result); ok {
		if !machine.Transition(target, pctx) {
			_ = machine.ForceTerminal(target, fmt.Sprintf("action %s requires terminal phase", actionName))
		}
		return
	}

	if target, ok := machine.ShouldAutoTransition(pctx); ok {
		machine.Transition(target, pctx)
	}
}

// terminalTarget derives a required terminal phase from the action and
// its result. A bounced complete (verification not ready) derives
// nothing so the loop can keep working.
func terminalTarget(actionName string, result *domain.ToolResult) (constants.Phase, bool) {
	switch {
	case actionName == constants.ActionComplete && result.Success():
		return constants.PhaseComplete, true
	case actionName == constants.ActionEscalate, actionName == constants.ActionCannotFix:
		return constants.PhaseEscalated, true
	case result.Fatal:
		return constants.PhaseFailed, true
	}
	return "", false
}

// phaseContext snapshots the execution state for guard evaluation.
func phaseContext(st *domain.TaskState, machine *phase.Machine, facts []domain.Fact, lastAction string, lastResult constants.ActionResult, lastFatal bool) phase.Context {
	return phase.Context{
		CurrentPhase:        machine.Current(),
		StepsInPhase:        machine.StepsInPhase(),
		TotalSteps:          st.CurrentStep,
		VerificationPassing: st.Verification.ChecksFailing == 0,
		TestsPassing:        st.Verification.TestsPassing,
		FilesModified:       st.FilesModified(),
		Facts:               facts,
		LastAction:          lastAction,
		LastActionResult:    lastResult,
		LastActionFatal:     lastFatal,
	}
}

// extractionText is what the understanding rules see: the summary plus
// the raw output, which carry different rule targets.
func extractionText(result *domain.ToolResult) string {
	if result.Output == "" {
		return result.Summary
	}
	return result.Summary + "\n" + result.Output
}

// actionTarget pulls the file path an action operated on, when present.
func actionTarget(params map[string]any) string {
	for _, key := range []string{constants.CtxFilePath, "path"} {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// failedOutcome folds an executor-level error into a non-continuing
// failure outcome.
func (ex *Executor) failedOutcome(actionName string, err error, start time.Time) *domain.StepOutcome {
	return &domain.StepOutcome{
		Success:        false,
		ActionName:     actionName,
		Result:         constants.ActionResultFailure,
		ShouldContinue: false,
		Error:          err.Error(),
		DurationMs:     ex.sinceMs(start),
	}
}

// sinceMs measures elapsed wall time in milliseconds.
func (ex *Executor) sinceMs(start time.Time) int64 {
	return ex.clock.Now().Sub(start).Milliseconds()
}
