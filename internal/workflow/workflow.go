// Package workflow assembles fix tasks end to end. FixViolation turns one
// conformance check violation into a task: it precomputes the analysis
// sections the prompt builder renders, seeds working memory with what is
// already known, registers the verified tool set, and runs the executor
// loop to termination. The result is a FixReport plus a markdown report
// artifact under the task's outputs.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/audit"
	"github.com/maxxentropy/agentforge-sub001/internal/budget"
	"github.com/maxxentropy/agentforge-sub001/internal/clock"
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/ctxutil"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
	"github.com/maxxentropy/agentforge-sub001/internal/executor"
	"github.com/maxxentropy/agentforge-sub001/internal/llm"
	"github.com/maxxentropy/agentforge-sub001/internal/loopdetect"
	"github.com/maxxentropy/agentforge-sub001/internal/memory"
	"github.com/maxxentropy/agentforge-sub001/internal/prompt"
	"github.com/maxxentropy/agentforge-sub001/internal/state"
	"github.com/maxxentropy/agentforge-sub001/internal/tools"
	"github.com/maxxentropy/agentforge-sub001/internal/understanding"
)

// Violation identifies one conformance check failure to fix.
type Violation struct {
	// TaskID pins the task identifier. Generated when empty.
	TaskID string `json:"task_id,omitempty"`

	// File is the workspace-relative path of the offending file.
	File string `json:"file"`

	// CheckID names the failing conformance check.
	CheckID string `json:"check_id"`

	// Line is the 1-based line the check reported, zero when unknown.
	Line int `json:"line,omitempty"`

	// Description is the check's human-readable finding.
	Description string `json:"description,omitempty"`
}

// Config carries everything a fix run needs. Zero values take the
// package defaults downstream.
type Config struct {
	// WorkspaceRoot is the directory file actions are confined to.
	WorkspaceRoot string

	// CheckCommand re-runs the conformance check ({file} and {check_id}
	// placeholders).
	CheckCommand string

	// TestCommand runs the project test suite.
	TestCommand string

	// Interpreter probes modified Python files. Defaults to python3.
	Interpreter string

	// CommandTimeout bounds each check, test, and probe run.
	CommandTimeout time.Duration

	// MaxIterations caps the executor loop per run.
	MaxIterations int

	// MaxPromptTokens overrides the prompt builder's compaction budget.
	MaxPromptTokens int

	// TokenEncoding names the BPE encoding used to size prompts, e.g.
	// "cl100k_base". Empty keeps the chars/4 estimate.
	TokenEncoding string

	// LLMTimeout bounds each provider call.
	LLMTimeout time.Duration

	// Memory sizes the working memory buffer.
	Memory memory.Config

	// Budget configures the adaptive step budget.
	Budget budget.Config

	// Detector configures loop detection thresholds.
	Detector loopdetect.Config

	// Audit configures the per-step audit trail. Zero value keeps the
	// executor's default (enabled).
	Audit audit.Config

	// MCPServers lists external tool servers to bridge into the
	// dispatcher for this run.
	MCPServers map[string]tools.MCPServerConfig
}

// withDefaults fills zero fields from the package defaults.
func (c Config) withDefaults() Config {
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = "."
	}
	if c.Interpreter == "" {
		c.Interpreter = "python3"
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = constants.DefaultMaxIterations
	}
	return c
}

// Workflow builds and runs fix tasks over one state store and provider.
// Safe for concurrent use across distinct tasks.
type Workflow struct {
	store    state.Store
	provider llm.Provider
	cfg      Config
	runner   tools.CommandRunner
	onStep   executor.StepCallback
	clock    clock.Clock
	logger   zerolog.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithCommandRunner replaces the os/exec runner behind checks, tests,
// and validation probes.
func WithCommandRunner(r tools.CommandRunner) Option {
	return func(w *Workflow) {
		if r != nil {
			w.runner = r
		}
	}
}

// WithStepCallback observes each completed step of a run.
func WithStepCallback(cb executor.StepCallback) Option {
	return func(w *Workflow) {
		w.onStep = cb
	}
}

// WithClock sets the time source.
func WithClock(clk clock.Clock) Option {
	return func(w *Workflow) {
		if clk != nil {
			w.clock = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// New creates a workflow over the given store and provider.
func New(store state.Store, provider llm.Provider, cfg Config, opts ...Option) *Workflow {
	w := &Workflow{
		store:    store,
		provider: provider,
		cfg:      cfg.withDefaults(),
		clock:    clock.RealClock{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if abs, err := filepath.Abs(w.cfg.WorkspaceRoot); err == nil {
		w.cfg.WorkspaceRoot = abs
	} else {
		w.cfg.WorkspaceRoot = filepath.Clean(w.cfg.WorkspaceRoot)
	}
	return w
}

// FixViolation creates a task for the violation and runs it to
// termination. The report reflects the task's final standing; run
// failures after creation still leave the task on disk for Resume.
func (w *Workflow) FixViolation(ctx context.Context, v Violation) (*FixReport, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if v.File == "" {
		return nil, fmt.Errorf("violation file: %w", forgeerrors.ErrEmptyValue)
	}
	if v.CheckID == "" {
		return nil, fmt.Errorf("violation check: %w", forgeerrors.ErrEmptyValue)
	}

	taskID := v.TaskID
	if taskID == "" {
		existing, err := w.store.ListTasks(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("listing tasks: %w", err)
		}
		ids := make(map[string]bool, len(existing))
		for _, st := range existing {
			ids[st.TaskID] = true
		}
		taskID = state.GenerateTaskIDUnique(ids)
	}

	content, err := w.readTarget(v.File)
	if err != nil {
		return nil, err
	}

	spec := &domain.TaskSpec{
		TaskID:   taskID,
		TaskType: prompt.TaskTypeFixViolation,
		Goal:     goalFor(v),
		SuccessCriteria: []string{
			fmt.Sprintf("Check %s passes on %s", v.CheckID, v.File),
			"Existing tests still pass",
		},
		Constraints: []string{
			fmt.Sprintf("Modify only %s", v.File),
			"Preserve the observable behavior of the code",
		},
	}
	contextData := map[string]any{
		constants.CtxFilePath:    v.File,
		constants.CtxCheckID:     v.CheckID,
		constants.CtxLineNumber:  v.Line,
		constants.CtxDescription: v.Description,
		constants.CtxPrecomputed: precomputedSections(v, content),
		constants.CtxFingerprint: w.fingerprint(),
	}

	if _, err := w.store.CreateTask(ctx, spec, contextData); err != nil {
		return nil, fmt.Errorf("creating fix task: %w", err)
	}
	w.logger.Info().
		Str("task_id", taskID).
		Str("file", v.File).
		Str("check", v.CheckID).
		Msg("fix task created")

	if data, err := json.MarshalIndent(v, "", "  "); err == nil {
		if _, err := w.store.SaveArtifact(ctx, taskID, constants.ArtifactKindInputs, "violation.json", data); err != nil {
			w.logger.Warn().Err(err).Str("task_id", taskID).Msg("violation record not saved")
		}
	}

	mem := w.openMemory(taskID)
	w.seedMemory(mem, v, content)

	return w.run(ctx, taskID, mem)
}

// Resume continues a previously created task from its persisted state.
// The working memory, precomputed sections, and verification standing
// all come off disk; only the tool set is rebuilt.
func (w *Workflow) Resume(ctx context.Context, taskID string) (*FixReport, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	st, err := w.store.Load(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", taskID, err)
	}
	if st.Terminal() {
		return nil, fmt.Errorf("resume %s: %w", taskID, forgeerrors.ErrTaskTerminal)
	}
	w.logger.Info().
		Str("task_id", taskID).
		Str("phase", string(st.Phase)).
		Int("step", st.CurrentStep).
		Msg("resuming task")

	return w.run(ctx, taskID, w.openMemory(taskID))
}

// run executes the loop with a freshly wired tool set and reports the
// final standing.
func (w *Workflow) run(ctx context.Context, taskID string, mem memory.Store) (*FixReport, error) {
	dispatcher, closeTools := w.buildDispatcher(ctx, mem)
	defer closeTools()

	outcomes, err := w.buildExecutor(dispatcher).RunUntilComplete(ctx, taskID, w.cfg.MaxIterations, w.onStep)
	if err != nil {
		return nil, fmt.Errorf("running task %s: %w", taskID, err)
	}

	tokens := 0
	for _, outcome := range outcomes {
		tokens += outcome.TokensUsed
	}
	return w.buildReport(ctx, taskID, tokens)
}

// buildDispatcher registers the standard tool set: base file and command
// tools, then the destructive actions re-registered behind validation
// and test verification. The returned func closes any MCP bridge.
func (w *Workflow) buildDispatcher(ctx context.Context, mem memory.Store) (*tools.Dispatcher, func()) {
	root := w.cfg.WorkspaceRoot
	d := tools.NewDispatcher(w.logger)

	files := tools.NewFileTools(root, mem, w.logger)
	files.Register(d)
	cmd := w.commandTools()
	cmd.Register(d)
	transform := tools.NewTransformTools(root, w.logger)

	for name, base := range map[string]tools.Executor{
		constants.ActionWriteFile:           files.WriteFile,
		constants.ActionEditFile:            files.EditFile,
		constants.ActionReplaceLines:        files.ReplaceLines,
		constants.ActionInsertLines:         files.InsertLines,
		constants.ActionSimplifyConditional: transform.SimplifyConditional,
	} {
		verified := tools.NewVerifyWrapper(root, w.validated(base), cmd.RunTests, w.logger)
		verified.SetSnapshotStore(w.store)
		d.Register(name, verified.Execute)
	}

	extraction := tools.NewExtractionWrapper(root, w.validated(transform.ExtractFunction), cmd.RunTests, cmd.RunCheck, w.logger)
	extraction.SetSnapshotStore(w.store)
	d.Register(constants.ActionExtractFunction, extraction.Execute)

	if len(w.cfg.MCPServers) == 0 {
		return d, func() {}
	}
	bridge := tools.NewMCPBridge(w.logger)
	if err := bridge.Connect(ctx, w.cfg.MCPServers); err != nil {
		w.logger.Warn().Err(err).Msg("MCP bridge unavailable")
	}
	bridge.RegisterAll(d)
	return d, bridge.Close
}

// buildExecutor wires the prompt builder and executor over the shared
// store and memory configuration.
func (w *Workflow) buildExecutor(d *tools.Dispatcher) *executor.Executor {
	counter := w.tokenCounter()
	builderOpts := []prompt.Option{
		prompt.WithMemoryOpener(func(taskDir, taskID string) prompt.MemoryReader {
			return w.openMemoryAt(taskDir, taskID)
		}),
		prompt.WithTokenCounter(counter),
		prompt.WithLogger(w.logger),
	}
	if w.cfg.MaxPromptTokens > 0 {
		builderOpts = append(builderOpts, prompt.WithMaxTokens(w.cfg.MaxPromptTokens))
	}
	builder := prompt.NewBuilder(w.store, builderOpts...)

	opts := []executor.Option{
		executor.WithMemoryOpener(w.openMemoryAt),
		executor.WithTokenCounter(counter),
		executor.WithBudgetConfig(w.cfg.Budget),
		executor.WithDetectorConfig(w.cfg.Detector),
		executor.WithClock(w.clock),
		executor.WithLogger(w.logger),
	}
	if w.cfg.Audit != (audit.Config{}) {
		opts = append(opts, executor.WithAuditConfig(w.cfg.Audit))
	}
	if w.cfg.LLMTimeout > 0 {
		opts = append(opts, executor.WithLLMTimeout(w.cfg.LLMTimeout))
	}
	return executor.NewExecutor(w.store, builder, w.provider, d, opts...)
}

// tokenCounter resolves the counter behind prompt compaction and usage
// accounting. An unknown encoding degrades to the estimate with a
// warning rather than failing the run.
func (w *Workflow) tokenCounter() llm.TokenCounter {
	if w.cfg.TokenEncoding == "" {
		return llm.EstimateCounter{}
	}
	counter, err := llm.NewTiktokenCounter(w.cfg.TokenEncoding)
	if err != nil {
		w.logger.Warn().Err(err).
			Str("encoding", w.cfg.TokenEncoding).
			Msg("token encoding unavailable, using estimate")
		return llm.EstimateCounter{}
	}
	return counter
}

// commandTools builds the check and test executors, honoring an
// injected runner.
func (w *Workflow) commandTools() *tools.CommandTools {
	cfg := tools.CommandConfig{
		WorkDir:      w.cfg.WorkspaceRoot,
		CheckCommand: w.cfg.CheckCommand,
		TestCommand:  w.cfg.TestCommand,
		Timeout:      w.cfg.CommandTimeout,
	}
	var cmd *tools.CommandTools
	if w.runner != nil {
		cmd = tools.NewCommandToolsWithRunner(cfg, w.runner, w.logger)
	} else {
		cmd = tools.NewCommandTools(cfg, w.logger)
	}
	cmd.SetClock(w.clock)
	return cmd
}

// validated wraps a destructive executor with the syntax probe.
func (w *Workflow) validated(inner tools.Executor) tools.Executor {
	if w.runner != nil {
		return tools.NewValidateWrapperWithRunner(w.cfg.WorkspaceRoot, inner, w.cfg.Interpreter, w.runner, w.logger).Execute
	}
	return tools.NewValidateWrapper(w.cfg.WorkspaceRoot, inner, w.logger).Execute
}

// openMemory opens the task's working memory buffer.
func (w *Workflow) openMemory(taskID string) memory.Store {
	return w.openMemoryAt(w.store.TaskDir(taskID), taskID)
}

func (w *Workflow) openMemoryAt(taskDir, taskID string) memory.Store {
	return memory.NewFileBuffer(taskDir, taskID, w.cfg.Memory, w.logger)
}

// seedMemory records what the workflow already knows so the first
// prompts do not spend steps rediscovering it. Seeding failures are
// logged, never fatal.
func (w *Workflow) seedMemory(mem memory.Store, v Violation, content string) {
	statement := fmt.Sprintf("%s has %d lines", v.File, len(sourceLines(content)))
	if span, ok := tools.FunctionAt(content, v.Line); ok {
		statement = fmt.Sprintf("Function '%s' spans lines %d-%d of %s", span.Name, span.Start, span.End, v.File)
	}
	if err := mem.AddFact(domain.Fact{
		ID:         understanding.NewFactID(),
		Category:   constants.FactCodeStructure,
		Statement:  statement,
		Confidence: 1.0,
		Source:     "workflow:precompute",
		Step:       0,
	}); err != nil {
		w.logger.Warn().Err(err).Msg("structure fact not seeded")
	}

	note := fmt.Sprintf("%s violation in %s at line %d: %s", v.CheckID, v.File, v.Line, v.Description)
	if err := mem.AddNote("violation", note, 0); err != nil {
		w.logger.Warn().Err(err).Msg("violation note not seeded")
		return
	}
	if err := mem.Pin("violation"); err != nil {
		w.logger.Warn().Err(err).Msg("violation note not pinned")
	}
}

// readTarget loads the violation file, confined to the workspace root.
func (w *Workflow) readTarget(raw string) (string, error) {
	p := raw
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.cfg.WorkspaceRoot, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(w.cfg.WorkspaceRoot, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", forgeerrors.ErrWorkspaceEscape, raw)
	}

	content, err := os.ReadFile(p) //#nosec G304 -- path is validated against the workspace root
	if err != nil {
		return "", fmt.Errorf("reading violation target: %w", err)
	}
	return string(content), nil
}

// fingerprint composes the project identity block rendered at the top
// of every prompt.
func (w *Workflow) fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", filepath.Base(w.cfg.WorkspaceRoot))
	fmt.Fprintf(&b, "Root: %s", w.cfg.WorkspaceRoot)
	if w.cfg.CheckCommand != "" {
		fmt.Fprintf(&b, "\nCheck command: %s", w.cfg.CheckCommand)
	}
	if w.cfg.TestCommand != "" {
		fmt.Fprintf(&b, "\nTest command: %s", w.cfg.TestCommand)
	}
	return b.String()
}

// goalFor phrases the task goal for the prompt's task block.
func goalFor(v Violation) string {
	if v.Line > 0 {
		return fmt.Sprintf("Fix the %s violation in %s at line %d", v.CheckID, v.File, v.Line)
	}
	return fmt.Sprintf("Fix the %s violation in %s", v.CheckID, v.File)
}
