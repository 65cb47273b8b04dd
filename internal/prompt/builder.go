package prompt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/ctxutil"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	"github.com/maxxentropy/agentforge-sub001/internal/llm"
	"github.com/maxxentropy/agentforge-sub001/internal/memory"
)

// StateReader is the slice of the task store the builder reads.
type StateReader interface {
	// LoadSpec returns the immutable task spec.
	LoadSpec(ctx context.Context, taskID string) (*domain.TaskSpec, error)

	// Load returns the current task state.
	Load(ctx context.Context, taskID string) (*domain.TaskState, error)

	// TaskDir returns the task's state directory.
	TaskDir(taskID string) string
}

// MemoryReader is the slice of working memory the builder reads.
type MemoryReader interface {
	// ActionResults returns up to limit most recent action results,
	// chronological.
	ActionResults(limit, currentStep int) ([]domain.WorkingMemoryItem, error)

	// Facts returns active facts at or above the confidence floor.
	Facts(minConfidence float64) ([]domain.Fact, error)
}

// MemoryOpener yields the working memory reader for one task.
type MemoryOpener func(taskDir, taskID string) MemoryReader

// Fingerprinter supplies the project fingerprint block. The content is
// opaque to the builder and rendered verbatim under its header.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, state *domain.TaskState) (string, error)
}

// ContextFingerprinter reads the fingerprint the workflow stored in the
// task's context data at creation. This is the default.
type ContextFingerprinter struct{}

// Fingerprint returns the stored fingerprint, empty when none was set.
func (ContextFingerprinter) Fingerprint(_ context.Context, state *domain.TaskState) (string, error) {
	return state.ContextString(constants.CtxFingerprint), nil
}

// StaticFingerprinter returns a fixed fingerprint string.
type StaticFingerprinter string

// Fingerprint returns the fixed string.
func (s StaticFingerprinter) Fingerprint(_ context.Context, _ *domain.TaskState) (string, error) {
	return string(s), nil
}

// Compile-time interface checks.
var (
	_ Fingerprinter = ContextFingerprinter{}
	_ Fingerprinter = StaticFingerprinter("")
)

// Builder assembles the system and user messages for a task's next step.
// One Builder serves many tasks; per-build state is local, the only
// shared state is the compaction counters.
type Builder struct {
	store       StateReader
	memoryFor   MemoryOpener
	fingerprint Fingerprinter
	counter     llm.TokenCounter
	maxTokens   int
	logger      zerolog.Logger

	mu          sync.Mutex
	events      int
	tokensSaved int
}

// Option configures a Builder.
type Option func(*Builder)

// WithFingerprinter sets the fingerprint collaborator.
func WithFingerprinter(f Fingerprinter) Option {
	return func(b *Builder) {
		if f != nil {
			b.fingerprint = f
		}
	}
}

// WithTokenCounter sets the token counter used for budget estimation.
func WithTokenCounter(c llm.TokenCounter) Option {
	return func(b *Builder) {
		if c != nil {
			b.counter = c
		}
	}
}

// WithMaxTokens sets the prompt token budget.
func WithMaxTokens(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxTokens = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithMemoryOpener overrides how per-task working memory is opened.
func WithMemoryOpener(open MemoryOpener) Option {
	return func(b *Builder) {
		if open != nil {
			b.memoryFor = open
		}
	}
}

// NewBuilder creates a Builder over the given store. Defaults: context
// fingerprinter, chars/4 token estimation, the standard token budget,
// file-backed working memory, no logging.
func NewBuilder(store StateReader, opts ...Option) *Builder {
	b := &Builder{
		store:       store,
		fingerprint: ContextFingerprinter{},
		counter:     llm.EstimateCounter{},
		maxTokens:   constants.DefaultMaxPromptTokens,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.memoryFor == nil {
		logger := b.logger
		b.memoryFor = func(taskDir, taskID string) MemoryReader {
			return memory.NewFileBuffer(taskDir, taskID, memory.Config{}, logger)
		}
	}
	return b
}

// MaxTokens returns the configured prompt budget.
func (b *Builder) MaxTokens() int {
	return b.maxTokens
}

// BuildMessages assembles the system and user messages for the task's
// next step. The user message is compacted to the token budget when
// needed; validation problems are logged as warnings, never errors.
func (b *Builder) BuildMessages(ctx context.Context, taskID string) (string, string, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return "", "", err
	}

	spec, err := b.store.LoadSpec(ctx, taskID)
	if err != nil {
		return "", "", fmt.Errorf("loading spec for prompt: %w", err)
	}
	state, err := b.store.Load(ctx, taskID)
	if err != nil {
		return "", "", fmt.Errorf("loading state for prompt: %w", err)
	}

	tmpl := TemplateFor(spec.TaskType)
	system, err := tmpl.systemMessage(state.Phase, systemData{
		Phase:    tmpl.PhaseName(state.Phase),
		TaskType: spec.TaskType,
		Goal:     spec.Goal,
	})
	if err != nil {
		return "", "", err
	}

	sections, err := b.assemble(ctx, tmpl, spec, state)
	if err != nil {
		return "", "", err
	}

	systemTokens := b.counter.Count(system)
	estimate := systemTokens + b.counter.Count(renderSections(sections))
	if estimate > b.maxTokens {
		before := estimate
		var applied []string
		sections, estimate, applied = b.compact(systemTokens, sections)
		b.recordCompaction(before - estimate)
		b.logger.Debug().
			Str("task_id", taskID).
			Int("before_tokens", before).
			Int("after_tokens", estimate).
			Strs("steps", applied).
			Msg("Prompt compacted")
		if estimate > b.maxTokens {
			b.logger.Warn().
				Str("task_id", taskID).
				Int("estimate", estimate).
				Int("budget", b.maxTokens).
				Msg("Prompt exceeds budget after full compaction")
		}
	}

	for _, warning := range b.validate(spec, state, sections, estimate) {
		b.logger.Warn().Str("task_id", taskID).Msg(warning)
	}

	return system, renderSections(sections), nil
}

// assemble builds the ordered section list for the user message.
func (b *Builder) assemble(ctx context.Context, tmpl *Template, spec *domain.TaskSpec, state *domain.TaskState) ([]section, error) {
	mem := b.memoryFor(b.store.TaskDir(state.TaskID), state.TaskID)
	recent, err := mem.ActionResults(constants.RecentActionLimit, state.CurrentStep)
	if err != nil {
		return nil, fmt.Errorf("reading recent actions: %w", err)
	}
	facts, err := mem.Facts(constants.PromptFactConfidenceFloor)
	if err != nil {
		return nil, fmt.Errorf("reading facts: %w", err)
	}

	sections := make([]section, 0, 12)

	fp, err := b.fingerprint.Fingerprint(ctx, state)
	if err != nil {
		b.logger.Warn().Err(err).Str("task_id", state.TaskID).Msg("Fingerprint unavailable")
	} else if fp != "" {
		sections = append(sections, section{name: sectionFingerprint, content: fp})
	}

	sections = append(sections,
		section{name: sectionTask, content: renderTask(spec)},
		section{name: sectionPhase, content: renderPhase(tmpl, state)},
	)
	sections = append(sections, b.tierTwoSections(tmpl, state)...)
	if len(facts) > 0 {
		sections = append(sections, section{name: sectionUnderstanding, content: renderFacts(facts)})
	}
	if len(recent) > 0 {
		sections = append(sections, section{name: sectionRecent, content: renderRecent(recent)})
	}
	if menu := renderMenu(tmpl, state); menu != "" {
		sections = append(sections, section{name: sectionActions, content: menu})
	}
	sections = append(sections, section{
		name:    sectionDirective,
		content: tmpl.directive(state.Phase) + "\n\n" + responseFormat,
	})
	return sections, nil
}

// tierTwoSections renders the phase's precomputed sections in template
// order. Templates without a list for the phase render everything
// available, sorted by name.
func (b *Builder) tierTwoSections(tmpl *Template, state *domain.TaskState) []section {
	pre := precomputedSections(state)
	if len(pre) == 0 {
		return nil
	}

	names := tmpl.Sections(state.Phase)
	if names == nil {
		names = make([]string, 0, len(pre))
		for name := range pre {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	out := make([]section, 0, len(names))
	for _, name := range names {
		if content, ok := pre[name]; ok && strings.TrimSpace(content) != "" {
			out = append(out, section{name: name, content: content})
		}
	}
	return out
}

// renderTask renders the goal, success criteria, and constraints.
func renderTask(spec *domain.TaskSpec) string {
	var sb strings.Builder
	sb.WriteString(spec.Goal)
	if len(spec.SuccessCriteria) > 0 {
		sb.WriteString("\n\nSuccess criteria:")
		for _, c := range spec.SuccessCriteria {
			sb.WriteString("\n- " + c)
		}
	}
	if len(spec.Constraints) > 0 {
		sb.WriteString("\n\nConstraints:")
		for _, c := range spec.Constraints {
			sb.WriteString("\n- " + c)
		}
	}
	return sb.String()
}

// renderPhase renders the current position, history, and verification
// summary when verification has run at least once.
func renderPhase(tmpl *Template, state *domain.TaskState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current phase: %s (step %d in phase, step %d overall)",
		tmpl.PhaseName(state.Phase), state.PhaseMachine.StepsInPhase, state.CurrentStep)

	if len(state.PhaseMachine.PhaseHistory) > 0 {
		names := make([]string, 0, len(state.PhaseMachine.PhaseHistory))
		for _, p := range state.PhaseMachine.PhaseHistory {
			names = append(names, tmpl.PhaseName(p))
		}
		fmt.Fprintf(&sb, "\nPhase history: %s", strings.Join(names, " -> "))
	}

	v := state.Verification
	if v.LastCheckTime != nil {
		fmt.Fprintf(&sb, "\nVerification: %d checks passing, %d failing; tests %s",
			v.ChecksPassing, v.ChecksFailing, passFail(v.TestsPassing))
		if v.ReadyForCompletion {
			sb.WriteString("; ready for completion")
		}
	}
	return sb.String()
}

func passFail(ok bool) string {
	if ok {
		return "passing"
	}
	return "failing"
}

// renderFacts lists facts one per line, insertion order, so the
// compactor's fact cap operates on lines.
func renderFacts(facts []domain.Fact) string {
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, fmt.Sprintf("- [%s] %s (%.2f)", f.Category, f.Statement, f.Confidence))
	}
	return strings.Join(lines, "\n")
}

// renderRecent lists recent action outcomes one per line, oldest first.
func renderRecent(items []domain.WorkingMemoryItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		content := strings.ReplaceAll(item.Content, "\n", " ")
		lines = append(lines, fmt.Sprintf("Step %d: %s", item.Step, content))
	}
	return strings.Join(lines, "\n")
}

// renderMenu renders the phase's action menu. When extraction candidates
// are precomputed, the extract_function entry gains a hint naming the
// first candidate.
func renderMenu(tmpl *Template, state *domain.TaskState) string {
	menu := tmpl.menu(state.Phase)
	if len(menu) == 0 {
		return ""
	}

	hint := extractionHint(state)
	var sb strings.Builder
	for i, spec := range menu {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- %s: %s", spec.Usage, spec.Description)
		if spec.Name == constants.ActionExtractFunction && hint != "" {
			fmt.Fprintf(&sb, "\n  hint: %s", hint)
		}
	}
	return sb.String()
}

// extractionHint condenses the first precomputed extraction candidate
// into one line, empty when there are none.
func extractionHint(state *domain.TaskState) string {
	pre := precomputedSections(state)
	candidates := strings.TrimSpace(pre[constants.SectionExtractionCandidates])
	if candidates == "" {
		return ""
	}
	if i := strings.IndexByte(candidates, '\n'); i >= 0 {
		candidates = candidates[:i]
	}
	return strings.TrimSpace(candidates)
}

// precomputedSections normalizes the precomputed context map into named
// string sections. List values join as blank-line-separated entries.
func precomputedSections(state *domain.TaskState) map[string]string {
	if state.ContextData == nil {
		return nil
	}
	raw, ok := state.ContextData[constants.CtxPrecomputed]
	if !ok {
		return nil
	}

	out := make(map[string]string)
	switch m := raw.(type) {
	case map[string]any:
		for name, v := range m {
			out[name] = stringify(v)
		}
	case map[string]string:
		for name, v := range m {
			out[name] = v
		}
	default:
		return nil
	}
	return out
}

// stringify renders a precomputed value as section content.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, "\n\n")
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			if s := stringify(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n\n")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// validate returns post-build warnings. Warnings never block a prompt.
func (b *Builder) validate(spec *domain.TaskSpec, state *domain.TaskState, sections []section, estimate int) []string {
	var warnings []string

	if spec.TaskType == TaskTypeFixViolation && state.ContextString(constants.CtxFilePath) == "" {
		warnings = append(warnings, "fix_violation task has no file_path in context data")
	}

	pre := precomputedSections(state)
	if strings.TrimSpace(pre[constants.SectionExtractionCandidates]) != "" {
		actions := sectionContent(sections, sectionActions)
		if strings.Contains(actions, constants.ActionExtractFunction) && !strings.Contains(actions, "hint:") {
			warnings = append(warnings, "extraction candidates present but extract_function has no hint")
		}
	}

	if estimate < constants.MinPromptTokens {
		warnings = append(warnings, fmt.Sprintf("prompt estimate %d tokens is below the %d minimum", estimate, constants.MinPromptTokens))
	}
	return warnings
}

// recordCompaction accumulates the audit counters for one compaction.
func (b *Builder) recordCompaction(saved int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events++
	if saved > 0 {
		b.tokensSaved += saved
	}
}

// CompactionStats returns how many prompts were compacted and the total
// estimated tokens saved since the last reset.
func (b *Builder) CompactionStats() (events, tokensSaved int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events, b.tokensSaved
}

// ResetCompactionStats zeroes the compaction counters. The executor
// resets them at the start of each run.
func (b *Builder) ResetCompactionStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = 0
	b.tokensSaved = 0
}

// Breakdown reports the uncompacted token weight of a task's prompt.
type Breakdown struct {
	// TaskID is the task this breakdown describes.
	TaskID string `json:"task_id"`

	// System is the system message estimate.
	System int `json:"system_tokens"`

	// Total is the whole-prompt estimate, system included.
	Total int `json:"total_tokens"`

	// Budget is the configured token budget.
	Budget int `json:"budget_tokens"`

	// OverBudget reports whether building this prompt would compact.
	OverBudget bool `json:"over_budget"`

	// Sections lists the per-section estimates in render order.
	Sections []SectionTokens `json:"sections"`
}

// SectionTokens is one section's estimated token weight.
type SectionTokens struct {
	Name   string `json:"name"`
	Tokens int    `json:"tokens"`
}

// TokenBreakdown reports where a task's prompt spends its budget, before
// any compaction.
func (b *Builder) TokenBreakdown(ctx context.Context, taskID string) (*Breakdown, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	spec, err := b.store.LoadSpec(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("loading spec for breakdown: %w", err)
	}
	state, err := b.store.Load(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("loading state for breakdown: %w", err)
	}

	tmpl := TemplateFor(spec.TaskType)
	system, err := tmpl.systemMessage(state.Phase, systemData{
		Phase:    tmpl.PhaseName(state.Phase),
		TaskType: spec.TaskType,
		Goal:     spec.Goal,
	})
	if err != nil {
		return nil, err
	}

	sections, err := b.assemble(ctx, tmpl, spec, state)
	if err != nil {
		return nil, err
	}

	breakdown := &Breakdown{
		TaskID: taskID,
		System: b.counter.Count(system),
		Budget: b.maxTokens,
	}
	for _, sec := range sections {
		breakdown.Sections = append(breakdown.Sections, SectionTokens{
			Name:   sec.name,
			Tokens: b.counter.Count(renderSections([]section{sec})),
		})
	}
	breakdown.Total = breakdown.System + b.counter.Count(renderSections(sections))
	breakdown.OverBudget = breakdown.Total > b.maxTokens
	return breakdown, nil
}
