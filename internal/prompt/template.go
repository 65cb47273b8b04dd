// Package prompt builds the system and user messages for each step of a
// task. The user message is a fixed sequence of labeled sections; when the
// estimated token count exceeds the budget, a progressive compactor trims
// sections in priority order until the prompt fits. Fingerprint, task, and
// phase sections are never compacted.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, internal/domain,
//     internal/ctxutil, internal/llm, internal/memory
//   - MUST NOT import: internal/state, internal/tools, internal/executor
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
)

// ActionSpec is one entry in a phase's action menu.
type ActionSpec struct {
	// Name is the action name the dispatcher resolves.
	Name string

	// Usage is the call form shown to the model, e.g.
	// "edit_file(path, old_text, new_text)".
	Usage string

	// Description is a one-line explanation of the action's effect.
	Description string
}

// Template describes how one task type renders into prompts: the phase
// vocabulary, which precomputed sections each phase shows, the per-phase
// system boilerplate and directive, and the action menu.
//
// System prompt values are text/template sources executed with the phase
// name, task type, and goal; see systemData.
type Template struct {
	// TaskType is the task type this template serves.
	TaskType string

	// PhaseNames maps machine phases to the template's own vocabulary.
	// Missing entries fall back to the machine name.
	PhaseNames map[constants.Phase]string

	// PhaseSections lists, in render order, the precomputed context
	// sections each phase shows. A missing entry means all precomputed
	// sections, sorted by name.
	PhaseSections map[constants.Phase][]string

	// SystemPrompts holds per-phase system message sources. Missing
	// entries fall back to the generic source for that phase.
	SystemPrompts map[constants.Phase]string

	// Directives holds per-phase closing instructions for the user
	// message. The response format block is appended automatically.
	Directives map[constants.Phase]string

	// Actions lists the action menu per phase. A missing entry falls
	// back to the generic menu.
	Actions map[constants.Phase][]ActionSpec
}

// PhaseName returns the template's display name for a machine phase.
func (t *Template) PhaseName(p constants.Phase) string {
	if name, ok := t.PhaseNames[p]; ok {
		return name
	}
	return string(p)
}

// Sections returns the ordered precomputed section names for a phase.
// Nil means render everything available.
func (t *Template) Sections(p constants.Phase) []string {
	return t.PhaseSections[p]
}

// systemSource returns the system prompt source for a phase.
func (t *Template) systemSource(p constants.Phase) string {
	if src, ok := t.SystemPrompts[p]; ok {
		return src
	}
	return genericSystemSource(p)
}

// directive returns the directive text for a phase, without the response
// format block.
func (t *Template) directive(p constants.Phase) string {
	if d, ok := t.Directives[p]; ok {
		return d
	}
	return genericDirective(p)
}

// menu returns the action menu for a phase.
func (t *Template) menu(p constants.Phase) []ActionSpec {
	if m, ok := t.Actions[p]; ok {
		return m
	}
	return genericMenu(p)
}

// systemData is the data a system prompt source is executed with.
type systemData struct {
	// Phase is the template-vocabulary phase name.
	Phase string

	// TaskType is the task type.
	TaskType string

	// Goal is the task goal.
	Goal string
}

// systemMessage renders the phase's system prompt.
func (t *Template) systemMessage(p constants.Phase, data systemData) (string, error) {
	src := t.systemSource(p)
	tmpl, err := template.New("system").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parsing system prompt for phase %s: %w", p, err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering system prompt for phase %s: %w", p, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// Registry state. Built-in templates are registered at init; workflows
// may register their own before building prompts.
//
//nolint:gochecknoglobals // Package-level template table, extended via RegisterTemplate
var (
	templatesMu sync.RWMutex
	templates   = make(map[string]*Template)
)

// RegisterTemplate adds or replaces the template for its task type.
// The system prompt sources are parsed eagerly so authoring mistakes
// surface at registration, not mid-task.
func RegisterTemplate(t *Template) error {
	if t == nil || t.TaskType == "" {
		return fmt.Errorf("template must have a task type")
	}
	for phase, src := range t.SystemPrompts {
		if _, err := template.New("system").Parse(src); err != nil {
			return fmt.Errorf("parsing system prompt for phase %s: %w", phase, err)
		}
	}

	templatesMu.Lock()
	defer templatesMu.Unlock()
	templates[t.TaskType] = t
	return nil
}

// MustRegisterTemplate is RegisterTemplate that panics on error, for use
// in package init.
func MustRegisterTemplate(t *Template) {
	if err := RegisterTemplate(t); err != nil {
		panic(fmt.Sprintf("registering prompt template: %v", err))
	}
}

// TemplateFor returns the template registered for a task type, or the
// generic template when none is.
func TemplateFor(taskType string) *Template {
	templatesMu.RLock()
	defer templatesMu.RUnlock()

	if t, ok := templates[taskType]; ok {
		return t
	}
	return templates[TaskTypeGeneric]
}

// TemplateNames returns the registered task types, sorted.
func TemplateNames() []string {
	templatesMu.RLock()
	defer templatesMu.RUnlock()

	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Task types with built-in templates.
const (
	// TaskTypeFixViolation is the conformance-violation repair workflow.
	TaskTypeFixViolation = "fix_violation"

	// TaskTypeGeneric serves any task type without a registered template.
	TaskTypeGeneric = "generic"
)

// init registers the built-in templates. Sources are package constants,
// so a parse failure here is a bug we want loudly at startup.
//
//nolint:gochecknoinits // Built-in templates must exist before any build
func init() {
	MustRegisterTemplate(genericTemplate())
	MustRegisterTemplate(fixViolationTemplate())
}

// genericTemplate serves task types without a registered template. It
// shows every precomputed section in name order and offers the full
// action menu in every working phase.
func genericTemplate() *Template {
	return &Template{
		TaskType: TaskTypeGeneric,
	}
}

// fixViolationTemplate is the conformance-violation repair template.
// Phase sections narrow as the task progresses: analysis sees the wide
// view, implementation sees the target plus guidance, verification sees
// only the target.
func fixViolationTemplate() *Template {
	return &Template{
		TaskType: TaskTypeFixViolation,
		PhaseSections: map[constants.Phase][]string{
			constants.PhaseInit: {
				constants.SectionCheckDefinition,
				constants.SectionFileOverview,
			},
			constants.PhaseAnalyze: {
				constants.SectionTargetSource,
				constants.SectionCheckDefinition,
				constants.SectionFileOverview,
				constants.SectionRelatedCode,
			},
			constants.PhasePlan: {
				constants.SectionTargetSource,
				constants.SectionCheckDefinition,
				constants.SectionSimilarFixes,
				constants.SectionSimilarImplementations,
				constants.SectionRelatedPatterns,
				constants.SectionExtractionCandidates,
				constants.SectionActionHints,
			},
			constants.PhaseImplement: {
				constants.SectionTargetSource,
				constants.SectionCheckDefinition,
				constants.SectionSimilarFixes,
				constants.SectionExtractionCandidates,
				constants.SectionActionHints,
				constants.SectionAdditional,
			},
			constants.PhaseVerify: {
				constants.SectionTargetSource,
				constants.SectionCheckDefinition,
			},
		},
		SystemPrompts: map[constants.Phase]string{
			constants.PhaseImplement: fixImplementSystem,
			constants.PhaseVerify:    fixVerifySystem,
		},
		Directives: map[constants.Phase]string{
			constants.PhaseAnalyze:   fixAnalyzeDirective,
			constants.PhasePlan:      fixPlanDirective,
			constants.PhaseImplement: fixImplementDirective,
			constants.PhaseVerify:    fixVerifyDirective,
		},
	}
}
