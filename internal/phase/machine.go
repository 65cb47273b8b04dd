// Package phase implements the guarded phase machine for task execution.
//
// The machine enforces valid phase transitions and records phase history.
// It is a value object: each step reconstructs it from the persisted
// projection, so no long-lived instance exists between steps.
//
// The phase flow:
//
//	INIT → ANALYZE (or straight to IMPLEMENT when structure is known)
//	ANALYZE → PLAN → IMPLEMENT → VERIFY
//	VERIFY → IMPLEMENT (verification failing) or COMPLETE (clean)
//	any non-terminal → FAILED (fatal action) or ESCALATED (handoff)
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors, std lib
//   - MUST NOT import: internal/state, internal/llm, internal/cli
package phase

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// Context carries the execution snapshot guards evaluate against.
type Context struct {
	// CurrentPhase is the machine's phase when the snapshot was taken.
	CurrentPhase constants.Phase

	// StepsInPhase counts steps since the last transition.
	StepsInPhase int

	// TotalSteps is the task's overall step counter.
	TotalSteps int

	// VerificationPassing is true when no checks are failing.
	VerificationPassing bool

	// TestsPassing mirrors the verification aggregate.
	TestsPassing bool

	// FilesModified lists files the task has changed so far.
	FilesModified []string

	// Facts are the active facts from working memory.
	Facts []domain.Fact

	// LastAction is the most recent action name.
	LastAction string

	// LastActionResult is the most recent action's result.
	LastActionResult constants.ActionResult

	// LastActionFatal is set when the most recent result was flagged fatal.
	LastActionFatal bool
}

// hasCodeStructureFact reports whether any active fact describes code
// structure. Seeded structure facts let a task skip the ANALYZE phase.
func (c Context) hasCodeStructureFact() bool {
	for _, fact := range c.Facts {
		if fact.Category == constants.FactCodeStructure {
			return true
		}
	}
	return false
}

// Guard is a named predicate on the execution snapshot. The name appears
// in blocked-transition logs.
type Guard struct {
	Name  string
	Check func(Context) bool
}

// Transition is one edge of the machine.
type Transition struct {
	From        constants.Phase
	To          constants.Phase
	Guards      []Guard
	Description string
}

// Config is the per-phase step budget and exit conditions.
type Config struct {
	// MaxSteps bounds how long the machine tolerates staying in the phase
	// before forcing the first available exit.
	MaxSteps int

	// SuccessCondition reports the phase's goal is met; the machine then
	// takes the first valid forward transition.
	SuccessCondition func(Context) bool

	// FailureCondition, when set and true, sends the machine to FAILED.
	FailureCondition func(Context) bool
}

// phaseOrder positions phases along the forward direction. FAILED and
// ESCALATED are exits, not forward progress.
//
//nolint:gochecknoglobals // Read-only lookup table
var phaseOrder = map[constants.Phase]int{
	constants.PhaseInit:      0,
	constants.PhaseAnalyze:   1,
	constants.PhasePlan:      2,
	constants.PhaseImplement: 3,
	constants.PhaseVerify:    4,
	constants.PhaseComplete:  5,
}

// Machine is the guarded phase machine.
type Machine struct {
	current      constants.Phase
	stepsInPhase int
	history      []constants.Phase

	transitions []Transition
	configs     map[constants.Phase]Config
	logger      zerolog.Logger
}

// NewMachine reconstructs a machine from its persisted projection.
// An empty projection starts at INIT.
func NewMachine(projection domain.PhaseMachineState, logger zerolog.Logger) *Machine {
	current := projection.CurrentPhase
	if current == "" {
		current = constants.PhaseInit
	}

	history := make([]constants.Phase, len(projection.PhaseHistory))
	copy(history, projection.PhaseHistory)

	return &Machine{
		current:      current,
		stepsInPhase: projection.StepsInPhase,
		history:      history,
		transitions:  buildTransitions(),
		configs:      buildConfigs(),
		logger:       logger,
	}
}

// buildTransitions assembles the transition table. Order matters: when a
// success condition offers several forward exits, the first listed wins,
// so INIT prefers IMPLEMENT (precomputed structure) over ANALYZE.
func buildTransitions() []Transition {
	hasStructure := Guard{
		Name:  "has_code_structure_fact",
		Check: Context.hasCodeStructureFact,
	}
	analyzed := Guard{
		Name:  "spent_a_step_analyzing",
		Check: func(c Context) bool { return c.StepsInPhase >= 1 },
	}
	modified := Guard{
		Name:  "files_modified",
		Check: func(c Context) bool { return len(c.FilesModified) > 0 },
	}
	verificationFailing := Guard{
		Name:  "verification_failing",
		Check: func(c Context) bool { return !c.VerificationPassing },
	}
	verificationPassing := Guard{
		Name:  "verification_passing",
		Check: func(c Context) bool { return c.VerificationPassing },
	}
	testsPassing := Guard{
		Name:  "tests_passing",
		Check: func(c Context) bool { return c.TestsPassing },
	}
	fatalAction := Guard{
		Name:  "last_action_fatal",
		Check: func(c Context) bool { return c.LastActionFatal },
	}
	handoffAction := Guard{
		Name: "handoff_action",
		Check: func(c Context) bool {
			return c.LastAction == constants.ActionEscalate || c.LastAction == constants.ActionCannotFix
		},
	}

	transitions := []Transition{
		{From: constants.PhaseInit, To: constants.PhaseImplement, Guards: []Guard{hasStructure},
			Description: "structure already known, skip analysis"},
		{From: constants.PhaseInit, To: constants.PhaseAnalyze,
			Description: "begin analysis"},
		{From: constants.PhaseAnalyze, To: constants.PhasePlan, Guards: []Guard{analyzed, hasStructure},
			Description: "analysis produced structure, plan the fix"},
		{From: constants.PhaseAnalyze, To: constants.PhaseImplement, Guards: []Guard{hasStructure},
			Description: "structure known, implement directly"},
		{From: constants.PhasePlan, To: constants.PhaseImplement,
			Description: "execute the plan"},
		{From: constants.PhaseImplement, To: constants.PhaseVerify, Guards: []Guard{modified},
			Description: "changes made, verify them"},
		{From: constants.PhaseVerify, To: constants.PhaseImplement, Guards: []Guard{verificationFailing},
			Description: "verification failing, keep fixing"},
		{From: constants.PhaseVerify, To: constants.PhaseComplete, Guards: []Guard{verificationPassing, testsPassing},
			Description: "verification clean"},
	}

	// Fatal failures and handoffs exit from every non-terminal phase.
	for _, from := range []constants.Phase{
		constants.PhaseInit,
		constants.PhaseAnalyze,
		constants.PhasePlan,
		constants.PhaseImplement,
		constants.PhaseVerify,
	} {
		transitions = append(transitions,
			Transition{From: from, To: constants.PhaseFailed, Guards: []Guard{fatalAction},
				Description: "fatal action result"},
			Transition{From: from, To: constants.PhaseEscalated, Guards: []Guard{handoffAction},
				Description: "handed off to a human"},
		)
	}
	return transitions
}

// buildConfigs assembles the per-phase step budgets and exit conditions.
func buildConfigs() map[constants.Phase]Config {
	return map[constants.Phase]Config{
		constants.PhaseInit: {
			MaxSteps:         2,
			SuccessCondition: func(Context) bool { return true },
		},
		constants.PhaseAnalyze: {
			MaxSteps:         5,
			SuccessCondition: Context.hasCodeStructureFact,
		},
		constants.PhasePlan: {
			MaxSteps:         2,
			SuccessCondition: func(c Context) bool { return c.StepsInPhase >= 1 },
		},
		constants.PhaseImplement: {
			MaxSteps:         15,
			SuccessCondition: func(c Context) bool { return len(c.FilesModified) > 0 },
		},
		constants.PhaseVerify: {
			MaxSteps:         5,
			SuccessCondition: func(c Context) bool { return c.VerificationPassing && c.TestsPassing },
		},
	}
}

// Current returns the machine's phase.
func (m *Machine) Current() constants.Phase {
	return m.current
}

// StepsInPhase returns the step count since the last transition.
func (m *Machine) StepsInPhase() int {
	return m.stepsInPhase
}

// History returns the phases visited before the current one.
func (m *Machine) History() []constants.Phase {
	history := make([]constants.Phase, len(m.history))
	copy(history, m.history)
	return history
}

// RecordStep advances the in-phase step counter.
func (m *Machine) RecordStep() {
	m.stepsInPhase++
}

// Projection serializes the machine for persistence.
func (m *Machine) Projection() domain.PhaseMachineState {
	return domain.PhaseMachineState{
		CurrentPhase: m.current,
		StepsInPhase: m.stepsInPhase,
		PhaseHistory: m.History(),
	}
}

// CanTransition reports whether a registered transition to target exists
// with all guards passing.
func (m *Machine) CanTransition(target constants.Phase, pctx Context) bool {
	transition, blocked := m.findTransition(target, pctx)
	return transition != nil && blocked == ""
}

// Transition moves to target when allowed: the current phase is pushed to
// history and the in-phase counter resets. Blocked transitions are logged
// at debug level and leave the machine unchanged.
func (m *Machine) Transition(target constants.Phase, pctx Context) bool {
	transition, blocked := m.findTransition(target, pctx)
	if transition == nil {
		m.logger.Debug().
			Str("from", m.current.String()).
			Str("to", target.String()).
			Msg("no registered phase transition")
		return false
	}
	if blocked != "" {
		m.logger.Debug().
			Str("from", m.current.String()).
			Str("to", target.String()).
			Str("guard", blocked).
			Msg("phase transition blocked by guard")
		return false
	}

	m.enter(target)
	return true
}

// ForceTerminal enters a terminal phase by direct assignment, bypassing
// guards. COMPLETE, FAILED, and ESCALATED must stay reachable regardless
// of guard state (budget exhaustion, loop breaks, fatal errors).
func (m *Machine) ForceTerminal(target constants.Phase, reason string) error {
	if !target.Terminal() {
		return fmt.Errorf("phase %q is not terminal: %w", target, forgeerrors.ErrInvalidTransition)
	}
	if m.current == target {
		return nil
	}

	m.logger.Warn().
		Str("from", m.current.String()).
		Str("to", target.String()).
		Str("reason", reason).
		Msg("forced terminal phase transition")
	m.enter(target)
	return nil
}

// enter performs the bookkeeping common to all transitions.
func (m *Machine) enter(target constants.Phase) {
	m.history = append(m.history, m.current)
	m.current = target
	m.stepsInPhase = 0
}

// findTransition locates the first transition to target from the current
// phase and names the first failing guard, if any.
func (m *Machine) findTransition(target constants.Phase, pctx Context) (*Transition, string) {
	for i := range m.transitions {
		t := &m.transitions[i]
		if t.From != m.current || t.To != target {
			continue
		}
		for _, guard := range t.Guards {
			if !guard.Check(pctx) {
				return t, guard.Name
			}
		}
		return t, ""
	}
	return nil, ""
}

// ShouldAutoTransition picks the machine's next phase, if any:
// a success condition takes the first valid forward transition; an
// exhausted step budget takes the first valid transition in any
// direction; a failure condition forces FAILED.
func (m *Machine) ShouldAutoTransition(pctx Context) (constants.Phase, bool) {
	cfg, ok := m.configs[m.current]
	if !ok {
		// Terminal phases have no exits.
		return "", false
	}

	if cfg.SuccessCondition != nil && cfg.SuccessCondition(pctx) {
		if target, ok := m.firstValidTarget(pctx, true); ok {
			return target, true
		}
	}

	if cfg.MaxSteps > 0 && m.stepsInPhase >= cfg.MaxSteps {
		if target, ok := m.firstValidTarget(pctx, false); ok {
			m.logger.Debug().
				Str("phase", m.current.String()).
				Int("steps_in_phase", m.stepsInPhase).
				Str("target", target.String()).
				Msg("phase step budget exhausted, moving on")
			return target, true
		}
	}

	if cfg.FailureCondition != nil && cfg.FailureCondition(pctx) {
		return constants.PhaseFailed, true
	}

	return "", false
}

// firstValidTarget scans the table in order for a passable transition out
// of the current phase. When forwardOnly is set, only targets later in
// the phase order qualify.
func (m *Machine) firstValidTarget(pctx Context, forwardOnly bool) (constants.Phase, bool) {
	currentOrder, currentKnown := phaseOrder[m.current]

	for i := range m.transitions {
		t := &m.transitions[i]
		if t.From != m.current {
			continue
		}
		if forwardOnly {
			targetOrder, ok := phaseOrder[t.To]
			if !ok || !currentKnown || targetOrder <= currentOrder {
				continue
			}
		}
		if m.CanTransition(t.To, pctx) {
			return t.To, true
		}
	}
	return "", false
}
