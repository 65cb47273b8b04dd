package executor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/maxxentropy/agentforge-sub001/internal/audit"
	"github.com/maxxentropy/agentforge-sub001/internal/budget"
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/ctxutil"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	"github.com/maxxentropy/agentforge-sub001/internal/loopdetect"
)

// StepCallback observes each completed step. RunMany invokes callbacks
// from per-task goroutines; implementations must be safe for concurrent
// use.
type StepCallback func(outcome *domain.StepOutcome)

// RunUntilComplete steps a task until it reaches a terminal phase, the
// adaptive budget stops it, or maxIterations is exhausted. A
// maxIterations of zero or less means the package default. The returned
// error covers run setup only; step-level problems live in the outcomes.
func (ex *Executor) RunUntilComplete(ctx context.Context, taskID string, maxIterations int, onStep StepCallback) ([]*domain.StepOutcome, error) {
	if maxIterations <= 0 {
		maxIterations = constants.DefaultMaxIterations
	}

	st, err := ex.store.Load(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", taskID, err)
	}
	if !st.Phase.Terminal() && st.Status != constants.TaskStatusRunning {
		if err := ex.store.UpdateStatus(ctx, taskID, constants.TaskStatusRunning); err != nil {
			return nil, fmt.Errorf("marking task running: %w", err)
		}
	}

	auditLog := ex.openAudit(taskID)
	defer func() {
		_ = auditLog.Close()
	}()

	ex.builder.ResetCompactionStats()
	detector := loopdetect.NewDetector(ex.detectCfg, ex.logger)
	bud := budget.NewAdaptiveBudget(ex.budgetCfg, detector, ex.logger)
	mem := ex.memoryFor(ex.store.TaskDir(taskID), taskID)

	var outcomes []*domain.StepOutcome
	overrideUsed := false

	for iteration := 0; iteration < maxIterations; iteration++ {
		if err := ctxutil.Canceled(ctx); err != nil {
			ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("run canceled")
			break
		}

		outcome := ex.executeStep(ctx, taskID, auditLog)
		outcomes = append(outcomes, outcome)
		ex.logger.Info().
			Str("task_id", taskID).
			Str("action", outcome.ActionName).
			Str("result", string(outcome.Result)).
			Int("tokens", outcome.TokensUsed).
			Bool("continue", outcome.ShouldContinue).
			Msg("step executed")
		if onStep != nil {
			onStep(outcome)
		}
		if !outcome.ShouldContinue {
			break
		}

		recent, err := ex.store.RecentActions(ctx, taskID, constants.LoopDetectionWindow)
		if err != nil {
			ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to read recent actions, stopping run")
			break
		}
		facts, err := mem.ActiveFacts()
		if err != nil {
			ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to read facts for budget check")
		}
		stepNumber := len(outcomes)
		if len(recent) > 0 {
			stepNumber = recent[len(recent)-1].Step
		}

		cont, reason, detection := bud.CheckContinue(stepNumber, recent, facts)
		if cont {
			continue
		}

		if detection != nil && !overrideUsed && ex.tryLoopBreak(ctx, taskID, facts, outcome) {
			overrideUsed = true
			continue
		}

		outcome.ShouldContinue = false
		if detection != nil {
			outcome.LoopDetection = detection
			for _, suggestion := range detection.Suggestions {
				ex.logger.Info().
					Str("task_id", taskID).
					Str("suggestion", suggestion).
					Msg("loop break suggestion")
			}
		}
		ex.logger.Info().Str("task_id", taskID).Str("reason", reason).Msg("run stopped by budget")
		break
	}

	status := ex.finalStatus(ctx, taskID)
	if err := ex.store.UpdateStatus(ctx, taskID, status); err != nil {
		ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to persist final status")
	}

	events, saved := ex.builder.CompactionStats()
	if _, err := auditLog.WriteSummary(string(status), events, saved); err != nil {
		ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to write audit summary")
	}

	ex.logger.Info().
		Str("task_id", taskID).
		Str("status", string(status)).
		Int("steps", len(outcomes)).
		Msg("run finished")
	return outcomes, nil
}

// RunMany runs several tasks concurrently, one worker per task. The
// returned map holds outcomes for every task that finished its run;
// the error is the first setup failure, which also cancels the rest.
func (ex *Executor) RunMany(ctx context.Context, taskIDs []string, maxIterations int, onStep StepCallback) (map[string][]*domain.StepOutcome, error) {
	results := make(map[string][]*domain.StepOutcome, len(taskIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, taskID := range taskIDs {
		g.Go(func() error {
			outcomes, err := ex.RunUntilComplete(gctx, taskID, maxIterations, onStep)
			if err != nil {
				return fmt.Errorf("task %s: %w", taskID, err)
			}
			mu.Lock()
			results[taskID] = outcomes
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// openAudit builds the per-run audit logger. Audit is observability:
// when it cannot be opened the run proceeds without it.
func (ex *Executor) openAudit(taskID string) *audit.Logger {
	cfg := ex.auditCfg
	cfg.TaskID = taskID
	lg, err := audit.NewLoggerWithClock(cfg, ex.clock, ex.logger)
	if err != nil {
		ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("audit logging unavailable for this run")
		return nil
	}
	return lg
}

// tryLoopBreak forces one guarded forward transition after a loop
// detection so the next prompt carries a different phase instruction.
// Reports whether a transition was applied.
func (ex *Executor) tryLoopBreak(ctx context.Context, taskID string, facts []domain.Fact, last *domain.StepOutcome) bool {
	st, err := ex.store.Load(ctx, taskID)
	if err != nil || st.Phase.Terminal() {
		return false
	}

	machine := ex.machineFor(st.PhaseMachine)
	pctx := phaseContext(st, machine, facts, last.ActionName, last.Result, false)
	target, ok := machine.ShouldAutoTransition(pctx)
	if !ok || target == machine.Current() || target.Terminal() {
		return false
	}
	if !machine.Transition(target, pctx) {
		return false
	}
	if err := ex.store.UpdatePhaseMachine(ctx, taskID, machine.Projection()); err != nil {
		ex.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to persist loop-break transition")
		return false
	}

	ex.logger.Warn().
		Str("task_id", taskID).
		Str("phase", target.String()).
		Msg("loop detected, forcing phase change to break the pattern")
	return true
}

// finalStatus maps the task's final phase onto a lifecycle status. A
// run that halts before any terminal phase leaves the task stopped and
// resumable.
func (ex *Executor) finalStatus(ctx context.Context, taskID string) constants.TaskStatus {
	st, err := ex.store.Load(ctx, taskID)
	if err != nil {
		return constants.TaskStatusStopped
	}
	switch st.Phase {
	case constants.PhaseComplete:
		return constants.TaskStatusCompleted
	case constants.PhaseEscalated:
		return constants.TaskStatusEscalated
	case constants.PhaseFailed:
		return constants.TaskStatusFailed
	default:
		return constants.TaskStatusStopped
	}
}
