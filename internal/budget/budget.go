// Package budget decides after every step whether execution may continue.
// The step allowance grows with observed progress (successful mutations,
// passing checks, shrinking violation counts) up to a hard ceiling, and
// execution stops early on detected loops or sustained lack of progress.
package budget

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	"github.com/maxxentropy/agentforge-sub001/internal/loopdetect"
)

// mutatingActions are the actions whose success counts as progress.
//
//nolint:gochecknoglobals // Read-only lookup table
var mutatingActions = map[string]bool{
	constants.ActionEditFile:            true,
	constants.ActionWriteFile:           true,
	constants.ActionReplaceLines:        true,
	constants.ActionInsertLines:         true,
	constants.ActionExtractFunction:     true,
	constants.ActionSimplifyConditional: true,
}

// violationCountRegex reads the violation count out of a check summary.
var violationCountRegex = regexp.MustCompile(`(\d+) violations? found`)

// Config holds the budget parameters. Zero values take the defaults.
type Config struct {
	// BaseBudget is the step allowance before any progress.
	BaseBudget int

	// MaxBudget is the absolute step ceiling.
	MaxBudget int

	// NoProgressThreshold stops the run after this many consecutive
	// steps without progress.
	NoProgressThreshold int
}

// withDefaults fills zero fields from the package defaults.
func (c Config) withDefaults() Config {
	if c.BaseBudget <= 0 {
		c.BaseBudget = constants.DefaultBaseBudget
	}
	if c.MaxBudget <= 0 {
		c.MaxBudget = constants.DefaultMaxBudget
	}
	if c.NoProgressThreshold <= 0 {
		c.NoProgressThreshold = constants.DefaultNoProgressThreshold
	}
	return c
}

// AdaptiveBudget tracks progress across a run. One instance lives for
// the duration of a run_until_complete call.
type AdaptiveBudget struct {
	cfg      Config
	detector *loopdetect.Detector
	logger   zerolog.Logger

	progressCount    int
	noProgressStreak int
	lastViolations   int
}

// NewAdaptiveBudget creates a budget with a fresh progress record.
func NewAdaptiveBudget(cfg Config, detector *loopdetect.Detector, logger zerolog.Logger) *AdaptiveBudget {
	return &AdaptiveBudget{
		cfg:            cfg.withDefaults(),
		detector:       detector,
		logger:         logger,
		lastViolations: -1,
	}
}

// DynamicBudget is the current step allowance: base plus three per unit
// of progress, capped at the ceiling.
func (b *AdaptiveBudget) DynamicBudget() int {
	budget := b.cfg.BaseBudget + constants.ProgressBudgetFactor*b.progressCount
	if budget > b.cfg.MaxBudget {
		budget = b.cfg.MaxBudget
	}
	return budget
}

// ProgressCount returns the accumulated progress units.
func (b *AdaptiveBudget) ProgressCount() int {
	return b.progressCount
}

// CheckContinue decides whether the run may take another step. The
// returned reason is human-readable; a non-nil detection explains a
// loop-triggered stop.
func (b *AdaptiveBudget) CheckContinue(stepNumber int, recent []domain.ActionRecord, facts []domain.Fact) (bool, string, *domain.LoopDetection) {
	if detection := b.detector.Check(recent, facts); detection.Detected {
		reason := fmt.Sprintf("STOPPED: %s - %s", detection.Type, detection.Description)
		return false, reason, &detection
	}

	b.observe(recent)

	if b.noProgressStreak >= b.cfg.NoProgressThreshold {
		reason := fmt.Sprintf("STOPPED: No progress for %d consecutive steps", b.noProgressStreak)
		return false, reason, nil
	}

	budget := b.DynamicBudget()
	if stepNumber >= budget {
		reason := fmt.Sprintf("STOPPED: Budget exhausted (%d/%d)", stepNumber, budget)
		return false, reason, nil
	}

	return true, fmt.Sprintf("Continue (%d/%d)", stepNumber, budget), nil
}

// observe updates the progress counters from the most recent action.
func (b *AdaptiveBudget) observe(recent []domain.ActionRecord) {
	if len(recent) == 0 {
		return
	}
	last := recent[len(recent)-1]

	delta := 0
	if last.Result == constants.ActionResultSuccess && mutatingActions[last.ActionName] {
		delta++
	}
	if strings.Contains(last.Summary, "Check PASSED") {
		delta += 3
	}
	if last.ActionName == constants.ActionRunCheck {
		if count, ok := parseViolationCount(last.Summary); ok {
			if b.lastViolations >= 0 && count < b.lastViolations {
				delta += 2
			}
			b.lastViolations = count
		}
	}

	if delta == 0 {
		b.noProgressStreak++
		return
	}

	b.progressCount += delta
	b.noProgressStreak = 0
	b.logger.Debug().
		Int("delta", delta).
		Int("progress", b.progressCount).
		Int("budget", b.DynamicBudget()).
		Msg("progress observed")
}

// parseViolationCount extracts the violation count from a check summary.
func parseViolationCount(summary string) (int, bool) {
	m := violationCountRegex.FindStringSubmatch(summary)
	if m == nil {
		return 0, false
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return count, true
}
