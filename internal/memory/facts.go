package memory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// categoryBonus weights fact categories during compaction scoring.
// Verification results outrank errors outrank structural observations.
var categoryBonus = map[constants.FactCategory]float64{
	constants.FactVerification:  0.3,
	constants.FactError:         0.2,
	constants.FactCodeStructure: 0.1,
}

// quotedNameRegex pulls a quoted identifier out of a fact statement,
// e.g. the function name in "Function 'parse_args' has complexity 12".
var quotedNameRegex = regexp.MustCompile(`'([^']+)'`)

// AddFact stores a fact. If it semantically supersedes an active fact of
// the same category, the old fact is retired and the new one records the
// link. Compaction runs afterwards when the active count exceeds the
// threshold.
func (b *FileBuffer) AddFact(fact domain.Fact) error {
	if fact.ID == "" {
		return fmt.Errorf("fact id %w", forgeerrors.ErrEmptyValue)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.read()
	if err != nil {
		return err
	}

	b.addFactLocked(data, fact)
	b.compactLocked(data)

	return b.write(data)
}

// AddFacts stores a batch of facts through AddFact semantics in one write.
func (b *FileBuffer) AddFacts(facts []domain.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	for _, fact := range facts {
		if fact.ID == "" {
			return fmt.Errorf("fact id %w", forgeerrors.ErrEmptyValue)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.read()
	if err != nil {
		return err
	}

	for _, fact := range facts {
		b.addFactLocked(data, fact)
	}
	b.compactLocked(data)

	return b.write(data)
}

// addFactLocked appends a fact, retiring any active fact it supersedes.
func (b *FileBuffer) addFactLocked(data *bufferFile, fact domain.Fact) {
	superseded := newSupersededSet(data)

	// Scan newest-first so the fact retired is the latest active match.
	for i := len(data.Facts) - 1; i >= 0; i-- {
		old := data.Facts[i]
		if superseded[old.ID] || old.ID == fact.ID {
			continue
		}
		if supersedes(fact, old) {
			data.SupersededFacts = append(data.SupersededFacts, old.ID)
			fact.Supersedes = old.ID
			b.logger.Debug().
				Str("task_id", b.taskID).
				Str("fact_id", fact.ID).
				Str("superseded", old.ID).
				Msg("fact superseded")
			break
		}
	}

	data.Facts = append(data.Facts, fact)
}

// supersedes reports whether a new fact replaces an old one. Both must
// share a category; beyond that the statements must describe the same
// subject: a complexity result for the same function, or a repeated
// pass/fail report.
func supersedes(newFact, oldFact domain.Fact) bool {
	if newFact.Category != oldFact.Category {
		return false
	}

	newStmt := strings.ToLower(newFact.Statement)
	oldStmt := strings.ToLower(oldFact.Statement)

	if strings.Contains(newStmt, "complexity") && strings.Contains(oldStmt, "complexity") {
		newName := quotedName(newFact.Statement)
		oldName := quotedName(oldFact.Statement)
		return newName != "" && newName == oldName
	}
	if strings.Contains(newStmt, "passed") && strings.Contains(oldStmt, "passed") {
		return true
	}
	if strings.Contains(newStmt, "failed") && strings.Contains(oldStmt, "failed") {
		return true
	}
	return false
}

// quotedName returns the first single-quoted token in a statement.
func quotedName(statement string) string {
	m := quotedNameRegex.FindStringSubmatch(statement)
	if m == nil {
		return ""
	}
	return m[1]
}

// Compact runs fact compaction. Within threshold it changes nothing.
func (b *FileBuffer) Compact() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.read()
	if err != nil {
		return err
	}

	if !b.compactLocked(data) {
		return nil
	}
	return b.write(data)
}

// compactLocked retires the lowest-scored active facts once the active
// count exceeds the threshold, keeping the top maxFacts. It reports
// whether anything changed.
func (b *FileBuffer) compactLocked(data *bufferFile) bool {
	superseded := newSupersededSet(data)

	active := make([]domain.Fact, 0, len(data.Facts))
	for _, fact := range data.Facts {
		if !superseded[fact.ID] {
			active = append(active, fact)
		}
	}
	if len(active) <= b.cfg.CompactionThreshold || len(active) <= b.cfg.MaxFacts {
		return false
	}

	sort.SliceStable(active, func(i, j int) bool {
		return factScore(active[i]) > factScore(active[j])
	})

	for _, fact := range active[b.cfg.MaxFacts:] {
		data.SupersededFacts = append(data.SupersededFacts, fact.ID)
	}

	b.logger.Debug().
		Str("task_id", b.taskID).
		Int("active_before", len(active)).
		Int("retired", len(active)-b.cfg.MaxFacts).
		Msg("compacted fact store")
	return true
}

// factScore ranks a fact for compaction.
func factScore(fact domain.Fact) float64 {
	return fact.Confidence + categoryBonus[fact.Category]
}

// ActiveFacts returns facts whose IDs are not superseded, oldest first.
func (b *FileBuffer) ActiveFacts() ([]domain.Fact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.read()
	if err != nil {
		return nil, err
	}
	return activeFacts(data), nil
}

// Facts returns active facts at or above the confidence floor.
func (b *FileBuffer) Facts(minConfidence float64) ([]domain.Fact, error) {
	facts, err := b.ActiveFacts()
	if err != nil {
		return nil, err
	}

	filtered := make([]domain.Fact, 0, len(facts))
	for _, fact := range facts {
		if fact.Confidence >= minConfidence {
			filtered = append(filtered, fact)
		}
	}
	return filtered, nil
}

// FactsByCategory returns active facts of one category.
func (b *FileBuffer) FactsByCategory(category constants.FactCategory) ([]domain.Fact, error) {
	facts, err := b.ActiveFacts()
	if err != nil {
		return nil, err
	}

	filtered := make([]domain.Fact, 0, len(facts))
	for _, fact := range facts {
		if fact.Category == category {
			filtered = append(filtered, fact)
		}
	}
	return filtered, nil
}

// RecentFacts returns up to n most recently added active facts,
// chronological.
func (b *FileBuffer) RecentFacts(n int) ([]domain.Fact, error) {
	facts, err := b.ActiveFacts()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(facts) > n {
		facts = facts[len(facts)-n:]
	}
	return facts, nil
}

// activeFacts filters out superseded facts, preserving add order.
func activeFacts(data *bufferFile) []domain.Fact {
	superseded := newSupersededSet(data)
	active := make([]domain.Fact, 0, len(data.Facts))
	for _, fact := range data.Facts {
		if !superseded[fact.ID] {
			active = append(active, fact)
		}
	}
	return active
}

// newSupersededSet builds a lookup set from the persisted ID list.
func newSupersededSet(data *bufferFile) map[string]bool {
	set := make(map[string]bool, len(data.SupersededFacts))
	for _, id := range data.SupersededFacts {
		set[id] = true
	}
	return set
}
