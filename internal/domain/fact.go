package domain

import (
	"time"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
)

// Fact is a typed, confidence-weighted conclusion extracted from a tool output.
// Facts are the primary currency of task understanding: they survive prompt
// compaction and drive phase guards.
//
// Example JSON representation:
//
//	{
//	    "id": "fact-3f9a21bc",
//	    "category": "VERIFICATION",
//	    "statement": "Conformance check passed for src/m.py",
//	    "confidence": 1.0,
//	    "source": "run_check:check-passed",
//	    "step": 3,
//	    "supersedes": "fact-11d08a40"
//	}
type Fact struct {
	// ID is the unique fact identifier, of the form fact-<uuid8>.
	ID string `json:"id"`

	// Category classifies the fact.
	Category constants.FactCategory `json:"category"`

	// Statement is a short clear English conclusion.
	Statement string `json:"statement"`

	// Confidence is the extraction rule's certainty in [0,1].
	Confidence float64 `json:"confidence"`

	// Source names the producing rule as "tool:rule".
	Source string `json:"source"`

	// Step is the step number at which the fact was extracted.
	Step int `json:"step"`

	// Supersedes points to the fact this one replaced, when any.
	Supersedes string `json:"supersedes,omitempty"`
}

// WorkingMemoryItem is one entry in the rolling working memory buffer.
type WorkingMemoryItem struct {
	// ItemType classifies the entry.
	ItemType constants.MemoryItemType `json:"item_type"`

	// Key is unique within the task; re-adding a key updates in place.
	Key string `json:"key"`

	// Content is the entry's free-form payload.
	Content string `json:"content"`

	// AddedAt orders entries for FIFO eviction.
	AddedAt time.Time `json:"added_at"`

	// Step is the step number at which the entry was added.
	Step int `json:"step"`

	// ExpiresAfterSteps makes the entry vanish from reads once
	// current_step exceeds Step + ExpiresAfterSteps. Zero means no expiry.
	ExpiresAfterSteps int `json:"expires_after_steps,omitempty"`

	// Pinned entries are never evicted and do not count against the limit.
	Pinned bool `json:"pinned,omitempty"`
}

// Expired reports whether the item has lapsed at the given step.
// Pinned items never expire.
func (i *WorkingMemoryItem) Expired(currentStep int) bool {
	if i.Pinned || i.ExpiresAfterSteps <= 0 {
		return false
	}
	return currentStep > i.Step+i.ExpiresAfterSteps
}
