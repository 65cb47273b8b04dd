// Package memory implements the bounded working memory buffer for a task.
// The buffer is a rolling window of recent observations (action results,
// loaded file content, notes) plus the persisted fact list. Each task owns
// exactly one buffer file; all reads and writes go through this package.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/clock"
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// Store is the interface for cross-step working memory.
// This interface enables mocking in tests.
type Store interface {
	// Add upserts an item by key. Re-adding a key updates the entry in
	// place and refreshes its added_at timestamp.
	Add(item domain.WorkingMemoryItem) error

	// AddActionResult records the outcome of an executed action.
	AddActionResult(action string, result constants.ActionResult, summary string, step int, target string) error

	// LoadContext stores file or analysis content with step-based expiry.
	LoadContext(key, content string, step, expiresAfterSteps int) error

	// AddNote stores a free-form note.
	AddNote(key, content string, step int) error

	// Items returns non-expired items in insertion order, pruning expired
	// ones from the file as a side effect.
	Items(currentStep int) ([]domain.WorkingMemoryItem, error)

	// ByType returns non-expired items of one type.
	ByType(itemType constants.MemoryItemType, currentStep int) ([]domain.WorkingMemoryItem, error)

	// ActionResults returns up to limit most recent action results,
	// chronological.
	ActionResults(limit, currentStep int) ([]domain.WorkingMemoryItem, error)

	// LoadedContext returns non-expired loaded context items.
	LoadedContext(currentStep int) ([]domain.WorkingMemoryItem, error)

	// Remove deletes an item by key. Missing keys are not an error.
	Remove(key string) error

	// Clear removes items, keeping pinned ones when keepPinned is set.
	// Facts are unaffected.
	Clear(keepPinned bool) error

	// Pin marks an item so eviction and expiry skip it.
	Pin(key string) error

	// Unpin clears the pinned flag.
	Unpin(key string) error

	// AddFact stores a fact, superseding any active fact it replaces,
	// then compacts if the active count exceeds the threshold.
	AddFact(fact domain.Fact) error

	// AddFacts stores a batch of facts through AddFact semantics.
	AddFacts(facts []domain.Fact) error

	// ActiveFacts returns facts whose IDs are not superseded.
	ActiveFacts() ([]domain.Fact, error)

	// Facts returns active facts at or above the confidence floor.
	Facts(minConfidence float64) ([]domain.Fact, error)

	// FactsByCategory returns active facts of one category.
	FactsByCategory(category constants.FactCategory) ([]domain.Fact, error)

	// RecentFacts returns up to n most recently added active facts,
	// chronological.
	RecentFacts(n int) ([]domain.Fact, error)

	// Compact runs fact compaction. Within threshold it changes nothing.
	Compact() error
}

// Config controls buffer sizing. Zero values take the defaults.
type Config struct {
	// MaxItems bounds the unpinned item count.
	MaxItems int

	// CompactionThreshold is the active-fact count that triggers compaction.
	CompactionThreshold int

	// MaxFacts is the active-fact count compaction retains.
	MaxFacts int
}

// withDefaults fills zero fields from the package defaults.
func (c Config) withDefaults() Config {
	if c.MaxItems <= 0 {
		c.MaxItems = constants.DefaultMaxMemoryItems
	}
	if c.CompactionThreshold <= 0 {
		c.CompactionThreshold = constants.DefaultCompactionThreshold
	}
	if c.MaxFacts <= 0 {
		c.MaxFacts = constants.DefaultMaxFacts
	}
	return c
}

// bufferFile is the JSON structure of the working memory file.
type bufferFile struct {
	// TaskID identifies the task that owns this buffer.
	TaskID string `json:"task_id"`

	// Items holds the rolling observation window, oldest first.
	Items []domain.WorkingMemoryItem `json:"items"`

	// Facts holds every fact ever added, including superseded ones.
	Facts []domain.Fact `json:"facts"`

	// SupersededFacts lists fact IDs that are no longer active.
	SupersededFacts []string `json:"superseded_facts"`
}

// FileBuffer implements Store using a single JSON file.
type FileBuffer struct {
	path   string
	taskID string
	cfg    Config
	clock  clock.Clock
	logger zerolog.Logger

	mu sync.Mutex
}

// Compile-time interface check.
var _ Store = (*FileBuffer)(nil)

// NewFileBuffer creates a buffer backed by the working memory file inside
// taskDir.
func NewFileBuffer(taskDir, taskID string, cfg Config, logger zerolog.Logger) *FileBuffer {
	return &FileBuffer{
		path:   filepath.Join(taskDir, constants.MemoryFileName),
		taskID: taskID,
		cfg:    cfg.withDefaults(),
		clock:  clock.RealClock{},
		logger: logger,
	}
}

// NewFileBufferWithClock creates a buffer with an injected clock for tests.
func NewFileBufferWithClock(taskDir, taskID string, cfg Config, logger zerolog.Logger, clk clock.Clock) *FileBuffer {
	b := NewFileBuffer(taskDir, taskID, cfg, logger)
	b.clock = clk
	return b
}

// Path returns the buffer's file path.
func (b *FileBuffer) Path() string {
	return b.path
}

// read loads the buffer file, returning an empty buffer if none exists.
func (b *FileBuffer) read() (*bufferFile, error) {
	content, err := os.ReadFile(b.path) //#nosec G304 -- path is constructed internally
	if os.IsNotExist(err) {
		return &bufferFile{TaskID: b.taskID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read working memory: %w", err)
	}

	var data bufferFile
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("failed to parse working memory: %w", err)
	}
	return &data, nil
}

// write saves the buffer file, creating the parent directory if needed.
func (b *FileBuffer) write(data *bufferFile) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o750); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}

	data.TaskID = b.taskID
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal working memory: %w", err)
	}

	if err := os.WriteFile(b.path, content, 0o600); err != nil {
		return fmt.Errorf("failed to write working memory: %w", err)
	}
	return nil
}

// Add upserts an item by key and applies expiry then FIFO eviction.
func (b *FileBuffer) Add(item domain.WorkingMemoryItem) error {
	if item.Key == "" {
		return fmt.Errorf("working memory key %w", forgeerrors.ErrMemoryKeyEmpty)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.read()
	if err != nil {
		return err
	}

	item.AddedAt = b.clock.Now().UTC()

	updated := false
	for i := range data.Items {
		if data.Items[i].Key == item.Key {
			data.Items[i] = item
			updated = true
			break
		}
	}
	if !updated {
		data.Items = append(data.Items, item)
	}

	b.pruneExpired(data, item.Step)
	b.evict(data)

	return b.write(data)
}

// AddActionResult records the outcome of an executed action. The key is
// derived from the step so each step's outcome occupies one slot.
func (b *FileBuffer) AddActionResult(action string, result constants.ActionResult, summary string, step int, target string) error {
	content := fmt.Sprintf("%s: %s", action, result)
	if target != "" {
		content = fmt.Sprintf("%s %s: %s", action, target, result)
	}
	if summary != "" {
		content += " - " + summary
	}

	return b.Add(domain.WorkingMemoryItem{
		ItemType: constants.MemoryItemActionResult,
		Key:      fmt.Sprintf("action_result_%d", step),
		Content:  content,
		Step:     step,
	})
}

// LoadContext stores file or analysis content with step-based expiry.
func (b *FileBuffer) LoadContext(key, content string, step, expiresAfterSteps int) error {
	return b.Add(domain.WorkingMemoryItem{
		ItemType:          constants.MemoryItemLoadedContext,
		Key:               key,
		Content:           content,
		Step:              step,
		ExpiresAfterSteps: expiresAfterSteps,
	})
}

// AddNote stores a free-form note.
func (b *FileBuffer) AddNote(key, content string, step int) error {
	return b.Add(domain.WorkingMemoryItem{
		ItemType: constants.MemoryItemNote,
		Key:      key,
		Content:  content,
		Step:     step,
	})
}

// Items returns non-expired items in insertion order. Expired items are
// pruned from the file before returning.
func (b *FileBuffer) Items(currentStep int) ([]domain.WorkingMemoryItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.read()
	if err != nil {
		return nil, err
	}

	if b.pruneExpired(data, currentStep) {
		if err := b.write(data); err != nil {
			return nil, err
		}
	}

	items := make([]domain.WorkingMemoryItem, len(data.Items))
	copy(items, data.Items)
	return items, nil
}

// ByType returns non-expired items of one type.
func (b *FileBuffer) ByType(itemType constants.MemoryItemType, currentStep int) ([]domain.WorkingMemoryItem, error) {
	items, err := b.Items(currentStep)
	if err != nil {
		return nil, err
	}

	filtered := make([]domain.WorkingMemoryItem, 0, len(items))
	for _, item := range items {
		if item.ItemType == itemType {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

// ActionResults returns up to limit most recent action results, oldest
// first so they read chronologically in a prompt.
func (b *FileBuffer) ActionResults(limit, currentStep int) ([]domain.WorkingMemoryItem, error) {
	results, err := b.ByType(constants.MemoryItemActionResult, currentStep)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Step < results[j].Step
	})
	if limit > 0 && len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

// LoadedContext returns non-expired loaded context items.
func (b *FileBuffer) LoadedContext(currentStep int) ([]domain.WorkingMemoryItem, error) {
	return b.ByType(constants.MemoryItemLoadedContext, currentStep)
}

// Remove deletes an item by key.
func (b *FileBuffer) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.read()
	if err != nil {
		return err
	}

	kept := data.Items[:0]
	for _, item := range data.Items {
		if item.Key != key {
			kept = append(kept, item)
		}
	}
	data.Items = kept
	return b.write(data)
}

// Clear removes items, keeping pinned ones when keepPinned is set.
func (b *FileBuffer) Clear(keepPinned bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.read()
	if err != nil {
		return err
	}

	if !keepPinned {
		data.Items = nil
	} else {
		kept := data.Items[:0]
		for _, item := range data.Items {
			if item.Pinned {
				kept = append(kept, item)
			}
		}
		data.Items = kept
	}
	return b.write(data)
}

// Pin marks an item so eviction and expiry skip it.
func (b *FileBuffer) Pin(key string) error {
	return b.setPinned(key, true)
}

// Unpin clears the pinned flag.
func (b *FileBuffer) Unpin(key string) error {
	return b.setPinned(key, false)
}

func (b *FileBuffer) setPinned(key string, pinned bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.read()
	if err != nil {
		return err
	}

	for i := range data.Items {
		if data.Items[i].Key == key {
			data.Items[i].Pinned = pinned
			return b.write(data)
		}
	}
	return fmt.Errorf("working memory key %q: %w", key, forgeerrors.ErrMemoryKeyNotFound)
}

// pruneExpired drops expired unpinned items. It reports whether anything
// was removed.
func (b *FileBuffer) pruneExpired(data *bufferFile, currentStep int) bool {
	kept := data.Items[:0]
	removed := false
	for _, item := range data.Items {
		if item.Expired(currentStep) {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	data.Items = kept
	return removed
}

// evict enforces the item bound: the unpinned portion may not exceed
// max(0, maxItems - pinnedCount). Oldest unpinned items go first.
func (b *FileBuffer) evict(data *bufferFile) {
	pinned := 0
	for _, item := range data.Items {
		if item.Pinned {
			pinned++
		}
	}

	allowed := b.cfg.MaxItems - pinned
	if allowed < 0 {
		allowed = 0
	}

	unpinned := len(data.Items) - pinned
	if unpinned <= allowed {
		return
	}

	// Items are kept in insertion order with upserts refreshing added_at;
	// scan oldest-first by added_at among unpinned entries.
	type candidate struct {
		index int
	}
	candidates := make([]candidate, 0, unpinned)
	for i, item := range data.Items {
		if !item.Pinned {
			candidates = append(candidates, candidate{index: i})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return data.Items[candidates[i].index].AddedAt.Before(data.Items[candidates[j].index].AddedAt)
	})

	toEvict := make(map[int]bool, unpinned-allowed)
	for _, c := range candidates[:unpinned-allowed] {
		toEvict[c.index] = true
	}

	kept := data.Items[:0]
	for i, item := range data.Items {
		if toEvict[i] {
			b.logger.Debug().
				Str("task_id", b.taskID).
				Str("key", item.Key).
				Msg("evicted working memory item")
			continue
		}
		kept = append(kept, item)
	}
	data.Items = kept
}
