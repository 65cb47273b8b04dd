// Package audit records a per-step trail of executor decisions so a run
// can be reconstructed after the fact. Each task gets its own directory
// under <home>/audit/ holding one snapshot file per step, an append-only
// trail, and a terminal summary. The logger is an optional collaborator:
// a nil or disabled logger accepts every call and writes nothing.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/clock"
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// StepSnapshot is the persisted record of one executor step.
type StepSnapshot struct {
	// ID uniquely identifies the snapshot. Filled on write if empty.
	ID string `json:"id"`

	// TaskID is the task the step belongs to. Filled on write if empty.
	TaskID string `json:"task_id"`

	// Step is the step number the snapshot describes.
	Step int `json:"step"`

	// Phase is the task phase when the step executed.
	Phase string `json:"phase"`

	// Action is the dispatched action name.
	Action string `json:"action"`

	// Parameters are the action parameters as parsed from the response.
	Parameters map[string]any `json:"parameters,omitempty"`

	// ResultStatus is the tool result status (success, failure, partial).
	ResultStatus string `json:"result_status,omitempty"`

	// ResultSummary is the tool result's one-line summary.
	ResultSummary string `json:"result_summary,omitempty"`

	// PromptTokens is the token count of the submitted prompt.
	PromptTokens int `json:"prompt_tokens"`

	// ResponseTokens is the token count of the generated response.
	ResponseTokens int `json:"response_tokens"`

	// ContextHash is the SHA-256 hash of the prompt the step was built
	// from. Identical hashes across steps mean the model saw identical
	// context.
	ContextHash string `json:"context_hash,omitempty"`

	// Timestamp is when the snapshot was written. Filled on write if zero.
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the terminal record written when a run ends.
type Summary struct {
	TaskID           string    `json:"task_id"`
	FinalStatus      string    `json:"final_status"`
	TotalSteps       int       `json:"total_steps"`
	PromptTokens     int       `json:"prompt_tokens"`
	ResponseTokens   int       `json:"response_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CompactionEvents int       `json:"compaction_events"`
	TokensSaved      int       `json:"tokens_saved"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Config configures an audit logger.
type Config struct {
	// Root is the audit root directory holding one subdirectory per task.
	// Defaults to <home>/audit under the AgentForge home.
	Root string

	// TaskID names the per-task subdirectory.
	TaskID string

	// MaxTaskDirs is the number of task audit directories to keep.
	// Defaults to 50; older directories are removed oldest first.
	MaxTaskDirs int

	// Enabled turns the logger on. NewLogger additionally honors
	// AGENTFORGE_AUDIT_ENABLED=false as an off switch.
	Enabled bool
}

// DefaultConfig returns the default configuration for a task.
func DefaultConfig(taskID string) Config {
	return Config{
		TaskID:      taskID,
		MaxTaskDirs: constants.DefaultAuditMaxTaskDirs,
		Enabled:     true,
	}
}

// Logger writes step snapshots and the terminal summary for one task.
// Thread-safe; a nil *Logger is a valid no-op logger.
type Logger struct {
	mu     sync.Mutex
	dir    string
	taskID string
	clock  clock.Clock
	logger zerolog.Logger

	// file carries the append-only trail; nil once closed.
	file    *os.File
	encoder *json.Encoder

	enabled        bool
	steps          int
	promptTokens   int
	responseTokens int
	startedAt      time.Time
}

// NewLogger creates a logger for one task run. A disabled configuration
// (or AGENTFORGE_AUDIT_ENABLED=false) yields a logger that accepts every
// call and touches no files.
func NewLogger(cfg Config, logger zerolog.Logger) (*Logger, error) {
	if cfg.TaskID == "" {
		return nil, fmt.Errorf("task ID %w", forgeerrors.ErrEmptyValue)
	}
	if cfg.MaxTaskDirs <= 0 {
		cfg.MaxTaskDirs = constants.DefaultAuditMaxTaskDirs
	}

	l := &Logger{
		taskID: cfg.TaskID,
		clock:  clock.RealClock{},
		logger: logger.With().Str("component", "audit").Str("task_id", cfg.TaskID).Logger(),
	}

	if !cfg.Enabled || !enabledFromEnv() {
		return l, nil
	}

	root := cfg.Root
	if root == "" {
		home, err := forgeHome()
		if err != nil {
			return nil, err
		}
		root = filepath.Join(home, constants.AuditDir)
	}

	l.dir = filepath.Join(root, cfg.TaskID)
	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	trailPath := filepath.Join(l.dir, constants.AuditTrailFileName)
	file, err := os.OpenFile(trailPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //#nosec G304 -- path is constructed internally
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)
	l.enabled = true
	l.startedAt = l.clock.Now()

	cleanupOldTaskDirs(root, cfg.TaskID, cfg.MaxTaskDirs)

	return l, nil
}

// NewLoggerWithClock creates a logger with an injected clock for tests.
func NewLoggerWithClock(cfg Config, clk clock.Clock, logger zerolog.Logger) (*Logger, error) {
	l, err := NewLogger(cfg, logger)
	if err != nil {
		return nil, err
	}
	l.clock = clk
	if l.enabled {
		l.startedAt = clk.Now()
	}
	return l, nil
}

// Snapshot persists one step record: a line on the trail plus its own
// step-NNNN.json file. Missing ID, TaskID, and Timestamp are filled in.
func (l *Logger) Snapshot(snap *StepSnapshot) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return nil
	}
	if l.file == nil {
		return forgeerrors.ErrLoggerClosed
	}
	if snap == nil {
		return fmt.Errorf("snapshot %w", forgeerrors.ErrEmptyValue)
	}

	if snap.ID == "" {
		snap.ID = newSnapshotID()
	}
	if snap.TaskID == "" {
		snap.TaskID = l.taskID
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = l.clock.Now()
	}

	if err := l.encoder.Encode(snap); err != nil {
		return fmt.Errorf("failed to write audit trail: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	name := fmt.Sprintf(constants.AuditStepFilePattern, snap.Step)
	if err := os.WriteFile(filepath.Join(l.dir, name), data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	l.steps++
	l.promptTokens += snap.PromptTokens
	l.responseTokens += snap.ResponseTokens

	return nil
}

// WriteSummary persists the terminal summary from the logger's running
// totals and returns it. A disabled logger returns (nil, nil).
func (l *Logger) WriteSummary(finalStatus string, compactionEvents, tokensSaved int) (*Summary, error) {
	if l == nil {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return nil, nil
	}
	if l.file == nil {
		return nil, forgeerrors.ErrLoggerClosed
	}

	sum := &Summary{
		TaskID:           l.taskID,
		FinalStatus:      finalStatus,
		TotalSteps:       l.steps,
		PromptTokens:     l.promptTokens,
		ResponseTokens:   l.responseTokens,
		TotalTokens:      l.promptTokens + l.responseTokens,
		CompactionEvents: compactionEvents,
		TokensSaved:      tokensSaved,
		StartedAt:        l.startedAt,
		FinishedAt:       l.clock.Now(),
	}

	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	path := filepath.Join(l.dir, constants.AuditSummaryFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write summary: %w", err)
	}

	l.logger.Info().
		Str("status", finalStatus).
		Int("steps", sum.TotalSteps).
		Int("total_tokens", sum.TotalTokens).
		Msg("Audit summary written")

	return sum, nil
}

// Close closes the trail file. Further snapshot or summary writes return
// ErrLoggerClosed. Safe to call more than once.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	err := l.file.Close()
	l.file = nil
	return err
}

// Enabled reports whether the logger writes anything.
func (l *Logger) Enabled() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Steps returns the number of snapshots written.
func (l *Logger) Steps() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.steps
}

// Path returns the task's audit directory, empty when disabled.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dir
}

// TaskDir returns the audit directory for a task under the given home.
func TaskDir(home, taskID string) string {
	return filepath.Join(home, constants.AuditDir, taskID)
}

// ReadSummary loads the terminal summary from a task audit directory.
func ReadSummary(dir string) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(dir, constants.AuditSummaryFileName)) //#nosec G304 -- path is constructed internally
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}
	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	return &sum, nil
}

// ReadSnapshots loads every step snapshot in a task audit directory,
// ordered by step number.
func ReadSnapshots(dir string) ([]*StepSnapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, "step-") && filepath.Ext(name) == ".json" {
			names = append(names, name)
		}
	}
	// Zero-padded step numbers make name order step order.
	sort.Strings(names)

	snaps := make([]*StepSnapshot, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name)) //#nosec G304 -- name comes from a directory listing
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot %s: %w", name, err)
		}
		var snap StepSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s: %w", name, err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, nil
}

// ContextHash fingerprints the prompt a step was built from.
func ContextHash(system, user string) string {
	sum := sha256.Sum256([]byte(system + "\n" + user))
	return hex.EncodeToString(sum[:])
}

// newSnapshotID generates a short unique snapshot identifier.
// Format: snap-{uuid8} (e.g., snap-a1b2c3d4)
func newSnapshotID() string {
	return "snap-" + uuid.New().String()[:8]
}

// enabledFromEnv reads the audit toggle. Only an explicit false value
// disables; absent or unparseable values leave auditing on.
func enabledFromEnv() bool {
	raw := os.Getenv(constants.AuditEnabledEnvVar)
	if raw == "" {
		return true
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return enabled
}

// forgeHome resolves the AgentForge home directory.
func forgeHome() (string, error) {
	if home := os.Getenv(constants.ForgeHomeEnvVar); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(userHome, constants.ForgeHome), nil
}

// cleanupOldTaskDirs removes the oldest task audit directories once the
// root holds more than maxDirs, never touching the active task.
func cleanupOldTaskDirs(root, activeTaskID string, maxDirs int) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return // Silently ignore errors during cleanup
	}

	var dirs []os.DirEntry
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() != activeTaskID {
			dirs = append(dirs, entry)
		}
	}

	// The active task's directory occupies one slot.
	if len(dirs) <= maxDirs-1 {
		return
	}

	sort.Slice(dirs, func(i, j int) bool {
		infoI, errI := dirs[i].Info()
		infoJ, errJ := dirs[j].Info()
		if errI != nil || errJ != nil {
			return false
		}
		return infoI.ModTime().Before(infoJ.ModTime())
	})

	toRemove := len(dirs) - (maxDirs - 1)
	for i := 0; i < toRemove; i++ {
		_ = os.RemoveAll(filepath.Join(root, dirs[i].Name())) // Silently ignore errors
	}
}
