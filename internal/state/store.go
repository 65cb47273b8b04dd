// Package state provides durable per-task persistence for the execution engine.
// This package implements the storage layer for task spec, state, and action
// log files, with atomic writes and advisory file locking for data integrity.
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/clock"
	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
	"github.com/maxxentropy/agentforge-sub001/internal/flock"
)

// Directory and file permission constants.
const (
	dirPerm  = 0o750 // Secure directory permissions
	filePerm = 0o600 // Secure file permissions
)

// validTaskIDRegex matches caller-supplied and generated task IDs.
// IDs are path components; separators and traversal sequences are excluded.
var validTaskIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Store defines the interface for task persistence operations.
// All operations are atomic with respect to a given task ID.
type Store interface {
	// CreateTask writes the immutable spec and an initial state for a new task.
	// A fully created task cannot be created again; a partially created
	// directory (crash between mkdir and write) is repaired.
	CreateTask(ctx context.Context, spec *domain.TaskSpec, contextData map[string]any) (*domain.TaskState, error)

	// LoadSpec retrieves the immutable task descriptor.
	LoadSpec(ctx context.Context, taskID string) (*domain.TaskSpec, error)

	// Load retrieves the mutable task state, migrating old schemas forward.
	// A state file that fails to parse is quarantined and reported as not found.
	Load(ctx context.Context, taskID string) (*domain.TaskState, error)

	// Save replaces the mutable state (atomic write).
	Save(ctx context.Context, state *domain.TaskState) error

	// IncrementStep advances the step counter and returns the new value.
	IncrementStep(ctx context.Context, taskID string) (int, error)

	// RecordAction appends a record to the task's action log. Append-only.
	RecordAction(ctx context.Context, taskID string, record *domain.ActionRecord) error

	// Actions returns the full action log in append order.
	Actions(ctx context.Context, taskID string) ([]domain.ActionRecord, error)

	// RecentActions returns up to limit most recent records, chronological.
	RecentActions(ctx context.Context, taskID string, limit int) ([]domain.ActionRecord, error)

	// UpdateStatus sets the task lifecycle status.
	UpdateStatus(ctx context.Context, taskID string, status constants.TaskStatus) error

	// UpdatePhase sets the phase and keeps the machine projection in agreement.
	UpdatePhase(ctx context.Context, taskID string, phase constants.Phase) error

	// UpdatePhaseMachine persists the machine projection and keeps phase in agreement.
	UpdatePhaseMachine(ctx context.Context, taskID string, machine domain.PhaseMachineState) error

	// UpdateVerification replaces the verification aggregate and re-derives
	// ready_for_completion.
	UpdateVerification(ctx context.Context, taskID string, passing, failing int, testsPassing bool, details map[string]any) error

	// UpdateContextData sets a single context data key.
	UpdateContextData(ctx context.Context, taskID string, key string, value any) error

	// SetError records a fatal error and moves the task to FAILED.
	// A task already in a terminal phase keeps its phase; only the message is set.
	SetError(ctx context.Context, taskID string, message string) error

	// SaveArtifact writes an artifact under the given kind subdirectory
	// (inputs, outputs, or snapshots) and returns its path.
	SaveArtifact(ctx context.Context, taskID, kind, name string, content []byte) (string, error)

	// SaveVersionedArtifact saves an artifact with a version suffix
	// (e.g. report.1.md) and returns the filename used.
	SaveVersionedArtifact(ctx context.Context, taskID, kind, baseName string, content []byte) (string, error)

	// GetArtifact retrieves an artifact file.
	GetArtifact(ctx context.Context, taskID, kind, name string) ([]byte, error)

	// ListArtifacts lists artifact filenames under a kind, sorted.
	ListArtifacts(ctx context.Context, taskID, kind string) ([]string, error)

	// ListTasks returns all task states, newest first, optionally filtered
	// by status. An empty status means all.
	ListTasks(ctx context.Context, status constants.TaskStatus) ([]*domain.TaskState, error)

	// DeleteTask removes a task directory and everything under it.
	DeleteTask(ctx context.Context, taskID string) error

	// TaskDir returns the task's state directory path.
	TaskDir(taskID string) string
}

// FileStore implements Store using the local filesystem.
type FileStore struct {
	home  string // Usually ~/.agentforge
	clock clock.Clock
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at the given home directory.
// If home is empty, uses AGENTFORGE_HOME or the default ~/.agentforge.
func NewFileStore(home string) (*FileStore, error) {
	if home == "" {
		home = os.Getenv(constants.ForgeHomeEnvVar)
	}
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		home = filepath.Join(userHome, constants.ForgeHome)
	}
	return &FileStore{home: home, clock: clock.RealClock{}}, nil
}

// NewFileStoreWithClock creates a FileStore with an injected clock for tests.
func NewFileStoreWithClock(home string, clk clock.Clock) (*FileStore, error) {
	s, err := NewFileStore(home)
	if err != nil {
		return nil, err
	}
	s.clock = clk
	return s, nil
}

// CreateTask writes the immutable spec and an initial state for a new task.
func (s *FileStore) CreateTask(ctx context.Context, spec *domain.TaskSpec, contextData map[string]any) (*domain.TaskState, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if spec == nil {
		return nil, fmt.Errorf("failed to create task: spec %w", forgeerrors.ErrEmptyValue)
	}
	if err := validateTaskID(spec.TaskID); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// A completed create leaves a state file behind; its presence is the
	// duplicate check. A bare directory from an interrupted create is repaired.
	if _, err := os.Stat(s.statePath(spec.TaskID)); err == nil {
		return nil, fmt.Errorf("failed to create task '%s': %w", spec.TaskID, forgeerrors.ErrTaskExists)
	}

	taskDir := s.TaskDir(spec.TaskID)
	for _, dir := range []string{
		taskDir,
		filepath.Join(taskDir, constants.ArtifactsDir, constants.ArtifactKindInputs),
		filepath.Join(taskDir, constants.ArtifactsDir, constants.ArtifactKindOutputs),
		filepath.Join(taskDir, constants.ArtifactsDir, constants.ArtifactKindSnapshots),
	} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create task directory: %w", err)
		}
	}

	release, err := s.acquireLock(ctx, spec.TaskID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create task '%s': %w", spec.TaskID, err)
	}
	defer release()

	now := s.clock.Now().UTC()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}

	specData, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to create task '%s': %w", spec.TaskID, err)
	}
	if err := atomicWrite(s.specPath(spec.TaskID), specData); err != nil {
		return nil, fmt.Errorf("failed to create task '%s': %w", spec.TaskID, err)
	}

	if contextData == nil {
		contextData = make(map[string]any)
	}
	state := &domain.TaskState{
		TaskID:      spec.TaskID,
		Status:      constants.TaskStatusPending,
		CurrentStep: 0,
		Phase:       constants.PhaseInit,
		PhaseMachine: domain.PhaseMachineState{
			CurrentPhase: constants.PhaseInit,
			StepsInPhase: 0,
			PhaseHistory: []constants.Phase{},
		},
		ContextData:   contextData,
		LastUpdated:   now,
		SchemaVersion: constants.StateSchemaVersion,
	}
	state.Verification.Recompute()

	if err := s.writeState(state); err != nil {
		return nil, fmt.Errorf("failed to create task '%s': %w", spec.TaskID, err)
	}

	return state, nil
}

// LoadSpec retrieves the immutable task descriptor.
func (s *FileStore) LoadSpec(ctx context.Context, taskID string) (*domain.TaskSpec, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := validateTaskID(taskID); err != nil {
		return nil, fmt.Errorf("failed to load spec: %w", err)
	}

	data, err := os.ReadFile(s.specPath(taskID)) //#nosec G304 -- path is validated and constructed from trusted base
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load spec '%s': %w", taskID, forgeerrors.ErrTaskNotFound)
		}
		return nil, fmt.Errorf("failed to read spec '%s': %w", taskID, err)
	}

	var spec domain.TaskSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse spec '%s': %w", taskID, err)
	}
	return &spec, nil
}

// Load retrieves the mutable task state, migrating old schemas forward.
func (s *FileStore) Load(ctx context.Context, taskID string) (*domain.TaskState, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := validateTaskID(taskID); err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	release, err := s.acquireLock(ctx, taskID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load task '%s': %w", taskID, err)
	}

	state, err := s.readState(ctx, taskID)
	release()
	if err != nil {
		return nil, err
	}

	if state.SchemaVersion != constants.StateSchemaVersion {
		// Migration is a write; re-read under the exclusive lock so a racing
		// migrator cannot be overwritten.
		release, err = s.acquireLock(ctx, taskID, false)
		if err != nil {
			return nil, fmt.Errorf("failed to load task '%s': %w", taskID, err)
		}
		defer release()

		state, err = s.readState(ctx, taskID)
		if err != nil {
			return nil, err
		}
		migrated, err := migrateState(state)
		if err != nil {
			return nil, fmt.Errorf("failed to migrate task '%s': %w", taskID, err)
		}
		if migrated {
			if err := s.writeState(state); err != nil {
				return nil, fmt.Errorf("failed to re-save migrated task '%s': %w", taskID, err)
			}
			zerolog.Ctx(ctx).Debug().
				Str("task_id", taskID).
				Str("schema_version", state.SchemaVersion).
				Msg("migrated task state schema")
		}
	}

	return state, nil
}

// readState reads and parses state.json, quarantining corrupt files.
// Callers must hold the task lock.
func (s *FileStore) readState(ctx context.Context, taskID string) (*domain.TaskState, error) {
	statePath := s.statePath(taskID)
	data, err := os.ReadFile(statePath) //#nosec G304 -- path is validated and constructed from trusted base
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load task '%s': %w", taskID, forgeerrors.ErrTaskNotFound)
		}
		return nil, fmt.Errorf("failed to read task '%s': %w", taskID, err)
	}

	var state domain.TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		// Quarantine the unreadable file so the next load is a clean miss.
		quarantined := statePath + constants.CorruptedSuffix
		if renameErr := os.Rename(statePath, quarantined); renameErr == nil {
			zerolog.Ctx(ctx).Warn().
				Str("task_id", taskID).
				Str("quarantined", quarantined).
				Err(err).
				Msg("task state corrupted; quarantined")
		}
		return nil, fmt.Errorf("task '%s' state quarantined: %w", taskID, forgeerrors.ErrTaskNotFound)
	}
	return &state, nil
}

// writeState marshals and atomically writes state.json.
// Callers must hold the task lock.
func (s *FileStore) writeState(state *domain.TaskState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return atomicWrite(s.statePath(state.TaskID), data)
}

// Save replaces the mutable state (atomic write).
func (s *FileStore) Save(ctx context.Context, state *domain.TaskState) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if state == nil {
		return fmt.Errorf("failed to save task: state %w", forgeerrors.ErrEmptyValue)
	}
	if err := validateTaskID(state.TaskID); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	if _, err := os.Stat(s.TaskDir(state.TaskID)); os.IsNotExist(err) {
		return fmt.Errorf("failed to save task '%s': %w", state.TaskID, forgeerrors.ErrTaskNotFound)
	}

	release, err := s.acquireLock(ctx, state.TaskID, false)
	if err != nil {
		return fmt.Errorf("failed to save task '%s': %w", state.TaskID, err)
	}
	defer release()

	state.LastUpdated = s.clock.Now().UTC()
	if err := s.writeState(state); err != nil {
		return fmt.Errorf("failed to save task '%s': %w", state.TaskID, err)
	}
	return nil
}

// mutateState applies fn to the current state under an exclusive lock
// and persists the result.
func (s *FileStore) mutateState(ctx context.Context, taskID string, fn func(*domain.TaskState) error) (*domain.TaskState, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}

	release, err := s.acquireLock(ctx, taskID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to update task '%s': %w", taskID, err)
	}
	defer release()

	state, err := s.readState(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := fn(state); err != nil {
		return nil, err
	}

	state.LastUpdated = s.clock.Now().UTC()
	if err := s.writeState(state); err != nil {
		return nil, fmt.Errorf("failed to update task '%s': %w", taskID, err)
	}
	return state, nil
}

// IncrementStep advances the step counter and returns the new value.
func (s *FileStore) IncrementStep(ctx context.Context, taskID string) (int, error) {
	state, err := s.mutateState(ctx, taskID, func(st *domain.TaskState) error {
		st.CurrentStep++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return state.CurrentStep, nil
}

// RecordAction appends a record to the task's action log.
func (s *FileStore) RecordAction(ctx context.Context, taskID string, record *domain.ActionRecord) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if record == nil {
		return fmt.Errorf("failed to record action: record %w", forgeerrors.ErrEmptyValue)
	}
	if err := validateTaskID(taskID); err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	if _, err := os.Stat(s.TaskDir(taskID)); os.IsNotExist(err) {
		return fmt.Errorf("failed to record action: task '%s' %w", taskID, forgeerrors.ErrTaskNotFound)
	}

	release, err := s.acquireLock(ctx, taskID, false)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	defer release()

	record.TruncateSummary()
	if record.Timestamp.IsZero() {
		record.Timestamp = s.clock.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}

	f, err := os.OpenFile(s.actionLogPath(taskID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync action log: %w", err)
	}
	return nil
}

// Actions returns the full action log in append order.
func (s *FileStore) Actions(ctx context.Context, taskID string) ([]domain.ActionRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := validateTaskID(taskID); err != nil {
		return nil, fmt.Errorf("failed to read actions: %w", err)
	}

	release, err := s.acquireLock(ctx, taskID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read actions: %w", err)
	}
	defer release()

	f, err := os.Open(s.actionLogPath(taskID)) //#nosec G304 -- path is validated and constructed from trusted base
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.ActionRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read actions: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []domain.ActionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec domain.ActionRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// A crash mid-append can leave a torn final line; skip it.
			zerolog.Ctx(ctx).Warn().
				Str("task_id", taskID).
				Err(err).
				Msg("skipping unparseable action log line")
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan actions: %w", err)
	}
	if records == nil {
		records = []domain.ActionRecord{}
	}
	return records, nil
}

// RecentActions returns up to limit most recent records, chronological.
func (s *FileStore) RecentActions(ctx context.Context, taskID string, limit int) ([]domain.ActionRecord, error) {
	records, err := s.Actions(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || len(records) <= limit {
		return records, nil
	}
	return records[len(records)-limit:], nil
}

// UpdateStatus sets the task lifecycle status.
func (s *FileStore) UpdateStatus(ctx context.Context, taskID string, status constants.TaskStatus) error {
	_, err := s.mutateState(ctx, taskID, func(st *domain.TaskState) error {
		st.Status = status
		return nil
	})
	return err
}

// UpdatePhase sets the phase and keeps the machine projection in agreement.
func (s *FileStore) UpdatePhase(ctx context.Context, taskID string, phase constants.Phase) error {
	if !phase.Valid() {
		return fmt.Errorf("failed to update phase: %q %w", phase, forgeerrors.ErrUnknownPhase)
	}
	_, err := s.mutateState(ctx, taskID, func(st *domain.TaskState) error {
		st.Phase = phase
		st.PhaseMachine.CurrentPhase = phase
		return nil
	})
	return err
}

// UpdatePhaseMachine persists the machine projection and keeps phase in agreement.
func (s *FileStore) UpdatePhaseMachine(ctx context.Context, taskID string, machine domain.PhaseMachineState) error {
	if !machine.CurrentPhase.Valid() {
		return fmt.Errorf("failed to update phase machine: %q %w", machine.CurrentPhase, forgeerrors.ErrUnknownPhase)
	}
	_, err := s.mutateState(ctx, taskID, func(st *domain.TaskState) error {
		st.PhaseMachine = machine
		st.Phase = machine.CurrentPhase
		return nil
	})
	return err
}

// UpdateVerification replaces the verification aggregate.
func (s *FileStore) UpdateVerification(ctx context.Context, taskID string, passing, failing int, testsPassing bool, details map[string]any) error {
	_, err := s.mutateState(ctx, taskID, func(st *domain.TaskState) error {
		now := s.clock.Now().UTC()
		st.Verification.ChecksPassing = passing
		st.Verification.ChecksFailing = failing
		st.Verification.TestsPassing = testsPassing
		st.Verification.LastCheckTime = &now
		if details != nil {
			st.Verification.Details = details
		}
		st.Verification.Recompute()
		return nil
	})
	return err
}

// UpdateContextData sets a single context data key.
func (s *FileStore) UpdateContextData(ctx context.Context, taskID string, key string, value any) error {
	if key == "" {
		return fmt.Errorf("failed to update context data: key %w", forgeerrors.ErrEmptyValue)
	}
	_, err := s.mutateState(ctx, taskID, func(st *domain.TaskState) error {
		if st.ContextData == nil {
			st.ContextData = make(map[string]any)
		}
		st.ContextData[key] = value
		return nil
	})
	return err
}

// SetError records a fatal error and moves the task to FAILED.
func (s *FileStore) SetError(ctx context.Context, taskID string, message string) error {
	_, err := s.mutateState(ctx, taskID, func(st *domain.TaskState) error {
		st.Error = message
		// Terminal phases are absorbing; only the message is recorded then.
		if !st.Phase.Terminal() {
			st.PhaseMachine.PhaseHistory = append(st.PhaseMachine.PhaseHistory, st.Phase)
			st.Phase = constants.PhaseFailed
			st.PhaseMachine.CurrentPhase = constants.PhaseFailed
			st.Status = constants.TaskStatusFailed
		}
		return nil
	})
	return err
}

// SaveArtifact writes an artifact under the given kind subdirectory.
func (s *FileStore) SaveArtifact(ctx context.Context, taskID, kind, name string, content []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if err := validateTaskID(taskID); err != nil {
		return "", fmt.Errorf("failed to save artifact: %w", err)
	}
	if err := validateArtifactKind(kind); err != nil {
		return "", fmt.Errorf("failed to save artifact: %w", err)
	}
	if err := validateArtifactName(name); err != nil {
		return "", fmt.Errorf("failed to save artifact: %w", err)
	}
	if _, err := os.Stat(s.TaskDir(taskID)); os.IsNotExist(err) {
		return "", fmt.Errorf("failed to save artifact: task '%s' %w", taskID, forgeerrors.ErrTaskNotFound)
	}

	dir := s.artifactsDir(taskID, kind)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := atomicWrite(path, content); err != nil {
		return "", fmt.Errorf("failed to save artifact '%s': %w", name, err)
	}
	return path, nil
}

// SaveVersionedArtifact saves an artifact with automatic version numbering.
// For example, if "report.md" exists, saves as "report.1.md", then
// "report.2.md", etc.
func (s *FileStore) SaveVersionedArtifact(ctx context.Context, taskID, kind, baseName string, content []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if err := validateTaskID(taskID); err != nil {
		return "", fmt.Errorf("failed to save versioned artifact: %w", err)
	}
	if err := validateArtifactKind(kind); err != nil {
		return "", fmt.Errorf("failed to save versioned artifact: %w", err)
	}
	if err := validateArtifactName(baseName); err != nil {
		return "", fmt.Errorf("failed to save versioned artifact: %w", err)
	}
	if _, err := os.Stat(s.TaskDir(taskID)); os.IsNotExist(err) {
		return "", fmt.Errorf("failed to save versioned artifact: task '%s' %w", taskID, forgeerrors.ErrTaskNotFound)
	}

	dir := s.artifactsDir(taskID, kind)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	ext := filepath.Ext(baseName)
	nameWithoutExt := strings.TrimSuffix(baseName, ext)

	version := 1
	for {
		filename := fmt.Sprintf("%s.%d%s", nameWithoutExt, version, ext)
		fullPath := filepath.Join(dir, filename)
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			if err := atomicWrite(fullPath, content); err != nil {
				return "", fmt.Errorf("failed to save versioned artifact: %w", err)
			}
			return filename, nil
		}
		version++

		if version > constants.MaxVersionNumber {
			return "", fmt.Errorf("failed to save versioned artifact: %w", forgeerrors.ErrTooManyVersions)
		}
	}
}

// GetArtifact retrieves an artifact file.
func (s *FileStore) GetArtifact(ctx context.Context, taskID, kind, name string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := validateTaskID(taskID); err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	if err := validateArtifactKind(kind); err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	if err := validateArtifactName(name); err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(s.artifactsDir(taskID, kind), name)) //#nosec G304 -- path is validated and constructed from trusted base
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact '%s': %w", name, forgeerrors.ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("failed to read artifact '%s': %w", name, err)
	}
	return data, nil
}

// ListArtifacts lists artifact filenames under a kind, sorted.
func (s *FileStore) ListArtifacts(ctx context.Context, taskID, kind string) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := validateTaskID(taskID); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	if err := validateArtifactKind(kind); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	dir := s.artifactsDir(taskID, kind)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			filenames = append(filenames, entry.Name())
		}
	}
	sort.Strings(filenames)
	return filenames, nil
}

// ListTasks returns all task states, newest first, optionally filtered by status.
func (s *FileStore) ListTasks(ctx context.Context, status constants.TaskStatus) ([]*domain.TaskState, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	tasksDir := filepath.Join(s.home, constants.TasksDir)
	if _, err := os.Stat(tasksDir); os.IsNotExist(err) {
		return []*domain.TaskState{}, nil
	}

	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*domain.TaskState, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !validTaskIDRegex.MatchString(entry.Name()) {
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		state, err := s.Load(ctx, entry.Name())
		if err != nil {
			// Quarantined or half-created directories are skipped, not fatal.
			continue
		}
		if status != "" && state.Status != status {
			continue
		}
		tasks = append(tasks, state)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].LastUpdated.After(tasks[j].LastUpdated)
	})
	return tasks, nil
}

// DeleteTask removes a task directory and everything under it.
func (s *FileStore) DeleteTask(ctx context.Context, taskID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := validateTaskID(taskID); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	taskDir := s.TaskDir(taskID)
	if _, err := os.Stat(taskDir); os.IsNotExist(err) {
		return fmt.Errorf("failed to delete task '%s': %w", taskID, forgeerrors.ErrTaskNotFound)
	}

	// Hold the lock briefly to drain writers, then release before removal
	// since the lock file lives inside the task directory.
	release, err := s.acquireLock(ctx, taskID, false)
	if err != nil {
		return fmt.Errorf("failed to delete task '%s': %w", taskID, err)
	}
	release()

	if err := os.RemoveAll(taskDir); err != nil {
		return fmt.Errorf("failed to delete task '%s': %w", taskID, err)
	}
	return nil
}

// Helper methods for path construction

// TaskDir returns the task's state directory path.
func (s *FileStore) TaskDir(taskID string) string {
	return filepath.Join(s.home, constants.TasksDir, taskID)
}

// specPath returns the path to a task's immutable spec file.
func (s *FileStore) specPath(taskID string) string {
	return filepath.Join(s.TaskDir(taskID), constants.SpecFileName)
}

// statePath returns the path to a task's mutable state file.
func (s *FileStore) statePath(taskID string) string {
	return filepath.Join(s.TaskDir(taskID), constants.StateFileName)
}

// actionLogPath returns the path to a task's append-only action log.
func (s *FileStore) actionLogPath(taskID string) string {
	return filepath.Join(s.TaskDir(taskID), constants.ActionLogFileName)
}

// artifactsDir returns the path to a task's artifact kind directory.
func (s *FileStore) artifactsDir(taskID, kind string) string {
	return filepath.Join(s.TaskDir(taskID), constants.ArtifactsDir, kind)
}

// lockPath returns the path to a task's lock file.
func (s *FileStore) lockPath(taskID string) string {
	return filepath.Join(s.TaskDir(taskID), constants.StateFileName+".lock")
}

// acquireLock acquires an advisory lock for the task, shared for readers
// and exclusive for writers. It respects context cancellation during the
// retry loop. The returned function releases the lock.
func (s *FileStore) acquireLock(ctx context.Context, taskID string, shared bool) (func(), error) {
	if err := os.MkdirAll(s.TaskDir(taskID), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(s.lockPath(taskID), os.O_CREATE|os.O_RDWR, filePerm) //#nosec G302,G304 -- lock file needs write access, path is constructed from validated name
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	lockFn := flock.Exclusive
	if shared {
		lockFn = flock.Shared
	}

	deadline := time.Now().Add(constants.LockTimeout)
	for {
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		default:
		}

		if err := lockFn(f.Fd()); err == nil {
			return func() {
				_ = flock.Unlock(f.Fd())
				_ = f.Close()
			}, nil
		}

		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to acquire lock: %w", forgeerrors.ErrLockTimeout)
		}

		time.Sleep(constants.LockRetryInterval)
	}
}

// atomicWrite writes data to a file atomically using write-then-rename.
// Uses filePerm (0o600) for secure file permissions.
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	// Sync to disk (ensure data is persisted before rename)
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// validateTaskID rejects IDs that cannot safely name a directory.
func validateTaskID(taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID %w", forgeerrors.ErrEmptyValue)
	}
	if !validTaskIDRegex.MatchString(taskID) {
		return fmt.Errorf("task ID %q: %w", taskID, forgeerrors.ErrInvalidArgument)
	}
	if strings.Contains(taskID, "..") {
		return fmt.Errorf("task ID %q: %w", taskID, forgeerrors.ErrPathTraversal)
	}
	return nil
}

// validateArtifactKind restricts kinds to the three known subdirectories.
func validateArtifactKind(kind string) error {
	switch kind {
	case constants.ArtifactKindInputs, constants.ArtifactKindOutputs, constants.ArtifactKindSnapshots:
		return nil
	default:
		return fmt.Errorf("artifact kind %q: %w", kind, forgeerrors.ErrInvalidArgument)
	}
}

// validateArtifactName prevents path traversal in artifact filenames.
func validateArtifactName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name %w", forgeerrors.ErrEmptyValue)
	}
	if strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("artifact name %q: %w", name, forgeerrors.ErrPathTraversal)
	}
	return nil
}

// GenerateTaskID generates a task ID with format task-YYYYMMDD-HHMMSS.
// IDs generated within the same second will be identical.
// Use GenerateTaskIDUnique for scenarios requiring uniqueness checks.
func GenerateTaskID() string {
	now := time.Now().UTC()
	return fmt.Sprintf("task-%s-%s",
		now.Format("20060102"),
		now.Format("150405"))
}

// GenerateTaskIDUnique generates a task ID, adding milliseconds if needed
// for uniqueness. It checks against the provided map of existing IDs.
//
// This provides best-effort uniqueness based on a snapshot of IDs; the
// CreateTask filesystem check is the actual guarantee. Callers should
// regenerate on ErrTaskExists.
func GenerateTaskIDUnique(existingIDs map[string]bool) string {
	id := GenerateTaskID()
	if !existingIDs[id] {
		return id
	}
	now := time.Now().UTC()
	return fmt.Sprintf("task-%s-%s-%03d",
		now.Format("20060102"),
		now.Format("150405"),
		now.Nanosecond()/1000000)
}
