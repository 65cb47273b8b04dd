package state

import (
	"fmt"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	"github.com/maxxentropy/agentforge-sub001/internal/domain"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// migrateState upgrades a loaded state to the current schema version in
// place. It reports whether anything changed. Migration only adds fields;
// existing data is preserved.
//
// Version 1.0 predates the phase machine projection and the derived
// ready_for_completion flag. Both are filled from what the old file
// already carries: the machine starts at the recorded phase and
// ready_for_completion defaults to false until the next verification.
func migrateState(state *domain.TaskState) (bool, error) {
	switch state.SchemaVersion {
	case constants.StateSchemaVersion:
		return false, nil
	case "", constants.StateSchemaVersion10:
		if state.PhaseMachine.CurrentPhase == "" {
			phase := state.Phase
			if phase == "" {
				phase = constants.PhaseInit
			}
			state.PhaseMachine.CurrentPhase = phase
		}
		if state.PhaseMachine.PhaseHistory == nil {
			state.PhaseMachine.PhaseHistory = []constants.Phase{}
		}
		if state.Phase == "" {
			state.Phase = state.PhaseMachine.CurrentPhase
		}
		state.Verification.ReadyForCompletion = false
		state.SchemaVersion = constants.StateSchemaVersion
		return true, nil
	default:
		return false, fmt.Errorf("schema version %q: %w", state.SchemaVersion, forgeerrors.ErrSchemaUnsupported)
	}
}
