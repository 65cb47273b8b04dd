package constants

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVersioningConstants(t *testing.T) {
	t.Run("MaxVersionNumber prevents runaway versioning", func(t *testing.T) {
		assert.Equal(t, 10000, MaxVersionNumber)
		assert.Greater(t, MaxVersionNumber, 1000, "should allow many versions before limiting")
	})

	t.Run("LockRetryInterval is reasonable", func(t *testing.T) {
		assert.Equal(t, 50*time.Millisecond, LockRetryInterval)
		assert.Less(t, LockRetryInterval, time.Second, "should retry quickly")
	})

	t.Run("LockTimeout exceeds retry interval", func(t *testing.T) {
		assert.Equal(t, 5*time.Second, LockTimeout)
		assert.Greater(t, LockTimeout, LockRetryInterval)
	})
}

func TestBudgetConstants(t *testing.T) {
	t.Run("base budget below max budget", func(t *testing.T) {
		assert.Less(t, DefaultBaseBudget, DefaultMaxBudget)
	})

	t.Run("progress factor buys multiple steps", func(t *testing.T) {
		assert.Equal(t, 3, ProgressBudgetFactor)
	})
}

func TestPromptConstants(t *testing.T) {
	t.Run("token budget accommodates preserved sections", func(t *testing.T) {
		assert.Equal(t, 4000, DefaultMaxPromptTokens)
		assert.Greater(t, DefaultMaxPromptTokens, TargetSourceTokenCap,
			"budget must exceed the largest single compacted section")
	})

	t.Run("warning floor below budget", func(t *testing.T) {
		assert.Less(t, MinPromptTokens, DefaultMaxPromptTokens)
	})
}

func TestLoopThresholds(t *testing.T) {
	t.Run("identical threshold requires repetition", func(t *testing.T) {
		assert.Equal(t, 3, DefaultIdenticalThreshold)
		assert.GreaterOrEqual(t, DefaultIdenticalThreshold, 2)
	})

	t.Run("semantic threshold exceeds cycle threshold", func(t *testing.T) {
		assert.Equal(t, 2, DefaultCycleThreshold)
		assert.Equal(t, 4, DefaultSemanticThreshold)
	})
}

func TestFactConstants(t *testing.T) {
	t.Run("compaction threshold below max facts", func(t *testing.T) {
		assert.Equal(t, 15, DefaultCompactionThreshold)
		assert.Equal(t, 20, DefaultMaxFacts)
	})

	t.Run("prompt confidence floor matches generic fact confidence", func(t *testing.T) {
		assert.InDelta(t, 0.7, PromptFactConfidenceFloor, 0.001)
		assert.InDelta(t, 0.7, GenericFactConfidence, 0.001)
	})
}

func TestSchemaVersions(t *testing.T) {
	t.Run("current version follows legacy version", func(t *testing.T) {
		assert.Equal(t, "1.0", StateSchemaVersion10)
		assert.Equal(t, "2.0", StateSchemaVersion)
	})
}

func TestEnvVarNames(t *testing.T) {
	t.Run("audit toggle uses AGENTFORGE prefix", func(t *testing.T) {
		assert.Equal(t, "AGENTFORGE_AUDIT_ENABLED", AuditEnabledEnvVar)
	})

	t.Run("home override uses AGENTFORGE prefix", func(t *testing.T) {
		assert.Equal(t, "AGENTFORGE_HOME", ForgeHomeEnvVar)
	})
}
