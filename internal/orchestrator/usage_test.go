package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/pkg/types"
)

func TestApplyUsageContributesOnlyMonotonicDeltas(t *testing.T) {
	state := &types.UsageState{}
	sources := types.UsageSources{}

	changed := ApplyUsage(state, sources, UsageObservation{
		SourceID: "llm_end:r1:1", Provider: "anthropic", Model: "claude-sonnet-4-20250514",
		ModelSource: "config", UsageSource: "llm_end", InputTokens: 100, OutputTokens: 20, TotalTokens: 120,
	})
	require.True(t, changed)
	assert.Equal(t, int64(100), state.InputTokens)
	assert.Equal(t, int64(20), state.OutputTokens)

	// Re-observing the same source with a larger value contributes the delta.
	changed = ApplyUsage(state, sources, UsageObservation{
		SourceID: "llm_end:r1:1", Provider: "anthropic", Model: "claude-sonnet-4-20250514",
		ModelSource: "config", UsageSource: "llm_end", InputTokens: 150, OutputTokens: 20, TotalTokens: 170,
	})
	require.True(t, changed)
	assert.Equal(t, int64(150), state.InputTokens)

	// Re-observing with an unchanged value is a no-op.
	changed = ApplyUsage(state, sources, UsageObservation{
		SourceID: "llm_end:r1:1", Provider: "anthropic", Model: "claude-sonnet-4-20250514",
		ModelSource: "config", UsageSource: "llm_end", InputTokens: 150, OutputTokens: 20, TotalTokens: 170,
	})
	assert.False(t, changed)
	assert.Equal(t, int64(150), state.InputTokens)
}

func TestApplyUsageIdentityConflictCollapsesToMixed(t *testing.T) {
	state := &types.UsageState{}
	sources := types.UsageSources{}

	ApplyUsage(state, sources, UsageObservation{SourceID: "a", Provider: "anthropic", InputTokens: 1})
	assert.Equal(t, "anthropic", state.Provider)

	ApplyUsage(state, sources, UsageObservation{SourceID: "b", Provider: "openai", InputTokens: 1})
	assert.Equal(t, "mixed", state.Provider)

	ApplyUsage(state, sources, UsageObservation{SourceID: "c", Provider: "unknown", InputTokens: 1})
	assert.Equal(t, "mixed", state.Provider, "an 'unknown' observation must never overwrite an established identity")
}

func TestNormalizeDerivesUncachedAndClampsTotal(t *testing.T) {
	u := &types.UsageState{InputTokens: 500, InputCacheReadTokens: 100, OutputTokens: 50}
	Normalize(u)

	assert.Equal(t, int64(400), u.InputUncachedTokens)
	assert.GreaterOrEqual(t, u.InputTokens, u.InputUncachedTokens+u.InputCacheReadTokens+u.CacheWriteTotal())
	assert.Equal(t, int64(550), u.TotalTokens)
}

func TestNormalizeRaisesInputTokensToCoverComponents(t *testing.T) {
	u := &types.UsageState{InputUncachedTokens: 300, InputCacheReadTokens: 50, InputCacheWriteTokens5m: 20}
	Normalize(u)
	assert.Equal(t, int64(370), u.InputTokens)
}

func TestComputePricingKnownAndUnknownModel(t *testing.T) {
	known := &types.UsageState{Model: "claude-sonnet-4-20250514", InputTokens: 1000, OutputTokens: 1000}
	cost := ComputePricing(known)
	assert.InDelta(t, 0.018, cost, 1e-9)
	assert.Equal(t, cost, known.CostUSD)

	unknown := &types.UsageState{Model: "some-unlisted-model", InputTokens: 1000, OutputTokens: 1000}
	assert.Equal(t, 0.0, ComputePricing(unknown))
}
