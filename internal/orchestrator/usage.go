package orchestrator

import "github.com/agentmesh/runtime/pkg/types"

// UsageObservation is one raw usage snapshot pulled from a provider chunk
// or a tool result, keyed by a source id unique to that observation point
// within a run (e.g. "llm_end:<run>:<seq>" or "result:<run>:<seq>").
type UsageObservation struct {
	SourceID string

	Provider    string
	Model       string
	ModelSource string
	UsageSource string

	InputTokens                  int64
	InputUncachedTokens          int64
	InputCacheReadTokens         int64
	InputCacheWriteTokens5m      int64
	InputCacheWriteTokens1h      int64
	InputCacheWriteTokensUnknown int64
	OutputTokens                 int64
	ReasoningTokens               int64
	ToolInputTokens               int64
	TotalTokens                   int64
}

// ApplyUsage folds obs into state, contributing only the positive
// (monotonic) delta over the last value observed for obs.SourceID, and
// reports whether anything changed. Re-observing the same source with an
// unchanged or smaller value is a no-op for every numeric field.
func ApplyUsage(state *types.UsageState, sources types.UsageSources, obs UsageObservation) bool {
	if sources == nil {
		return false
	}
	last := sources[obs.SourceID]
	changed := false

	addDelta := func(dst *int64, prevField, newVal int64) {
		delta := newVal - prevField
		if delta > 0 {
			*dst += delta
			changed = true
		}
	}

	addDelta(&state.InputTokens, last.InputTokens, obs.InputTokens)
	addDelta(&state.InputUncachedTokens, last.InputUncachedTokens, obs.InputUncachedTokens)
	addDelta(&state.InputCacheReadTokens, last.InputCacheReadTokens, obs.InputCacheReadTokens)
	addDelta(&state.InputCacheWriteTokens5m, last.InputCacheWriteTokens5m, obs.InputCacheWriteTokens5m)
	addDelta(&state.InputCacheWriteTokens1h, last.InputCacheWriteTokens1h, obs.InputCacheWriteTokens1h)
	addDelta(&state.InputCacheWriteTokensUnknown, last.InputCacheWriteTokensUnknown, obs.InputCacheWriteTokensUnknown)
	addDelta(&state.OutputTokens, last.OutputTokens, obs.OutputTokens)
	addDelta(&state.ReasoningTokens, last.ReasoningTokens, obs.ReasoningTokens)
	addDelta(&state.ToolInputTokens, last.ToolInputTokens, obs.ToolInputTokens)
	addDelta(&state.TotalTokens, last.TotalTokens, obs.TotalTokens)

	if mergeIdentity(&state.Provider, obs.Provider) {
		changed = true
	}
	if mergeIdentity(&state.Model, obs.Model) {
		changed = true
	}
	if mergeIdentity(&state.ModelSource, obs.ModelSource) {
		changed = true
	}
	if mergeIdentity(&state.UsageSource, obs.UsageSource) {
		changed = true
	}

	sources[obs.SourceID] = types.UsageSnapshot{
		InputTokens: obs.InputTokens, InputUncachedTokens: obs.InputUncachedTokens,
		InputCacheReadTokens: obs.InputCacheReadTokens, InputCacheWriteTokens5m: obs.InputCacheWriteTokens5m,
		InputCacheWriteTokens1h: obs.InputCacheWriteTokens1h, InputCacheWriteTokensUnknown: obs.InputCacheWriteTokensUnknown,
		OutputTokens: obs.OutputTokens, ReasoningTokens: obs.ReasoningTokens,
		ToolInputTokens: obs.ToolInputTokens, TotalTokens: obs.TotalTokens,
		Provider: obs.Provider, Model: obs.Model, ModelSource: obs.ModelSource, UsageSource: obs.UsageSource,
	}

	return changed
}

// mergeIdentity applies spec's identity-field merge rule: a non-empty,
// non-"unknown" incoming value wins when the field is currently empty;
// a conflicting non-empty value collapses the field to "mixed". Returns
// whether the field's value changed.
func mergeIdentity(dst *string, incoming string) bool {
	if incoming == "" || incoming == "unknown" {
		return false
	}
	switch {
	case *dst == "":
		*dst = incoming
	case *dst == incoming || *dst == "mixed":
		return false
	default:
		*dst = "mixed"
	}
	return true
}

// Normalize enforces spec's usage-accounting invariants in place:
// input_tokens covers uncached+cache_read+Σcache_write, missing
// components are derived where possible, uncached is clamped to
// input_tokens, and total_tokens is the max of the reported value and the
// component sum.
func Normalize(u *types.UsageState) {
	cacheWriteTotal := u.CacheWriteTotal()
	minInput := u.InputUncachedTokens + u.InputCacheReadTokens + cacheWriteTotal
	if u.InputTokens < minInput {
		u.InputTokens = minInput
	}

	if u.InputUncachedTokens == 0 && u.InputTokens > 0 {
		if derived := u.InputTokens - u.InputCacheReadTokens - cacheWriteTotal; derived > 0 {
			u.InputUncachedTokens = derived
		}
	}
	if u.InputUncachedTokens > u.InputTokens {
		u.InputUncachedTokens = u.InputTokens
	}

	computed := u.InputTokens + u.OutputTokens + u.ToolInputTokens
	if computed > u.TotalTokens {
		u.TotalTokens = computed
	}
}

// modelPrice is a $-per-1000-tokens rate pair.
type modelPrice struct {
	InputPer1K  float64
	OutputPer1K float64
}

// priceTable is a static, operator-maintained rate table covering four of
// the models listed in internal/provider, at the same rates; an unlisted
// model prices at zero rather than failing the run.
var priceTable = map[string]modelPrice{
	"claude-sonnet-4-20250514": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-opus-4-20250514":   {InputPer1K: 0.015, OutputPer1K: 0.075},
	"gpt-4o":                   {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-5":                    {InputPer1K: 0.00125, OutputPer1K: 0.01},
}

// ComputePricing sets and returns u.CostUSD for the run's final usage
// totals, computed once per completed run.
func ComputePricing(u *types.UsageState) float64 {
	rate, ok := priceTable[u.Model]
	if !ok {
		u.CostUSD = 0
		return 0
	}
	cost := float64(u.InputTokens)/1000*rate.InputPer1K + float64(u.OutputTokens)/1000*rate.OutputPer1K
	u.CostUSD = cost
	return cost
}
