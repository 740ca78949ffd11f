package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentmesh/runtime/pkg/types"
)

func TestContentDeltaFirstChunk(t *testing.T) {
	delta, updated := contentDelta("", "Hello")
	assert.Equal(t, "Hello", delta)
	assert.Equal(t, "Hello", updated)
}

func TestContentDeltaCumulativePrefix(t *testing.T) {
	delta, updated := contentDelta("Hello", "Hello, world")
	assert.Equal(t, ", world", delta)
	assert.Equal(t, "Hello, world", updated)
}

func TestContentDeltaNonPrefixedChunkAppends(t *testing.T) {
	// Some providers emit independent deltas rather than cumulative content;
	// when the new chunk isn't a continuation, treat it as its own delta.
	delta, updated := contentDelta("Hello", " world")
	assert.Equal(t, " world", delta)
	assert.Equal(t, "Hello world", updated)
}

func TestNormalizeFinishReason(t *testing.T) {
	assert.Equal(t, "tool-calls", normalizeFinishReason("tool_use"))
	assert.Equal(t, "stop", normalizeFinishReason("stop"))
	assert.Equal(t, "", normalizeFinishReason(""))
}

func TestRetryDelayGrowsExponentially(t *testing.T) {
	d0 := retryDelay(0)
	d1 := retryDelay(1)
	d2 := retryDelay(2)

	assert.Equal(t, 500*time.Millisecond, d0)
	assert.Equal(t, time.Second, d1)
	assert.Equal(t, 2*time.Second, d2)
}

func TestFlattenSegmentToolCalls(t *testing.T) {
	segments := []types.Segment{
		{Content: "first", ToolCalls: []types.ToolCall{{ID: "1", Name: "read_file"}}},
		{Content: "second", ToolCalls: nil},
		{Content: "third", ToolCalls: []types.ToolCall{{ID: "2", Name: "apply_patch"}, {ID: "3", Name: "fetch_url"}}},
	}

	calls := flattenSegmentToolCalls(segments)
	assert.Len(t, calls, 3)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.Equal(t, "apply_patch", calls[1].Name)
	assert.Equal(t, "fetch_url", calls[2].Name)
}

func TestFlattenSegmentToolCallsEmpty(t *testing.T) {
	assert.Empty(t, flattenSegmentToolCalls(nil))
}
