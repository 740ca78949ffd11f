package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryGuardBlocksAfterLimitIdenticalFailures(t *testing.T) {
	g := NewRetryGuard(2)
	args := map[string]any{"path": "a.txt"}

	assert.False(t, g.Blocked("run-1", "read_file", args))
	g.RecordFailure("run-1", "read_file", args)
	assert.False(t, g.Blocked("run-1", "read_file", args))
	g.RecordFailure("run-1", "read_file", args)
	assert.True(t, g.Blocked("run-1", "read_file", args))
}

func TestRetryGuardSuccessClearsFailureCount(t *testing.T) {
	g := NewRetryGuard(1)
	args := map[string]any{"path": "a.txt"}

	g.RecordFailure("run-1", "read_file", args)
	assert.True(t, g.Blocked("run-1", "read_file", args))

	g.RecordSuccess("run-1", "read_file", args)
	assert.False(t, g.Blocked("run-1", "read_file", args))
}

func TestRetryGuardKeyIsInsensitiveToMapFieldOrder(t *testing.T) {
	g := NewRetryGuard(1)
	g.RecordFailure("run-1", "read_file", map[string]any{"a": 1, "b": 2})
	assert.True(t, g.Blocked("run-1", "read_file", map[string]any{"b": 2, "a": 1}))
}

func TestRetryGuardDistinguishesScopesAndArgs(t *testing.T) {
	g := NewRetryGuard(1)
	g.RecordFailure("run-1", "read_file", map[string]any{"path": "a.txt"})

	assert.False(t, g.Blocked("run-2", "read_file", map[string]any{"path": "a.txt"}))
	assert.False(t, g.Blocked("run-1", "read_file", map[string]any{"path": "b.txt"}))
}

func TestScopeKeyPrefersRunIDOverSessionTrigger(t *testing.T) {
	assert.Equal(t, "run-1", ScopeKey("run-1", "sess-1", "chat"))
	assert.Equal(t, "sess-1\x00chat", ScopeKey("", "sess-1", "chat"))
}
