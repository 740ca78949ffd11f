package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/internal/audit"
	"github.com/agentmesh/runtime/pkg/types"
)

type fakeTool struct {
	name string
	tier Tier
	run  func(ctx context.Context, args json.RawMessage, call CallContext) types.ToolResult
}

func (f fakeTool) Name() string { return f.name }
func (f fakeTool) Tier() Tier   { return f.tier }
func (f fakeTool) Run(ctx context.Context, args json.RawMessage, call CallContext) types.ToolResult {
	return f.run(ctx, args, call)
}

func newCallContext() CallContext {
	return CallContext{AgentID: "default", SessionID: "sess-1", RunID: "run-1", Trigger: types.TriggerChat, WorkspaceRoot: "/tmp"}
}

func TestRunnerRunsRegisteredToolAndReturnsOk(t *testing.T) {
	r := NewRunner(Policy{}, 3, nil)
	r.Register(fakeTool{name: "echo", tier: TierRead, run: func(ctx context.Context, args json.RawMessage, call CallContext) types.ToolResult {
		return types.NewOk("hi", types.ResultMeta{ToolName: "echo"})
	}})

	result := r.RunTool(context.Background(), "echo", json.RawMessage(`{}`), newCallContext())
	assert.True(t, result.IsOk())
	assert.Equal(t, "hi", result.Data())
}

func TestRunnerUnknownToolReturnsNotFound(t *testing.T) {
	r := NewRunner(Policy{}, 3, nil)
	result := r.RunTool(context.Background(), "nope", json.RawMessage(`{}`), newCallContext())
	assert.False(t, result.IsOk())
	assert.Equal(t, types.ErrNotFound, result.Code())
}

func TestRunnerPolicyDeniedForTierAboveCeiling(t *testing.T) {
	r := NewRunner(Policy{}, 3, nil)
	r.Register(fakeTool{name: "sys", tier: TierSystem, run: func(ctx context.Context, args json.RawMessage, call CallContext) types.ToolResult {
		return types.NewOk(nil, types.ResultMeta{})
	}})

	call := newCallContext()
	call.Trigger = types.TriggerHeartbeat
	result := r.RunTool(context.Background(), "sys", json.RawMessage(`{}`), call)
	assert.False(t, result.IsOk())
	assert.Equal(t, types.ErrPolicyDenied, result.Code())
}

func TestRunnerRecoversToolPanicAsInternalError(t *testing.T) {
	r := NewRunner(Policy{}, 3, nil)
	r.Register(fakeTool{name: "boom", tier: TierRead, run: func(ctx context.Context, args json.RawMessage, call CallContext) types.ToolResult {
		panic("kaboom")
	}})

	result := r.RunTool(context.Background(), "boom", json.RawMessage(`{}`), newCallContext())
	assert.False(t, result.IsOk())
	assert.Equal(t, types.ErrInternal, result.Code())
}

// TestRunnerRetryGuardBlocksThirdIdenticalFailure exercises the documented
// sequence: two identical failures run through, the third identical call
// is blocked by the retry guard before the tool ever runs again.
func TestRunnerRetryGuardBlocksThirdIdenticalFailure(t *testing.T) {
	calls := 0
	r := NewRunner(Policy{}, 2, nil)
	r.Register(fakeTool{name: "flaky", tier: TierRead, run: func(ctx context.Context, args json.RawMessage, call CallContext) types.ToolResult {
		calls++
		return types.NewFail(types.ErrExec, "boom", true, nil, types.ResultMeta{ToolName: "flaky"})
	}})

	call := newCallContext()
	args := json.RawMessage(`{"cmd":"x"}`)

	first := r.RunTool(context.Background(), "flaky", args, call)
	second := r.RunTool(context.Background(), "flaky", args, call)
	third := r.RunTool(context.Background(), "flaky", args, call)

	assert.Equal(t, types.ErrExec, first.Code())
	assert.Equal(t, types.ErrExec, second.Code())
	assert.Equal(t, types.ErrPolicyDenied, third.Code())
	assert.Equal(t, 2, calls, "the blocked third call must not invoke the tool")
}

func TestRunnerSuccessAfterFailureResetsRetryGuard(t *testing.T) {
	outcomes := []types.ToolResult{
		types.NewFail(types.ErrExec, "first try fails", true, nil, types.ResultMeta{}),
		types.NewOk("ok", types.ResultMeta{}),
		types.NewFail(types.ErrExec, "fails again", true, nil, types.ResultMeta{}),
	}
	call := 0
	r := NewRunner(Policy{}, 2, nil)
	r.Register(fakeTool{name: "recovers", tier: TierRead, run: func(ctx context.Context, args json.RawMessage, c CallContext) types.ToolResult {
		result := outcomes[call]
		call++
		return result
	}})

	cc := newCallContext()
	args := json.RawMessage(`{}`)

	first := r.RunTool(context.Background(), "recovers", args, cc)
	assert.Equal(t, types.ErrExec, first.Code())

	second := r.RunTool(context.Background(), "recovers", args, cc)
	assert.True(t, second.IsOk(), "success must clear the failure count so the next identical call is not pre-blocked")

	third := r.RunTool(context.Background(), "recovers", args, cc)
	assert.Equal(t, types.ErrExec, third.Code(), "the guard runs the tool again rather than blocking, since the count was reset")
}

func TestRunnerWritesAuditTrail(t *testing.T) {
	dir := t.TempDir()
	store := audit.New(dir)
	r := NewRunner(Policy{}, 3, store)
	r.Register(fakeTool{name: "echo", tier: TierRead, run: func(ctx context.Context, args json.RawMessage, call CallContext) types.ToolResult {
		return types.NewOk("hi", types.ResultMeta{ToolName: "echo"})
	}})

	r.RunTool(context.Background(), "echo", json.RawMessage(`{"token":"sekrit-value-here"}`), newCallContext())

	f, err := os.Open(filepath.Join(dir, "tool_audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []map[string]any
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "tool_start", lines[0]["event"])
	assert.Equal(t, "tool_end", lines[1]["event"])

	raw, _ := json.Marshal(lines[0])
	assert.NotContains(t, string(raw), "sekrit-value-here")

	callRaw, err := os.ReadFile(filepath.Join(dir, "audit", "tool_calls.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(callRaw), `"toolName":"echo"`)
}
