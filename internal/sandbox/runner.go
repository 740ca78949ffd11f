package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentmesh/runtime/internal/audit"
	"github.com/agentmesh/runtime/internal/logging"
	"github.com/agentmesh/runtime/pkg/types"
)

// Tool is one sandboxed capability. Run must never panic across the
// package boundary; Runner.RunTool recovers and converts a panic into
// Fail{E_INTERNAL} regardless, but well-behaved tools return errors.
type Tool interface {
	Name() string
	Tier() Tier
	Run(ctx context.Context, args json.RawMessage, call CallContext) types.ToolResult
}

// CallContext is the per-invocation context a tool and the runner share.
type CallContext struct {
	AgentID       string
	SessionID     string
	RunID         string
	Trigger       types.TriggerType
	WorkspaceRoot string
}

// Runner implements the run_tool protocol: audit, policy, retry guard,
// invocation, and result bookkeeping.
type Runner struct {
	tools      map[string]Tool
	policy     Policy
	retryGuard *RetryGuard
	audit      *audit.Store
}

// NewRunner builds a Runner. retryLimit is
// tools_config.repeat_identical_failure_limit.
func NewRunner(policy Policy, retryLimit int, auditStore *audit.Store) *Runner {
	return &Runner{
		tools:      make(map[string]Tool),
		policy:     policy,
		retryGuard: NewRetryGuard(retryLimit),
		audit:      auditStore,
	}
}

// Register adds a tool to the runner's registry, keyed by its Name().
func (r *Runner) Register(t Tool) {
	r.tools[t.Name()] = t
}

// RunTool executes toolName per the run_tool protocol.
func (r *Runner) RunTool(ctx context.Context, toolName string, args json.RawMessage, call CallContext) types.ToolResult {
	start := time.Now()
	scopeKey := ScopeKey(call.RunID, call.SessionID, string(call.Trigger))

	r.auditLine(map[string]any{
		"event": "tool_start", "tool": toolName, "args": redactJSON(args),
		"agentId": call.AgentID, "sessionId": call.SessionID, "runId": call.RunID,
		"trigger": call.Trigger, "timestampMs": start.UnixMilli(),
	})

	tool, ok := r.tools[toolName]
	if !ok {
		return r.finish(toolName, call, start, types.NewFail(types.ErrNotFound, fmt.Sprintf("unknown tool %q", toolName), false, nil, types.ResultMeta{ToolName: toolName}))
	}

	if !r.policy.Allowed(call.Trigger, toolName, tool.Tier()) {
		result := types.NewFail(types.ErrPolicyDenied, "tool not permitted for this trigger", false, nil, types.ResultMeta{ToolName: toolName})
		return r.finish(toolName, call, start, result)
	}

	if r.retryGuard.Blocked(scopeKey, toolName, args) {
		result := types.NewFail(types.ErrPolicyDenied, "retry blocked", false, nil, types.ResultMeta{ToolName: toolName})
		return r.finish(toolName, call, start, result)
	}

	result := r.invoke(ctx, tool, args, call)

	if result.IsOk() {
		r.retryGuard.RecordSuccess(scopeKey, toolName, args)
	} else {
		r.retryGuard.RecordFailure(scopeKey, toolName, args)
	}

	return r.finish(toolName, call, start, result)
}

// invoke calls tool.Run, converting a panic into Fail{E_INTERNAL}.
func (r *Runner) invoke(ctx context.Context, tool Tool, args json.RawMessage, call CallContext) (result types.ToolResult) {
	defer func() {
		if p := recover(); p != nil {
			logging.Error().Interface("panic", p).Str("tool", tool.Name()).Msg("sandbox: tool panicked")
			result = types.NewFail(types.ErrInternal, fmt.Sprintf("tool panicked: %v", p), false, nil, types.ResultMeta{ToolName: tool.Name()})
		}
	}()
	return tool.Run(ctx, args, call)
}

func (r *Runner) finish(toolName string, call CallContext, start time.Time, result types.ToolResult) types.ToolResult {
	duration := time.Since(start).Milliseconds()

	r.auditLine(map[string]any{
		"event": "tool_end", "tool": toolName, "ok": result.IsOk(),
		"durationMs": duration, "code": result.Code(), "truncated": result.Meta().Truncated,
		"agentId": call.AgentID, "sessionId": call.SessionID, "runId": call.RunID,
		"trigger": call.Trigger, "timestampMs": time.Now().UnixMilli(),
	})

	if r.audit != nil {
		_ = r.audit.AppendToolCall(audit.ToolCallRecord{
			TimestampMs: time.Now().UnixMilli(), RunID: call.RunID, SessionID: call.SessionID,
			TriggerType: call.Trigger, ToolName: toolName, OK: result.IsOk(),
			Code: result.Code(), DurationMs: duration,
		})
	}

	return result
}

func (r *Runner) auditLine(fields map[string]any) {
	if r.audit == nil {
		return
	}
	if err := r.audit.AppendToolAudit(fields); err != nil {
		logging.Warn().Err(err).Msg("sandbox: tool audit append failed")
	}
}

// redactJSON scrubs secret-shaped values out of a raw JSON args payload
// before it's written to the audit log.
func redactJSON(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Redact(string(raw))
	}
	return redactValue(v)
}

var sensitiveKeyMarkers = []string{"key", "token", "secret", "password", "authorization", "cookie", "credential"}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if keyIsSensitive(k) {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = redactValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e)
		}
		return out
	case string:
		return Redact(t)
	default:
		return t
	}
}

func keyIsSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
