package event

import "github.com/agentmesh/runtime/pkg/types"

// RetrievalData is the payload of a "retrieval" event: memory/knowledge
// context pulled into the prompt for this turn under rag-mode.
type RetrievalData struct {
	RunID     string               `json:"runId"`
	SessionID string               `json:"sessionId"`
	Retrieval types.RetrievalEvent `json:"retrieval"`
}

// RunStartData is the payload of a "run_start" event.
type RunStartData struct {
	RunID       string            `json:"runId"`
	AgentID     string            `json:"agentId"`
	SessionID   string            `json:"sessionId"`
	TriggerType types.TriggerType `json:"triggerType"`
	Attempt     int               `json:"attempt"`
}

// AgentUpdateData is the payload of an "agent_update" event: a node-level
// snapshot from the provider's update stream (tool calls and/or content as
// currently known, before the token stream has caught up).
type AgentUpdateData struct {
	RunID     string          `json:"runId"`
	Content   string          `json:"content"`
	ToolCalls []types.ToolCall `json:"toolCalls,omitempty"`
}

// ToolStartData is the payload of a "tool_start" event.
type ToolStartData struct {
	RunID  string `json:"runId"`
	CallID string `json:"callId"`
	Name   string `json:"name"`
}

// ToolEndData is the payload of a "tool_end" event.
type ToolEndData struct {
	RunID  string          `json:"runId"`
	CallID string          `json:"callId"`
	Name   string          `json:"name"`
	Result types.ToolResult `json:"result"`
}

// NewResponseData is the payload of a "new_response" event: a segment
// boundary, emitted right after a tool_end once the model begins its next
// turn.
type NewResponseData struct {
	RunID   string       `json:"runId"`
	Segment types.Segment `json:"segment"`
}

// ReasoningData is the payload of a "reasoning" event: an incremental
// extended-thinking delta, kept separate from "token" so clients can choose
// whether to render it.
type ReasoningData struct {
	RunID string `json:"runId"`
	Delta string `json:"delta"`
}

// TokenData is the payload of a "token" event: one content delta.
type TokenData struct {
	RunID string `json:"runId"`
	Delta string `json:"delta"`
}

// UsageData is the payload of a "usage" event, emitted whenever the
// accumulated usage_state changes.
type UsageData struct {
	RunID string          `json:"runId"`
	Usage types.UsageState `json:"usage"`
}

// DoneData is the payload of a terminal "done" event.
type DoneData struct {
	RunID   string          `json:"runId"`
	Content string          `json:"content"`
	Usage   types.UsageState `json:"usage"`
}

// ErrorData is the payload of a terminal "error" event.
type ErrorData struct {
	RunID   string `json:"runId"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TitleData is the payload of a "title" event, emitted once when a session
// receives its first generated title.
type TitleData struct {
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
}

// SchedulerRunData is the payload of scheduler.cron_run /
// scheduler.heartbeat_run events. No SSE stream carries these events; only
// subscribers of an event Bus can receive them.
type SchedulerRunData struct {
	AgentID string `json:"agentId"`
	JobID   string `json:"jobId,omitempty"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// AgentRegistryData is the payload of agent.created / agent.deleted events.
type AgentRegistryData struct {
	Agent types.AgentInfo `json:"agent"`
}
