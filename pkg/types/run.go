package types

// TokenSource is which provider stream the orchestrator has committed to
// reading token deltas from for a run. internal/provider delivers a single
// merged message stream, so the orchestrator only ever sets
// TokenSourceMessages; TokenSourceUpdates is never set.
type TokenSource string

const (
	TokenSourceUnset    TokenSource = ""
	TokenSourceMessages TokenSource = "messages"
	TokenSourceUpdates  TokenSource = "updates"
)

// Run is per-turn ephemeral state for a single orchestrator invocation.
// It is never persisted wholesale; assistant segments and usage are folded
// into the Session and usage store on completion.
type Run struct {
	RunID            string        `json:"runId"`
	AgentID          string        `json:"agentId"`
	SessionID        string        `json:"sessionId"`
	TriggerType      TriggerType   `json:"triggerType"`
	Attempt          int           `json:"attempt"`
	AssistantSegments []Segment    `json:"assistantSegments"`
	CurrentContent   string        `json:"currentContent"`
	CurrentToolCalls []ToolCall    `json:"currentToolCalls"`
	UsageState       UsageState    `json:"usageState"`
	UsageSources     UsageSources  `json:"usageSources"`
	TokenSource      TokenSource   `json:"tokenSource"`
	StartedAt        int64         `json:"startedAt"`
	Done             bool          `json:"done"`
}

// UsageState is the running, normalized token accounting for a run.
type UsageState struct {
	InputTokens               int64 `json:"inputTokens"`
	InputUncachedTokens       int64 `json:"inputUncachedTokens"`
	InputCacheReadTokens      int64 `json:"inputCacheReadTokens"`
	InputCacheWriteTokens5m   int64 `json:"inputCacheWriteTokens5m"`
	InputCacheWriteTokens1h   int64 `json:"inputCacheWriteTokens1h"`
	InputCacheWriteTokensUnknown int64 `json:"inputCacheWriteTokensUnknown"`
	OutputTokens              int64 `json:"outputTokens"`
	ReasoningTokens           int64 `json:"reasoningTokens"`
	ToolInputTokens           int64 `json:"toolInputTokens"`
	TotalTokens               int64 `json:"totalTokens"`

	Provider     string `json:"provider"`
	Model        string `json:"model"`
	ModelSource  string `json:"modelSource"`
	UsageSource  string `json:"usageSource"`

	CostUSD float64 `json:"costUsd"`
}

// CacheWriteTotal sums the three cache-write buckets.
func (u UsageState) CacheWriteTotal() int64 {
	return u.InputCacheWriteTokens5m + u.InputCacheWriteTokens1h + u.InputCacheWriteTokensUnknown
}

// UsageSnapshot is a single source's last-observed per-field values, used to
// compute monotonic deltas as the same logical counter is re-observed.
type UsageSnapshot struct {
	InputTokens                  int64  `json:"inputTokens"`
	InputUncachedTokens          int64  `json:"inputUncachedTokens"`
	InputCacheReadTokens         int64  `json:"inputCacheReadTokens"`
	InputCacheWriteTokens5m      int64  `json:"inputCacheWriteTokens5m"`
	InputCacheWriteTokens1h      int64  `json:"inputCacheWriteTokens1h"`
	InputCacheWriteTokensUnknown int64  `json:"inputCacheWriteTokensUnknown"`
	OutputTokens                 int64  `json:"outputTokens"`
	ReasoningTokens               int64 `json:"reasoningTokens"`
	ToolInputTokens               int64 `json:"toolInputTokens"`
	TotalTokens                   int64 `json:"totalTokens"`
	Provider                      string `json:"provider"`
	Model                          string `json:"model"`
	ModelSource                    string `json:"modelSource"`
	UsageSource                    string `json:"usageSource"`
}

// UsageSources maps a source id (e.g. "llm_end:<run>:<seq>") to its
// last-observed snapshot, so repeated observations of the same source
// contribute only positive deltas.
type UsageSources map[string]UsageSnapshot

// UsageRecord is an append-only accounting row written once per completed run.
type UsageRecord struct {
	TimestampMs int64      `json:"timestampMs"`
	RunID       string     `json:"runId"`
	AgentID     string     `json:"agentId"`
	SessionID   string     `json:"sessionId"`
	TriggerType TriggerType `json:"triggerType"`
	Usage       UsageState `json:"usage"`
}
