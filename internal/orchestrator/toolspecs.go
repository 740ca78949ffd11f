package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/agentmesh/runtime/internal/agent"
	"github.com/agentmesh/runtime/internal/audit"
	"github.com/agentmesh/runtime/internal/provider"
	"github.com/agentmesh/runtime/internal/sandbox"
	"github.com/agentmesh/runtime/pkg/types"
)

// toolSpecs is the fixed JSON-schema description of every built-in tool,
// handed to the provider so the model can call them by name. The sandbox
// package's Tool interface carries no schema of its own (it only knows how
// to execute a call), so this is the orchestrator's own registry tying a
// tool name to the function-calling contract the LLM sees.
var toolSpecs = []provider.ToolInfo{
	{
		Name:        "read_file",
		Description: "Read a slice of a single workspace-relative file.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "workspace-relative file path"},
				"start_line": {"type": "integer"},
				"end_line": {"type": "integer"},
				"max_chars": {"type": "integer"}
			},
			"required": ["path"]
		}`),
	},
	{
		Name:        "read_files",
		Description: "Read multiple workspace-relative files in one call.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"paths": {"type": "array", "items": {"type": "string"}},
				"max_chars": {"type": "integer"}
			},
			"required": ["paths"]
		}`),
	},
	{
		Name:        "apply_patch",
		Description: "Apply one or more unified diff hunks to workspace files.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"patch": {"type": "string", "description": "unified diff text"}},
			"required": ["patch"]
		}`),
	},
	{
		Name:        "terminal",
		Description: "Run a shell command rooted at the agent's workspace.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string"},
				"timeout": {"type": "integer", "description": "seconds"}
			},
			"required": ["command"]
		}`),
	},
	{
		Name:        "python_repl",
		Description: "Execute a short Python snippet in a child interpreter.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {"code": {"type": "string"}},
			"required": ["code"]
		}`),
	},
	{
		Name:        "fetch_url",
		Description: "Fetch a URL and extract its content as markdown, text, or html.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string"},
				"extractMode": {"type": "string", "description": "markdown|text|html"},
				"maxChars": {"type": "integer"},
				"timeoutSecs": {"type": "integer"}
			},
			"required": ["url"]
		}`),
	},
	{
		Name:        "web_search",
		Description: "Search the web and return ranked, deduplicated hits.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"recency_days": {"type": "integer"},
				"limit": {"type": "integer"}
			},
			"required": ["query"]
		}`),
	},
	{
		Name:        "search_knowledge_base",
		Description: "Hybrid-search the agent's knowledge-domain retrieval index.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"top_k": {"type": "integer"}
			},
			"required": ["query"]
		}`),
	},
}

// toolTier mirrors the Tier() every built-in tool registers with in
// buildRunner, so allowedToolSpecs can filter the LLM-visible tool list by
// the same Policy the sandbox.Runner itself enforces, without constructing
// a Runner (and its collaborators) just to ask "would this be allowed".
var toolTier = map[string]sandbox.Tier{
	"read_file":             sandbox.TierRead,
	"read_files":            sandbox.TierRead,
	"search_knowledge_base": sandbox.TierRead,
	"apply_patch":           sandbox.TierWrite,
	"python_repl":           sandbox.TierWrite,
	"fetch_url":             sandbox.TierNetwork,
	"web_search":            sandbox.TierNetwork,
	"terminal":              sandbox.TierSystem,
}

// allowedToolSpecs filters toolSpecs down to the tools policy permits for
// trigger, so the model is never offered a tool call the runner would
// immediately reject with E_POLICY_DENIED.
func allowedToolSpecs(policy sandbox.Policy, trigger types.TriggerType) []provider.ToolInfo {
	var out []provider.ToolInfo
	for _, spec := range toolSpecs {
		if policy.Allowed(trigger, spec.Name, toolTier[spec.Name]) {
			out = append(out, spec)
		}
	}
	return out
}

// buildRunner assembles a sandbox.Runner wired to rt's collaborators: the
// knowledge-domain retrieval index backs search_knowledge_base, and the
// runtime's own audit store records every call.
func buildRunner(rt *agent.Runtime, auditStore *audit.Store) *sandbox.Runner {
	policy := sandbox.Policy{
		AutonomousEnable: rt.Config.Tools.AutonomousEnable,
		ChatAllowlist:    rt.Config.Tools.ChatEnable,
	}
	runner := sandbox.NewRunner(policy, rt.Config.Tools.RepeatIdenticalFailureLimit, auditStore)

	runner.Register(sandbox.ReadFileTool{})
	runner.Register(sandbox.ReadFilesTool{})
	runner.Register(sandbox.ApplyPatchTool{})
	runner.Register(sandbox.TerminalTool{
		TimeoutSecs: rt.Config.Tools.Timeouts["terminal"],
		OutputChars: rt.Config.Tools.OutputCharLimits["terminal"],
	})
	runner.Register(sandbox.PythonReplTool{TimeoutSecs: rt.Config.Tools.Timeouts["python_repl"]})
	runner.Register(sandbox.FetchURLTool{})
	runner.Register(sandbox.WebSearchTool{})
	runner.Register(sandbox.SearchKnowledgeBaseTool{
		Query: func(ctx context.Context, query string, topK int) ([]types.ScoredChunk, error) {
			cfg := rt.Config.Retrieval.Knowledge
			if topK <= 0 {
				topK = cfg.TopK
			}
			return rt.KnowledgeIndex.Query(ctx, types.DomainKnowledge, query, topK,
				rt.Config.RetrievalStore.FTSPrefilterK, cfg.SemanticWeight, cfg.LexicalWeight)
		},
	})

	return runner
}
