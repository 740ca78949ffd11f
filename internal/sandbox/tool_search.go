package sandbox

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/agentmesh/runtime/pkg/types"
)

const maxWebSearchResults = 10

// SearchClient performs the actual web search; the concrete implementation
// (search API, scraper) is injected so this package stays free of any
// particular provider dependency.
type SearchClient interface {
	Search(ctx context.Context, query string, recencyDays int) ([]SearchHit, error)
}

// SearchHit is one raw search result before dedupe/filtering.
type SearchHit struct {
	Title string
	URL   string
	Snippet string
}

// WebSearchTool implements web_search: L2, with domain allow/block lists,
// recency filtering, and canonicalized dedupe.
type WebSearchTool struct {
	Client       SearchClient
	AllowDomains []string
	BlockDomains []string
}

func (WebSearchTool) Name() string { return "web_search" }
func (WebSearchTool) Tier() Tier   { return TierNetwork }

type webSearchArgs struct {
	Query       string `json:"query"`
	RecencyDays int    `json:"recency_days,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

func (t WebSearchTool) Run(ctx context.Context, rawArgs json.RawMessage, call CallContext) types.ToolResult {
	meta := types.ResultMeta{ToolName: "web_search"}
	var args webSearchArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return types.NewFail(types.ErrInvalidArgs, "invalid arguments: "+err.Error(), false, nil, meta)
	}
	if strings.TrimSpace(args.Query) == "" {
		return types.NewFail(types.ErrInvalidArgs, "query is required", false, nil, meta)
	}
	if t.Client == nil {
		return types.NewFail(types.ErrInternal, "no search client configured", false, nil, meta)
	}

	limit := args.Limit
	if limit <= 0 || limit > maxWebSearchResults {
		limit = maxWebSearchResults
	}

	hits, err := t.Client.Search(ctx, args.Query, args.RecencyDays)
	if err != nil {
		return types.NewFail(types.ErrHTTP, err.Error(), true, nil, meta)
	}

	seen := map[string]bool{}
	var results []SearchHit
	for _, h := range hits {
		if len(results) >= limit {
			break
		}
		host, ok := hostOf(h.URL)
		if !ok || !t.domainAllowed(host) {
			continue
		}
		canon := canonicalize(h.URL)
		if seen[canon] {
			continue
		}
		seen[canon] = true
		results = append(results, h)
	}

	return types.NewOk(map[string]any{"results": results}, meta)
}

func (t WebSearchTool) domainAllowed(host string) bool {
	for _, blocked := range t.BlockDomains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return false
		}
	}
	if len(t.AllowDomains) == 0 {
		return true
	}
	for _, allowed := range t.AllowDomains {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func hostOf(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return u.Hostname(), true
}

// canonicalize dedupes by scheme+host+path, ignoring query/fragment.
func canonicalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Scheme + "://" + u.Host + strings.TrimSuffix(u.Path, "/")
}

// SearchKnowledgeBaseTool implements search_knowledge_base: L0, delegating
// to the knowledge-domain retrieval index.
type SearchKnowledgeBaseTool struct {
	Query func(ctx context.Context, query string, topK int) ([]types.ScoredChunk, error)
}

func (SearchKnowledgeBaseTool) Name() string { return "search_knowledge_base" }
func (SearchKnowledgeBaseTool) Tier() Tier   { return TierRead }

type searchKBArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

func (t SearchKnowledgeBaseTool) Run(ctx context.Context, rawArgs json.RawMessage, call CallContext) types.ToolResult {
	meta := types.ResultMeta{ToolName: "search_knowledge_base"}
	var args searchKBArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return types.NewFail(types.ErrInvalidArgs, "invalid arguments: "+err.Error(), false, nil, meta)
	}
	if t.Query == nil {
		return types.NewFail(types.ErrInternal, "no retrieval index configured", false, nil, meta)
	}

	topK := args.TopK
	if topK <= 0 {
		topK = 8
	}

	results, err := t.Query(ctx, args.Query, topK)
	if err != nil {
		return types.NewFail(types.ErrInternal, err.Error(), true, nil, meta)
	}
	return types.NewOk(map[string]any{"results": results}, meta)
}
