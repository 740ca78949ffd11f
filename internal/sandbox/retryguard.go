package sandbox

import (
	"encoding/json"
	"sort"
	"sync"
)

// RetryGuard tracks identical-failure counts per (scope, tool, args) so a
// run that keeps hitting the same failing call is eventually blocked
// rather than looping forever.
type RetryGuard struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
}

// NewRetryGuard returns a guard that blocks retries once a key's failure
// count reaches limit.
func NewRetryGuard(limit int) *RetryGuard {
	return &RetryGuard{limit: limit, counts: make(map[string]int)}
}

// Blocked reports whether scopeKey/toolName/args has already failed at
// least limit times.
func (g *RetryGuard) Blocked(scopeKey, toolName string, args any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[retryKey(scopeKey, toolName, args)] >= g.limit
}

// RecordFailure increments the failure count for scopeKey/toolName/args.
func (g *RetryGuard) RecordFailure(scopeKey, toolName string, args any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts[retryKey(scopeKey, toolName, args)]++
}

// RecordSuccess clears the failure count, so a later identical call after
// a successful one is not penalized by prior unrelated failures.
func (g *RetryGuard) RecordSuccess(scopeKey, toolName string, args any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.counts, retryKey(scopeKey, toolName, args))
}

func retryKey(scopeKey, toolName string, args any) string {
	buf, _ := json.Marshal(stableJSON(args))
	return scopeKey + "\x00" + toolName + "\x00" + string(buf)
}

// stableJSON recursively sorts map keys so two structurally-equal argument
// sets always marshal to the same string.
func stableJSON(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var generic any
	if err := json.Unmarshal(buf, &generic); err != nil {
		return v
	}
	return sortKeys(generic)
}

func sortKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = sortKeys(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return t
	}
}

// ScopeKey builds the retry guard's scope key: run_id alone, or
// (session_id, trigger) when run_id is unavailable (e.g. a pre-run probe).
func ScopeKey(runID, sessionID, trigger string) string {
	if runID != "" {
		return runID
	}
	return sessionID + "\x00" + trigger
}
