package agent

import (
	"sync"

	"github.com/agentmesh/runtime/internal/audit"
	"github.com/agentmesh/runtime/internal/retrieval"
	"github.com/agentmesh/runtime/internal/storage"
	"github.com/agentmesh/runtime/pkg/types"
)

// LLMClientFactory builds the chat model an agent's runs stream through.
// The concrete type belongs to internal/provider; Runtime only tracks the
// (temperature, timeout) key it was built from so it knows when to rebuild.
type LLMClientFactory func(cfg types.LLMConfig) (any, error)

type llmKey struct {
	temperature float64
	timeoutSecs int
}

// Runtime is the cached, per-agent bundle of collaborators get_runtime
// resolves: isolated storage, audit trail, and the two retrieval indexes,
// plus the effective config and its digest.
type Runtime struct {
	ID     string
	Root   string
	Config types.RuntimeConfig
	Digest string

	Storage *storage.Storage
	Audit   *audit.Store

	MemoryIndex    *retrieval.Index
	KnowledgeIndex *retrieval.Index

	globalConfigPath string
	agentConfigPath  string
	globalMtimeNs    int64
	agentMtimeNs     int64

	mu     sync.Mutex
	llm    any
	llmKey llmKey
}

// LLM returns the cached chat model, rebuilding it via factory whenever
// (temperature, timeout) has changed since the last build.
func (r *Runtime) LLM(factory LLMClientFactory) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := llmKey{temperature: r.Config.LLM.Temperature, timeoutSecs: r.Config.LLM.TimeoutSecs}
	if r.llm != nil && key == r.llmKey {
		return r.llm, nil
	}
	client, err := factory(r.Config.LLM)
	if err != nil {
		return nil, err
	}
	r.llm = client
	r.llmKey = key
	return client, nil
}
