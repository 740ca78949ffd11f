package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentmesh/runtime/internal/audit"
	"github.com/agentmesh/runtime/internal/config"
	"github.com/agentmesh/runtime/internal/logging"
	"github.com/agentmesh/runtime/internal/retrieval"
	"github.com/agentmesh/runtime/internal/storage"
	"github.com/agentmesh/runtime/pkg/types"
)

// ErrDefaultAgentUndeletable is returned by Delete for types.DefaultAgentID.
var ErrDefaultAgentUndeletable = errors.New("agent: the default agent cannot be deleted")

// ErrInvalidAgentID is returned when an id fails types.ValidAgentID.
var ErrInvalidAgentID = errors.New("agent: invalid agent id")

// Registry resolves and caches per-agent Runtimes: workspace seeding,
// config layering, and collaborator construction, with mtime-triggered
// reload on subsequent calls.
type Registry struct {
	root            config.WorkspacesRoot
	embeddingClient retrieval.EmbeddingClient

	mu    sync.Mutex
	cache map[string]*Runtime
}

// NewRegistry builds a Registry rooted at root, using embeddingClient for
// every agent's retrieval indexes.
func NewRegistry(root config.WorkspacesRoot, embeddingClient retrieval.EmbeddingClient) *Registry {
	return &Registry{root: root, embeddingClient: embeddingClient, cache: make(map[string]*Runtime)}
}

// GetRuntime resolves the Runtime for agentID, constructing and caching it
// on first reference and reloading it when either config file's mtime has
// changed since the cached value.
func (reg *Registry) GetRuntime(ctx context.Context, agentID string) (*Runtime, error) {
	if !types.ValidAgentID(agentID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAgentID, agentID)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if rt, ok := reg.cache[agentID]; ok {
		globalNs, agentNs := config.MtimesNs(rt.globalConfigPath, rt.agentConfigPath)
		if globalNs == rt.globalMtimeNs && agentNs == rt.agentMtimeNs {
			return rt, nil
		}
		return reg.reload(ctx, rt, globalNs, agentNs)
	}

	return reg.construct(ctx, agentID)
}

func (reg *Registry) construct(ctx context.Context, agentID string) (*Runtime, error) {
	root := reg.root.AgentRoot(agentID)

	if err := seedWorkspace(root); err != nil {
		return nil, fmt.Errorf("agent: seed workspace: %w", err)
	}
	migrateLegacyMemory(root)

	globalPath := reg.root.GlobalConfigPath()
	agentPath := reg.root.AgentConfigPath(agentID)

	cfg, err := config.Load(globalPath, agentPath)
	if err != nil {
		return nil, fmt.Errorf("agent: load config: %w", err)
	}
	digest, err := config.Digest(cfg)
	if err != nil {
		return nil, fmt.Errorf("agent: digest config: %w", err)
	}
	globalNs, agentNs := config.MtimesNs(globalPath, agentPath)

	store := storage.New(filepath.Join(root, "storage"))
	auditStore := audit.New(filepath.Join(root, "storage"))

	memIdx, knIdx, err := reg.buildIndexes(ctx, root, cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		ID: agentID, Root: root, Config: cfg, Digest: digest,
		Storage: store, Audit: auditStore,
		MemoryIndex: memIdx, KnowledgeIndex: knIdx,
		globalConfigPath: globalPath, agentConfigPath: agentPath,
		globalMtimeNs: globalNs, agentMtimeNs: agentNs,
	}

	if err := rt.RefreshMemoryIndex(ctx); err != nil {
		logging.Warn().Err(err).Str("agent_id", agentID).Msg("agent: initial memory index build failed")
	}
	if err := rt.RefreshKnowledgeIndex(ctx); err != nil {
		logging.Warn().Err(err).Str("agent_id", agentID).Msg("agent: initial knowledge index build failed")
	}

	reg.cache[agentID] = rt
	return rt, nil
}

func (reg *Registry) reload(ctx context.Context, rt *Runtime, globalNs, agentNs int64) (*Runtime, error) {
	cfg, err := config.Load(rt.globalConfigPath, rt.agentConfigPath)
	if err != nil {
		return nil, fmt.Errorf("agent: reload config: %w", err)
	}
	digest, err := config.Digest(cfg)
	if err != nil {
		return nil, fmt.Errorf("agent: digest config: %w", err)
	}

	rt.Config = cfg
	rt.Digest = digest
	rt.globalMtimeNs = globalNs
	rt.agentMtimeNs = agentNs

	if err := rt.RefreshMemoryIndex(ctx); err != nil {
		logging.Warn().Err(err).Str("agent_id", rt.ID).Msg("agent: memory index refresh failed on reload")
	}
	if err := rt.RefreshKnowledgeIndex(ctx); err != nil {
		logging.Warn().Err(err).Str("agent_id", rt.ID).Msg("agent: knowledge index refresh failed on reload")
	}

	return rt, nil
}

// buildIndexes opens the retrieval backend configured by cfg.RetrievalStore
// and wraps it in a memory-domain and a knowledge-domain Index. The SQLite
// backend shares one database across both domains; the JSON backend writes
// one file per domain under the same directory.
func (reg *Registry) buildIndexes(ctx context.Context, root string, cfg types.RuntimeConfig) (*retrieval.Index, *retrieval.Index, error) {
	storageDir := filepath.Join(root, "storage")
	jsonStore := retrieval.NewJSONStore(storageDir)

	if cfg.RetrievalStore.Engine != types.RetrievalEngineSQLite {
		return retrieval.NewIndex(jsonStore, nil, reg.embeddingClient),
			retrieval.NewIndex(jsonStore, nil, reg.embeddingClient), nil
	}

	dbPath := filepath.Join(root, cfg.RetrievalStore.DBPath)
	sqliteStore, err := retrieval.OpenSQLiteStore(ctx, dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("agent: open retrieval db: %w", err)
	}

	retrieval.MigrateLegacyJSON(ctx, sqliteStore, jsonStore, types.DomainMemory)
	retrieval.MigrateLegacyJSON(ctx, sqliteStore, jsonStore, types.DomainKnowledge)

	return retrieval.NewIndex(sqliteStore, jsonStore, reg.embeddingClient),
		retrieval.NewIndex(sqliteStore, jsonStore, reg.embeddingClient), nil
}

// List enumerates agent ids with a workspace directory under the
// registry's root, including ids not yet in the runtime cache.
func (reg *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(string(reg.root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && types.ValidAgentID(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Delete evicts agentID's cache entry and removes its workspace tree.
// Refused for the default agent.
func (reg *Registry) Delete(agentID string) error {
	if agentID == types.DefaultAgentID {
		return ErrDefaultAgentUndeletable
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if rt, ok := reg.cache[agentID]; ok {
		if rt.MemoryIndex != nil {
			_ = rt.MemoryIndex.Close()
		}
		delete(reg.cache, agentID)
	}

	return os.RemoveAll(reg.root.AgentRoot(agentID))
}
