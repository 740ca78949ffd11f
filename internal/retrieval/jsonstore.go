package retrieval

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentmesh/runtime/internal/storage"
	"github.com/agentmesh/runtime/pkg/types"
)

// JSONStore is the fallback backend: one file per domain containing the
// digest and in-order chunks/embeddings, written atomically via
// temp-file-then-rename under a per-file lock.
type JSONStore struct {
	dir   string
	mu    sync.Mutex
	locks map[string]*storage.FileLock
}

// NewJSONStore roots a JSONStore at dir (an agent's storage/ directory).
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{dir: dir, locks: make(map[string]*storage.FileLock)}
}

func (s *JSONStore) pathFor(domain types.RetrievalDomain) string {
	return filepath.Join(s.dir, string(domain)+"_index", "index.json")
}

func (s *JSONStore) lockFor(path string) *storage.FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = storage.NewFileLock(path)
		s.locks[path] = l
	}
	return l
}

func (s *JSONStore) Meta(_ context.Context, domain types.RetrievalDomain) (types.IndexMeta, bool, error) {
	idx, ok, err := s.load(domain)
	if err != nil || !ok {
		return types.IndexMeta{}, false, err
	}
	return idx.Meta, true, nil
}

func (s *JSONStore) load(domain types.RetrievalDomain) (types.RetrievalIndex, bool, error) {
	path := s.pathFor(domain)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.RetrievalIndex{}, false, nil
		}
		return types.RetrievalIndex{}, false, err
	}
	var idx types.RetrievalIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return types.RetrievalIndex{}, false, err
	}
	return idx, true, nil
}

func (s *JSONStore) Replace(_ context.Context, meta types.IndexMeta, chunks []types.Chunk) error {
	path := s.pathFor(meta.Domain)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	idx := types.RetrievalIndex{Meta: meta, Chunks: chunks}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *JSONStore) Query(_ context.Context, domain types.RetrievalDomain, queryVec []float32, terms []string, topK int, _ int, semanticWeight, lexicalWeight float64) ([]types.ScoredChunk, error) {
	idx, ok, err := s.load(domain)
	if err != nil || !ok {
		return nil, err
	}
	return scoreCandidates(idx.Chunks, queryVec, terms, topK, semanticWeight, lexicalWeight), nil
}

func (s *JSONStore) Close() error { return nil }
