package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentmesh/runtime/internal/retrieval"
)

// RefreshMemoryIndex rebuilds the memory retrieval index from
// memory/MEMORY.md when its digest no longer matches what's stored.
func (r *Runtime) RefreshMemoryIndex(ctx context.Context) error {
	path := filepath.Join(r.Root, "memory", "MEMORY.md")
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			content = nil
		} else {
			return fmt.Errorf("agent: read memory file: %w", err)
		}
	}

	cfg := r.Config.Retrieval.Memory
	return r.MemoryIndex.EnsureMemoryFresh(ctx, string(content), cfg.ChunkSize, cfg.ChunkOverlap)
}

// RefreshKnowledgeIndex rebuilds the knowledge retrieval index from every
// regular file under knowledge/ when the rolled-up file digest changes.
func (r *Runtime) RefreshKnowledgeIndex(ctx context.Context) error {
	root := filepath.Join(r.Root, "knowledge")
	var files []retrieval.KnowledgeFile

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil // skip unreadable files rather than aborting the whole rebuild
		}
		files = append(files, retrieval.KnowledgeFile{
			RelPath: rel,
			Content: string(content),
			MtimeNs: info.ModTime().UnixNano(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("agent: walk knowledge dir: %w", err)
	}

	cfg := r.Config.Retrieval.Knowledge
	return r.KnowledgeIndex.EnsureKnowledgeFresh(ctx, files, cfg.ChunkSize, cfg.ChunkOverlap)
}
