package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentmesh/runtime/internal/sandbox"
	"github.com/agentmesh/runtime/pkg/types"
)

// allowedFilePrefixes are the workspace subtrees GET/POST /api/files may
// touch (spec §6's path allow-list).
var allowedFilePrefixes = []string{"workspace/", "memory/", "skills/", "knowledge/"}

// allowedRootFiles are root-level file names the allow-list permits
// outside of allowedFilePrefixes.
var allowedRootFiles = map[string]bool{"SKILLS_SNAPSHOT.md": true}

func pathAllowed(relPath string) bool {
	clean := filepath.ToSlash(relPath)
	if allowedRootFiles[clean] {
		return true
	}
	for _, prefix := range allowedFilePrefixes {
		if strings.HasPrefix(clean, prefix) {
			return true
		}
	}
	return false
}

// handleGetFile handles GET /api/files?path=...&agent_id=....
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	relPath := r.URL.Query().Get("path")
	if relPath == "" {
		writeCodedError(w, ErrCodeInvalidRequest, "path is required")
		return
	}
	if !pathAllowed(relPath) {
		writeCodedError(w, ErrCodeForbiddenPath, "path outside allow-list")
		return
	}

	rt, err := s.registry.GetRuntime(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return
	}
	resolved, err := sandbox.ResolveWorkspacePath(rt.Root, relPath)
	if err != nil {
		writeCodedError(w, ErrCodeForbiddenPath, err.Error())
		return
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			writeCodedError(w, ErrCodeNotFound, "file not found")
			return
		}
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]string{"path": relPath, "content": string(content)})
}

type putFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// handlePutFile handles POST /api/files {path, content}.
func (s *Server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	var req putFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeCodedError(w, ErrCodeInvalidRequest, "path is required")
		return
	}
	if !pathAllowed(req.Path) {
		writeCodedError(w, ErrCodeForbiddenPath, "path outside allow-list")
		return
	}

	rt, err := s.registry.GetRuntime(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return
	}
	resolved, err := sandbox.ResolveWorkspacePath(rt.Root, req.Path)
	if err != nil {
		writeCodedError(w, ErrCodeForbiddenPath, err.Error())
		return
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	if err := os.WriteFile(resolved, []byte(req.Content), 0o644); err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]string{"path": req.Path})
}

type fileIndexDomainStatus struct {
	Domain    string `json:"domain"`
	Present   bool   `json:"present"`
	Digest    string `json:"digest,omitempty"`
	UpdatedMs int64  `json:"updatedMs,omitempty"`
}

// handleFilesIndex handles GET /api/files/index: reports each retrieval
// domain's freshness bookkeeping without running a query.
func (s *Server) handleFilesIndex(w http.ResponseWriter, r *http.Request) {
	rt, err := s.registry.GetRuntime(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return
	}

	out := make([]fileIndexDomainStatus, 0, 2)

	memMeta, memOK, _ := rt.MemoryIndex.Meta(r.Context(), types.DomainMemory)
	out = append(out, fileIndexDomainStatus{Domain: string(types.DomainMemory), Present: memOK, Digest: memMeta.Digest, UpdatedMs: memMeta.UpdatedMs})

	knMeta, knOK, _ := rt.KnowledgeIndex.Meta(r.Context(), types.DomainKnowledge)
	out = append(out, fileIndexDomainStatus{Domain: string(types.DomainKnowledge), Present: knOK, Digest: knMeta.Digest, UpdatedMs: knMeta.UpdatedMs})

	writeData(w, http.StatusOK, out)
}

// handleListSkills handles GET /api/skills: enumerates skills/*/SKILL.md.
func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	rt, err := s.registry.GetRuntime(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return
	}

	skillsDir := filepath.Join(rt.Root, "skills")
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeData(w, http.StatusOK, []string{})
			return
		}
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}

	var skills []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(skillsDir, e.Name(), "SKILL.md")); err == nil {
			skills = append(skills, e.Name())
		}
	}
	writeData(w, http.StatusOK, skills)
}
