package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/agentmesh/runtime/internal/orchestrator"
	"github.com/agentmesh/runtime/internal/storage"
	"github.com/agentmesh/runtime/pkg/types"
)

// handleListSessions handles GET /api/sessions?scope=active|archived|all&agent_id=.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	agentID := agentIDFromQuery(r)
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "active"
	}
	if scope != "active" && scope != "archived" && scope != "all" {
		writeCodedError(w, ErrCodeInvalidRequest, "scope must be active, archived, or all")
		return
	}

	rt, err := s.registry.GetRuntime(r.Context(), agentID)
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return
	}

	store := orchestrator.NewSessionStore(rt.Root)
	sessions, err := store.List(r.Context(), scope)
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusOK, sessions)
}

type createSessionRequest struct {
	AgentID string `json:"agent_id"`
}

// handleCreateSession handles POST /api/sessions.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	agentID := req.AgentID
	if agentID == "" {
		agentID = types.DefaultAgentID
	}

	rt, err := s.registry.GetRuntime(r.Context(), agentID)
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return
	}
	store := orchestrator.NewSessionStore(rt.Root)
	sess, err := store.Create(r.Context(), agentID)
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusCreated, sess)
}

type updateSessionRequest struct {
	Title string `json:"title"`
}

// handleUpdateSession handles PUT /api/sessions/{id}.
func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	agentID := agentIDFromQuery(r)

	var req updateSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	store, err := s.sessionStoreFor(w, r, agentID)
	if err != nil {
		return
	}
	sess, err := store.Get(r.Context(), id)
	if !s.writeSessionLookupErr(w, err) {
		return
	}
	if req.Title != "" {
		if err := store.SetTitle(r.Context(), sess, req.Title); err != nil {
			writeCodedError(w, ErrCodeInternalError, err.Error())
			return
		}
	}
	writeData(w, http.StatusOK, sess)
}

// handleDeleteSession handles DELETE /api/sessions/{id}?archived=bool.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	agentID := agentIDFromQuery(r)
	archived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))

	store, err := s.sessionStoreFor(w, r, agentID)
	if err != nil {
		return
	}
	if err := store.Delete(r.Context(), id, archived); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeCodedError(w, ErrCodeNotFound, "session not found")
			return
		}
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id})
}

// handleArchiveSession handles POST /api/sessions/{id}/archive.
func (s *Server) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	store, err := s.sessionStoreFor(w, r, agentIDFromQuery(r))
	if err != nil {
		return
	}
	sess, err := store.Archive(r.Context(), id)
	if !s.writeSessionLookupErr(w, err) {
		return
	}
	writeData(w, http.StatusOK, sess)
}

// handleRestoreSession handles POST /api/sessions/{id}/restore.
func (s *Server) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	store, err := s.sessionStoreFor(w, r, agentIDFromQuery(r))
	if err != nil {
		return
	}
	sess, err := store.Restore(r.Context(), id)
	if !s.writeSessionLookupErr(w, err) {
		return
	}
	writeData(w, http.StatusOK, sess)
}

// handleSessionMessages handles GET /api/sessions/{id}/messages and the
// equivalent .../history route — both return the full transcript.
func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	store, err := s.sessionStoreFor(w, r, agentIDFromQuery(r))
	if err != nil {
		return
	}
	sess, err := store.Get(r.Context(), id)
	if !s.writeSessionLookupErr(w, err) {
		return
	}
	writeData(w, http.StatusOK, sess.Messages)
}

// handleGenerateTitle handles POST /api/sessions/{id}/generate-title.
func (s *Server) handleGenerateTitle(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	agentID := agentIDFromQuery(r)

	rt, err := s.registry.GetRuntime(r.Context(), agentID)
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return
	}
	store := orchestrator.NewSessionStore(rt.Root)
	sess, err := store.Get(r.Context(), id)
	if !s.writeSessionLookupErr(w, err) {
		return
	}
	if len(sess.Messages) == 0 {
		writeCodedError(w, ErrCodeInvalidState, "cannot title an empty session")
		return
	}

	model, err := s.providers.DefaultModel()
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	prov, err := s.providers.Get(model.ProviderID)
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	title, err := orchestrator.GenerateTitle(r.Context(), prov, model.ID, sess.Messages[0].Content)
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	if err := store.SetTitle(r.Context(), sess, title); err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]string{"title": title})
}

type compressSessionRequest struct {
	Summary string `json:"summary"`
}

// handleCompressSession handles POST /api/sessions/{id}/compress.
func (s *Server) handleCompressSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	var req compressSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	store, err := s.sessionStoreFor(w, r, agentIDFromQuery(r))
	if err != nil {
		return
	}
	sess, err := store.Compress(r.Context(), id, req.Summary)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidState) {
			writeCodedError(w, ErrCodeInvalidState, err.Error())
			return
		}
		s.writeSessionLookupErr(w, err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

// sessionStoreFor resolves agentID's SessionStore, writing a not_found
// response and returning a nil store/non-nil error if the agent can't be
// resolved, so callers can just `if err != nil { return }`.
func (s *Server) sessionStoreFor(w http.ResponseWriter, r *http.Request, agentID string) (*orchestrator.SessionStore, error) {
	rt, err := s.registry.GetRuntime(r.Context(), agentID)
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return nil, err
	}
	return orchestrator.NewSessionStore(rt.Root), nil
}

// writeSessionLookupErr maps a session-store error to the mandated HTTP
// response and reports whether the caller should keep going (true) or has
// already had a response written (false).
func (s *Server) writeSessionLookupErr(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeCodedError(w, ErrCodeNotFound, "session not found")
		return false
	}
	writeCodedError(w, ErrCodeInternalError, err.Error())
	return false
}
