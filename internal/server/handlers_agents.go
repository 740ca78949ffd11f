package server

import (
	"errors"
	"net/http"
	"os"

	"github.com/agentmesh/runtime/internal/agent"
	"github.com/agentmesh/runtime/internal/event"
	"github.com/agentmesh/runtime/pkg/types"
)

// handleListAgents handles GET /api/agents.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	ids, err := s.registry.List()
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}

	infos := make([]types.AgentInfo, 0, len(ids))
	for _, id := range ids {
		root := s.root.AgentRoot(id)
		created := int64(0)
		if fi, err := os.Stat(root); err == nil {
			created = fi.ModTime().UnixMilli()
		}
		infos = append(infos, types.AgentInfo{ID: id, CreatedAt: created, Root: root})
	}
	writeData(w, http.StatusOK, infos)
}

type createAgentRequest struct {
	AgentID string `json:"agent_id"`
}

// handleCreateAgent handles POST /api/agents {agent_id}.
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !types.ValidAgentID(req.AgentID) {
		writeCodedError(w, ErrCodeInvalidRequest, "invalid agent_id")
		return
	}

	rt, err := s.registry.GetRuntime(r.Context(), req.AgentID)
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	if err := s.schedulers.startFor(r.Context(), req.AgentID); err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}

	event.Publish(event.Event{Type: event.EventAgentCreated, Data: types.AgentInfo{ID: rt.ID, Root: rt.Root}})
	writeData(w, http.StatusCreated, types.AgentInfo{ID: rt.ID, Root: rt.Root})
}

// handleDeleteAgent handles DELETE /api/agents/{id}.
func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := s.registry.Delete(id); err != nil {
		switch {
		case errors.Is(err, agent.ErrDefaultAgentUndeletable):
			writeCodedError(w, ErrCodeInvalidRequest, err.Error())
		default:
			writeCodedError(w, ErrCodeInternalError, err.Error())
		}
		return
	}
	event.Publish(event.Event{Type: event.EventAgentDeleted, Data: types.AgentInfo{ID: id}})
	writeData(w, http.StatusOK, map[string]string{"id": id})
}
