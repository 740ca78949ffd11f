package server

import (
	"errors"
	"net/http"

	"github.com/agentmesh/runtime/internal/orchestrator"
	"github.com/agentmesh/runtime/pkg/types"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Stream    bool   `json:"stream"`
}

type chatResponse struct {
	Content   string          `json:"content"`
	SessionID string          `json:"session_id"`
	AgentID   string          `json:"agent_id"`
	Usage     types.UsageState `json:"usage"`
}

// handleChat handles POST /api/chat {message, session_id, agent_id?,
// stream}. Streaming requests get a text/event-stream reply carrying the
// events of spec §4.4; non-streaming requests block until the run
// finishes and return {content, session_id, agent_id, usage}.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" || req.SessionID == "" {
		writeCodedError(w, ErrCodeInvalidRequest, "message and session_id are required")
		return
	}
	agentID := req.AgentID
	if agentID == "" {
		agentID = types.DefaultAgentID
	}

	rs, _, err := s.orchestrator.Chat(r.Context(), agentID, req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, orchestrator.ErrSessionBusy) {
			writeCodedError(w, ErrCodeSessionBusy, err.Error())
			return
		}
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}

	if req.Stream {
		sub, unsubscribe := rs.Subscribe()
		defer unsubscribe()
		streamRun(w, r, sub)
		return
	}

	<-rs.Done()
	if rs.FinalErr != nil {
		writeCodedError(w, ErrCodeInternalError, rs.FinalErr.Error())
		return
	}
	writeData(w, http.StatusOK, chatResponse{
		Content: rs.FinalReply, SessionID: req.SessionID, AgentID: agentID, Usage: rs.FinalUsage,
	})
}
