package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentmesh/runtime/pkg/types"
)

// decodeJSON decodes r's body into v, writing a validation_error response
// and reporting false on malformed JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeCodedError(w, ErrCodeValidationError, "malformed request body: "+err.Error())
		return false
	}
	return true
}

// agentIDFromQuery resolves the agent_id query parameter, defaulting to
// the built-in default agent.
func agentIDFromQuery(r *http.Request) string {
	if id := r.URL.Query().Get("agent_id"); id != "" {
		return id
	}
	return types.DefaultAgentID
}

// urlParam is a thin wrapper so handler files don't need to import chi
// directly just for path parameters.
func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}
