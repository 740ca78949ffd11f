package server

import (
	"encoding/json"
	"net/http"

	"github.com/agentmesh/runtime/internal/config"
	"github.com/agentmesh/runtime/pkg/types"
)

// configField names the three independently gettable/settable slices of
// RuntimeConfig spec §6 exposes under /api/config/*.
type configField string

const (
	configFieldRagMode configField = "rag-mode"
	configFieldRuntime configField = "runtime"
	configFieldTracing configField = "tracing"
)

// handleGetConfig handles GET /api/config/{rag-mode,runtime,tracing}.
func (s *Server) handleGetConfig(field configField) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt, err := s.registry.GetRuntime(r.Context(), agentIDFromQuery(r))
		if err != nil {
			writeCodedError(w, ErrCodeNotFound, err.Error())
			return
		}
		writeData(w, http.StatusOK, configFieldValue(rt.Config, field))
	}
}

// handlePutConfig handles PUT /api/config/{rag-mode,runtime,tracing}: it
// decodes a partial JSON patch for the field, merges it onto the agent's
// effective config, and persists the deep-diff delta against the global
// baseline to the agent's config.json.
func (s *Server) handlePutConfig(field configField) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := agentIDFromQuery(r)
		rt, err := s.registry.GetRuntime(r.Context(), agentID)
		if err != nil {
			writeCodedError(w, ErrCodeNotFound, err.Error())
			return
		}

		var patch map[string]any
		if !decodeJSON(w, r, &patch) {
			return
		}

		effectiveMap, err := configToMap(rt.Config)
		if err != nil {
			writeCodedError(w, ErrCodeInternalError, err.Error())
			return
		}

		// "runtime" and "rag-mode" patches carry their top-level key(s)
		// directly (symmetric with their GET response shape); "tracing"'s
		// GET response is the bare TracingConfig object, so its PUT body
		// needs wrapping under the "tracing" key before merging.
		patchDoc := patch
		if field == configFieldTracing {
			patchDoc = map[string]any{string(fieldKey(field)): patch}
		}
		merged := config.DeepMerge(effectiveMap, patchDoc)

		var newCfg types.RuntimeConfig
		buf, err := json.Marshal(merged)
		if err != nil {
			writeCodedError(w, ErrCodeInternalError, err.Error())
			return
		}
		if err := json.Unmarshal(buf, &newCfg); err != nil {
			writeCodedError(w, ErrCodeValidationError, err.Error())
			return
		}

		baseline, err := configToMap(config.Default())
		if err != nil {
			writeCodedError(w, ErrCodeInternalError, err.Error())
			return
		}
		delta := config.DeepDiff(merged, baseline)

		if err := config.Save(s.root.AgentConfigPath(agentID), delta); err != nil {
			writeCodedError(w, ErrCodeInternalError, err.Error())
			return
		}

		writeData(w, http.StatusOK, configFieldValue(newCfg, field))
	}
}

func fieldKey(field configField) configField {
	switch field {
	case configFieldRagMode:
		return "ragMode"
	case configFieldTracing:
		return "tracing"
	default:
		return "runtime"
	}
}

func configFieldValue(cfg types.RuntimeConfig, field configField) any {
	switch field {
	case configFieldRagMode:
		return map[string]bool{"ragMode": cfg.RagMode}
	case configFieldTracing:
		return cfg.Tracing
	default:
		return cfg
	}
}

func configToMap(cfg types.RuntimeConfig) (map[string]any, error) {
	buf, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, err
	}
	return m, nil
}
