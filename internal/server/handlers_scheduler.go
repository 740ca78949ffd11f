package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/runtime/internal/config"
	"github.com/agentmesh/runtime/pkg/types"
)

// schedulerAPIGuard gates every /api/scheduler/* route behind
// Config.SchedulerAPIEnabled (spec §7's scheduler_api_disabled).
func (s *Server) schedulerAPIGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.SchedulerAPIEnabled {
			writeCodedError(w, ErrCodeSchedulerAPIDisabled, "scheduler API is disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleListCronJobs handles GET /api/scheduler/cron/jobs.
func (s *Server) handleListCronJobs(w http.ResponseWriter, r *http.Request) {
	as, err := s.schedulers.get(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	jobs, err := as.jobs.Load(r.Context())
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusOK, jobs)
}

type createCronJobRequest struct {
	Name         string            `json:"name"`
	ScheduleType types.ScheduleType `json:"scheduleType"`
	Schedule     string            `json:"schedule"`
	Prompt       string            `json:"prompt"`
	Enabled      bool              `json:"enabled"`
}

// handleCreateCronJob handles POST /api/scheduler/cron/jobs.
func (s *Server) handleCreateCronJob(w http.ResponseWriter, r *http.Request) {
	var req createCronJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Schedule == "" || req.Prompt == "" {
		writeCodedError(w, ErrCodeInvalidRequest, "name, schedule, and prompt are required")
		return
	}

	as, err := s.schedulers.get(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	jobs, err := as.jobs.Load(r.Context())
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}

	now := time.Now().UnixMilli()
	job := types.CronJob{
		ID: uuid.NewString(), Name: req.Name, ScheduleType: req.ScheduleType, Schedule: req.Schedule,
		Prompt: req.Prompt, Enabled: req.Enabled, CreatedAt: now, UpdatedAt: now,
	}
	jobs = append(jobs, job)
	if err := as.jobs.Save(r.Context(), jobs); err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusCreated, job)
}

type updateCronJobRequest struct {
	Name     *string `json:"name"`
	Schedule *string `json:"schedule"`
	Prompt   *string `json:"prompt"`
	Enabled  *bool   `json:"enabled"`
}

// handleUpdateCronJob handles PUT /api/scheduler/cron/jobs/{id}.
func (s *Server) handleUpdateCronJob(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	var req updateCronJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	as, err := s.schedulers.get(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	jobs, err := as.jobs.Load(r.Context())
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}

	var updated *types.CronJob
	for i := range jobs {
		if jobs[i].ID != id {
			continue
		}
		if req.Name != nil {
			jobs[i].Name = *req.Name
		}
		if req.Schedule != nil {
			jobs[i].Schedule = *req.Schedule
		}
		if req.Prompt != nil {
			jobs[i].Prompt = *req.Prompt
		}
		if req.Enabled != nil {
			jobs[i].Enabled = *req.Enabled
			if !*req.Enabled {
				jobs[i].NextRunTs = 0
			}
		}
		jobs[i].UpdatedAt = time.Now().UnixMilli()
		updated = &jobs[i]
		break
	}
	if updated == nil {
		writeCodedError(w, ErrCodeNotFound, "cron job not found")
		return
	}
	if err := as.jobs.Save(r.Context(), jobs); err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusOK, updated)
}

// handleDeleteCronJob handles DELETE /api/scheduler/cron/jobs/{id}.
func (s *Server) handleDeleteCronJob(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	as, err := s.schedulers.get(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	jobs, err := as.jobs.Load(r.Context())
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}

	out := jobs[:0]
	found := false
	for _, j := range jobs {
		if j.ID == id {
			found = true
			continue
		}
		out = append(out, j)
	}
	if !found {
		writeCodedError(w, ErrCodeNotFound, "cron job not found")
		return
	}
	if err := as.jobs.Save(r.Context(), out); err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id})
}

// handleRunCronJobNow handles POST /api/scheduler/cron/jobs/{id}/run.
func (s *Server) handleRunCronJobNow(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	as, err := s.schedulers.get(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	job, err := as.cron.RunJobNow(r.Context(), id)
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return
	}
	writeData(w, http.StatusOK, job)
}

// handleCronJobRuns handles GET /api/scheduler/cron/jobs/{id}/runs.
func (s *Server) handleCronJobRuns(w http.ResponseWriter, r *http.Request) {
	s.writeAuditLines(w, r, "cron_runs.jsonl")
}

// handleCronFailures handles GET /api/scheduler/cron/jobs/{id}/failures.
func (s *Server) handleCronFailures(w http.ResponseWriter, r *http.Request) {
	s.writeAuditLines(w, r, "cron_failures.jsonl")
}

// handleGetHeartbeatConfig handles GET /api/scheduler/heartbeat.
func (s *Server) handleGetHeartbeatConfig(w http.ResponseWriter, r *http.Request) {
	rt, err := s.registry.GetRuntime(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return
	}
	writeData(w, http.StatusOK, rt.Config.Heartbeat)
}

// handlePutHeartbeatConfig handles PUT /api/scheduler/heartbeat: merges a
// partial HeartbeatConfig patch onto the agent's effective config and
// persists the deep-diff delta, the same way handlePutConfig does for the
// rag-mode/runtime/tracing fields.
func (s *Server) handlePutHeartbeatConfig(w http.ResponseWriter, r *http.Request) {
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
	merged := config.DeepMerge(effectiveMap, map[string]any{"heartbeat": patch})

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

	writeData(w, http.StatusOK, newCfg.Heartbeat)
}

// handleHeartbeatRuns handles GET /api/scheduler/heartbeat/runs.
func (s *Server) handleHeartbeatRuns(w http.ResponseWriter, r *http.Request) {
	rt, err := s.registry.GetRuntime(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return
	}
	lines, err := rt.Audit.ReadLines("heartbeat_runs.jsonl", auditReadLimit(r))
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusOK, lines)
}

func (s *Server) writeAuditLines(w http.ResponseWriter, r *http.Request, relPath string) {
	rt, err := s.registry.GetRuntime(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeCodedError(w, ErrCodeNotFound, err.Error())
		return
	}
	lines, err := rt.Audit.ReadLines(relPath, auditReadLimit(r))
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	writeData(w, http.StatusOK, lines)
}

func auditReadLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return 200
	}
	return n
}
