package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentmesh/runtime/internal/agent"
	"github.com/agentmesh/runtime/internal/orchestrator"
	"github.com/agentmesh/runtime/internal/scheduler"
)

// agentSchedulers bundles one agent's cron and heartbeat background loops
// plus the job store the scheduler HTTP handlers read and write.
type agentSchedulers struct {
	jobs      *scheduler.JobStore
	cron      *scheduler.CronScheduler
	heartbeat *scheduler.HeartbeatScheduler
}

// schedulerSet lazily constructs and caches an agentSchedulers per agent,
// mirroring agent.Registry's own cache pattern.
type schedulerSet struct {
	registry *agent.Registry
	orch     *orchestrator.Orchestrator

	mu    sync.Mutex
	cache map[string]*agentSchedulers
}

func newSchedulerSet(registry *agent.Registry, orch *orchestrator.Orchestrator) *schedulerSet {
	return &schedulerSet{registry: registry, orch: orch, cache: make(map[string]*agentSchedulers)}
}

// get resolves (constructing if needed) the scheduler bundle for agentID.
func (s *schedulerSet) get(ctx context.Context, agentID string) (*agentSchedulers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if as, ok := s.cache[agentID]; ok {
		return as, nil
	}

	rt, err := s.registry.GetRuntime(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("server: resolve runtime for scheduler: %w", err)
	}

	jobs := scheduler.NewJobStore(rt.Storage)
	as := &agentSchedulers{
		jobs:      jobs,
		cron:      scheduler.NewCronScheduler(agentID, rt.Config.Cron, jobs, rt.Audit, s.orch),
		heartbeat: scheduler.NewHeartbeatScheduler(agentID, rt.Root, rt.Config.Heartbeat, rt.Audit, s.orch),
	}
	s.cache[agentID] = as
	return as, nil
}

// startFor starts background loops for an agent id (called for every
// agent at server boot and on each POST /api/agents; a loop that is
// already running is left as it is).
func (s *schedulerSet) startFor(ctx context.Context, agentID string) error {
	as, err := s.get(ctx, agentID)
	if err != nil {
		return err
	}
	as.cron.Start(ctx)
	as.heartbeat.Start(ctx)
	return nil
}

func (s *schedulerSet) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, as := range s.cache {
		as.cron.Stop()
		as.heartbeat.Stop()
	}
}
