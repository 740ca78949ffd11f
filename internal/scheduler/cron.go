package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/agentmesh/runtime/internal/audit"
	"github.com/agentmesh/runtime/internal/logging"
	"github.com/agentmesh/runtime/pkg/types"
)

var gron = gronx.New()

// maxCronSearchWindow bounds the minute-by-minute search for the next
// matching cron tick, per spec (≤366 days).
const maxCronSearchWindow = 366 * 24 * time.Hour

// CronScheduler runs due jobs from a durable JSON job store, one tick at a
// time, serialized by runMu so two ticks (or a tick and a run_job_now
// call) never execute the same job concurrently.
type CronScheduler struct {
	agentID string
	cfg     types.CronConfig
	store   *JobStore
	audit   *audit.Store
	invoker RunInvoker

	runMu sync.Mutex

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCronScheduler builds a CronScheduler for one agent.
func NewCronScheduler(agentID string, cfg types.CronConfig, store *JobStore, auditStore *audit.Store, invoker RunInvoker) *CronScheduler {
	return &CronScheduler{agentID: agentID, cfg: cfg, store: store, audit: auditStore, invoker: invoker}
}

// Start spawns the background poll loop, guarded by cfg.Enabled. A no-op
// if the scheduler is disabled or already running.
func (s *CronScheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled || s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	interval := time.Duration(s.cfg.PollIntervalSecs) * time.Second
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}

	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := s.TickOnce(ctx); err != nil {
					logging.Warn().Err(err).Str("agentId", s.agentID).Msg("scheduler: cron tick failed")
				}
			}
		}
	}()
}

// Stop signals the background loop to exit and awaits its termination.
func (s *CronScheduler) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
	s.doneCh = nil
}

// TickOnce loads the job list, runs every enabled job whose next_run_ts
// has passed, and saves state back after each. A tick with no due jobs
// performs no writes.
func (s *CronScheduler) TickOnce(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	jobs, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: load jobs: %w", err)
	}

	now := time.Now().UnixMilli()
	for i := range jobs {
		if !jobs[i].Enabled || jobs[i].NextRunTs > now {
			continue
		}
		s.runJobLocked(ctx, &jobs[i])
		if err := s.store.Save(ctx, jobs); err != nil {
			return fmt.Errorf("scheduler: save jobs: %w", err)
		}
	}
	return nil
}

// RunJobNow executes job id once, ignoring its enabled flag, and upserts
// the resulting state. Serialized against TickOnce via runMu.
func (s *CronScheduler) RunJobNow(ctx context.Context, jobID string) (types.CronJob, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	jobs, err := s.store.Load(ctx)
	if err != nil {
		return types.CronJob{}, fmt.Errorf("scheduler: load jobs: %w", err)
	}
	idx := indexOfJob(jobs, jobID)
	if idx < 0 {
		return types.CronJob{}, fmt.Errorf("scheduler: job %q not found", jobID)
	}

	s.runJobLocked(ctx, &jobs[idx])
	if err := s.store.Save(ctx, jobs); err != nil {
		return types.CronJob{}, fmt.Errorf("scheduler: save jobs: %w", err)
	}
	return jobs[idx], nil
}

// runJobLocked executes one job and updates its in-place state; callers
// hold runMu and are responsible for persisting jobs afterward.
func (s *CronScheduler) runJobLocked(ctx context.Context, job *types.CronJob) {
	start := time.Now()
	runID := fmt.Sprintf("cron:%s:%d", job.ID, start.UnixMilli())
	sessionID := fmt.Sprintf("cron:%s", job.ID)

	_, err := s.invoker.RunTurn(ctx, RunRequest{
		AgentID: s.agentID, SessionID: sessionID, RunID: runID,
		Trigger: types.TriggerCron, Prompt: job.Prompt,
	})

	now := time.Now()
	nowMsValue := now.UnixMilli()
	job.LastRunTs = nowMsValue
	job.UpdatedAt = nowMsValue

	status := "ok"
	if err != nil {
		status = "error"
		job.FailureCount++
		job.LastError = err.Error()

		backoff := time.Duration(s.cfg.RetryBaseSeconds) * time.Second * time.Duration(1<<uint(job.FailureCount-1))
		maxBackoff := time.Duration(s.cfg.RetryMaxSeconds) * time.Second
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		job.NextRunTs = nowMsValue + backoff.Milliseconds()

		if job.FailureCount >= s.cfg.MaxFailures {
			job.Enabled = false
			job.NextRunTs = 0
		}

		s.appendFailure(job, now)
	} else {
		job.FailureCount = 0
		job.LastError = ""
		job.LastSuccessTs = nowMsValue
		job.NextRunTs = s.computeNextRun(job, now)
	}

	s.appendRun(job, status, time.Since(start))
}

// computeNextRun advances a job's next_run_ts after a successful run.
func (s *CronScheduler) computeNextRun(job *types.CronJob, now time.Time) int64 {
	switch job.ScheduleType {
	case types.ScheduleAt:
		job.Enabled = false
		return 0
	case types.ScheduleEvery:
		seconds, err := strconv.Atoi(job.Schedule)
		if err != nil || seconds < 5 {
			seconds = 5
		}
		return now.Add(time.Duration(seconds) * time.Second).UnixMilli()
	case types.ScheduleCron:
		next, err := nextCronTick(job.Schedule, now)
		if err != nil {
			logging.Warn().Err(err).Str("jobId", job.ID).Msg("scheduler: cron expression has no matching tick, disabling job")
			job.Enabled = false
			return 0
		}
		return next.UnixMilli()
	default:
		job.Enabled = false
		return 0
	}
}

func (s *CronScheduler) appendRun(job *types.CronJob, status string, dur time.Duration) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AppendCronRun(types.CronRunRecord{
		TimestampMs: time.Now().UnixMilli(), JobID: job.ID, Name: job.Name,
		Status: status, DurationMs: dur.Milliseconds(),
	}); err != nil {
		logging.Warn().Err(err).Str("jobId", job.ID).Msg("scheduler: cron run audit append failed")
	}
}

func (s *CronScheduler) appendFailure(job *types.CronJob, now time.Time) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AppendCronFailure(types.CronFailureRecord{
		TimestampMs: now.UnixMilli(), JobID: job.ID, Name: job.Name,
		Error: job.LastError, FailureCount: job.FailureCount,
	}, s.cfg.FailureRetention); err != nil {
		logging.Warn().Err(err).Str("jobId", job.ID).Msg("scheduler: cron failure audit append failed")
	}
}

func indexOfJob(jobs []types.CronJob, id string) int {
	for i := range jobs {
		if jobs[i].ID == id {
			return i
		}
	}
	return -1
}

// nextCronTick finds the first minute strictly after `after` matching expr,
// searching up to maxCronSearchWindow ahead using gronx's match predicate.
func nextCronTick(expr string, after time.Time) (time.Time, error) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	deadline := after.Add(maxCronSearchWindow)
	for t.Before(deadline) {
		due, err := gron.IsDue(expr, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		if due {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching tick for %q within search window", expr)
}
