package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/internal/audit"
	"github.com/agentmesh/runtime/internal/storage"
	"github.com/agentmesh/runtime/pkg/types"
)

type fakeInvoker struct {
	results map[string]RunResult
	errs    map[string]error
	calls   []RunRequest
}

func (f *fakeInvoker) RunTurn(ctx context.Context, req RunRequest) (RunResult, error) {
	f.calls = append(f.calls, req)
	if f.errs != nil {
		if err, ok := f.errs[req.AgentID]; ok {
			return RunResult{}, err
		}
	}
	return f.results[req.AgentID], nil
}

func newTestCronScheduler(t *testing.T, cfg types.CronConfig, invoker RunInvoker) (*CronScheduler, *JobStore) {
	t.Helper()
	store := NewJobStore(storage.New(t.TempDir()))
	auditStore := audit.New(t.TempDir())
	return NewCronScheduler("default", cfg, store, auditStore, invoker), store
}

func TestTickOnceWithNoDueJobsRunsNothing(t *testing.T) {
	invoker := &fakeInvoker{}
	sched, store := newTestCronScheduler(t, types.CronConfig{MaxFailures: 3, RetryBaseSeconds: 5, RetryMaxSeconds: 60}, invoker)

	require.NoError(t, store.Save(context.Background(), []types.CronJob{
		{ID: "future", Enabled: true, NextRunTs: time.Now().Add(time.Hour).UnixMilli()},
	}))

	require.NoError(t, sched.TickOnce(context.Background()))
	assert.Empty(t, invoker.calls)
}

func TestTickOnceRunsDueEveryJobAndAdvancesNextRun(t *testing.T) {
	invoker := &fakeInvoker{}
	sched, store := newTestCronScheduler(t, types.CronConfig{MaxFailures: 3, RetryBaseSeconds: 5, RetryMaxSeconds: 60}, invoker)

	due := time.Now().Add(-time.Minute).UnixMilli()
	require.NoError(t, store.Save(context.Background(), []types.CronJob{
		{ID: "j1", Name: "ping", ScheduleType: types.ScheduleEvery, Schedule: "60", Enabled: true, NextRunTs: due},
	}))

	require.NoError(t, sched.TickOnce(context.Background()))
	require.Len(t, invoker.calls, 1)
	assert.Equal(t, types.TriggerCron, invoker.calls[0].Trigger)

	jobs, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].Enabled)
	assert.Greater(t, jobs[0].NextRunTs, time.Now().UnixMilli())
	assert.Equal(t, 0, jobs[0].FailureCount)
	assert.NotZero(t, jobs[0].LastSuccessTs)
}

func TestTickOnceAtJobDisablesAfterSingleRun(t *testing.T) {
	invoker := &fakeInvoker{}
	sched, store := newTestCronScheduler(t, types.CronConfig{MaxFailures: 3, RetryBaseSeconds: 5, RetryMaxSeconds: 60}, invoker)

	due := time.Now().Add(-time.Minute).UnixMilli()
	require.NoError(t, store.Save(context.Background(), []types.CronJob{
		{ID: "j1", ScheduleType: types.ScheduleAt, Schedule: "2020-01-01T00:00:00Z", Enabled: true, NextRunTs: due},
	}))

	require.NoError(t, sched.TickOnce(context.Background()))
	jobs, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, jobs[0].Enabled)
	assert.Zero(t, jobs[0].NextRunTs)
}

func TestTickOnceFailureBacksOffAndEventuallyDisables(t *testing.T) {
	invoker := &fakeInvoker{errs: map[string]error{"default": errors.New("boom")}}
	sched, store := newTestCronScheduler(t, types.CronConfig{MaxFailures: 2, RetryBaseSeconds: 10, RetryMaxSeconds: 1000}, invoker)

	due := time.Now().Add(-time.Minute).UnixMilli()
	require.NoError(t, store.Save(context.Background(), []types.CronJob{
		{ID: "j1", ScheduleType: types.ScheduleEvery, Schedule: "60", Enabled: true, NextRunTs: due},
	}))

	require.NoError(t, sched.TickOnce(context.Background()))
	jobs, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].Enabled)
	assert.Equal(t, 1, jobs[0].FailureCount)
	assert.Equal(t, "boom", jobs[0].LastError)
	firstBackoffNextRun := jobs[0].NextRunTs

	// Force the second failure to be due immediately and tick again.
	jobs[0].NextRunTs = time.Now().Add(-time.Second).UnixMilli()
	require.NoError(t, store.Save(context.Background(), jobs))
	require.NoError(t, sched.TickOnce(context.Background()))

	jobs, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, jobs[0].FailureCount)
	assert.False(t, jobs[0].Enabled, "job must disable once failure_count reaches max_failures")
	assert.Zero(t, jobs[0].NextRunTs)
	assert.Greater(t, firstBackoffNextRun, due)
}

func TestRunJobNowIgnoresEnabledFlag(t *testing.T) {
	invoker := &fakeInvoker{}
	sched, store := newTestCronScheduler(t, types.CronConfig{MaxFailures: 3, RetryBaseSeconds: 5, RetryMaxSeconds: 60}, invoker)

	require.NoError(t, store.Save(context.Background(), []types.CronJob{
		{ID: "j1", ScheduleType: types.ScheduleEvery, Schedule: "60", Enabled: false, NextRunTs: 0},
	}))

	job, err := sched.RunJobNow(context.Background(), "j1")
	require.NoError(t, err)
	assert.Len(t, invoker.calls, 1)
	assert.NotZero(t, job.LastRunTs)
}

func TestNextCronTickFindsNextMinuteMatch(t *testing.T) {
	after := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	next, err := nextCronTick("5 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, 5, next.Minute())
	assert.True(t, next.After(after))
}
