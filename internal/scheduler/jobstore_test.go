package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/internal/storage"
	"github.com/agentmesh/runtime/pkg/types"
)

func TestJobStoreLoadWithNoSavedJobsReturnsEmpty(t *testing.T) {
	store := NewJobStore(storage.New(t.TempDir()))
	jobs, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobStoreSaveThenLoadRoundTrips(t *testing.T) {
	store := NewJobStore(storage.New(t.TempDir()))
	jobs := []types.CronJob{
		{ID: "j1", Name: "ping", ScheduleType: types.ScheduleEvery, Schedule: "60", Enabled: true},
	}
	require.NoError(t, store.Save(context.Background(), jobs))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "j1", loaded[0].ID)
	assert.Equal(t, types.ScheduleEvery, loaded[0].ScheduleType)
}
