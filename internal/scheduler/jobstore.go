package scheduler

import (
	"context"
	"errors"

	"github.com/agentmesh/runtime/internal/storage"
	"github.com/agentmesh/runtime/pkg/types"
)

var jobsPath = []string{"cron_jobs"}

// JobStore persists the cron job list as a single JSON document via the
// agent's storage.Storage, which already gives it the
// temp-file-then-rename atomic write and per-path lock (not reentrant).
type JobStore struct {
	storage *storage.Storage
}

// NewJobStore returns a JobStore rooted at an agent's storage.Storage.
func NewJobStore(s *storage.Storage) *JobStore {
	return &JobStore{storage: s}
}

// Load returns the full job list, or an empty slice if none has been
// saved yet.
func (s *JobStore) Load(ctx context.Context) ([]types.CronJob, error) {
	var jobs []types.CronJob
	err := s.storage.Get(ctx, jobsPath, &jobs)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Save persists the full job list.
func (s *JobStore) Save(ctx context.Context, jobs []types.CronJob) error {
	if jobs == nil {
		jobs = []types.CronJob{}
	}
	return s.storage.Put(ctx, jobsPath, jobs)
}
