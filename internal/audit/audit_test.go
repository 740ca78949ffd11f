package audit

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/pkg/types"
)

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if sc.Text() != "" {
			n++
		}
	}
	return n
}

func TestAppendRunWritesOneSchemaVersionedLine(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	require.NoError(t, store.AppendRun(RunRecord{
		TimestampMs: 1, RunID: "r1", SessionID: "s1", AgentID: "a1",
		TriggerType: types.TriggerChat, Attempt: 0, Done: true,
	}))

	path := filepath.Join(dir, "audit", "runs.jsonl")
	assert.Equal(t, 1, countLines(t, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"schema":"audit.run.v1"`)
}

func TestAppendCronFailureTrimsToRetention(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendCronFailure(types.CronFailureRecord{
			TimestampMs: int64(i), JobID: "j1", Name: "job", Error: "boom", FailureCount: i + 1,
		}, 3))
	}

	path := filepath.Join(dir, "cron_failures.jsonl")
	assert.Equal(t, 3, countLines(t, path))
}

func TestAppendUsageLedger(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	require.NoError(t, store.AppendUsage(types.UsageRecord{
		TimestampMs: 1, RunID: "r1", AgentID: "a1", SessionID: "s1",
		TriggerType: types.TriggerChat,
		Usage:       types.UsageState{TotalTokens: 42},
	}))

	path := filepath.Join(dir, "usage", "llm_usage.jsonl")
	assert.Equal(t, 1, countLines(t, path))
}
