package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/internal/audit"
	"github.com/agentmesh/runtime/pkg/types"
)

func newHeartbeatWorkspace(t *testing.T, prompt string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "workspace"), 0o755))
	if prompt != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, "workspace", "HEARTBEAT.md"), []byte(prompt), 0o644))
	}
	return root
}

func lastHeartbeatLine(t *testing.T, dir string) types.HeartbeatRunRecord {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "heartbeat_runs.jsonl"))
	require.NoError(t, err)
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	require.NotEmpty(t, lines)
	var rec types.HeartbeatRunRecord
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &rec))
	return rec
}

func TestHeartbeatTickSkipsOutsideActiveWindow(t *testing.T) {
	root := newHeartbeatWorkspace(t, "do the thing")
	dir := t.TempDir()
	auditStore := audit.New(dir)
	invoker := &fakeInvoker{}

	// Pick a narrow active window guaranteed to exclude the current hour.
	now := time.Now().UTC().Hour()
	start := (now + 1) % 24
	end := (now + 2) % 24
	cfg := types.HeartbeatConfig{Enabled: true, Timezone: "UTC", ActiveStartHour: start, ActiveEndHour: end, SessionID: "hb"}

	sched := NewHeartbeatScheduler("default", root, cfg, auditStore, invoker)
	sched.Tick(context.Background())

	assert.Empty(t, invoker.calls)
	rec := lastHeartbeatLine(t, dir)
	assert.Equal(t, types.HeartbeatStatusSkippedOutsideWindow, rec.Status)
}

func TestHeartbeatTickSkipsCommentOnlyPrompt(t *testing.T) {
	root := newHeartbeatWorkspace(t, "# just a comment\n\n   \n")
	dir := t.TempDir()
	auditStore := audit.New(dir)
	invoker := &fakeInvoker{}

	cfg := types.HeartbeatConfig{Enabled: true, Timezone: "UTC", ActiveStartHour: 0, ActiveEndHour: 0, SessionID: "hb"}
	sched := NewHeartbeatScheduler("default", root, cfg, auditStore, invoker)
	sched.Tick(context.Background())

	assert.Empty(t, invoker.calls)
	rec := lastHeartbeatLine(t, dir)
	assert.Equal(t, types.HeartbeatStatusSkippedNoPrompt, rec.Status)
}

func TestHeartbeatTickInvokesRunTurnWithStrippedPrompt(t *testing.T) {
	root := newHeartbeatWorkspace(t, "# comment\nreal instruction\n\n")
	dir := t.TempDir()
	auditStore := audit.New(dir)
	invoker := &fakeInvoker{results: map[string]RunResult{"default": {Reply: "did the thing"}}}

	cfg := types.HeartbeatConfig{Enabled: true, Timezone: "UTC", ActiveStartHour: 0, ActiveEndHour: 0, SessionID: "hb"}
	sched := NewHeartbeatScheduler("default", root, cfg, auditStore, invoker)
	sched.Tick(context.Background())

	require.Len(t, invoker.calls, 1)
	assert.Equal(t, types.TriggerHeartbeat, invoker.calls[0].Trigger)
	assert.Equal(t, "real instruction", invoker.calls[0].Prompt)
	assert.Equal(t, types.HeartbeatOKReply, invoker.calls[0].SuppressPersistenceIfReply)

	rec := lastHeartbeatLine(t, dir)
	assert.Equal(t, types.HeartbeatStatusOK, rec.Status)
}

func TestInActiveWindowHandlesWraparoundAndAlwaysOn(t *testing.T) {
	assert.True(t, inActiveWindow(0, 0, 13))
	assert.True(t, inActiveWindow(22, 6, 23))
	assert.True(t, inActiveWindow(22, 6, 2))
	assert.False(t, inActiveWindow(22, 6, 10))
	assert.True(t, inActiveWindow(9, 17, 12))
	assert.False(t, inActiveWindow(9, 17, 20))
}
