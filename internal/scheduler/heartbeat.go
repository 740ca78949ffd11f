package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentmesh/runtime/internal/audit"
	"github.com/agentmesh/runtime/internal/logging"
	"github.com/agentmesh/runtime/pkg/types"
)

// HeartbeatScheduler fires a fixed-interval, timezone-windowed turn driven
// by workspace/HEARTBEAT.md, suppressing session persistence when the
// agent replies with the literal HEARTBEAT_OK sentinel.
type HeartbeatScheduler struct {
	agentID string
	root    string
	cfg     types.HeartbeatConfig
	audit   *audit.Store
	invoker RunInvoker

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHeartbeatScheduler builds a HeartbeatScheduler for one agent. root is
// the agent's workspace root (the directory containing workspace/, memory/,
// storage/, ...).
func NewHeartbeatScheduler(agentID, root string, cfg types.HeartbeatConfig, auditStore *audit.Store, invoker RunInvoker) *HeartbeatScheduler {
	return &HeartbeatScheduler{agentID: agentID, root: root, cfg: cfg, audit: auditStore, invoker: invoker}
}

// Start spawns the background tick loop, guarded by cfg.Enabled.
func (s *HeartbeatScheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled || s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	if interval < 30*time.Second {
		interval = 30 * time.Second
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
				s.Tick(ctx)
			}
		}
	}()
}

// Stop signals the background loop to exit and awaits its termination.
func (s *HeartbeatScheduler) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
	s.doneCh = nil
}

// Tick runs one heartbeat evaluation: window check, prompt read, turn
// invocation, and an audit row in every branch.
func (s *HeartbeatScheduler) Tick(ctx context.Context) {
	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)

	if !inActiveWindow(s.cfg.ActiveStartHour, s.cfg.ActiveEndHour, now.Hour()) {
		s.appendRun(types.HeartbeatStatusSkippedOutsideWindow, "")
		return
	}

	prompt, err := s.readPrompt()
	if err != nil {
		logging.Warn().Err(err).Str("agentId", s.agentID).Msg("scheduler: heartbeat prompt read failed")
	}
	if strings.TrimSpace(prompt) == "" {
		s.appendRun(types.HeartbeatStatusSkippedNoPrompt, "")
		return
	}

	runID := "heartbeat:" + now.Format("20060102T150405.000")
	result, err := s.invoker.RunTurn(ctx, RunRequest{
		AgentID: s.agentID, SessionID: s.cfg.SessionID, RunID: runID,
		Trigger: types.TriggerHeartbeat, Prompt: prompt,
		SuppressPersistenceIfReply: types.HeartbeatOKReply,
	})
	if err != nil {
		s.appendRun(types.HeartbeatStatusError, err.Error())
		return
	}
	s.appendRun(types.HeartbeatStatusOK, result.Reply)
}

func (s *HeartbeatScheduler) appendRun(status, details string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AppendHeartbeatRun(types.HeartbeatRunRecord{
		TimestampMs: time.Now().UnixMilli(), Status: status, Timezone: s.cfg.Timezone, Details: details,
	}); err != nil {
		logging.Warn().Err(err).Str("agentId", s.agentID).Msg("scheduler: heartbeat audit append failed")
	}
}

// readPrompt reads workspace/HEARTBEAT.md and strips blank lines and `#`
// comment lines; a file that is absent, blank, or comment-only yields an
// empty prompt, which disables the turn for this tick.
func (s *HeartbeatScheduler) readPrompt() (string, error) {
	path := filepath.Join(s.root, "workspace", "HEARTBEAT.md")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n"), nil
}

// inActiveWindow reports whether hour falls in [start, end), wrapping
// around midnight when start > end; start == end means always-on.
func inActiveWindow(start, end, hour int) bool {
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
