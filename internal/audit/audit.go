// Package audit implements the append-only JSONL stores every agent
// workspace carries under storage/: tool_audit.jsonl, the structured
// audit.{run,step,tool_call,message_link}.v1 logs, the usage ledger, and
// the scheduler run/failure logs. Every append is a single physical line
// guarded by the same per-file lock the storage subsystem uses for its
// atomic writes; that lock is not reentrant.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentmesh/runtime/internal/storage"
	"github.com/agentmesh/runtime/pkg/types"
)

const (
	SchemaRun         = "audit.run.v1"
	SchemaStep        = "audit.step.v1"
	SchemaToolCall    = "audit.tool_call.v1"
	SchemaMessageLink = "audit.message_link.v1"
)

// Store appends JSONL records under a single agent's storage/ directory.
type Store struct {
	dir   string
	locks map[string]*storage.FileLock
}

// New returns a Store rooted at storageDir (an agent's storage/ directory).
func New(storageDir string) *Store {
	return &Store{dir: storageDir, locks: make(map[string]*storage.FileLock)}
}

func (s *Store) lockFor(path string) *storage.FileLock {
	lock, ok := s.locks[path]
	if !ok {
		lock = storage.NewFileLock(path)
		s.locks[path] = lock
	}
	return lock
}

// Append writes one JSON-encoded record as a single line to relPath
// (relative to the store's directory), creating parent directories and the
// file as needed.
func (s *Store) Append(relPath string, record any) error {
	path := filepath.Join(s.dir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("audit: mkdir: %w", err)
	}

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("audit: lock: %w", err)
	}
	defer lock.Unlock()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit: marshal: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	return nil
}

// RunRecord is one audit.run.v1 line: a completed orchestrator run.
type RunRecord struct {
	Schema      string            `json:"schema"`
	TimestampMs int64             `json:"timestampMs"`
	RunID       string            `json:"runId"`
	SessionID   string            `json:"sessionId"`
	AgentID     string            `json:"agentId"`
	TriggerType types.TriggerType `json:"triggerType"`
	Attempt     int               `json:"attempt"`
	Done        bool              `json:"done"`
	Error       string            `json:"error,omitempty"`
}

// StepRecord is one audit.step.v1 line: a single model turn within a run.
type StepRecord struct {
	Schema      string            `json:"schema"`
	TimestampMs int64             `json:"timestampMs"`
	RunID       string            `json:"runId"`
	SessionID   string            `json:"sessionId"`
	TriggerType types.TriggerType `json:"triggerType"`
	Step        int               `json:"step"`
	FinishReason string           `json:"finishReason,omitempty"`
}

// ToolCallRecord is one audit.tool_call.v1 line: cross-reference into
// tool_audit.jsonl for a single call's structured outcome.
type ToolCallRecord struct {
	Schema      string            `json:"schema"`
	TimestampMs int64             `json:"timestampMs"`
	RunID       string            `json:"runId"`
	SessionID   string            `json:"sessionId"`
	TriggerType types.TriggerType `json:"triggerType"`
	CallID      string            `json:"callId"`
	ToolName    string            `json:"toolName"`
	OK          bool              `json:"ok"`
	Code        types.ErrorCode   `json:"code,omitempty"`
	DurationMs  int64             `json:"durationMs"`
}

// MessageLinkRecord is one audit.message_link.v1 line: ties a persisted
// assistant segment back to the run that produced it.
type MessageLinkRecord struct {
	Schema      string            `json:"schema"`
	TimestampMs int64             `json:"timestampMs"`
	RunID       string            `json:"runId"`
	SessionID   string            `json:"sessionId"`
	TriggerType types.TriggerType `json:"triggerType"`
	MessageIdx  int               `json:"messageIdx"`
}

func (s *Store) AppendRun(r RunRecord) error {
	r.Schema = SchemaRun
	return s.Append(filepath.Join("audit", "runs.jsonl"), r)
}

func (s *Store) AppendStep(r StepRecord) error {
	r.Schema = SchemaStep
	return s.Append(filepath.Join("audit", "steps.jsonl"), r)
}

func (s *Store) AppendToolCall(r ToolCallRecord) error {
	r.Schema = SchemaToolCall
	return s.Append(filepath.Join("audit", "tool_calls.jsonl"), r)
}

func (s *Store) AppendMessageLink(r MessageLinkRecord) error {
	r.Schema = SchemaMessageLink
	return s.Append(filepath.Join("audit", "message_links.jsonl"), r)
}

// AppendToolAudit appends a redacted tool_start/tool_end line to the flat
// (non-schema-versioned) tool audit trail the Tool Sandbox writes directly.
func (s *Store) AppendToolAudit(record map[string]any) error {
	return s.Append("tool_audit.jsonl", record)
}

// AppendUsage appends a completed run's usage totals to the usage ledger.
func (s *Store) AppendUsage(r types.UsageRecord) error {
	return s.Append(filepath.Join("usage", "llm_usage.jsonl"), r)
}

// AppendCronRun appends a scheduler run-outcome record.
func (s *Store) AppendCronRun(r types.CronRunRecord) error {
	return s.Append("cron_runs.jsonl", r)
}

// AppendCronFailure appends a scheduler failure record and trims the file to
// the configured retention (keeping the most recent `retention` rows).
func (s *Store) AppendCronFailure(r types.CronFailureRecord, retention int) error {
	if err := s.Append("cron_failures.jsonl", r); err != nil {
		return err
	}
	return s.trimJSONL("cron_failures.jsonl", retention)
}

// AppendHeartbeatRun appends a heartbeat tick outcome record.
func (s *Store) AppendHeartbeatRun(r types.HeartbeatRunRecord) error {
	return s.Append("heartbeat_runs.jsonl", r)
}

// trimJSONL rewrites relPath to keep only its last `retention` lines.
func (s *Store) trimJSONL(relPath string, retention int) error {
	if retention <= 0 {
		return nil
	}
	path := filepath.Join(s.dir, relPath)

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("audit: lock: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("audit: read: %w", err)
	}

	lines := splitNonEmptyLines(data)
	if len(lines) <= retention {
		return nil
	}
	lines = lines[len(lines)-retention:]

	tmp := path + ".tmp"
	out := make([]byte, 0, len(data))
	for _, l := range lines {
		out = append(out, l...)
		out = append(out, '\n')
	}
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("audit: write trimmed: %w", err)
	}
	return os.Rename(tmp, path)
}

// ReadLines returns the last `limit` JSON-line records from relPath, oldest
// first. A limit <= 0 returns every line. A missing file yields an empty,
// non-nil slice rather than an error.
func (s *Store) ReadLines(relPath string, limit int) ([]json.RawMessage, error) {
	path := filepath.Join(s.dir, relPath)

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("audit: lock: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("audit: read: %w", err)
	}

	lines := splitNonEmptyLines(data)
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	out := make([]json.RawMessage, len(lines))
	for i, l := range lines {
		out[i] = json.RawMessage(append([]byte{}, l...))
	}
	return out, nil
}

func splitNonEmptyLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
