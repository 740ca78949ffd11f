package scheduler

import (
	"context"

	"github.com/agentmesh/runtime/pkg/types"
)

// RunRequest is the narrow slice of the Run Orchestrator's turn API the
// schedulers need; it exists so this package has no compile-time
// dependency on the (separately built) orchestrator package.
type RunRequest struct {
	AgentID   string
	SessionID string
	RunID     string
	Trigger   types.TriggerType
	Prompt    string

	// SuppressPersistenceIfReply, when non-empty, tells the orchestrator
	// to audit the turn but skip persisting the user/assistant pair to
	// the session transcript when the reply equals this string exactly
	// (the heartbeat scheduler's HEARTBEAT_OK convention).
	SuppressPersistenceIfReply string
}

// RunResult is the orchestrator's answer to a scheduler-driven turn.
type RunResult struct {
	Reply string
}

// RunInvoker drives one agent turn. Implemented by the Run Orchestrator.
type RunInvoker interface {
	RunTurn(ctx context.Context, req RunRequest) (RunResult, error)
}
