package orchestrator

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/agentmesh/runtime/internal/event"
	"github.com/agentmesh/runtime/pkg/types"
)

// ErrSessionBusy is returned by RunManager.Begin when a different message
// targets a (agent_id, session_id) pair that already has an active run.
var ErrSessionBusy = errors.New("orchestrator: session busy")

// subscriberQueueCap bounds each SSE subscriber's pending-event queue.
const subscriberQueueCap = 512

// subscriber is one SSE client's bounded, non-blocking event queue.
type subscriber struct {
	id uint64
	ch chan event.Event
}

// send enqueues e, dropping the oldest pending event and retrying once if
// the queue is full. The producer (RunState.Emit) is never blocked.
func (s *subscriber) send(e event.Event) {
	select {
	case s.ch <- e:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- e:
	default:
	}
}

// RunState is the process-wide record of one active run, fanning events
// out to every subscribed SSE client.
type RunState struct {
	RunID     string
	AgentID   string
	SessionID string
	Message   string

	manager *RunManager
	key     string

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	done   bool

	doneCh chan struct{}

	// FinalReply/FinalUsage/FinalErr are set once, immediately before
	// Finish, so a non-streaming caller can block on <-Done() and read
	// the turn's outcome without subscribing to the event fan-out.
	FinalReply string
	FinalUsage types.UsageState
	FinalErr   error
}

// newRunState builds a RunState; manager may be nil for a scheduler-driven
// turn that is never registered in any RunManager's active map (no SSE
// client can ever attach to it).
func newRunState(manager *RunManager, key, agentID, sessionID, runID, message string) *RunState {
	return &RunState{
		RunID: runID, AgentID: agentID, SessionID: sessionID, Message: message,
		manager: manager, key: key, subs: make(map[uint64]*subscriber), doneCh: make(chan struct{}),
	}
}

// NewEphemeralRunState builds a RunState for a scheduler-driven turn: it
// fans events onto the global event bus (for logging/audit consumers) but
// is never registered in a RunManager, so no session_busy bookkeeping or
// SSE subscription applies to it.
func NewEphemeralRunState(agentID, sessionID, runID, message string) *RunState {
	return newRunState(nil, "", agentID, sessionID, runID, message)
}

// Done returns a channel closed once the run has finished, for a
// non-streaming caller to block on.
func (r *RunState) Done() <-chan struct{} {
	return r.doneCh
}

// Subscribe attaches a new SSE client to this run, returning its event
// channel and an unsubscribe function. Subscribing to a run that has
// already finished returns a closed channel immediately.
func (r *RunState) Subscribe() (<-chan event.Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := &subscriber{id: atomic.AddUint64(&r.nextID, 1), ch: make(chan event.Event, subscriberQueueCap)}
	if r.done {
		close(sub.ch)
		return sub.ch, func() {}
	}
	r.subs[sub.id] = sub
	return sub.ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, sub.id)
	}
}

// Emit fans e out to every current subscriber and publishes it on the
// package-global event bus for non-SSE consumers (audit, logging).
func (r *RunState) Emit(e event.Event) {
	event.Publish(e)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		sub.send(e)
	}
}

// Finish closes every subscriber channel (the generator has reached
// done/error) and removes the run from its manager's active map.
func (r *RunState) Finish() {
	r.mu.Lock()
	r.done = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
	close(r.doneCh)
	if r.manager != nil {
		r.manager.finish(r.key)
	}
}

// RunManager is the process-wide map of active runs keyed by
// (agent_id, session_id), implementing the session_busy decoupling rule:
// a second chat request with a different message for the same key is
// rejected, while an identical-message request attaches to the run
// already in flight.
type RunManager struct {
	mu     sync.Mutex
	active map[string]*RunState
}

// NewRunManager builds an empty RunManager.
func NewRunManager() *RunManager {
	return &RunManager{active: make(map[string]*RunState)}
}

func runKey(agentID, sessionID string) string {
	return agentID + "\x00" + sessionID
}

// Begin registers a new run for (agentID, sessionID, runID, message), or
// attaches to an existing one when message matches exactly. attached
// reports whether the returned state was already running rather than
// freshly created.
func (m *RunManager) Begin(agentID, sessionID, runID, message string) (state *RunState, attached bool, err error) {
	key := runKey(agentID, sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[key]; ok {
		if existing.Message == message {
			return existing, true, nil
		}
		return nil, false, ErrSessionBusy
	}

	rs := newRunState(m, key, agentID, sessionID, runID, message)
	m.active[key] = rs
	return rs, false, nil
}

// Lookup returns the active run for (agentID, sessionID), if any.
func (m *RunManager) Lookup(agentID, sessionID string) (*RunState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.active[runKey(agentID, sessionID)]
	return rs, ok
}

func (m *RunManager) finish(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, key)
}
