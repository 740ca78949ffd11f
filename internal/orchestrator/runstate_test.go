package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/internal/event"
)

func TestRunManagerBeginRejectsDifferentMessageForSameSession(t *testing.T) {
	m := NewRunManager()

	rs1, attached, err := m.Begin("agent-1", "sess-1", "run-1", "hello")
	require.NoError(t, err)
	assert.False(t, attached)
	require.NotNil(t, rs1)

	_, _, err = m.Begin("agent-1", "sess-1", "run-2", "a different message")
	assert.ErrorIs(t, err, ErrSessionBusy)
}

func TestRunManagerBeginAttachesToIdenticalMessage(t *testing.T) {
	m := NewRunManager()

	rs1, _, err := m.Begin("agent-1", "sess-1", "run-1", "hello")
	require.NoError(t, err)

	rs2, attached, err := m.Begin("agent-1", "sess-1", "run-2", "hello")
	require.NoError(t, err)
	assert.True(t, attached)
	assert.Same(t, rs1, rs2)
}

func TestRunManagerFinishRemovesFromActiveMap(t *testing.T) {
	m := NewRunManager()
	rs, _, err := m.Begin("agent-1", "sess-1", "run-1", "hello")
	require.NoError(t, err)

	rs.Finish()

	_, ok := m.Lookup("agent-1", "sess-1")
	assert.False(t, ok)

	// A fresh Begin for the same key now succeeds rather than reporting busy.
	_, attached, err := m.Begin("agent-1", "sess-1", "run-2", "a new message")
	require.NoError(t, err)
	assert.False(t, attached)
}

func TestRunStateSubscribeReceivesEmittedEvents(t *testing.T) {
	m := NewRunManager()
	rs, _, err := m.Begin("agent-1", "sess-1", "run-1", "hello")
	require.NoError(t, err)

	ch, unsubscribe := rs.Subscribe()
	defer unsubscribe()

	rs.Emit(event.Event{Type: event.EventToken, Data: event.TokenData{RunID: "run-1", Delta: "hi"}})

	select {
	case e := <-ch:
		assert.Equal(t, event.EventToken, e.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emitted event")
	}
}

func TestRunStateSubscribeAfterFinishReturnsClosedChannel(t *testing.T) {
	m := NewRunManager()
	rs, _, err := m.Begin("agent-1", "sess-1", "run-1", "hello")
	require.NoError(t, err)
	rs.Finish()

	ch, _ := rs.Subscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestEphemeralRunStateFinishDoesNotPanicWithoutManager(t *testing.T) {
	rs := NewEphemeralRunState("agent-1", "sess-1", "run-1", "hello")
	assert.NotPanics(t, func() { rs.Finish() })
	select {
	case <-rs.Done():
	default:
		t.Fatal("Done() channel was not closed by Finish()")
	}
}
