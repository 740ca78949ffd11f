package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/pkg/types"
)

func TestSessionStoreCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(t.TempDir())

	sess, err := store.Create(ctx, "agent-1")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestSessionStoreArchiveAndRestore(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(t.TempDir())

	sess, err := store.Create(ctx, "agent-1")
	require.NoError(t, err)

	archived, err := store.Archive(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived())

	list, err := store.List(ctx, "active")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = store.List(ctx, "archived")
	require.NoError(t, err)
	require.Len(t, list, 1)

	restored, err := store.Restore(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsArchived())
}

func TestSessionStoreCompressRefusesFewerThanFourMessages(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(t.TempDir())

	sess, err := store.Create(ctx, "agent-1")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessages(ctx, sess,
		types.Message{Role: types.RoleUser, Content: "hi"},
		types.Message{Role: types.RoleAssistant, Content: "hello"},
	))

	_, err = store.Compress(ctx, sess.ID, "summary")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSessionStoreCompressSnapshotsAndReplacesTranscript(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(t.TempDir())

	sess, err := store.Create(ctx, "agent-1")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessages(ctx, sess,
		types.Message{Role: types.RoleUser, Content: "1"},
		types.Message{Role: types.RoleAssistant, Content: "2"},
		types.Message{Role: types.RoleUser, Content: "3"},
		types.Message{Role: types.RoleAssistant, Content: "4"},
	))

	compressed, err := store.Compress(ctx, sess.ID, "a short summary")
	require.NoError(t, err)
	assert.Equal(t, "a short summary", compressed.CompressedContext)
	assert.Empty(t, compressed.Messages)
}

func TestSessionStoreSetLiveResponseAndClearOnAppend(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(t.TempDir())

	sess, err := store.Create(ctx, "agent-1")
	require.NoError(t, err)

	require.NoError(t, store.SetLiveResponse(ctx, sess.ID, &types.LiveResponse{RunID: "r1", Content: "partial"}))
	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LiveResponse)
	assert.Equal(t, "partial", got.LiveResponse.Content)

	require.NoError(t, store.AppendMessages(ctx, got, types.Message{Role: types.RoleUser, Content: "done"}))
	got, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LiveResponse)
}
