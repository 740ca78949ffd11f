package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/pkg/types"
)

func TestSQLiteStoreReplaceThenQueryRoundTrips(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "retrieval.db")
	store, err := OpenSQLiteStore(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()

	meta := types.IndexMeta{Domain: types.DomainKnowledge, Digest: "abc", ChunkSize: 512, ChunkOverlap: 64, UpdatedMs: 1}
	chunks := []types.Chunk{
		{Source: "a.md", Text: "the quick brown fox"},
		{Source: "b.md", Text: "fox fox fox jumps"},
	}
	require.NoError(t, store.Replace(ctx, meta, chunks))

	got, ok, err := store.Meta(ctx, types.DomainKnowledge)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc", got.Digest)

	results, err := store.Query(ctx, types.DomainKnowledge, nil, []string{"fox"}, 5, 10, 0, 1.0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "b.md", results[0].Source)
}

func TestSQLiteStoreMetaMissingDomainIsNotFound(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "retrieval.db")
	store, err := OpenSQLiteStore(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Meta(ctx, types.DomainMemory)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteStoreReplaceIsIdempotentOnRerun(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "retrieval.db")
	store, err := OpenSQLiteStore(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()

	meta := types.IndexMeta{Domain: types.DomainMemory, Digest: "v1", UpdatedMs: 1}
	chunks := []types.Chunk{{Source: "m.md", Text: "hello world"}}
	require.NoError(t, store.Replace(ctx, meta, chunks))

	meta.Digest = "v2"
	chunks = []types.Chunk{{Source: "m.md", Text: "goodbye world"}}
	require.NoError(t, store.Replace(ctx, meta, chunks))

	got, ok, err := store.Meta(ctx, types.DomainMemory)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", got.Digest)

	results, err := store.Query(ctx, types.DomainMemory, nil, []string{"hello"}, 5, 10, 0, 1.0)
	require.NoError(t, err)
	require.Empty(t, results)
}
