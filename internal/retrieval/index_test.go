package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/pkg/types"
)

type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedding unavailable")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}
func (f *fakeEmbedder) ProviderID() string { return "fake" }
func (f *fakeEmbedder) ModelID() string    { return "fake-embed-1" }

func TestIndexEnsureMemoryFreshRebuildsOnDigestMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewJSONStore(t.TempDir())
	idx := NewIndex(store, nil, &fakeEmbedder{})

	require.NoError(t, idx.EnsureMemoryFresh(ctx, "hello world", 64, 8))
	meta1, ok, err := store.Meta(ctx, types.DomainMemory)
	require.NoError(t, err)
	require.True(t, ok)

	// same content, no rebuild should be necessary; digest stays equal.
	require.NoError(t, idx.EnsureMemoryFresh(ctx, "hello world", 64, 8))
	meta2, _, _ := store.Meta(ctx, types.DomainMemory)
	assert.Equal(t, meta1.Digest, meta2.Digest)

	require.NoError(t, idx.EnsureMemoryFresh(ctx, "goodbye world", 64, 8))
	meta3, _, _ := store.Meta(ctx, types.DomainMemory)
	assert.NotEqual(t, meta1.Digest, meta3.Digest)
}

func TestIndexRebuildToleratesEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	store := NewJSONStore(t.TempDir())
	idx := NewIndex(store, nil, &fakeEmbedder{fail: true})

	require.NoError(t, idx.EnsureMemoryFresh(ctx, "some content here", 64, 8))
	results, err := idx.Query(ctx, types.DomainMemory, "content", 5, 10, 0, 1.0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestIndexQueryFallsBackToJSONWhenPrimaryEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	jsonStore := NewJSONStore(dir)
	require.NoError(t, jsonStore.Replace(ctx, types.IndexMeta{Domain: types.DomainKnowledge, Digest: "d1"}, []types.Chunk{
		{Source: "a.md", Text: "the quick brown fox"},
	}))

	sqliteStore, err := OpenSQLiteStore(ctx, dir+"/retrieval.db")
	require.NoError(t, err)
	defer sqliteStore.Close()

	idx := NewIndex(sqliteStore, jsonStore, &fakeEmbedder{})
	results, err := idx.Query(ctx, types.DomainKnowledge, "fox", 5, 10, 0, 1.0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a.md", results[0].Source)
}
