package retrieval

import (
	"context"

	"github.com/agentmesh/runtime/pkg/types"
)

// EmbeddingClient embeds text into a vector. Failures are tolerated by
// callers: an embedding failure leaves an empty vector and records an
// error string rather than aborting the index rebuild or query.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ProviderID() string
	ModelID() string
}

// Store is the logical schema shared by both backends: per-domain index
// metadata plus its ordered chunk list, with hybrid retrieval on top.
type Store interface {
	// Meta returns the stored IndexMeta for domain, or ok=false if the
	// domain has never been indexed.
	Meta(ctx context.Context, domain types.RetrievalDomain) (types.IndexMeta, bool, error)

	// Replace atomically swaps a domain's chunks and meta (delete-then-
	// insert for SQLite; whole-file rewrite for JSON).
	Replace(ctx context.Context, meta types.IndexMeta, chunks []types.Chunk) error

	// Query runs the hybrid BM25+cosine retrieval algorithm over domain's
	// chunks and returns up to topK scored results, sorted descending,
	// with score<=0 discarded.
	Query(ctx context.Context, domain types.RetrievalDomain, queryVec []float32, terms []string, topK int, ftsPrefilterK int, semanticWeight, lexicalWeight float64) ([]types.ScoredChunk, error)

	Close() error
}
