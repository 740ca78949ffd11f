package retrieval

import (
	"context"
	"time"

	"github.com/agentmesh/runtime/internal/logging"
	"github.com/agentmesh/runtime/pkg/types"
)

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// KnowledgeFile is one source file contributing to the knowledge domain's
// digest and chunk set.
type KnowledgeFile struct {
	RelPath string
	Content string
	MtimeNs int64
	Size    int64
}

// Index wires a Store to an embedding client and implements the rebuild
// and retrieval algorithm on top of it. primary is queried first; when
// primary is SQLite-backed and a query returns nothing, jsonFallback (if
// set) is scanned in full, covering small or uninitialized corpora.
type Index struct {
	primary      Store
	jsonFallback *JSONStore
	embedClient  EmbeddingClient
}

// NewIndex builds an Index. jsonFallback may be nil when primary is
// already the JSON backend.
func NewIndex(primary Store, jsonFallback *JSONStore, embedClient EmbeddingClient) *Index {
	return &Index{primary: primary, jsonFallback: jsonFallback, embedClient: embedClient}
}

// EnsureMemoryFresh rebuilds the memory domain's index when content's
// digest no longer matches the stored one.
func (idx *Index) EnsureMemoryFresh(ctx context.Context, content string, chunkSize, chunkOverlap int) error {
	chunkSize, chunkOverlap, _ = sanitizeParams(chunkSize, chunkOverlap, 1)
	digest := MemoryDigest(content, chunkSize, chunkOverlap)

	meta, ok, err := idx.primary.Meta(ctx, types.DomainMemory)
	if err != nil {
		return err
	}
	if ok && meta.Digest == digest {
		return nil
	}
	return idx.rebuild(ctx, types.DomainMemory, digest, chunkSize, chunkOverlap, ChunkText(content, chunkSize, chunkOverlap), []string{"memory"})
}

// EnsureKnowledgeFresh rebuilds the knowledge domain's index when the
// rolled-up digest over files no longer matches the stored one.
func (idx *Index) EnsureKnowledgeFresh(ctx context.Context, files []KnowledgeFile, chunkSize, chunkOverlap int) error {
	chunkSize, chunkOverlap, _ = sanitizeParams(chunkSize, chunkOverlap, 1)

	stats := make([]FileStat, len(files))
	byPath := make(map[string]string, len(files))
	for i, f := range files {
		stats[i] = FileStat{RelPath: f.RelPath, MtimeNs: f.MtimeNs, Size: f.Size}
		byPath[f.RelPath] = f.Content
	}
	digest := KnowledgeDigest(stats, chunkSize, chunkOverlap)

	meta, ok, err := idx.primary.Meta(ctx, types.DomainKnowledge)
	if err != nil {
		return err
	}
	if ok && meta.Digest == digest {
		return nil
	}

	var texts []string
	var sources []string
	for _, f := range files {
		for _, chunk := range ChunkText(f.Content, chunkSize, chunkOverlap) {
			texts = append(texts, chunk)
			sources = append(sources, f.RelPath)
		}
	}
	return idx.rebuild(ctx, types.DomainKnowledge, digest, chunkSize, chunkOverlap, texts, sources)
}

func (idx *Index) rebuild(ctx context.Context, domain types.RetrievalDomain, digest string, chunkSize, chunkOverlap int, texts, sources []string) error {
	chunks := make([]types.Chunk, len(texts))
	for i, text := range texts {
		source := ""
		if i < len(sources) {
			source = sources[i]
		}
		chunks[i] = types.Chunk{Source: source, Text: text}

		vec, err := idx.embedClient.Embed(ctx, text)
		if err != nil {
			logging.Warn().Str("domain", string(domain)).Err(err).Msg("retrieval: embedding failed, leaving empty vector")
			continue
		}
		chunks[i].Embedding = vec
	}

	meta := types.IndexMeta{
		Domain:        domain,
		Digest:        digest,
		ChunkSize:     chunkSize,
		ChunkOverlap:  chunkOverlap,
		UpdatedMs:     nowMs(),
		SchemaVersion: schemaVersion,
	}
	if idx.embedClient != nil {
		meta.EmbeddingProvider = idx.embedClient.ProviderID()
		meta.EmbeddingModel = idx.embedClient.ModelID()
	}
	return idx.primary.Replace(ctx, meta, chunks)
}

// Query implements the retrieval algorithm: lexical term extraction, a
// single query embedding, hybrid scoring via the primary store, and a
// JSON full-scan fallback when the primary backend yields nothing.
func (idx *Index) Query(ctx context.Context, domain types.RetrievalDomain, query string, topK, ftsPrefilterK int, semanticWeight, lexicalWeight float64) ([]types.ScoredChunk, error) {
	terms := lexicalTerms(query)

	var queryVec []float32
	if idx.embedClient != nil {
		vec, err := idx.embedClient.Embed(ctx, query)
		if err != nil {
			logging.Warn().Str("domain", string(domain)).Err(err).Msg("retrieval: query embedding failed, falling back to lexical only")
		} else {
			queryVec = vec
		}
	}

	results, err := idx.primary.Query(ctx, domain, queryVec, terms, topK, ftsPrefilterK, semanticWeight, lexicalWeight)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && idx.jsonFallback != nil {
		return idx.jsonFallback.Query(ctx, domain, queryVec, terms, topK, ftsPrefilterK, semanticWeight, lexicalWeight)
	}
	return results, nil
}

// Meta returns the stored IndexMeta for domain, for callers (the HTTP
// files/index endpoint) that only need digest/freshness bookkeeping rather
// than a query.
func (idx *Index) Meta(ctx context.Context, domain types.RetrievalDomain) (types.IndexMeta, bool, error) {
	return idx.primary.Meta(ctx, domain)
}

func (idx *Index) Close() error {
	return idx.primary.Close()
}
