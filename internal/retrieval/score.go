package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/agentmesh/runtime/pkg/types"
)

// cosine returns the cosine similarity of a and b, or 0 if either is empty
// (an embedding failure is treated as "no semantic signal" rather than an
// error).
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// lexicalCount sums the occurrence count of every term (as a substring) in
// the lowercased chunk text.
func lexicalCount(chunkTextLower string, terms []string) int {
	n := 0
	for _, t := range terms {
		if t == "" {
			continue
		}
		n += strings.Count(chunkTextLower, t)
	}
	return n
}

// scoreCandidates applies the hybrid score = semantic*wSem + lexical*wLex
// to every candidate chunk, discards score<=0, and returns the top-k
// results sorted descending by score.
func scoreCandidates(candidates []types.Chunk, queryVec []float32, terms []string, topK int, wSem, wLex float64) []types.ScoredChunk {
	results := make([]types.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		lower := strings.ToLower(c.Text)
		lexical := float64(lexicalCount(lower, terms))
		semantic := cosine(queryVec, c.Embedding)
		score := semantic*wSem + lexical*wLex
		if score <= 0 {
			continue
		}
		results = append(results, types.ScoredChunk{Text: c.Text, Source: c.Source, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
