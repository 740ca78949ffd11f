package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentmesh/runtime/pkg/types"
)

func TestCosineIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosine(v, v), 1e-9)
}

func TestCosineEmptyVectorIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosine(nil, []float32{1, 2}))
}

func TestScoreCandidatesDiscardsNonPositive(t *testing.T) {
	candidates := []types.Chunk{
		{Source: "a.md", Text: "apples and oranges", Embedding: nil},
		{Source: "b.md", Text: "nothing relevant here", Embedding: nil},
	}
	out := scoreCandidates(candidates, nil, []string{"apples"}, 5, 0.7, 0.3)
	assert.Len(t, out, 1)
	assert.Equal(t, "a.md", out[0].Source)
}

func TestScoreCandidatesSortsDescendingAndCapsTopK(t *testing.T) {
	candidates := []types.Chunk{
		{Source: "low", Text: "apple", Embedding: nil},
		{Source: "high", Text: "apple apple apple", Embedding: nil},
	}
	out := scoreCandidates(candidates, nil, []string{"apple"}, 1, 0, 1.0)
	assert.Len(t, out, 1)
	assert.Equal(t, "high", out[0].Source)
}
