package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// sanitizeParams floors chunking/query parameters to the values the spec
// requires: size>=64, overlap>=0 (and < size), top_k>=1.
func sanitizeParams(size, overlap, topK int) (int, int, int) {
	if size < 64 {
		size = 64
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	if topK < 1 {
		topK = 1
	}
	return size, overlap, topK
}

// ChunkText splits text into overlapping windows of size runes, stepping by
// max(1, size-overlap). The final partial window (if any) is included.
func ChunkText(text string, size, overlap int) []string {
	size, overlap, _ = sanitizeParams(size, overlap, 1)
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// MemoryDigest computes the cache key for the memory domain:
// sha256(json({content_hash, chunk_size, chunk_overlap})).
func MemoryDigest(content string, chunkSize, chunkOverlap int) string {
	contentHash := sha256.Sum256([]byte(content))
	return digestFields(map[string]any{
		"content_hash": hex.EncodeToString(contentHash[:]),
		"chunk_size":   chunkSize,
		"chunk_overlap": chunkOverlap,
	})
}

// FileStat is the subset of file metadata the knowledge digest hashes.
type FileStat struct {
	RelPath string
	MtimeNs int64
	Size    int64
}

// KnowledgeDigest computes the cache key for the knowledge domain, rolling
// over (relpath, mtime_ns, size) for every file plus the chunk parameters.
// Order-independent: callers need not pre-sort files.
func KnowledgeDigest(files []FileStat, chunkSize, chunkOverlap int) string {
	sorted := make([]FileStat, len(files))
	copy(sorted, files)
	sortFileStats(sorted)

	rows := make([]map[string]any, 0, len(sorted))
	for _, f := range sorted {
		rows = append(rows, map[string]any{
			"relpath": f.RelPath, "mtime_ns": f.MtimeNs, "size": f.Size,
		})
	}
	return digestFields(map[string]any{
		"files":         rows,
		"chunk_size":    chunkSize,
		"chunk_overlap": chunkOverlap,
	})
}

func sortFileStats(files []FileStat) {
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j-1].RelPath > files[j].RelPath; j-- {
			files[j-1], files[j] = files[j], files[j-1]
		}
	}
}

func digestFields(v any) string {
	buf, _ := json.Marshal(v)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// lexicalTerms lowercases and tokenizes the query on whitespace, dedupes,
// and caps at 24 tokens, matching the FTS prefilter's term budget.
func lexicalTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
		if len(out) >= 24 {
			break
		}
	}
	return out
}
