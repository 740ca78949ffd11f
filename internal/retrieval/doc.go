// Package retrieval implements the content-addressed chunk+embedding
// index: chunking, digesting, a pure-Go SQLite+FTS5 backend with a JSON
// fallback and auto-migration between them, and hybrid BM25+cosine
// retrieval scoring.
package retrieval
