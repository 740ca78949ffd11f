package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo

	"github.com/agentmesh/runtime/pkg/types"
)

const schemaVersion = 1

// SQLiteStore is the default backend: index_meta + chunks tables plus an
// FTS5 virtual table for lexical prefiltering. A single shared connection
// (SetMaxOpenConns(1)) serializes all access to avoid SQLITE_BUSY from
// concurrent writers; WAL journaling still gives readers concurrency.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writers per db path, per the concurrency model
}

// OpenSQLiteStore opens (creating if absent) the SQLite database at path
// and ensures the schema exists.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("retrieval: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS index_meta (
			domain TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			chunk_size INTEGER NOT NULL,
			chunk_overlap INTEGER NOT NULL,
			embedding_provider TEXT,
			embedding_model TEXT,
			updated_ms INTEGER NOT NULL,
			schema_version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY,
			domain TEXT NOT NULL,
			source TEXT NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding_json TEXT
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			chunk_text, content='chunks', content_rowid='id'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_domain ON chunks(domain)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("retrieval: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Meta(ctx context.Context, domain types.RetrievalDomain) (types.IndexMeta, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT domain, digest, chunk_size, chunk_overlap,
		embedding_provider, embedding_model, updated_ms, schema_version
		FROM index_meta WHERE domain = ?`, string(domain))

	var m types.IndexMeta
	var d string
	if err := row.Scan(&d, &m.Digest, &m.ChunkSize, &m.ChunkOverlap,
		&m.EmbeddingProvider, &m.EmbeddingModel, &m.UpdatedMs, &m.SchemaVersion); err != nil {
		if err == sql.ErrNoRows {
			return types.IndexMeta{}, false, nil
		}
		return types.IndexMeta{}, false, fmt.Errorf("retrieval: meta: %w", err)
	}
	m.Domain = types.RetrievalDomain(d)
	return m, true, nil
}

// Replace atomically swaps a domain's rows: delete-then-insert within a
// transaction, upserting index_meta via ON CONFLICT DO UPDATE.
func (s *SQLiteStore) Replace(ctx context.Context, meta types.IndexMeta, chunks []types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("retrieval: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE rowid IN (SELECT id FROM chunks WHERE domain = ?)`, string(meta.Domain)); err != nil {
		return fmt.Errorf("retrieval: delete fts rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE domain = ?`, string(meta.Domain)); err != nil {
		return fmt.Errorf("retrieval: delete rows: %w", err)
	}

	insertChunk, err := tx.PrepareContext(ctx, `INSERT INTO chunks (domain, source, chunk_text, embedding_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertChunk.Close()

	insertFTS, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts (rowid, chunk_text) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer insertFTS.Close()

	for _, c := range chunks {
		embJSON, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("retrieval: marshal embedding: %w", err)
		}
		res, err := insertChunk.ExecContext(ctx, string(meta.Domain), c.Source, c.Text, string(embJSON))
		if err != nil {
			return fmt.Errorf("retrieval: insert chunk: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := insertFTS.ExecContext(ctx, id, c.Text); err != nil {
			return fmt.Errorf("retrieval: insert fts row: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta
		(domain, digest, chunk_size, chunk_overlap, embedding_provider, embedding_model, updated_ms, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			digest=excluded.digest, chunk_size=excluded.chunk_size, chunk_overlap=excluded.chunk_overlap,
			embedding_provider=excluded.embedding_provider, embedding_model=excluded.embedding_model,
			updated_ms=excluded.updated_ms, schema_version=excluded.schema_version`,
		string(meta.Domain), meta.Digest, meta.ChunkSize, meta.ChunkOverlap,
		meta.EmbeddingProvider, meta.EmbeddingModel, meta.UpdatedMs, schemaVersion,
	); err != nil {
		return fmt.Errorf("retrieval: upsert meta: %w", err)
	}

	return tx.Commit()
}

// Query runs the FTS5 prefilter (or most-recent-by-id fallback when the
// FTS query returns nothing), then applies the hybrid score over the
// candidate set.
func (s *SQLiteStore) Query(ctx context.Context, domain types.RetrievalDomain, queryVec []float32, terms []string, topK, ftsPrefilterK int, semanticWeight, lexicalWeight float64) ([]types.ScoredChunk, error) {
	limit := topK
	if ftsPrefilterK > limit {
		limit = ftsPrefilterK
	}

	candidates, err := s.ftsCandidates(ctx, domain, terms, limit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		candidates, err = s.recentCandidates(ctx, domain, limit)
		if err != nil {
			return nil, err
		}
	}
	return scoreCandidates(candidates, queryVec, terms, topK, semanticWeight, lexicalWeight), nil
}

func (s *SQLiteStore) ftsCandidates(ctx context.Context, domain types.RetrievalDomain, terms []string, limit int) ([]types.Chunk, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	matchQuery := strings.Join(quoted, " OR ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.source, c.chunk_text, c.embedding_json
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		WHERE f.chunk_text MATCH ? AND c.domain = ?
		ORDER BY bm25(f) ASC
		LIMIT ?`, matchQuery, string(domain), limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: fts query: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteStore) recentCandidates(ctx context.Context, domain types.RetrievalDomain, limit int) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, chunk_text, embedding_json FROM chunks
		WHERE domain = ? ORDER BY id DESC LIMIT ?`, string(domain), limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: recent query: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]types.Chunk, error) {
	var out []types.Chunk
	for rows.Next() {
		var c types.Chunk
		var embJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.Source, &c.Text, &embJSON); err != nil {
			return nil, fmt.Errorf("retrieval: scan chunk: %w", err)
		}
		if embJSON.Valid && embJSON.String != "" {
			_ = json.Unmarshal([]byte(embJSON.String), &c.Embedding)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
