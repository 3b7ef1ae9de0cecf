// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/json"
)

const vectorSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	file_id     TEXT NOT NULL,
	chunk_id    TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	embedding   TEXT NOT NULL,
	metadata    TEXT NOT NULL,
	PRIMARY KEY (file_id, chunk_id)
);
CREATE INDEX IF NOT EXISTS chunks_file_id ON chunks (file_id);
`

// Filter is one equality predicate over chunk or file metadata. Filters
// compose as conjunctions.
type Filter struct {
	Key   string `json:"key"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// SearchResult is one similarity hit. Score is cosine similarity normalised
// into [0,1].
type SearchResult struct {
	FileID   string            `json:"file_id"`
	Score    float64           `json:"score"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Store is the persistent vector index. Search runs concurrently;
// Index/Delete serialise on the write lock.
type Store struct {
	db       *sql.DB
	embedder Embedder

	// writeMu serialises index mutations; reads go straight to SQLite.
	writeMu sync.Mutex
}

// NewStore opens the index database at path and verifies the schema.
func NewStore(path string, embedder Embedder) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(vectorSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise vector index schema: %w", err)
	}
	return &Store{db: db, embedder: embedder}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Index chunks, embeds and stores the given file content. Re-indexing a
// file id replaces its previous chunks. Extra metadata is attached to every
// chunk of the file.
func (s *Store) Index(ctx context.Context, fileID, filename string, r io.Reader, policy *ChunkingPolicy, metadata map[string]string) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("cannot read file content: %w", err)
	}
	p := DefaultChunkingPolicy
	if policy != nil {
		p = *policy
	}
	chunks := chunkText(string(raw), p)
	if len(chunks) == 0 {
		return apierror.New(apierror.KindInvalidRequest, "file %q has no indexable content", fileID)
	}

	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return err
	}
	for i, chunk := range chunks {
		meta := map[string]string{"file_id": fileID, "filename": filename}
		for k, v := range metadata {
			meta[k] = v
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		vecJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (file_id, chunk_id, chunk_index, content, embedding, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
			fileID, fmt.Sprintf("%s-%d", fileID, i), i, chunk, string(vecJSON), string(metaJSON),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes every chunk of the given file id.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID)
	return err
}

// GetMetadata returns the metadata of the first chunk of the file, or
// not_found.
func (s *Store) GetMetadata(ctx context.Context, fileID string) (map[string]string, error) {
	var metaJSON []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata FROM chunks WHERE file_id = ? ORDER BY chunk_index LIMIT 1`, fileID,
	).Scan(&metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierror.New(apierror.KindNotFound, "file %q is not indexed", fileID)
	} else if err != nil {
		return nil, err
	}
	meta := map[string]string{}
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Search embeds the query and returns the maxResults most similar chunks
// passing all filters, best first.
func (s *Store) Search(ctx context.Context, query string, maxResults int, filters []Filter) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	qvecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	qvec := qvecs[0]

	rows, err := s.db.QueryContext(ctx, `SELECT file_id, content, embedding, metadata FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var fileID, content string
		var vecJSON, metaJSON []byte
		if err := rows.Scan(&fileID, &content, &vecJSON, &metaJSON); err != nil {
			return nil, err
		}
		meta := map[string]string{}
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, err
		}
		if !matchesFilters(meta, filters) {
			continue
		}
		var vec []float32
		if err := json.Unmarshal(vecJSON, &vec); err != nil {
			return nil, err
		}
		if len(vec) != len(qvec) {
			return nil, apierror.New(apierror.KindInvalidConfiguration,
				"embedding dimension mismatch: index has %d, query has %d", len(vec), len(qvec))
		}
		results = append(results, SearchResult{
			FileID:   fileID,
			Score:    normalisedCosine(qvec, vec),
			Content:  content,
			Metadata: meta,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// matchesFilters applies the conjunction of equality filters to the chunk
// metadata. Unknown operators never match.
func matchesFilters(meta map[string]string, filters []Filter) bool {
	for _, f := range filters {
		if f.Op != "" && f.Op != "eq" {
			return false
		}
		if meta[f.Key] != fmt.Sprintf("%v", f.Value) {
			return false
		}
	}
	return true
}

// normalisedCosine maps cosine similarity from [-1,1] into [0,1].
func normalisedCosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return (1 + cos) / 2
}
