// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/json"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS responses (
	id          TEXT PRIMARY KEY,
	response    TEXT NOT NULL,
	input_items TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
`

// SQLiteStore is the durable response store backed by a local SQLite
// database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed initialises) the database at path.
// Pass ":memory:" for an in-process database in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY
	// under concurrent puts.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Put implements [ResponseStore.Put].
func (s *SQLiteStore) Put(ctx context.Context, resp *openai.Response, items []openai.ResponseInputItemUnion) error {
	respJSON, itemsJSON, err := encode(resp, items)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var prevResp, prevItems []byte
	err = tx.QueryRowContext(ctx, `SELECT response, input_items FROM responses WHERE id = ?`, resp.ID).Scan(&prevResp, &prevItems)
	switch {
	case err == nil:
		if equalStored(prevResp, prevItems, respJSON, itemsJSON) {
			return nil
		}
		return errConflict(resp.ID)
	case errors.Is(err, sql.ErrNoRows):
	default:
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO responses (id, response, input_items, created_at) VALUES (?, ?, ?, ?)`,
		resp.ID, string(respJSON), string(itemsJSON), resp.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Get implements [ResponseStore.Get].
func (s *SQLiteStore) Get(ctx context.Context, id string) (*openai.Response, error) {
	var respJSON []byte
	err := s.db.QueryRowContext(ctx, `SELECT response FROM responses WHERE id = ?`, id).Scan(&respJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound(id)
	} else if err != nil {
		return nil, err
	}
	resp := &openai.Response{}
	if err := json.Unmarshal(respJSON, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetInputItems implements [ResponseStore.GetInputItems].
func (s *SQLiteStore) GetInputItems(ctx context.Context, id string) ([]openai.ResponseInputItemUnion, error) {
	var itemsJSON []byte
	err := s.db.QueryRowContext(ctx, `SELECT input_items FROM responses WHERE id = ?`, id).Scan(&itemsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound(id)
	} else if err != nil {
		return nil, err
	}
	var items []openai.ResponseInputItemUnion
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete implements [ResponseStore.Delete].
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNotFound(id)
	}
	return nil
}

// Close implements [ResponseStore.Close].
func (s *SQLiteStore) Close() error { return s.db.Close() }
