// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package filestore persists uploaded files: raw content on disk under the
// configured storage root, metadata in SQLite. Files uploaded with purpose
// "assistants" become candidates for file_search indexing.
package filestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/masaic-ai/open-responses/internal/apierror"
)

const fileSchema = `
CREATE TABLE IF NOT EXISTS files (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	purpose    TEXT NOT NULL,
	bytes      INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS files_purpose ON files (purpose);
`

// Purposes recognised on upload.
var validPurposes = map[string]struct{}{
	"assistants": {},
	"batch":      {},
	"fine_tune":  {},
	"vision":     {},
	"user_data":  {},
	"evals":      {},
}

// File is the stored metadata, rendered verbatim as the API file object.
type File struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
}

// Store is the file repository. Content lives at <dir>/<id>; metadata in the
// files table.
type Store struct {
	dir string
	db  *sql.DB
	now func() time.Time
}

// NewStore creates the storage directory if needed and opens the metadata
// database.
func NewStore(dir, dbPath string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("cannot create file storage directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file metadata database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(fileSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise file metadata schema: %w", err)
	}
	return &Store{dir: dir, db: db, now: time.Now}, nil
}

// Close releases the metadata database.
func (s *Store) Close() error { return s.db.Close() }

// Put stores the uploaded content and returns the new file object.
func (s *Store) Put(ctx context.Context, filename, purpose string, r io.Reader) (*File, error) {
	if _, ok := validPurposes[purpose]; !ok {
		return nil, apierror.New(apierror.KindInvalidRequest, "unrecognized purpose %q", purpose).WithParam("purpose")
	}
	if filename == "" {
		return nil, apierror.New(apierror.KindInvalidRequest, "filename is required").WithParam("file")
	}

	id := "file-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	path := filepath.Join(s.dir, id)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("cannot create file content: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("cannot write file content: %w", err)
	}

	file := &File{
		ID:        id,
		Object:    "file",
		Bytes:     n,
		CreatedAt: s.now().Unix(),
		Filename:  filename,
		Purpose:   purpose,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO files (id, filename, purpose, bytes, created_at) VALUES (?, ?, ?, ?, ?)`,
		file.ID, file.Filename, file.Purpose, file.Bytes, file.CreatedAt,
	)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("cannot store file metadata: %w", err)
	}
	return file, nil
}

// Get returns the metadata of one file.
func (s *Store) Get(ctx context.Context, id string) (*File, error) {
	file := &File{Object: "file"}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, purpose, bytes, created_at FROM files WHERE id = ?`, id,
	).Scan(&file.ID, &file.Filename, &file.Purpose, &file.Bytes, &file.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierror.New(apierror.KindNotFound, "file %q not found", id)
	} else if err != nil {
		return nil, err
	}
	return file, nil
}

// List returns stored files, newest first unless order is "asc". An empty
// purpose matches everything.
func (s *Store) List(ctx context.Context, purpose string, limit int, order string) ([]*File, error) {
	if limit <= 0 || limit > 10000 {
		limit = 10000
	}
	dir := "DESC"
	if order == "asc" {
		dir = "ASC"
	}
	query := `SELECT id, filename, purpose, bytes, created_at FROM files`
	args := []any{}
	if purpose != "" {
		query += ` WHERE purpose = ?`
		args = append(args, purpose)
	}
	query += ` ORDER BY created_at ` + dir + `, id ` + dir + ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]*File, 0, limit)
	for rows.Next() {
		file := &File{Object: "file"}
		if err := rows.Scan(&file.ID, &file.Filename, &file.Purpose, &file.Bytes, &file.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// Content opens the raw content of a stored file.
func (s *Store) Content(ctx context.Context, id string) (io.ReadCloser, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, id))
	if err != nil {
		return nil, fmt.Errorf("cannot open file content: %w", err)
	}
	return f, nil
}

// Delete removes metadata and content. Deleting an unknown id is not_found.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apierror.New(apierror.KindNotFound, "file %q not found", id)
	}
	if err := os.Remove(filepath.Join(s.dir, id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot remove file content: %w", err)
	}
	return nil
}
