// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package filestore

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/masaic-ai/open-responses/internal/apierror"
)

func newTestStore(t *testing.T) *Store {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "files"), filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t)
	file, err := s.Put(t.Context(), "notes.txt", "assistants", strings.NewReader("hello files"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(file.ID, "file-"))
	require.Equal(t, "file", file.Object)
	require.Equal(t, int64(len("hello files")), file.Bytes)
	require.Equal(t, "notes.txt", file.Filename)
	require.Equal(t, "assistants", file.Purpose)

	got, err := s.Get(t.Context(), file.ID)
	require.NoError(t, err)
	require.Equal(t, file, got)
}

func TestPutValidation(t *testing.T) {
	s := newTestStore(t)
	t.Run("bad purpose", func(t *testing.T) {
		_, err := s.Put(t.Context(), "notes.txt", "scratch", strings.NewReader("x"))
		apiErr := apierror.AsError(err)
		require.Equal(t, apierror.KindInvalidRequest, apiErr.Kind)
		require.Equal(t, "purpose", *apiErr.Param)
	})
	t.Run("missing filename", func(t *testing.T) {
		_, err := s.Put(t.Context(), "", "assistants", strings.NewReader("x"))
		require.Equal(t, apierror.KindInvalidRequest, apierror.AsError(err).Kind)
	})
}

func TestContent(t *testing.T) {
	s := newTestStore(t)
	file, err := s.Put(t.Context(), "notes.txt", "user_data", strings.NewReader("hello files"))
	require.NoError(t, err)

	rc, err := s.Content(t.Context(), file.ID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello files", string(body))

	_, err = s.Content(t.Context(), "file-missing")
	require.Equal(t, apierror.KindNotFound, apierror.AsError(err).Kind)
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	// A fixed clock makes the ordering assertions deterministic.
	ts := time.Unix(1700000000, 0)
	s.now = func() time.Time { ts = ts.Add(time.Second); return ts }

	a, err := s.Put(t.Context(), "a.txt", "assistants", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := s.Put(t.Context(), "b.txt", "user_data", strings.NewReader("b"))
	require.NoError(t, err)
	c, err := s.Put(t.Context(), "c.txt", "assistants", strings.NewReader("c"))
	require.NoError(t, err)

	t.Run("newest first by default", func(t *testing.T) {
		files, err := s.List(t.Context(), "", 100, "desc")
		require.NoError(t, err)
		require.Len(t, files, 3)
		require.Equal(t, c.ID, files[0].ID)
		require.Equal(t, a.ID, files[2].ID)
	})
	t.Run("purpose filter", func(t *testing.T) {
		files, err := s.List(t.Context(), "user_data", 100, "desc")
		require.NoError(t, err)
		require.Len(t, files, 1)
		require.Equal(t, b.ID, files[0].ID)
	})
	t.Run("ascending with limit", func(t *testing.T) {
		files, err := s.List(t.Context(), "", 2, "asc")
		require.NoError(t, err)
		require.Len(t, files, 2)
		require.Equal(t, a.ID, files[0].ID)
		require.Equal(t, b.ID, files[1].ID)
	})
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	file, err := s.Put(t.Context(), "notes.txt", "assistants", strings.NewReader("hello"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(t.Context(), file.ID))
	_, err = s.Get(t.Context(), file.ID)
	require.Equal(t, apierror.KindNotFound, apierror.AsError(err).Kind)
	_, err = s.Content(t.Context(), file.ID)
	require.Equal(t, apierror.KindNotFound, apierror.AsError(err).Kind)

	require.Equal(t, apierror.KindNotFound, apierror.AsError(s.Delete(t.Context(), file.ID)).Kind)
}
