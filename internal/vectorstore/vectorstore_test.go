// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package vectorstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/json"
)

// keywordEmbedder embeds text as counts of a fixed vocabulary, giving
// deterministic similarity without a real embedding service.
type keywordEmbedder struct {
	vocabulary []string
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{vocabulary: []string{"cat", "dog", "weather", "invoice", "paris"}}
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(e.vocabulary))
		lower := strings.ToLower(text)
		for j, word := range e.vocabulary {
			vec[j] = float32(strings.Count(lower, word))
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func newTestIndex(t *testing.T) *Store {
	s, err := NewStore(filepath.Join(t.TempDir(), "index.db"), newKeywordEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestChunkText(t *testing.T) {
	t.Run("empty yields nothing", func(t *testing.T) {
		require.Nil(t, chunkText("   \n\t ", DefaultChunkingPolicy))
	})
	t.Run("short text is one chunk", func(t *testing.T) {
		chunks := chunkText("one two three", DefaultChunkingPolicy)
		require.Equal(t, []string{"one two three"}, chunks)
	})
	t.Run("overlapping windows", func(t *testing.T) {
		words := make([]string, 25)
		for i := range words {
			words[i] = "w"
		}
		chunks := chunkText(strings.Join(words, " "), ChunkingPolicy{MaxChunkSizeTokens: 10, ChunkOverlapTokens: 5})
		// Step of 5 over 25 words: windows at 0, 5, 10, 15.
		require.Len(t, chunks, 4)
		require.Len(t, strings.Fields(chunks[0]), 10)
		require.Len(t, strings.Fields(chunks[3]), 10)
	})
	t.Run("bogus policy falls back to default", func(t *testing.T) {
		chunks := chunkText("one two three", ChunkingPolicy{MaxChunkSizeTokens: -1})
		require.Len(t, chunks, 1)
	})
}

func TestIndexAndSearch(t *testing.T) {
	s := newTestIndex(t)
	require.NoError(t, s.Index(t.Context(), "file-1", "pets.txt",
		strings.NewReader("the cat sat next to the dog"), nil, nil))
	require.NoError(t, s.Index(t.Context(), "file-2", "travel.txt",
		strings.NewReader("the weather in paris is mild"), nil, nil))

	results, err := s.Search(t.Context(), "cat and dog", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "file-1", results[0].FileID)
	require.Equal(t, "pets.txt", results[0].Metadata["filename"])
	require.Greater(t, results[0].Score, 0.5)

	results, err = s.Search(t.Context(), "paris weather", 5, nil)
	require.NoError(t, err)
	require.Equal(t, "file-2", results[0].FileID)
}

func TestIndexReplaces(t *testing.T) {
	s := newTestIndex(t)
	require.NoError(t, s.Index(t.Context(), "file-1", "a.txt", strings.NewReader("cat cat cat"), nil, nil))
	require.NoError(t, s.Index(t.Context(), "file-1", "a.txt", strings.NewReader("dog dog dog"), nil, nil))

	results, err := s.Search(t.Context(), "dog", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, results[0].Content, "dog")
}

func TestIndexEmptyContent(t *testing.T) {
	s := newTestIndex(t)
	err := s.Index(t.Context(), "file-1", "empty.txt", strings.NewReader(""), nil, nil)
	require.Equal(t, apierror.KindInvalidRequest, apierror.AsError(err).Kind)
}

func TestSearchFilters(t *testing.T) {
	s := newTestIndex(t)
	require.NoError(t, s.Index(t.Context(), "file-1", "a.txt", strings.NewReader("cat"), nil,
		map[string]string{"vector_store_id": "vs_1"}))
	require.NoError(t, s.Index(t.Context(), "file-2", "b.txt", strings.NewReader("cat"), nil,
		map[string]string{"vector_store_id": "vs_2"}))

	results, err := s.Search(t.Context(), "cat", 10, []Filter{{Key: "vector_store_id", Op: "eq", Value: "vs_2"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "file-2", results[0].FileID)

	// Unknown operators never match.
	results, err = s.Search(t.Context(), "cat", 10, []Filter{{Key: "vector_store_id", Op: "gte", Value: "vs_1"}})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestDeleteRemovesChunks(t *testing.T) {
	s := newTestIndex(t)
	require.NoError(t, s.Index(t.Context(), "file-1", "a.txt", strings.NewReader("cat"), nil, nil))
	require.NoError(t, s.Delete(t.Context(), "file-1"))

	results, err := s.Search(t.Context(), "cat", 10, nil)
	require.NoError(t, err)
	require.Empty(t, results)

	_, err = s.GetMetadata(t.Context(), "file-1")
	require.Equal(t, apierror.KindNotFound, apierror.AsError(err).Kind)
}

func TestFileSearchExecutor(t *testing.T) {
	s := newTestIndex(t)
	require.NoError(t, s.Index(t.Context(), "file-1", "pets.txt", strings.NewReader("the cat and the dog"), nil, nil))

	e := NewFileSearchExecutor(slog.Default(), s)
	out, err := e.Execute(t.Context(), `{"query":"cat"}`)
	require.NoError(t, err)

	var docs []fileSearchDocument
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	require.Equal(t, "file-1", docs[0].FileID)
	require.Equal(t, "pets.txt", docs[0].Filename)
	require.Contains(t, docs[0].Content, "cat")
}

func TestFileSearchExecutorArguments(t *testing.T) {
	e := NewFileSearchExecutor(slog.Default(), newTestIndex(t))
	_, err := e.Execute(t.Context(), `{"query":""}`)
	require.ErrorContains(t, err, "non-empty query")
	_, err = e.Execute(t.Context(), `{"query":`)
	require.ErrorContains(t, err, "malformed")
}

func TestFileSearchExecutorBind(t *testing.T) {
	s := newTestIndex(t)
	require.NoError(t, s.Index(t.Context(), "file-1", "a.txt", strings.NewReader("cat cat"), nil,
		map[string]string{"vector_store_id": "vs_1"}))
	require.NoError(t, s.Index(t.Context(), "file-2", "b.txt", strings.NewReader("cat"), nil,
		map[string]string{"vector_store_id": "vs_2"}))

	maxResults := int64(1)
	bound := NewFileSearchExecutor(slog.Default(), s).Bind(&openai.ResponseFileSearchTool{
		Type:           openai.ResponseToolTypeFileSearch,
		VectorStoreIDs: []string{"vs_2"},
		MaxNumResults:  &maxResults,
	})
	out, err := bound.Execute(t.Context(), `{"query":"cat"}`)
	require.NoError(t, err)

	var docs []fileSearchDocument
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	require.Equal(t, "file-2", docs[0].FileID)
}

func TestFlattenFilters(t *testing.T) {
	tree := &openai.FileSearchFilterUnion{
		Type: "and",
		Filters: []openai.FileSearchFilterUnion{
			{Key: "author", Type: "eq", Value: "jane"},
			{Type: "and", Filters: []openai.FileSearchFilterUnion{
				{Key: "year", Type: "eq", Value: "2024"},
			}},
		},
	}
	flat := flattenFilters(tree)
	require.Equal(t, []Filter{
		{Key: "author", Op: "eq", Value: "jane"},
		{Key: "year", Op: "eq", Value: "2024"},
	}, flat)
}
