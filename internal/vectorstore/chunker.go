// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package vectorstore implements the file_search tool: it chunks uploaded
// files, embeds the chunks through an external embedding service and answers
// cosine-similarity queries with metadata filters. The index is persisted in
// SQLite so it survives process restarts.
package vectorstore

import (
	"strings"
)

// ChunkingPolicy controls how indexed files are split. The unit is
// token-approximate: boundaries snap to whitespace near the configured
// sizes.
type ChunkingPolicy struct {
	MaxChunkSizeTokens int `json:"max_chunk_size_tokens"`
	ChunkOverlapTokens int `json:"chunk_overlap_tokens"`
}

// DefaultChunkingPolicy is used when the request does not specify one.
var DefaultChunkingPolicy = ChunkingPolicy{MaxChunkSizeTokens: 1000, ChunkOverlapTokens: 200}

// normalize clamps nonsensical values back to the default policy.
func (p ChunkingPolicy) normalize() ChunkingPolicy {
	if p.MaxChunkSizeTokens <= 0 {
		p = DefaultChunkingPolicy
	}
	if p.ChunkOverlapTokens < 0 || p.ChunkOverlapTokens >= p.MaxChunkSizeTokens {
		p.ChunkOverlapTokens = p.MaxChunkSizeTokens / 5
	}
	return p
}

// chunkText splits text into overlapping chunks per the policy. Whitespace
// runs are collapsed first so chunk sizes are stable across formatting.
func chunkText(text string, policy ChunkingPolicy) []string {
	policy = policy.normalize()
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	// Approximate tokens by words; close enough for retrieval windows.
	size := policy.MaxChunkSizeTokens
	overlap := policy.ChunkOverlapTokens
	step := size - overlap

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
