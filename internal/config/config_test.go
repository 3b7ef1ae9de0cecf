// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 10, cfg.MaxToolCalls)
	require.Equal(t, 60*time.Second, cfg.StreamingTimeout())
	require.Equal(t, PersistenceMemory, cfg.Persistence)
	require.Equal(t, "open-responses.db", cfg.SQLitePath)
	require.Equal(t, "files", cfg.FileStoragePath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MASAIC_HTTP_ADDR", ":9999")
	t.Setenv("MASAIC_MAX_TOOL_CALLS", "3")
	t.Setenv("MASAIC_MAX_STREAMING_TIMEOUT", "1500")
	t.Setenv("MASAIC_PERSISTENCE", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.HTTPAddr)
	require.Equal(t, 3, cfg.MaxToolCalls)
	require.Equal(t, 1500*time.Millisecond, cfg.StreamingTimeout())
	require.Equal(t, PersistenceSQLite, cfg.Persistence)
}

func TestLoadValidation(t *testing.T) {
	t.Run("bad persistence", func(t *testing.T) {
		t.Setenv("MASAIC_PERSISTENCE", "postgres")
		_, err := Load()
		require.ErrorContains(t, err, "MASAIC_PERSISTENCE")
	})
	t.Run("non-positive tool call cap", func(t *testing.T) {
		t.Setenv("MASAIC_MAX_TOOL_CALLS", "0")
		_, err := Load()
		require.ErrorContains(t, err, "MASAIC_MAX_TOOL_CALLS")
	})
	t.Run("non-positive timeout", func(t *testing.T) {
		t.Setenv("MASAIC_MAX_STREAMING_TIMEOUT", "-1")
		_, err := Load()
		require.ErrorContains(t, err, "MASAIC_MAX_STREAMING_TIMEOUT")
	})
}

func TestEmbeddingsKey(t *testing.T) {
	cfg := &Config{OpenAIAPIKey: "sk-openai"}
	require.Equal(t, "sk-openai", cfg.EmbeddingsKey())
	cfg.EmbeddingsAPIKey = "sk-embed"
	require.Equal(t, "sk-embed", cfg.EmbeddingsKey())
}
