// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package config loads gateway configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Persistence modes for the response store.
const (
	PersistenceMemory = "memory"
	PersistenceSQLite = "sqlite"
)

// Config is the full environment-derived configuration.
type Config struct {
	// HTTPAddr is the listen address of the gateway.
	HTTPAddr string `env:"MASAIC_HTTP_ADDR" envDefault:":8080"`
	// MaxToolCalls caps the cumulative tool calls of one request.
	MaxToolCalls int `env:"MASAIC_MAX_TOOL_CALLS" envDefault:"10"`
	// MaxStreamingTimeoutMS bounds the wall clock of one request in
	// milliseconds, streaming or not.
	MaxStreamingTimeoutMS int `env:"MASAIC_MAX_STREAMING_TIMEOUT" envDefault:"60000"`
	// MCPServerConfigPath points at the MCP server configuration document;
	// empty disables MCP tool discovery.
	MCPServerConfigPath string `env:"MCP_SERVER_CONFIG_FILE_PATH"`
	// ModelBaseURL overrides the default upstream base URL.
	ModelBaseURL string `env:"MODEL_BASE_URL"`
	// Persistence selects the response store engine.
	Persistence string `env:"MASAIC_PERSISTENCE" envDefault:"memory"`
	// SQLitePath is the database file used by the sqlite persistence mode,
	// the vector index and file metadata.
	SQLitePath string `env:"MASAIC_SQLITE_PATH" envDefault:"open-responses.db"`
	// FileStoragePath is the directory holding uploaded file content.
	FileStoragePath string `env:"MASAIC_FILE_STORAGE_PATH" envDefault:"files"`
	// EmbeddingsModel is the model used to embed file chunks and queries;
	// empty disables the built-in file_search tool.
	EmbeddingsModel string `env:"MASAIC_EMBEDDINGS_MODEL"`
	// EmbeddingsBaseURL targets an alternative OpenAI-compatible embeddings
	// endpoint.
	EmbeddingsBaseURL string `env:"MASAIC_EMBEDDINGS_BASE_URL"`
	// EmbeddingsAPIKey authenticates the embeddings calls; falls back to
	// OPENAI_API_KEY.
	EmbeddingsAPIKey string `env:"MASAIC_EMBEDDINGS_API_KEY"`
	// OpenAIAPIKey is the fallback credential for embeddings.
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
}

// Load parses and validates the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("cannot parse environment: %w", err)
	}
	if cfg.Persistence != PersistenceMemory && cfg.Persistence != PersistenceSQLite {
		return nil, fmt.Errorf("MASAIC_PERSISTENCE must be %q or %q, got %q",
			PersistenceMemory, PersistenceSQLite, cfg.Persistence)
	}
	if cfg.MaxToolCalls <= 0 {
		return nil, fmt.Errorf("MASAIC_MAX_TOOL_CALLS must be positive, got %d", cfg.MaxToolCalls)
	}
	if cfg.MaxStreamingTimeoutMS <= 0 {
		return nil, fmt.Errorf("MASAIC_MAX_STREAMING_TIMEOUT must be positive, got %d", cfg.MaxStreamingTimeoutMS)
	}
	return cfg, nil
}

// StreamingTimeout returns the request timeout as a duration.
func (c *Config) StreamingTimeout() time.Duration {
	return time.Duration(c.MaxStreamingTimeoutMS) * time.Millisecond
}

// EmbeddingsKey returns the effective embeddings credential.
func (c *Config) EmbeddingsKey() string {
	if c.EmbeddingsAPIKey != "" {
		return c.EmbeddingsAPIKey
	}
	return c.OpenAIAPIKey
}
