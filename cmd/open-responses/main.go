// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Command open-responses runs the OpenAI-compatible Responses API gateway.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/masaic-ai/open-responses/internal/config"
	"github.com/masaic-ai/open-responses/internal/filestore"
	"github.com/masaic-ai/open-responses/internal/metrics"
	"github.com/masaic-ai/open-responses/internal/provider"
	"github.com/masaic-ai/open-responses/internal/responses"
	"github.com/masaic-ai/open-responses/internal/server"
	"github.com/masaic-ai/open-responses/internal/store"
	"github.com/masaic-ai/open-responses/internal/tools"
	"github.com/masaic-ai/open-responses/internal/tracing"
	"github.com/masaic-ai/open-responses/internal/upstream"
	"github.com/masaic-ai/open-responses/internal/vectorstore"
)

func main() {
	logger := newLogger()
	if err := run(logger); err != nil {
		logger.Error("gateway exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds the process logger; LOG_LEVEL selects the level.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	meter, meterShutdown, err := metrics.NewMeterFromEnv(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(logger, "metrics", meterShutdown)
	tracer, tracerShutdown, err := tracing.NewTracerFromEnv(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(logger, "tracing", tracerShutdown)

	var responseStore store.ResponseStore
	switch cfg.Persistence {
	case config.PersistenceSQLite:
		responseStore, err = store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return err
		}
	default:
		responseStore = store.NewMemoryStore()
	}
	defer responseStore.Close()

	files, err := filestore.NewStore(cfg.FileStoragePath, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer files.Close()

	registry := tools.NewRegistry(logger)
	var (
		vectors *vectorstore.Store
		binder  responses.FileSearchBinder
	)
	if cfg.EmbeddingsModel != "" {
		embedder := vectorstore.NewOpenAIEmbedder(cfg.EmbeddingsKey(), cfg.EmbeddingsBaseURL, cfg.EmbeddingsModel)
		vectors, err = vectorstore.NewStore(cfg.SQLitePath, embedder)
		if err != nil {
			return err
		}
		defer vectors.Close()
		fileSearch := vectorstore.NewFileSearchExecutor(logger, vectors)
		registry.Register(vectorstore.ToolName, fileSearch)
		binder = fileSearch
	} else {
		logger.Info("embeddings model not configured, file_search is disabled")
	}

	if cfg.MCPServerConfigPath != "" {
		mcpCfg, err := tools.LoadMCPConfig(cfg.MCPServerConfigPath)
		if err != nil {
			return err
		}
		mcpClient := tools.NewMCPClient(logger)
		mcpClient.DiscoverAndRegister(ctx, mcpCfg, registry)
		defer mcpClient.Close()
	}

	router := provider.NewRouter(cfg.ModelBaseURL)
	client := upstream.NewClient(logger)
	orch := responses.NewOrchestrator(
		logger, router, client, responseStore, registry, binder,
		metrics.NewFactory(meter), tracer,
		responses.Options{MaxToolCalls: cfg.MaxToolCalls, Timeout: cfg.StreamingTimeout()},
	)
	srv := server.New(logger, orch, responseStore, files, vectors, router, client)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", slog.String("addr", cfg.HTTPAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// shutdownTelemetry flushes a telemetry provider; failures are logged only.
func shutdownTelemetry(logger *slog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown failed",
			slog.String("subsystem", name), slog.String("error", err.Error()))
	}
}
