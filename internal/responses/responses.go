// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package responses drives the tool-call loop behind the Responses API: it
// translates the request, calls the upstream provider, executes internal
// tools, parks external tool calls for the client and repeats until a
// terminal output or a limit is hit. Both the buffered and the streaming
// orchestrations live here.
package responses

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/metrics"
	"github.com/masaic-ai/open-responses/internal/provider"
	"github.com/masaic-ai/open-responses/internal/store"
	"github.com/masaic-ai/open-responses/internal/tools"
	"github.com/masaic-ai/open-responses/internal/tracing"
	"github.com/masaic-ai/open-responses/internal/upstream"
)

// Options bound the tool-call loop.
type Options struct {
	// MaxToolCalls caps the cumulative function_call items across the loop.
	MaxToolCalls int
	// Timeout bounds the wall-clock time of one request, streaming or not.
	Timeout time.Duration
}

func (o Options) normalize() Options {
	if o.MaxToolCalls <= 0 {
		o.MaxToolCalls = 10
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	return o
}

// UpstreamClient is the upstream surface the orchestrator needs, extracted so
// tests can fake providers without a network.
type UpstreamClient interface {
	ChatCompletions(ctx context.Context, ep *provider.Endpoint, params *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)
	ChatCompletionsStream(ctx context.Context, ep *provider.Endpoint, params *openai.ChatCompletionRequest) (ChunkStream, error)
}

// ChunkStream iterates upstream SSE chunks; Recv returns io.EOF at the end.
type ChunkStream interface {
	Recv() (*openai.ChatCompletionResponseChunk, error)
	Close() error
}

// liveUpstream adapts *upstream.Client to the UpstreamClient interface.
type liveUpstream struct {
	c *upstream.Client
}

func (l liveUpstream) ChatCompletions(ctx context.Context, ep *provider.Endpoint, params *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	return l.c.ChatCompletions(ctx, ep, params)
}

func (l liveUpstream) ChatCompletionsStream(ctx context.Context, ep *provider.Endpoint, params *openai.ChatCompletionRequest) (ChunkStream, error) {
	s, err := l.c.ChatCompletionsStream(ctx, ep, params)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FileSearchBinder derives a request-scoped executor from a file_search tool
// declaration.
type FileSearchBinder interface {
	Bind(tool *openai.ResponseFileSearchTool) tools.Executor
}

// Orchestrator owns the tool-call loop. It is safe for concurrent use; all
// per-request state lives on the stack of one Create/CreateStream call.
type Orchestrator struct {
	logger         *slog.Logger
	router         *provider.Router
	upstream       UpstreamClient
	store          store.ResponseStore
	registry       *tools.Registry
	fileSearch     FileSearchBinder
	metricsFactory metrics.Factory
	tracer         tracing.ChatTracer
	opts           Options

	// newID is swapped in tests for deterministic response ids.
	newID func() string
}

// NewOrchestrator wires the orchestrator. fileSearch may be nil when no
// vector store is configured; file_search calls are then parked like any
// external tool.
func NewOrchestrator(
	logger *slog.Logger,
	router *provider.Router,
	client *upstream.Client,
	st store.ResponseStore,
	registry *tools.Registry,
	fileSearch FileSearchBinder,
	metricsFactory metrics.Factory,
	tracer tracing.ChatTracer,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		logger:         logger,
		router:         router,
		upstream:       liveUpstream{c: client},
		store:          st,
		registry:       registry,
		fileSearch:     fileSearch,
		metricsFactory: metricsFactory,
		tracer:         tracer,
		opts:           opts.normalize(),
		newID:          func() string { return "resp_" + strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// loopState is the explicit state of the tool-call loop.
type loopState int

const (
	stateAwaitingModel loopState = iota
	stateReconcilingTools
	stateDone
)

// toolSet resolves tool names for one request: request-scoped bindings (the
// file_search declaration) layered over the process-wide registry.
type toolSet struct {
	registry  *tools.Registry
	overrides map[string]tools.Executor
}

// newToolSet builds the per-request tool set.
func (o *Orchestrator) newToolSet(req *openai.ResponseRequest) *toolSet {
	ts := &toolSet{registry: o.registry}
	for i := range req.Tools {
		if fs := req.Tools[i].OfFileSearch; fs != nil && o.fileSearch != nil {
			if ts.overrides == nil {
				ts.overrides = make(map[string]tools.Executor, 1)
			}
			ts.overrides["file_search"] = o.fileSearch.Bind(fs)
		}
	}
	return ts
}

// has reports whether name is an internal tool for this request.
func (ts *toolSet) has(name string) bool {
	if _, ok := ts.overrides[name]; ok {
		return true
	}
	return ts.registry.Has(name)
}

// execute runs the named tool. found=false means the tool is external and the
// call must be parked.
func (ts *toolSet) execute(ctx context.Context, name, arguments string) (output string, found bool, err error) {
	if e, ok := ts.overrides[name]; ok {
		out, err := e.Execute(ctx, arguments)
		return out, true, err
	}
	return ts.registry.Execute(ctx, name, arguments)
}

// hasInternalCalls reports whether the turn output contains a tool call this
// gateway can execute itself.
func (o *Orchestrator) hasInternalCalls(resp *openai.Response, ts *toolSet) bool {
	for i := range resp.Output {
		if fc := resp.Output[i].OfFunctionCall; fc != nil && ts.has(fc.Name) {
			return true
		}
	}
	return false
}

// countFunctionCalls counts function_call items in an input item list.
func countFunctionCalls(items []openai.ResponseInputItemUnion) int {
	n := 0
	for i := range items {
		if items[i].OfFunctionCall != nil {
			n++
		}
	}
	return n
}

// errTooManyToolCalls builds the budget-exhaustion error.
func errTooManyToolCalls(limit int) error {
	return apierror.New(apierror.KindTooManyToolCalls, "tool call budget of %d exceeded", limit)
}

// storeEnabled reports whether the terminal response must be persisted.
// Absent store flags default to true, matching the OpenAI surface.
func storeEnabled(req *openai.ResponseRequest) bool {
	return req.Store == nil || *req.Store
}

// echoRequest copies the request fields the Responses API echoes back on the
// response object.
func echoRequest(resp *openai.Response, req *openai.ResponseRequest) {
	resp.Metadata = req.Metadata
	resp.Instructions = req.Instructions
	resp.Temperature = req.Temperature
	resp.TopP = req.TopP
	resp.MaxOutputTokens = req.MaxOutputTokens
	resp.ParallelToolCalls = req.ParallelToolCalls
	resp.PreviousResponseID = req.PreviousResponseID
	resp.Tools = req.Tools
	resp.ToolChoice = req.ToolChoice
}
