// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package tools holds the process-wide catalog of internal tools: the
// built-in file_search executor and any tools discovered from configured MCP
// servers. The registry is populated at startup and read concurrently
// without locking thereafter.
package tools

import (
	"context"
	"fmt"
	"log/slog"
)

// Executor runs one tool call. Arguments arrive as the verbatim JSON string
// produced by the model; the return value is fed back to the model.
//
// Executors must be safe for concurrent use and must respect ctx
// cancellation.
type Executor interface {
	Execute(ctx context.Context, arguments string) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, arguments string) (string, error)

// Execute implements [Executor].
func (f ExecutorFunc) Execute(ctx context.Context, arguments string) (string, error) {
	return f(ctx, arguments)
}

// Registry maps tool names to executors. Register is only safe before the
// first Lookup; after startup the registry is immutable.
type Registry struct {
	logger    *slog.Logger
	executors map[string]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger, executors: make(map[string]Executor)}
}

// Register adds a named executor. Registering a duplicate name replaces the
// previous executor with a warning; MCP servers occasionally re-announce
// tools on reconnect.
func (r *Registry) Register(name string, e Executor) {
	if _, ok := r.executors[name]; ok {
		r.logger.Warn("replacing already-registered tool", slog.String("tool", name))
	}
	r.logger.Info("registering tool", slog.String("tool", name))
	r.executors[name] = e
}

// Lookup returns the executor for name, if registered.
func (r *Registry) Lookup(name string) (Executor, bool) {
	e, ok := r.executors[name]
	return e, ok
}

// Has reports whether name is an internal tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.executors[name]
	return ok
}

// Names lists the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	return names
}

// Execute invokes the named tool. The second return is false when the tool
// is not registered, signalling the caller to park the call for the client.
func (r *Registry) Execute(ctx context.Context, name, arguments string) (string, bool, error) {
	e, ok := r.executors[name]
	if !ok {
		return "", false, nil
	}
	out, err := e.Execute(ctx, arguments)
	if err != nil {
		return "", true, fmt.Errorf("tool %q failed: %w", name, err)
	}
	return out, true, nil
}
