// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/json"
	"github.com/masaic-ai/open-responses/internal/tools"
)

// ToolName is the internal tool name the model calls for retrieval.
const ToolName = "file_search"

const defaultMaxNumResults = 10

// fileSearchArguments is the argument schema the model fills in.
type fileSearchArguments struct {
	Query string `json:"query"`
}

// fileSearchDocument is one entry of the tool output handed back to the
// model.
type fileSearchDocument struct {
	FileID   string  `json:"file_id"`
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
	Content  string  `json:"content"`
}

// FileSearchExecutor is the built-in file_search tool. A zero-config
// executor searches the whole index; Bind derives a per-request executor
// honouring the tool declaration's vector store ids, result cap and filters.
type FileSearchExecutor struct {
	logger *slog.Logger
	store  *Store

	vectorStoreIDs []string
	maxNumResults  int
	filters        []Filter
}

// NewFileSearchExecutor creates the default executor registered at startup.
func NewFileSearchExecutor(logger *slog.Logger, store *Store) *FileSearchExecutor {
	return &FileSearchExecutor{logger: logger, store: store, maxNumResults: defaultMaxNumResults}
}

// Bind returns an executor scoped to one request's file_search declaration.
func (e *FileSearchExecutor) Bind(tool *openai.ResponseFileSearchTool) tools.Executor {
	bound := &FileSearchExecutor{
		logger:         e.logger,
		store:          e.store,
		vectorStoreIDs: tool.VectorStoreIDs,
		maxNumResults:  defaultMaxNumResults,
	}
	if tool.MaxNumResults != nil && *tool.MaxNumResults > 0 {
		bound.maxNumResults = int(*tool.MaxNumResults)
	}
	if tool.Filters != nil {
		bound.filters = flattenFilters(tool.Filters)
	}
	return bound
}

// Execute implements [tools.Executor]. The model supplies {"query": …}; the
// output is the ranked document list serialised as JSON.
func (e *FileSearchExecutor) Execute(ctx context.Context, arguments string) (string, error) {
	var args fileSearchArguments
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("malformed file_search arguments: %w", err)
		}
	}
	if args.Query == "" {
		return "", fmt.Errorf("file_search needs a non-empty query")
	}

	results, err := e.search(ctx, args.Query)
	if err != nil {
		return "", err
	}

	docs := make([]fileSearchDocument, 0, len(results))
	for _, r := range results {
		docs = append(docs, fileSearchDocument{
			FileID:   r.FileID,
			Filename: r.Metadata["filename"],
			Score:    r.Score,
			Content:  r.Content,
		})
	}
	out, err := json.Marshal(docs)
	if err != nil {
		return "", err
	}
	e.logger.Debug("file_search executed",
		slog.String("query", args.Query), slog.Int("results", len(docs)))
	return string(out), nil
}

// search runs one query per declared vector store id and merges the ranked
// hits; with no ids declared the whole index is searched.
func (e *FileSearchExecutor) search(ctx context.Context, query string) ([]SearchResult, error) {
	if len(e.vectorStoreIDs) == 0 {
		return e.store.Search(ctx, query, e.maxNumResults, e.filters)
	}
	var merged []SearchResult
	for _, id := range e.vectorStoreIDs {
		filters := append([]Filter{{Key: "vector_store_id", Op: "eq", Value: id}}, e.filters...)
		results, err := e.store.Search(ctx, query, e.maxNumResults, filters)
		if err != nil {
			return nil, err
		}
		merged = append(merged, results...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > e.maxNumResults {
		merged = merged[:e.maxNumResults]
	}
	return merged, nil
}

// flattenFilters converts the request's filter tree into the conjunction the
// index understands. Leaf comparisons keep their operator; "and" nodes are
// flattened recursively.
func flattenFilters(f *openai.FileSearchFilterUnion) []Filter {
	if f == nil {
		return nil
	}
	if len(f.Filters) > 0 {
		var out []Filter
		for i := range f.Filters {
			out = append(out, flattenFilters(&f.Filters[i])...)
		}
		return out
	}
	if f.Key == "" {
		return nil
	}
	return []Filter{{Key: f.Key, Op: f.Type, Value: f.Value}}
}
