// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package responses

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
)

// reconcileResult is the outcome of reconciling one model turn.
type reconcileResult struct {
	// next is the next-turn input history: prior history, executed
	// call/output pairs, then the parked region.
	next []openai.ResponseInputItemUnion
	// executed counts the internal tool calls run this turn.
	executed int
}

// reconcile turns a model output into the next-turn history. Internal tool
// calls are executed and their call/output pairs appended to the main
// history; assistant text and external tool calls go to a parked region
// concatenated at the end. Synthesised outputs never surface to the client.
//
// An executor failure is fed back to the model as an error-carrying output
// rather than failing the turn, unless the context is already done.
func (o *Orchestrator) reconcile(
	ctx context.Context,
	history []openai.ResponseInputItemUnion,
	resp *openai.Response,
	ts *toolSet,
) (*reconcileResult, error) {
	next := slices.Clone(history)
	var parked []openai.ResponseInputItemUnion
	res := &reconcileResult{}

	for i := range resp.Output {
		switch {
		case resp.Output[i].OfMessage != nil:
			parked = append(parked, openai.ResponseInputItemUnion{OfOutputMessage: resp.Output[i].OfMessage})

		case resp.Output[i].OfFunctionCall != nil:
			fc := resp.Output[i].OfFunctionCall
			output, found, err := ts.execute(ctx, fc.Name, fc.Arguments)
			if err != nil {
				if ctx.Err() != nil {
					return nil, apierror.Wrap(apierror.KindToolExecutionError, err,
						fmt.Sprintf("tool %q aborted", fc.Name))
				}
				o.logger.Warn("tool execution failed, feeding error back to the model",
					slog.String("tool", fc.Name), slog.String("error", err.Error()))
				output = "error: " + err.Error()
				found = true
			}
			if !found {
				parked = append(parked, openai.ResponseInputItemUnion{OfFunctionCall: fc})
				continue
			}
			res.executed++
			next = append(next,
				openai.ResponseInputItemUnion{OfFunctionCall: fc},
				openai.ResponseInputItemUnion{OfFunctionCallOutput: &openai.ResponseFunctionCallOutputItem{
					Type:   openai.ResponseItemTypeFunctionCallOutput,
					CallID: fc.CallID,
					Output: output,
				}},
			)
		}
	}

	res.next = append(next, parked...)
	if n := countFunctionCalls(res.next); n > o.opts.MaxToolCalls {
		return nil, errTooManyToolCalls(o.opts.MaxToolCalls)
	}
	return res, nil
}
