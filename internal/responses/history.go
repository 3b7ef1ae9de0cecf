// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package responses

import (
	"context"
	"strings"

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/translator"
)

// maxChainDepth bounds the previous_response_id walk. A corrupted durable
// store can link responses into a cycle; the walk must not spin on it.
const maxChainDepth = 128

// resolveHistory computes the effective input items of the request: the
// stored history of previous_response_id, its output replayed as input, then
// the current input.
func (o *Orchestrator) resolveHistory(ctx context.Context, req *openai.ResponseRequest) ([]openai.ResponseInputItemUnion, error) {
	// A blank input string would otherwise normalize into a well-formed user
	// message and slip past the empty-item check in the translator.
	if req.Input.OfString != nil && strings.TrimSpace(*req.Input.OfString) == "" {
		return nil, apierror.New(apierror.KindInvalidRequest, "input must not be empty").WithParam("input")
	}
	current := translator.NormalizeInput(req.Input)
	if req.PreviousResponseID == nil || *req.PreviousResponseID == "" {
		return current, nil
	}
	prevID := *req.PreviousResponseID

	if err := o.validateChain(ctx, prevID); err != nil {
		return nil, err
	}
	prev, err := o.store.Get(ctx, prevID)
	if err != nil {
		return nil, err
	}
	prevItems, err := o.store.GetInputItems(ctx, prevID)
	if err != nil {
		return nil, err
	}

	items := make([]openai.ResponseInputItemUnion, 0, len(prevItems)+len(prev.Output)+len(current))
	items = append(items, prevItems...)
	items = append(items, outputToInputItems(prev.Output)...)
	return append(items, current...), nil
}

// validateChain walks the previous_response_id links purely to reject cycles
// and over-deep chains. History itself is stored flattened, so resolution
// never needs more than one hop; the walk is a store-integrity check.
func (o *Orchestrator) validateChain(ctx context.Context, id string) error {
	seen := make(map[string]struct{}, 8)
	for depth := 0; id != ""; depth++ {
		if depth >= maxChainDepth {
			return apierror.New(apierror.KindInvalidConfiguration,
				"previous_response_id chain exceeds the depth limit of %d", maxChainDepth)
		}
		if _, ok := seen[id]; ok {
			return apierror.New(apierror.KindInvalidConfiguration,
				"previous_response_id chain contains a cycle at %q", id)
		}
		seen[id] = struct{}{}

		resp, err := o.store.Get(ctx, id)
		if err != nil {
			if depth == 0 {
				// The direct predecessor must exist.
				return err
			}
			// A pruned ancestor just ends the chain.
			return nil
		}
		if resp.PreviousResponseID == nil {
			return nil
		}
		id = *resp.PreviousResponseID
	}
	return nil
}

// outputToInputItems replays a response's output items as the input of the
// next turn.
func outputToInputItems(output []openai.ResponseOutputItemUnion) []openai.ResponseInputItemUnion {
	items := make([]openai.ResponseInputItemUnion, 0, len(output))
	for i := range output {
		switch {
		case output[i].OfMessage != nil:
			items = append(items, openai.ResponseInputItemUnion{OfOutputMessage: output[i].OfMessage})
		case output[i].OfFunctionCall != nil:
			items = append(items, openai.ResponseInputItemUnion{OfFunctionCall: output[i].OfFunctionCall})
		}
	}
	return items
}
