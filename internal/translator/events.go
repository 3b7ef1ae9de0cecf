// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
)

// ConvertChunk maps one streaming chat chunk to zero or more typed Response
// stream events. The conversion is stateless: item ids, sequence numbers and
// the final output ordering are assigned by the streaming orchestrator.
//
// Emission order within one chunk is text delta first, then tool-call
// argument deltas, then any finish-reason boundary event.
func ConvertChunk(chunk *openai.ChatCompletionResponseChunk) []openai.ResponseStreamEvent {
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := &chunk.Choices[0]

	var events []openai.ResponseStreamEvent
	if d := choice.Delta; d != nil {
		if d.Content != nil && *d.Content != "" {
			zero := int64(0)
			events = append(events, openai.ResponseStreamEvent{
				Type:         openai.ResponseEventOutputTextDelta,
				OutputIndex:  &zero,
				ContentIndex: &zero,
				Delta:        *d.Content,
			})
		}
		for i := range d.ToolCalls {
			tc := &d.ToolCalls[i]
			if tc.Function.Arguments == "" && tc.Function.Name == "" && tc.ID == "" {
				continue
			}
			idx := int64(i)
			if tc.Index != nil {
				idx = *tc.Index
			}
			events = append(events, openai.ResponseStreamEvent{
				Type:        openai.ResponseEventFunctionCallArgsDelta,
				OutputIndex: &idx,
				Delta:       tc.Function.Arguments,
			})
		}
	}

	switch choice.FinishReason {
	case openai.ChatCompletionFinishReasonStop:
		events = append(events, openai.ResponseStreamEvent{Type: openai.ResponseEventOutputTextDone})
	case openai.ChatCompletionFinishReasonToolCalls:
		events = append(events, openai.ResponseStreamEvent{Type: openai.ResponseEventFunctionCallArgsDone})
	}
	return events
}
