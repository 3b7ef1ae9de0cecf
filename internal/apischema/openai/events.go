// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openai

// Typed stream event names of the Responses API. The event name doubles as
// the SSE "event:" field.
const (
	ResponseEventCreated               = "response.created"
	ResponseEventInProgress            = "response.in_progress"
	ResponseEventCompleted             = "response.completed"
	ResponseEventIncomplete            = "response.incomplete"
	ResponseEventFailed                = "response.failed"
	ResponseEventError                 = "response.error"
	ResponseEventOutputItemAdded       = "response.output_item.added"
	ResponseEventOutputItemDone        = "response.output_item.done"
	ResponseEventOutputTextDelta       = "response.output_text.delta"
	ResponseEventOutputTextDone        = "response.output_text.done"
	ResponseEventFunctionCallArgsDelta = "response.function_call_arguments.delta"
	ResponseEventFunctionCallArgsDone  = "response.function_call_arguments.done"
	ResponseEventContentPartAdded      = "response.content_part.added"
	ResponseEventContentPartDone       = "response.content_part.done"
)

// ResponseStreamEvent is one typed event of a streaming response. Type is
// always set; the remaining fields are populated per event type and omitted
// otherwise.
type ResponseStreamEvent struct {
	Type           string `json:"type"`
	SequenceNumber int64  `json:"sequence_number"`

	// Response is set on response.* lifecycle events.
	Response *Response `json:"response,omitempty"`

	// Item is set on output_item.added/done events.
	Item *ResponseOutputItemUnion `json:"item,omitempty"`

	// Positional fields for delta/done events.
	OutputIndex  *int64 `json:"output_index,omitempty"`
	ContentIndex *int64 `json:"content_index,omitempty"`
	ItemID       string `json:"item_id,omitempty"`

	// Delta carries an incremental text or argument fragment.
	Delta string `json:"delta,omitempty"`
	// Text carries the final text on output_text.done.
	Text string `json:"text,omitempty"`
	// Arguments carries the final arguments on function_call_arguments.done.
	Arguments string `json:"arguments,omitempty"`

	// Error fields for the terminal error event.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
}

// IsTerminal reports whether the event ends the stream.
func (e *ResponseStreamEvent) IsTerminal() bool {
	switch e.Type {
	case ResponseEventCompleted, ResponseEventIncomplete, ResponseEventFailed, ResponseEventError:
		return true
	}
	return false
}
