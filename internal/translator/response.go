// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"log/slog"

	"github.com/masaic-ai/open-responses/internal/apischema/openai"
)

// ResponseFromChatCompletion folds a chat completion into a Response with
// the given id. The first choice is the one surfaced; content becomes an
// output message and each tool call becomes a function_call output item.
func (t *ResponsesToChatTranslator) ResponseFromChatCompletion(
	chat *openai.ChatCompletionResponse, respID, model string,
) *openai.Response {
	resp := &openai.Response{
		ID:        respID,
		Object:    "response",
		CreatedAt: chat.Created,
		Model:     model,
		Status:    openai.ResponseStatusCompleted,
		Output:    []openai.ResponseOutputItemUnion{},
	}
	if chat.Model != "" {
		resp.Model = chat.Model
	}
	if chat.Usage != nil {
		resp.Usage = UsageFromChatCompletion(chat.Usage)
	}
	if len(chat.Choices) == 0 {
		return resp
	}

	choice := chat.Choices[0]
	if choice.Message.Content != nil && *choice.Message.Content != "" {
		resp.Output = append(resp.Output, openai.ResponseOutputItemUnion{
			OfMessage: &openai.ResponseOutputMessage{
				Type:   openai.ResponseItemTypeMessage,
				ID:     t.newItemID("msg"),
				Role:   openai.ChatMessageRoleAssistant,
				Status: openai.ResponseStatusCompleted,
				Content: []openai.ResponseOutputTextContent{{
					Type:        openai.ResponseContentTypeOutputText,
					Text:        *choice.Message.Content,
					Annotations: []any{},
				}},
			},
		})
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.Output = append(resp.Output, openai.ResponseOutputItemUnion{
			OfFunctionCall: &openai.ResponseFunctionToolCall{
				Type:      openai.ResponseItemTypeFunctionCall,
				ID:        t.newItemID("fc"),
				CallID:    tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
				Status:    openai.ResponseStatusCompleted,
			},
		})
	}

	resp.Status, resp.IncompleteDetails = t.StatusFromFinishReason(choice.FinishReason)
	return resp
}

// StatusFromFinishReason maps an upstream finish reason to the response
// status. A tool_calls finish with zero tool calls is treated as a stop;
// unknown reasons map to completed with a warning.
func (t *ResponsesToChatTranslator) StatusFromFinishReason(reason string) (string, *openai.IncompleteDetails) {
	switch reason {
	case openai.ChatCompletionFinishReasonStop, "":
		return openai.ResponseStatusCompleted, nil
	case openai.ChatCompletionFinishReasonToolCalls:
		return openai.ResponseStatusCompleted, nil
	case openai.ChatCompletionFinishReasonLength:
		return openai.ResponseStatusIncomplete, &openai.IncompleteDetails{Reason: openai.IncompleteReasonMaxOutputTokens}
	case openai.ChatCompletionFinishReasonContentFilter:
		return openai.ResponseStatusIncomplete, &openai.IncompleteDetails{Reason: openai.IncompleteReasonContentFilter}
	}
	t.logger.Warn("unknown finish reason, treating as completed", slog.String("finish_reason", reason))
	return openai.ResponseStatusCompleted, nil
}

// UsageFromChatCompletion converts chat usage accounting into the Responses
// form.
func UsageFromChatCompletion(u *openai.ChatCompletionResponseUsage) *openai.ResponseUsage {
	out := &openai.ResponseUsage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		out.InputTokensDetails.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	return out
}
