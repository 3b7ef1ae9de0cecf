// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package openai contains the hand-written schema definitions for the OpenAI
// Chat Completions and Responses APIs as used on the wire by this gateway.
//
// The types are deliberately self-contained rather than borrowed from an SDK:
// upstream providers disagree on optional fields and we need union types that
// round-trip unknown provider quirks without loss.
package openai

import (
	"fmt"

	"github.com/masaic-ai/open-responses/internal/json"
)

// Chat message roles.
const (
	ChatMessageRoleSystem    = "system"
	ChatMessageRoleDeveloper = "developer"
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
	ChatMessageRoleTool      = "tool"
)

// ChatCompletionRequest is the request schema of the Chat Completions API:
// https://platform.openai.com/docs/api-reference/chat/create
type ChatCompletionRequest struct {
	Model             string                            `json:"model"`
	Messages          []ChatCompletionMessageParamUnion `json:"messages"`
	Tools             []ChatCompletionTool              `json:"tools,omitempty"`
	ToolChoice        *ChatCompletionToolChoiceUnion    `json:"tool_choice,omitempty"`
	Temperature       *float64                          `json:"temperature,omitempty"`
	TopP              *float64                          `json:"top_p,omitempty"`
	MaxTokens         *int64                            `json:"max_tokens,omitempty"`
	ParallelToolCalls *bool                             `json:"parallel_tool_calls,omitempty"`
	Stream            bool                              `json:"stream,omitempty"`
	StreamOptions     *StreamOptions                    `json:"stream_options,omitempty"`
	ResponseFormat    *ChatCompletionResponseFormat     `json:"response_format,omitempty"`
	ReasoningEffort   string                            `json:"reasoning_effort,omitempty"`
}

// StreamOptions configures streaming behaviour of the upstream.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ChatCompletionMessageParamUnion is a union over the role-specific message
// param types. Exactly one of the Of* fields is set.
type ChatCompletionMessageParamUnion struct {
	OfSystem    *ChatCompletionSystemMessageParam
	OfDeveloper *ChatCompletionDeveloperMessageParam
	OfUser      *ChatCompletionUserMessageParam
	OfAssistant *ChatCompletionAssistantMessageParam
	OfTool      *ChatCompletionToolMessageParam
}

// MarshalJSON implements json.Marshaler.
func (u ChatCompletionMessageParamUnion) MarshalJSON() ([]byte, error) {
	switch {
	case u.OfSystem != nil:
		return json.Marshal(u.OfSystem)
	case u.OfDeveloper != nil:
		return json.Marshal(u.OfDeveloper)
	case u.OfUser != nil:
		return json.Marshal(u.OfUser)
	case u.OfAssistant != nil:
		return json.Marshal(u.OfAssistant)
	case u.OfTool != nil:
		return json.Marshal(u.OfTool)
	}
	return nil, fmt.Errorf("empty chat completion message union")
}

// UnmarshalJSON implements json.Unmarshaler, dispatching on the role field.
func (u *ChatCompletionMessageParamUnion) UnmarshalJSON(data []byte) error {
	var role struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(data, &role); err != nil {
		return fmt.Errorf("cannot read message role: %w", err)
	}
	switch role.Role {
	case ChatMessageRoleSystem:
		u.OfSystem = &ChatCompletionSystemMessageParam{}
		return json.Unmarshal(data, u.OfSystem)
	case ChatMessageRoleDeveloper:
		u.OfDeveloper = &ChatCompletionDeveloperMessageParam{}
		return json.Unmarshal(data, u.OfDeveloper)
	case ChatMessageRoleUser:
		u.OfUser = &ChatCompletionUserMessageParam{}
		return json.Unmarshal(data, u.OfUser)
	case ChatMessageRoleAssistant:
		u.OfAssistant = &ChatCompletionAssistantMessageParam{}
		return json.Unmarshal(data, u.OfAssistant)
	case ChatMessageRoleTool:
		u.OfTool = &ChatCompletionToolMessageParam{}
		return json.Unmarshal(data, u.OfTool)
	}
	return fmt.Errorf("unknown message role: %q", role.Role)
}

// ChatCompletionSystemMessageParam is a system-role message.
type ChatCompletionSystemMessageParam struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionDeveloperMessageParam is a developer-role message.
type ChatCompletionDeveloperMessageParam struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionUserMessageParam is a user-role message. Content is either a
// plain string or a list of content parts.
type ChatCompletionUserMessageParam struct {
	Role    string                       `json:"role"`
	Content StringOrUserRoleContentUnion `json:"content"`
}

// StringOrUserRoleContentUnion holds either a string or a
// []ChatCompletionContentPartUserUnionParam.
type StringOrUserRoleContentUnion struct {
	Value any
}

// MarshalJSON implements json.Marshaler.
func (u StringOrUserRoleContentUnion) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *StringOrUserRoleContentUnion) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		u.Value = s
		return nil
	}
	var parts []ChatCompletionContentPartUserUnionParam
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("user content must be a string or a content part list: %w", err)
	}
	u.Value = parts
	return nil
}

// Content part types recognised in user messages.
const (
	ChatCompletionContentPartTypeText     = "text"
	ChatCompletionContentPartTypeImageURL = "image_url"
	ChatCompletionContentPartTypeFile     = "file"
)

// ChatCompletionContentPartUserUnionParam is a union over user content parts.
type ChatCompletionContentPartUserUnionParam struct {
	OfText     *ChatCompletionContentPartTextParam
	OfImageURL *ChatCompletionContentPartImageParam
	OfFile     *ChatCompletionContentPartFileParam
}

// MarshalJSON implements json.Marshaler.
func (u ChatCompletionContentPartUserUnionParam) MarshalJSON() ([]byte, error) {
	switch {
	case u.OfText != nil:
		return json.Marshal(u.OfText)
	case u.OfImageURL != nil:
		return json.Marshal(u.OfImageURL)
	case u.OfFile != nil:
		return json.Marshal(u.OfFile)
	}
	return nil, fmt.Errorf("empty user content part union")
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *ChatCompletionContentPartUserUnionParam) UnmarshalJSON(data []byte) error {
	var t struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("cannot read content part type: %w", err)
	}
	switch t.Type {
	case ChatCompletionContentPartTypeText:
		u.OfText = &ChatCompletionContentPartTextParam{}
		return json.Unmarshal(data, u.OfText)
	case ChatCompletionContentPartTypeImageURL:
		u.OfImageURL = &ChatCompletionContentPartImageParam{}
		return json.Unmarshal(data, u.OfImageURL)
	case ChatCompletionContentPartTypeFile:
		u.OfFile = &ChatCompletionContentPartFileParam{}
		return json.Unmarshal(data, u.OfFile)
	}
	return fmt.Errorf("unknown content part type: %q", t.Type)
}

// ChatCompletionContentPartTextParam is a text content part.
type ChatCompletionContentPartTextParam struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ChatCompletionContentPartImageParam is an image content part.
type ChatCompletionContentPartImageParam struct {
	Type     string                                      `json:"type"`
	ImageURL ChatCompletionContentPartImageImageURLParam `json:"image_url"`
}

// ChatCompletionContentPartImageImageURLParam carries the image location and
// requested detail level.
type ChatCompletionContentPartImageImageURLParam struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ChatCompletionContentPartFileParam is a file content part. Either FileID or
// FileData is set.
type ChatCompletionContentPartFileParam struct {
	Type string                                 `json:"type"`
	File ChatCompletionContentPartFileFileParam `json:"file"`
}

// ChatCompletionContentPartFileFileParam identifies the attached file.
type ChatCompletionContentPartFileFileParam struct {
	FileID   string `json:"file_id,omitempty"`
	FileData string `json:"file_data,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// ChatCompletionAssistantMessageParam is an assistant-role message, possibly
// carrying tool calls.
type ChatCompletionAssistantMessageParam struct {
	Role      string                               `json:"role"`
	Content   *string                              `json:"content,omitempty"`
	ToolCalls []ChatCompletionMessageToolCallParam `json:"tool_calls,omitempty"`
}

// ChatCompletionToolMessageParam is a tool-role message delivering a tool
// call result back to the model.
type ChatCompletionToolMessageParam struct {
	Role       string `json:"role"`
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// ChatCompletionMessageToolCallParam is one tool call attached to an
// assistant message.
type ChatCompletionMessageToolCallParam struct {
	ID       string                                     `json:"id"`
	Type     string                                     `json:"type"`
	Function ChatCompletionMessageToolCallFunctionParam `json:"function"`
}

// ChatCompletionMessageToolCallFunctionParam names the function and carries
// the JSON-encoded arguments verbatim.
type ChatCompletionMessageToolCallFunctionParam struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatCompletionTool declares a function tool available to the model.
type ChatCompletionTool struct {
	Type     string                     `json:"type"`
	Function ChatCompletionToolFunction `json:"function"`
}

// ChatCompletionToolFunction is the function declaration within a tool.
type ChatCompletionToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// ChatCompletionToolChoiceUnion holds either a mode string ("auto", "none",
// "required") or an object selecting a named tool.
type ChatCompletionToolChoiceUnion struct {
	Value any
}

// ChatCompletionNamedToolChoice selects a specific tool by type and,
// for functions, by name.
type ChatCompletionNamedToolChoice struct {
	Type     string                                 `json:"type"`
	Function *ChatCompletionNamedToolChoiceFunction `json:"function,omitempty"`
}

// ChatCompletionNamedToolChoiceFunction names the chosen function.
type ChatCompletionNamedToolChoiceFunction struct {
	Name string `json:"name"`
}

// MarshalJSON implements json.Marshaler.
func (u ChatCompletionToolChoiceUnion) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *ChatCompletionToolChoiceUnion) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		u.Value = s
		return nil
	}
	var named ChatCompletionNamedToolChoice
	if err := json.Unmarshal(data, &named); err != nil {
		return fmt.Errorf("tool_choice must be a string or a named tool object: %w", err)
	}
	u.Value = named
	return nil
}

// ChatCompletionResponseFormat selects the output format of the model.
type ChatCompletionResponseFormat struct {
	Type       string                                  `json:"type"`
	JSONSchema *ChatCompletionResponseFormatJSONSchema `json:"json_schema,omitempty"`
}

// ChatCompletionResponseFormatJSONSchema carries a named JSON schema the
// output must conform to.
type ChatCompletionResponseFormatJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema,omitempty"`
	Strict *bool           `json:"strict,omitempty"`
}

// Finish reasons of a chat completion choice.
const (
	ChatCompletionFinishReasonStop          = "stop"
	ChatCompletionFinishReasonLength        = "length"
	ChatCompletionFinishReasonToolCalls     = "tool_calls"
	ChatCompletionFinishReasonContentFilter = "content_filter"
)

// ChatCompletionResponse is the response schema of the Chat Completions API.
type ChatCompletionResponse struct {
	ID      string                         `json:"id"`
	Object  string                         `json:"object"`
	Created int64                          `json:"created"`
	Model   string                         `json:"model"`
	Choices []ChatCompletionResponseChoice `json:"choices"`
	Usage   *ChatCompletionResponseUsage   `json:"usage,omitempty"`
}

// ChatCompletionResponseChoice is one generated alternative.
type ChatCompletionResponseChoice struct {
	Index        int64                               `json:"index"`
	Message      ChatCompletionResponseChoiceMessage `json:"message"`
	FinishReason string                              `json:"finish_reason"`
}

// ChatCompletionResponseChoiceMessage is the generated assistant message.
type ChatCompletionResponseChoiceMessage struct {
	Role      string                               `json:"role"`
	Content   *string                              `json:"content"`
	ToolCalls []ChatCompletionMessageToolCallParam `json:"tool_calls,omitempty"`
}

// ChatCompletionResponseUsage is the token accounting of one upstream call.
type ChatCompletionResponseUsage struct {
	PromptTokens        int64                `json:"prompt_tokens"`
	CompletionTokens    int64                `json:"completion_tokens"`
	TotalTokens         int64                `json:"total_tokens"`
	PromptTokensDetails *PromptTokensDetails `json:"prompt_tokens_details,omitempty"`
}

// PromptTokensDetails breaks down the prompt token count.
type PromptTokensDetails struct {
	CachedTokens int64 `json:"cached_tokens,omitempty"`
}

// ChatCompletionResponseChunk is one SSE chunk of a streaming chat
// completion.
type ChatCompletionResponseChunk struct {
	ID      string                              `json:"id"`
	Object  string                              `json:"object"`
	Created int64                               `json:"created"`
	Model   string                              `json:"model"`
	Choices []ChatCompletionResponseChunkChoice `json:"choices"`
	Usage   *ChatCompletionResponseUsage        `json:"usage,omitempty"`
}

// ChatCompletionResponseChunkChoice is the delta of one alternative in a
// streaming chunk.
type ChatCompletionResponseChunkChoice struct {
	Index        int64                                   `json:"index"`
	Delta        *ChatCompletionResponseChunkChoiceDelta `json:"delta,omitempty"`
	FinishReason string                                  `json:"finish_reason,omitempty"`
}

// ChatCompletionResponseChunkChoiceDelta is the incremental message content
// of one chunk.
type ChatCompletionResponseChunkChoiceDelta struct {
	Role      string                        `json:"role,omitempty"`
	Content   *string                       `json:"content,omitempty"`
	ToolCalls []ChatCompletionChunkToolCall `json:"tool_calls,omitempty"`
}

// ChatCompletionChunkToolCall is a tool-call fragment within a streaming
// delta. Index correlates fragments of the same call across chunks.
type ChatCompletionChunkToolCall struct {
	Index    *int64                              `json:"index,omitempty"`
	ID       string                              `json:"id,omitempty"`
	Type     string                              `json:"type,omitempty"`
	Function ChatCompletionChunkToolCallFunction `json:"function"`
}

// ChatCompletionChunkToolCallFunction carries name and argument fragments of
// a streamed tool call.
type ChatCompletionChunkToolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// Error is the error envelope returned by OpenAI-compatible upstreams.
type Error struct {
	Type  string    `json:"type,omitempty"`
	Error ErrorType `json:"error"`
}

// ErrorType is the error payload within the envelope.
type ErrorType struct {
	Type    string  `json:"type"`
	Message string  `json:"message"`
	Param   *string `json:"param,omitempty"`
	Code    *string `json:"code,omitempty"`
}
