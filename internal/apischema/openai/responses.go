// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openai

import (
	"fmt"

	"github.com/masaic-ai/open-responses/internal/json"
)

// Response statuses.
const (
	ResponseStatusInProgress = "in_progress"
	ResponseStatusCompleted  = "completed"
	ResponseStatusIncomplete = "incomplete"
	ResponseStatusFailed     = "failed"
)

// Incomplete reasons surfaced in Response.IncompleteDetails.
const (
	IncompleteReasonMaxOutputTokens = "max_output_tokens"
	IncompleteReasonContentFilter   = "content_filter"
)

// ResponseRequest is the request schema of the Responses API:
// https://platform.openai.com/docs/api-reference/responses/create
type ResponseRequest struct {
	Model              string                   `json:"model"`
	Input              ResponseInputUnion       `json:"input"`
	Instructions       *string                  `json:"instructions,omitempty"`
	Tools              []ResponseToolUnion      `json:"tools,omitempty"`
	ToolChoice         *ResponseToolChoiceUnion `json:"tool_choice,omitempty"`
	Temperature        *float64                 `json:"temperature,omitempty"`
	TopP               *float64                 `json:"top_p,omitempty"`
	MaxOutputTokens    *int64                   `json:"max_output_tokens,omitempty"`
	ParallelToolCalls  *bool                    `json:"parallel_tool_calls,omitempty"`
	Stream             bool                     `json:"stream,omitempty"`
	Store              *bool                    `json:"store,omitempty"`
	PreviousResponseID *string                  `json:"previous_response_id,omitempty"`
	Text               *ResponseTextConfig      `json:"text,omitempty"`
	Reasoning          *ResponseReasoningConfig `json:"reasoning,omitempty"`
	Metadata           map[string]string        `json:"metadata,omitempty"`
	// Truncation and Include are accepted for wire compatibility but are
	// consumed locally and never forwarded upstream.
	Truncation *string  `json:"truncation,omitempty"`
	Include    []string `json:"include,omitempty"`
}

// ResponseTextConfig selects the output text format.
type ResponseTextConfig struct {
	Format *ResponseTextFormat `json:"format,omitempty"`
}

// ResponseTextFormat is either {type:"text"}, {type:"json_object"} or a
// named JSON schema {type:"json_schema", json_schema:{name, schema}}.
type ResponseTextFormat struct {
	Type       string                  `json:"type"`
	JSONSchema *ResponseTextJSONSchema `json:"json_schema,omitempty"`
	// Flattened form used by some clients: name/schema at the format level.
	Name   string          `json:"name,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// ResponseTextJSONSchema is the nested json_schema object.
type ResponseTextJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema,omitempty"`
	Strict *bool           `json:"strict,omitempty"`
}

// ResponseReasoningConfig tunes reasoning behaviour of reasoning-capable
// models.
type ResponseReasoningConfig struct {
	Effort string `json:"effort,omitempty"`
	// GenerateSummary is consumed locally and never forwarded.
	GenerateSummary *string `json:"generate_summary,omitempty"`
}

// ResponseInputUnion holds either a plain string or an ordered list of input
// items.
type ResponseInputUnion struct {
	OfString *string
	OfItems  []ResponseInputItemUnion
}

// MarshalJSON implements json.Marshaler.
func (u ResponseInputUnion) MarshalJSON() ([]byte, error) {
	if u.OfString != nil {
		return json.Marshal(*u.OfString)
	}
	return json.Marshal(u.OfItems)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *ResponseInputUnion) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		u.OfString = &s
		return nil
	}
	var items []ResponseInputItemUnion
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("input must be a string or an item list: %w", err)
	}
	u.OfItems = items
	return nil
}

// Input item discriminators.
const (
	ResponseItemTypeMessage            = "message"
	ResponseItemTypeFunctionCall       = "function_call"
	ResponseItemTypeFunctionCallOutput = "function_call_output"
)

// ResponseInputItemUnion is the tagged variant over input items. Exactly one
// of the Of* fields is set.
type ResponseInputItemUnion struct {
	// OfMessage covers both the easy form {role, content:"..."} and the full
	// form {role, content:[...]}.
	OfMessage *ResponseInputItemMessage
	// OfOutputMessage is an assistant output message fed back as input,
	// recognisable by its item id.
	OfOutputMessage *ResponseOutputMessage
	// OfFunctionCall is a model-issued tool call replayed as input.
	OfFunctionCall *ResponseFunctionToolCall
	// OfFunctionCallOutput is the caller-supplied result of a tool call.
	OfFunctionCallOutput *ResponseFunctionCallOutputItem
}

// MarshalJSON implements json.Marshaler.
func (u ResponseInputItemUnion) MarshalJSON() ([]byte, error) {
	switch {
	case u.OfMessage != nil:
		return json.Marshal(u.OfMessage)
	case u.OfOutputMessage != nil:
		return json.Marshal(u.OfOutputMessage)
	case u.OfFunctionCall != nil:
		return json.Marshal(u.OfFunctionCall)
	case u.OfFunctionCallOutput != nil:
		return json.Marshal(u.OfFunctionCallOutput)
	}
	return nil, fmt.Errorf("empty input item union")
}

// UnmarshalJSON implements json.Unmarshaler, dispatching on the type
// discriminator with a role-based fallback for untyped messages.
func (u *ResponseInputItemUnion) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
		Role string `json:"role"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("cannot read input item discriminator: %w", err)
	}
	switch head.Type {
	case ResponseItemTypeFunctionCall:
		u.OfFunctionCall = &ResponseFunctionToolCall{}
		return json.Unmarshal(data, u.OfFunctionCall)
	case ResponseItemTypeFunctionCallOutput:
		u.OfFunctionCallOutput = &ResponseFunctionCallOutputItem{}
		return json.Unmarshal(data, u.OfFunctionCallOutput)
	case ResponseItemTypeMessage, "":
		if head.Role == "" {
			return fmt.Errorf("input item has neither type nor role")
		}
		// Assistant messages carrying an item id are replayed output messages.
		if head.Role == ChatMessageRoleAssistant && head.ID != "" {
			u.OfOutputMessage = &ResponseOutputMessage{}
			return json.Unmarshal(data, u.OfOutputMessage)
		}
		u.OfMessage = &ResponseInputItemMessage{}
		return json.Unmarshal(data, u.OfMessage)
	}
	return fmt.Errorf("unknown input item type: %q", head.Type)
}

// ResponseInputItemMessage is a role-tagged input message.
type ResponseInputItemMessage struct {
	Type    string                           `json:"type,omitempty"`
	Role    string                           `json:"role"`
	Content ResponseInputMessageContentUnion `json:"content"`
}

// ResponseInputMessageContentUnion holds either a string or a list of input
// content parts.
type ResponseInputMessageContentUnion struct {
	OfString *string
	OfParts  []ResponseInputContentUnion
}

// MarshalJSON implements json.Marshaler.
func (u ResponseInputMessageContentUnion) MarshalJSON() ([]byte, error) {
	if u.OfString != nil {
		return json.Marshal(*u.OfString)
	}
	return json.Marshal(u.OfParts)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *ResponseInputMessageContentUnion) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		u.OfString = &s
		return nil
	}
	var parts []ResponseInputContentUnion
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content must be a string or a part list: %w", err)
	}
	u.OfParts = parts
	return nil
}

// Input content part discriminators.
const (
	ResponseContentTypeInputText  = "input_text"
	ResponseContentTypeInputImage = "input_image"
	ResponseContentTypeInputFile  = "input_file"
	ResponseContentTypeOutputText = "output_text"
)

// ResponseInputContentUnion is a union over input content parts.
type ResponseInputContentUnion struct {
	OfInputText  *ResponseInputTextContent
	OfInputImage *ResponseInputImageContent
	OfInputFile  *ResponseInputFileContent
}

// MarshalJSON implements json.Marshaler.
func (u ResponseInputContentUnion) MarshalJSON() ([]byte, error) {
	switch {
	case u.OfInputText != nil:
		return json.Marshal(u.OfInputText)
	case u.OfInputImage != nil:
		return json.Marshal(u.OfInputImage)
	case u.OfInputFile != nil:
		return json.Marshal(u.OfInputFile)
	}
	return nil, fmt.Errorf("empty input content union")
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *ResponseInputContentUnion) UnmarshalJSON(data []byte) error {
	var t struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("cannot read input content type: %w", err)
	}
	switch t.Type {
	case ResponseContentTypeInputText:
		u.OfInputText = &ResponseInputTextContent{}
		return json.Unmarshal(data, u.OfInputText)
	case ResponseContentTypeInputImage:
		u.OfInputImage = &ResponseInputImageContent{}
		return json.Unmarshal(data, u.OfInputImage)
	case ResponseContentTypeInputFile:
		u.OfInputFile = &ResponseInputFileContent{}
		return json.Unmarshal(data, u.OfInputFile)
	}
	return fmt.Errorf("unknown input content type: %q", t.Type)
}

// ResponseInputTextContent is a text part of an input message.
type ResponseInputTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ResponseInputImageContent is an image part of an input message.
type ResponseInputImageContent struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
	Detail   string `json:"detail,omitempty"`
}

// ResponseInputFileContent is a file part of an input message. Either FileID
// or FileData is set.
type ResponseInputFileContent struct {
	Type     string `json:"type"`
	FileID   string `json:"file_id,omitempty"`
	FileData string `json:"file_data,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// ResponseFunctionToolCall is a tool call item in input or output position.
type ResponseFunctionToolCall struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Status    string `json:"status,omitempty"`
}

// ResponseFunctionCallOutputItem is the result of a tool call keyed by
// call id.
type ResponseFunctionCallOutputItem struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// ResponseOutputMessage is an assistant message produced by the model.
type ResponseOutputMessage struct {
	Type    string                      `json:"type"`
	ID      string                      `json:"id"`
	Role    string                      `json:"role"`
	Status  string                      `json:"status,omitempty"`
	Content []ResponseOutputTextContent `json:"content"`
}

// ResponseOutputTextContent is one output_text part of an output message.
type ResponseOutputTextContent struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Annotations []any  `json:"annotations"`
}

// ResponseOutputItemUnion is a union over output items of a response.
type ResponseOutputItemUnion struct {
	OfMessage      *ResponseOutputMessage
	OfFunctionCall *ResponseFunctionToolCall
}

// MarshalJSON implements json.Marshaler.
func (u ResponseOutputItemUnion) MarshalJSON() ([]byte, error) {
	switch {
	case u.OfMessage != nil:
		return json.Marshal(u.OfMessage)
	case u.OfFunctionCall != nil:
		return json.Marshal(u.OfFunctionCall)
	}
	return nil, fmt.Errorf("empty output item union")
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *ResponseOutputItemUnion) UnmarshalJSON(data []byte) error {
	var t struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("cannot read output item type: %w", err)
	}
	switch t.Type {
	case ResponseItemTypeMessage:
		u.OfMessage = &ResponseOutputMessage{}
		return json.Unmarshal(data, u.OfMessage)
	case ResponseItemTypeFunctionCall:
		u.OfFunctionCall = &ResponseFunctionToolCall{}
		return json.Unmarshal(data, u.OfFunctionCall)
	}
	return fmt.Errorf("unknown output item type: %q", t.Type)
}

// Tool type discriminators of the Responses API.
const (
	ResponseToolTypeFunction   = "function"
	ResponseToolTypeFileSearch = "file_search"
)

// ResponseToolUnion is a union over tool declarations.
type ResponseToolUnion struct {
	OfFunction   *ResponseFunctionTool
	OfFileSearch *ResponseFileSearchTool
}

// MarshalJSON implements json.Marshaler.
func (u ResponseToolUnion) MarshalJSON() ([]byte, error) {
	switch {
	case u.OfFunction != nil:
		return json.Marshal(u.OfFunction)
	case u.OfFileSearch != nil:
		return json.Marshal(u.OfFileSearch)
	}
	return nil, fmt.Errorf("empty tool union")
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *ResponseToolUnion) UnmarshalJSON(data []byte) error {
	var t struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("cannot read tool type: %w", err)
	}
	switch t.Type {
	case ResponseToolTypeFunction:
		u.OfFunction = &ResponseFunctionTool{}
		return json.Unmarshal(data, u.OfFunction)
	case ResponseToolTypeFileSearch:
		u.OfFileSearch = &ResponseFileSearchTool{}
		return json.Unmarshal(data, u.OfFileSearch)
	}
	return fmt.Errorf("unknown tool type: %q", t.Type)
}

// ResponseFunctionTool declares a function tool in the Responses dialect,
// where name/description/parameters sit at the top level.
type ResponseFunctionTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// ResponseFileSearchTool declares the built-in file_search tool.
type ResponseFileSearchTool struct {
	Type           string                   `json:"type"`
	VectorStoreIDs []string                 `json:"vector_store_ids,omitempty"`
	MaxNumResults  *int64                   `json:"max_num_results,omitempty"`
	Filters        *FileSearchFilterUnion   `json:"filters,omitempty"`
	RankingOptions *FileSearchRankingOption `json:"ranking_options,omitempty"`
}

// FileSearchRankingOption tunes result ranking.
type FileSearchRankingOption struct {
	Ranker         string   `json:"ranker,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
}

// FileSearchFilterUnion is a comparison filter or a conjunction of them.
type FileSearchFilterUnion struct {
	// Key/Type/Value are set for a leaf comparison filter.
	Key   string `json:"key,omitempty"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value,omitempty"`
	// Filters is set for a compound filter; Type is then "and".
	Filters []FileSearchFilterUnion `json:"filters,omitempty"`
}

// ResponseToolChoiceUnion holds either a mode string, a named type
// {type:"file_search"}, or a named function {type:"function", name}.
type ResponseToolChoiceUnion struct {
	Value any
}

// ResponseNamedToolChoice selects a specific tool.
type ResponseNamedToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (u ResponseToolChoiceUnion) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *ResponseToolChoiceUnion) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		u.Value = s
		return nil
	}
	var named ResponseNamedToolChoice
	if err := json.Unmarshal(data, &named); err != nil {
		return fmt.Errorf("tool_choice must be a string or a named tool object: %w", err)
	}
	u.Value = named
	return nil
}

// Response is the response schema of the Responses API.
type Response struct {
	ID                 string                    `json:"id"`
	Object             string                    `json:"object"`
	CreatedAt          int64                     `json:"created_at"`
	Model              string                    `json:"model"`
	Status             string                    `json:"status"`
	Output             []ResponseOutputItemUnion `json:"output"`
	Usage              *ResponseUsage            `json:"usage,omitempty"`
	IncompleteDetails  *IncompleteDetails        `json:"incomplete_details,omitempty"`
	Error              *ResponseError            `json:"error,omitempty"`
	Metadata           map[string]string         `json:"metadata,omitempty"`
	Instructions       *string                   `json:"instructions,omitempty"`
	Temperature        *float64                  `json:"temperature,omitempty"`
	TopP               *float64                  `json:"top_p,omitempty"`
	MaxOutputTokens    *int64                    `json:"max_output_tokens,omitempty"`
	ParallelToolCalls  *bool                     `json:"parallel_tool_calls,omitempty"`
	PreviousResponseID *string                   `json:"previous_response_id,omitempty"`
	Tools              []ResponseToolUnion       `json:"tools,omitempty"`
	ToolChoice         *ResponseToolChoiceUnion  `json:"tool_choice,omitempty"`
}

// ResponseUsage is the token accounting of a response.
type ResponseUsage struct {
	InputTokens         int64                      `json:"input_tokens"`
	OutputTokens        int64                      `json:"output_tokens"`
	TotalTokens         int64                      `json:"total_tokens"`
	InputTokensDetails  ResponseInputTokensDetail  `json:"input_tokens_details"`
	OutputTokensDetails ResponseOutputTokensDetail `json:"output_tokens_details"`
}

// ResponseInputTokensDetail breaks down input tokens.
type ResponseInputTokensDetail struct {
	CachedTokens int64 `json:"cached_tokens"`
}

// ResponseOutputTokensDetail breaks down output tokens.
type ResponseOutputTokensDetail struct {
	ReasoningTokens int64 `json:"reasoning_tokens"`
}

// IncompleteDetails explains why a response is incomplete.
type IncompleteDetails struct {
	Reason string `json:"reason"`
}

// ResponseError is the terminal error recorded on a failed response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseInputItemList is the page returned by the input items listing
// endpoint.
type ResponseInputItemList struct {
	Object  string                   `json:"object"`
	Data    []ResponseInputItemUnion `json:"data"`
	FirstID string                   `json:"first_id,omitempty"`
	LastID  string                   `json:"last_id,omitempty"`
	HasMore bool                     `json:"has_more"`
}
