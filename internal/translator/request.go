// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/json"
)

// fileSearchParameters is the function-call schema the built-in file_search
// tool is declared with when presented to the model.
var fileSearchParameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Natural-language search query over the indexed files."}
  },
  "required": ["query"],
  "additionalProperties": false
}`)

// RequestToChatCompletion translates a Responses request plus the effective
// input item list into a Chat Completions request for the given upstream
// model name.
//
// Fields the upstream cannot represent (previous_response_id, truncation,
// include, reasoning.generate_summary) are consumed here and never
// forwarded.
func (t *ResponsesToChatTranslator) RequestToChatCompletion(
	req *openai.ResponseRequest, items []openai.ResponseInputItemUnion, model string,
) (*openai.ChatCompletionRequest, error) {
	out := &openai.ChatCompletionRequest{
		Model:             model,
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		MaxTokens:         req.MaxOutputTokens,
		ParallelToolCalls: req.ParallelToolCalls,
		Stream:            req.Stream,
	}
	if req.Stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	if req.Instructions != nil && *req.Instructions != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Role:    openai.ChatMessageRoleSystem,
				Content: *req.Instructions,
			},
		})
	}

	if len(items) == 0 {
		return nil, apierror.New(apierror.KindInvalidRequest, "input must not be empty").WithParam("input")
	}
	for i := range items {
		msgs, err := t.itemToMessages(&items[i])
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msgs...)
	}

	for i := range req.Tools {
		tool, err := toolToChatCompletion(&req.Tools[i])
		if err != nil {
			return nil, err
		}
		out.Tools = append(out.Tools, *tool)
	}

	if req.ToolChoice != nil {
		tc, err := toolChoiceToChatCompletion(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		out.ToolChoice = tc
	}

	if req.Text != nil && req.Text.Format != nil {
		rf, err := textFormatToResponseFormat(req.Text.Format)
		if err != nil {
			return nil, err
		}
		out.ResponseFormat = rf
	}

	if req.Reasoning != nil && req.Reasoning.Effort != "" {
		out.ReasoningEffort = req.Reasoning.Effort
	}
	return out, nil
}

// itemToMessages maps one input item to its chat message form.
func (t *ResponsesToChatTranslator) itemToMessages(item *openai.ResponseInputItemUnion) ([]openai.ChatCompletionMessageParamUnion, error) {
	switch {
	case item.OfMessage != nil:
		msg, err := messageItemToChatMessage(item.OfMessage)
		if err != nil {
			return nil, err
		}
		return []openai.ChatCompletionMessageParamUnion{*msg}, nil

	case item.OfOutputMessage != nil:
		var text string
		for _, part := range item.OfOutputMessage.Content {
			text += part.Text
		}
		content := text
		return []openai.ChatCompletionMessageParamUnion{{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Role:    openai.ChatMessageRoleAssistant,
				Content: &content,
			},
		}}, nil

	case item.OfFunctionCall != nil:
		fc := item.OfFunctionCall
		return []openai.ChatCompletionMessageParamUnion{{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
					ID:   fc.CallID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      fc.Name,
						Arguments: fc.Arguments,
					},
				}},
			},
		}}, nil

	case item.OfFunctionCallOutput != nil:
		fo := item.OfFunctionCallOutput
		return []openai.ChatCompletionMessageParamUnion{{
			OfTool: &openai.ChatCompletionToolMessageParam{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: fo.CallID,
				Content:    fo.Output,
			},
		}}, nil
	}
	return nil, apierror.New(apierror.KindInvalidRequest, "unsupported input item").WithParam("input")
}

// messageItemToChatMessage maps a role-tagged input message. String content
// maps to the plain form; a part list maps to content parts.
func messageItemToChatMessage(msg *openai.ResponseInputItemMessage) (*openai.ChatCompletionMessageParamUnion, error) {
	if msg.Content.OfString != nil {
		return easyMessage(msg.Role, *msg.Content.OfString)
	}

	// Content part lists are only valid on user messages; other roles take
	// plain text on the chat side.
	parts := make([]openai.ChatCompletionContentPartUserUnionParam, 0, len(msg.Content.OfParts))
	for i := range msg.Content.OfParts {
		part, err := contentPartToChatPart(&msg.Content.OfParts[i])
		if err != nil {
			return nil, err
		}
		parts = append(parts, *part)
	}
	if msg.Role != openai.ChatMessageRoleUser {
		var text string
		for _, p := range parts {
			if p.OfText != nil {
				text += p.OfText.Text
			}
		}
		return easyMessage(msg.Role, text)
	}
	return &openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Role:    openai.ChatMessageRoleUser,
			Content: openai.StringOrUserRoleContentUnion{Value: parts},
		},
	}, nil
}

// easyMessage builds the plain-string message for the given role.
func easyMessage(role, content string) (*openai.ChatCompletionMessageParamUnion, error) {
	switch role {
	case openai.ChatMessageRoleSystem:
		return &openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{Role: role, Content: content},
		}, nil
	case openai.ChatMessageRoleDeveloper:
		return &openai.ChatCompletionMessageParamUnion{
			OfDeveloper: &openai.ChatCompletionDeveloperMessageParam{Role: role, Content: content},
		}, nil
	case openai.ChatMessageRoleUser:
		return &openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Role:    role,
				Content: openai.StringOrUserRoleContentUnion{Value: content},
			},
		}, nil
	case openai.ChatMessageRoleAssistant:
		return &openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{Role: role, Content: &content},
		}, nil
	}
	return nil, apierror.New(apierror.KindInvalidRequest, "unsupported message role: %q", role).WithParam("input")
}

// contentPartToChatPart maps one input content part to a chat content part.
func contentPartToChatPart(part *openai.ResponseInputContentUnion) (*openai.ChatCompletionContentPartUserUnionParam, error) {
	switch {
	case part.OfInputText != nil:
		return &openai.ChatCompletionContentPartUserUnionParam{
			OfText: &openai.ChatCompletionContentPartTextParam{
				Type: openai.ChatCompletionContentPartTypeText,
				Text: part.OfInputText.Text,
			},
		}, nil
	case part.OfInputImage != nil:
		return &openai.ChatCompletionContentPartUserUnionParam{
			OfImageURL: &openai.ChatCompletionContentPartImageParam{
				Type: openai.ChatCompletionContentPartTypeImageURL,
				ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
					URL:    part.OfInputImage.ImageURL,
					Detail: part.OfInputImage.Detail,
				},
			},
		}, nil
	case part.OfInputFile != nil:
		return &openai.ChatCompletionContentPartUserUnionParam{
			OfFile: &openai.ChatCompletionContentPartFileParam{
				Type: openai.ChatCompletionContentPartTypeFile,
				File: openai.ChatCompletionContentPartFileFileParam{
					FileID:   part.OfInputFile.FileID,
					FileData: part.OfInputFile.FileData,
					Filename: part.OfInputFile.Filename,
				},
			},
		}, nil
	}
	return nil, apierror.New(apierror.KindInvalidRequest, "unsupported input content part").WithParam("input")
}

// toolToChatCompletion maps a Responses tool declaration to a chat tool. The
// built-in file_search tool is declared to the model as a function tool; its
// execution never leaves the gateway.
func toolToChatCompletion(tool *openai.ResponseToolUnion) (*openai.ChatCompletionTool, error) {
	switch {
	case tool.OfFunction != nil:
		f := tool.OfFunction
		return &openai.ChatCompletionTool{
			Type: "function",
			Function: openai.ChatCompletionToolFunction{
				Name:        f.Name,
				Description: f.Description,
				Parameters:  f.Parameters,
				Strict:      f.Strict,
			},
		}, nil
	case tool.OfFileSearch != nil:
		return &openai.ChatCompletionTool{
			Type: "function",
			Function: openai.ChatCompletionToolFunction{
				Name:        "file_search",
				Description: "Searches the user's uploaded files and returns the most relevant passages.",
				Parameters:  fileSearchParameters,
			},
		}, nil
	}
	return nil, apierror.New(apierror.KindInvalidRequest, "unsupported tool variant").WithParam("tools")
}

// toolChoiceToChatCompletion maps the tool_choice union across dialects.
func toolChoiceToChatCompletion(tc *openai.ResponseToolChoiceUnion) (*openai.ChatCompletionToolChoiceUnion, error) {
	switch v := tc.Value.(type) {
	case string:
		return &openai.ChatCompletionToolChoiceUnion{Value: v}, nil
	case openai.ResponseNamedToolChoice:
		if v.Type == openai.ResponseToolTypeFunction {
			return &openai.ChatCompletionToolChoiceUnion{Value: openai.ChatCompletionNamedToolChoice{
				Type:     "function",
				Function: &openai.ChatCompletionNamedToolChoiceFunction{Name: v.Name},
			}}, nil
		}
		return &openai.ChatCompletionToolChoiceUnion{Value: openai.ChatCompletionNamedToolChoice{Type: v.Type}}, nil
	}
	return nil, apierror.New(apierror.KindInvalidRequest, "unsupported tool_choice").WithParam("tool_choice")
}

// textFormatToResponseFormat maps text.format to response_format.
func textFormatToResponseFormat(f *openai.ResponseTextFormat) (*openai.ChatCompletionResponseFormat, error) {
	switch f.Type {
	case "text", "json_object":
		return &openai.ChatCompletionResponseFormat{Type: f.Type}, nil
	case "json_schema":
		js := f.JSONSchema
		if js == nil {
			// Flattened form: name/schema directly on the format object.
			if f.Name == "" && len(f.Schema) == 0 {
				return nil, apierror.New(apierror.KindInvalidRequest, "json_schema format requires a schema").WithParam("text.format")
			}
			js = &openai.ResponseTextJSONSchema{Name: f.Name, Schema: f.Schema}
		}
		return &openai.ChatCompletionResponseFormat{
			Type: "json_schema",
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   js.Name,
				Schema: js.Schema,
				Strict: js.Strict,
			},
		}, nil
	}
	return nil, apierror.New(apierror.KindInvalidRequest, "unsupported text format: %q", f.Type).WithParam("text.format")
}
