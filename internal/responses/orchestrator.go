// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package responses

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/json"
	"github.com/masaic-ai/open-responses/internal/metrics"
	"github.com/masaic-ai/open-responses/internal/provider"
	"github.com/masaic-ai/open-responses/internal/translator"
)

// Create runs the buffered tool-call loop and returns the terminal response.
// Exactly one terminal response is produced per call; on error nothing is
// persisted.
func (o *Orchestrator) Create(ctx context.Context, req *openai.ResponseRequest, headers http.Header) (*openai.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	ep, err := o.router.Resolve(req.Model, headers)
	if err != nil {
		return nil, err
	}
	items, err := o.resolveHistory(ctx, req)
	if err != nil {
		return nil, err
	}

	m := o.metricsFactory.NewChatMetrics()
	m.StartRequest()
	m.SetProvider(ep.Name)
	m.SetRequestModel(req.Model)

	tr := translator.NewResponsesToChatTranslator(o.logger)
	ts := o.newToolSet(req)
	respID := o.newID()
	initialItems := items

	var (
		state = stateAwaitingModel
		turn  *openai.Response
		final *openai.Response
	)
	for state != stateDone {
		switch state {
		case stateAwaitingModel:
			params, err := tr.RequestToChatCompletion(req, items, ep.Model)
			if err != nil {
				m.RecordRequestCompletion(ctx, false)
				return nil, err
			}
			chat, err := o.chatTurn(ctx, ep, params, m)
			if err != nil {
				m.RecordRequestCompletion(ctx, false)
				return nil, err
			}
			turn = tr.ResponseFromChatCompletion(chat, respID, ep.Model)
			m.SetResponseModel(turn.Model)
			if finishReason(chat) != openai.ChatCompletionFinishReasonToolCalls || !o.hasInternalCalls(turn, ts) {
				final = turn
				state = stateDone
				break
			}
			state = stateReconcilingTools

		case stateReconcilingTools:
			rec, err := o.reconcile(ctx, items, turn, ts)
			if err != nil {
				m.RecordRequestCompletion(ctx, false)
				return nil, err
			}
			items = rec.next
			state = stateAwaitingModel
		}
	}

	echoRequest(final, req)
	o.persist(ctx, req, final, initialItems)
	m.RecordRequestCompletion(ctx, true)
	return final, nil
}

// persist writes the terminal response when storage is requested. Store
// failures are logged, never surfaced; they must not mask a successful
// generation.
func (o *Orchestrator) persist(ctx context.Context, req *openai.ResponseRequest, resp *openai.Response, items []openai.ResponseInputItemUnion) {
	if !storeEnabled(req) {
		return
	}
	if err := o.store.Put(ctx, resp, items); err != nil {
		o.logger.Error("failed to persist response",
			slog.String("response_id", resp.ID), slog.String("error", err.Error()))
	}
}

// chatTurn performs one buffered upstream call wrapped in a tracing span and
// token accounting.
func (o *Orchestrator) chatTurn(ctx context.Context, ep *provider.Endpoint, params *openai.ChatCompletionRequest, m metrics.ChatMetrics) (*openai.ChatCompletionResponse, error) {
	ctx, span := o.tracer.StartChat(ctx, ep.Name, params.Model, ep.BaseURL)
	for i := range params.Messages {
		role, content := messageRoleAndText(&params.Messages[i])
		span.RecordRequestMessage(role, content)
	}

	chat, err := o.upstream.ChatCompletions(ctx, ep, params)
	if err != nil {
		span.EndWithError(err)
		return nil, err
	}

	var inTokens, outTokens int64
	if chat.Usage != nil {
		inTokens, outTokens = chat.Usage.PromptTokens, chat.Usage.CompletionTokens
	}
	var reasons []string
	for i := range chat.Choices {
		reasons = append(reasons, chat.Choices[i].FinishReason)
		if c := chat.Choices[i].Message.Content; c != nil && *c != "" {
			span.RecordOutputMessage(openai.ChatMessageRoleAssistant, *c)
		}
		for _, tc := range chat.Choices[i].Message.ToolCalls {
			span.RecordOutputMessage(openai.ChatMessageRoleAssistant, tc.Function.Name+"("+tc.Function.Arguments+")")
		}
	}
	span.RecordResponse(chat.ID, chat.Model, inTokens, outTokens, reasons)
	span.End()

	m.RecordTokenUsage(ctx, chat.Usage)
	return chat, nil
}

// finishReason returns the finish reason of the surfaced choice.
func finishReason(chat *openai.ChatCompletionResponse) string {
	if len(chat.Choices) == 0 {
		return ""
	}
	return chat.Choices[0].FinishReason
}

// messageRoleAndText flattens one chat message to the role/content pair the
// tracing span event carries.
func messageRoleAndText(msg *openai.ChatCompletionMessageParamUnion) (string, string) {
	switch {
	case msg.OfSystem != nil:
		return openai.ChatMessageRoleSystem, msg.OfSystem.Content
	case msg.OfDeveloper != nil:
		return openai.ChatMessageRoleDeveloper, msg.OfDeveloper.Content
	case msg.OfUser != nil:
		if s, ok := msg.OfUser.Content.Value.(string); ok {
			return openai.ChatMessageRoleUser, s
		}
		raw, _ := json.Marshal(msg.OfUser.Content.Value)
		return openai.ChatMessageRoleUser, string(raw)
	case msg.OfAssistant != nil:
		if msg.OfAssistant.Content != nil {
			return openai.ChatMessageRoleAssistant, *msg.OfAssistant.Content
		}
		raw, _ := json.Marshal(msg.OfAssistant.ToolCalls)
		return openai.ChatMessageRoleAssistant, string(raw)
	case msg.OfTool != nil:
		return openai.ChatMessageRoleTool, msg.OfTool.Content
	}
	return "", ""
}
