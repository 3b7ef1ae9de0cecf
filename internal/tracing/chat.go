// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute names per the gen_ai semantic conventions:
// https://opentelemetry.io/docs/specs/semconv/gen-ai/gen-ai-spans/
const (
	attrOperationName = "gen_ai.operation.name"
	attrProviderName  = "gen_ai.provider.name"
	attrRequestModel  = "gen_ai.request.model"
	attrResponseModel = "gen_ai.response.model"
	attrResponseID    = "gen_ai.response.id"
	attrInputTokens   = "gen_ai.usage.input_tokens"
	attrOutputTokens  = "gen_ai.usage.output_tokens"
	attrFinishReasons = "gen_ai.response.finish_reasons"
	attrServerAddress = "server.address"

	eventInputMessage  = "gen_ai.user.message"
	eventOutputMessage = "gen_ai.choice"
	attrMessageRole    = "gen_ai.message.role"
	attrMessageContent = "gen_ai.message.content"
)

// chatTracer implements ChatTracer over an OTEL tracer.
type chatTracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// StartChat implements [ChatTracer.StartChat].
func (t *chatTracer) StartChat(ctx context.Context, provider, requestModel, serverAddress string) (context.Context, ChatSpan) {
	ctx, span := t.tracer.Start(ctx, "chat "+requestModel,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrOperationName, "chat"),
			attribute.String(attrProviderName, provider),
			attribute.String(attrRequestModel, requestModel),
			attribute.String(attrServerAddress, serverAddress),
		),
	)
	if !span.IsRecording() {
		return ctx, noopChatSpan{}
	}
	return ctx, &chatSpan{span: span}
}

// chatSpan implements ChatSpan over one recording span.
type chatSpan struct {
	span trace.Span
}

// RecordRequestMessage implements [ChatSpan.RecordRequestMessage].
func (s *chatSpan) RecordRequestMessage(role, content string) {
	s.span.AddEvent(eventInputMessage, trace.WithAttributes(
		attribute.String(attrMessageRole, role),
		attribute.String(attrMessageContent, content),
	))
}

// RecordResponse implements [ChatSpan.RecordResponse].
func (s *chatSpan) RecordResponse(responseID, responseModel string, inputTokens, outputTokens int64, finishReasons []string) {
	s.span.SetAttributes(
		attribute.String(attrResponseID, responseID),
		attribute.String(attrResponseModel, responseModel),
		attribute.Int64(attrInputTokens, inputTokens),
		attribute.Int64(attrOutputTokens, outputTokens),
		attribute.String(attrFinishReasons, strings.Join(finishReasons, ",")),
	)
}

// RecordOutputMessage implements [ChatSpan.RecordOutputMessage].
func (s *chatSpan) RecordOutputMessage(role, content string) {
	s.span.AddEvent(eventOutputMessage, trace.WithAttributes(
		attribute.String(attrMessageRole, role),
		attribute.String(attrMessageContent, content),
	))
}

// EndWithError implements [ChatSpan.EndWithError].
func (s *chatSpan) EndWithError(err error) {
	s.span.SetStatus(codes.Error, err.Error())
	s.span.RecordError(err)
	s.span.End()
}

// End implements [ChatSpan.End].
func (s *chatSpan) End() {
	s.span.SetStatus(codes.Ok, "")
	s.span.End()
}
