// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package tracing opens an observation span around every upstream chat call,
// tagged with the gen_ai semantic convention attributes and carrying one
// span event per input and output message.
package tracing

import (
	"context"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ChatTracer opens spans around upstream chat completion calls.
type ChatTracer interface {
	// StartChat opens a span for one upstream turn. The returned context
	// carries the span; the span must be ended through the ChatSpan.
	StartChat(ctx context.Context, provider, requestModel string, serverAddress string) (context.Context, ChatSpan)
}

// ChatSpan records the outcome of one upstream turn. Implementations swallow
// recording failures; tracing must never fail the request.
type ChatSpan interface {
	// RecordRequestMessage adds one input-message event.
	RecordRequestMessage(role, content string)
	// RecordResponse tags the span with the response identity and token
	// usage.
	RecordResponse(responseID, responseModel string, inputTokens, outputTokens int64, finishReasons []string)
	// RecordOutputMessage adds one output-message event.
	RecordOutputMessage(role, content string)
	// EndWithError ends the span recording the failure.
	EndWithError(err error)
	// End ends the span successfully.
	End()
}

// NewTracerFromEnv configures an OpenTelemetry TracerProvider from the
// standard OTEL environment variables and returns a ChatTracer plus a
// shutdown function. With the SDK disabled or no exporter configured, a
// no-op tracer is returned.
func NewTracerFromEnv(ctx context.Context) (ChatTracer, func(context.Context) error, error) {
	noShutdown := func(context.Context) error { return nil }
	hasOTLPEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
		os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") != ""
	if os.Getenv("OTEL_SDK_DISABLED") == "true" ||
		os.Getenv("OTEL_TRACES_EXPORTER") == "none" ||
		(os.Getenv("OTEL_TRACES_EXPORTER") == "" && !hasOTLPEndpoint) {
		return NoopChatTracer{}, noShutdown, nil
	}

	exporter, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	return NewChatTracer(tp.Tracer("masaic-ai/open-responses")), tp.Shutdown, nil
}

// NewChatTracer wraps an OTEL tracer into a ChatTracer.
func NewChatTracer(tracer trace.Tracer) ChatTracer {
	if _, ok := tracer.(noop.Tracer); ok {
		return NoopChatTracer{}
	}
	return &chatTracer{
		tracer:     tracer,
		propagator: propagation.TraceContext{},
	}
}

// NoopChatTracer discards all spans.
type NoopChatTracer struct{}

// StartChat implements [ChatTracer.StartChat].
func (NoopChatTracer) StartChat(ctx context.Context, _, _, _ string) (context.Context, ChatSpan) {
	return ctx, noopChatSpan{}
}

type noopChatSpan struct{}

func (noopChatSpan) RecordRequestMessage(string, string)                   {}
func (noopChatSpan) RecordResponse(string, string, int64, int64, []string) {}
func (noopChatSpan) RecordOutputMessage(string, string)                    {}
func (noopChatSpan) EndWithError(error)                                    {}
func (noopChatSpan) End()                                                  {}
