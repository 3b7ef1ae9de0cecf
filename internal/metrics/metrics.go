// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"context"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/masaic-ai/open-responses/internal/apischema/openai"
)

// NewMeterFromEnv configures an OpenTelemetry MeterProvider from the standard
// OTEL environment variables and returns a meter plus a shutdown function.
//
// Environment variables consulted:
//   - OTEL_SDK_DISABLED: if "true", a no-op meter is returned.
//   - OTEL_METRICS_EXPORTER: "none" disables export; otherwise autoexport
//     picks the exporter (OTLP by default when an endpoint is set).
//   - OTEL_EXPORTER_OTLP_ENDPOINT / OTEL_EXPORTER_OTLP_METRICS_ENDPOINT.
func NewMeterFromEnv(ctx context.Context) (metric.Meter, func(context.Context) error, error) {
	noShutdown := func(context.Context) error { return nil }
	hasOTLPEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
		os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") != ""
	if os.Getenv("OTEL_SDK_DISABLED") == "true" ||
		os.Getenv("OTEL_METRICS_EXPORTER") == "none" ||
		(os.Getenv("OTEL_METRICS_EXPORTER") == "" && !hasOTLPEndpoint) {
		return noopmetric.NewMeterProvider().Meter("masaic-ai/open-responses"), noShutdown, nil
	}

	// Ensure a service name is set if not provided via environment. The name
	// is hardcoded to avoid pinning a semconv version.
	fallbackRes := resource.NewSchemaless(attribute.String("service.name", "open-responses"))
	res, err := resource.Merge(resource.Default(), fallbackRes)
	if err != nil {
		return nil, nil, err
	}
	envRes, err := resource.New(ctx, resource.WithFromEnv(), resource.WithTelemetrySDK())
	if err != nil {
		return nil, nil, err
	}
	if res, err = resource.Merge(res, envRes); err != nil {
		return nil, nil, err
	}

	reader, err := autoexport.NewMetricReader(ctx)
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	return mp.Meter("masaic-ai/open-responses"), mp.Shutdown, nil
}

// ChatMetrics records the gen_ai metrics of one Responses request. One
// instance lives per request; it is not safe for concurrent use.
//
// Recording must never fail the request, so every method is best-effort.
type ChatMetrics interface {
	// StartRequest initializes timing for a new request.
	StartRequest()
	// SetProvider sets the low-cardinality provider tag.
	SetProvider(name string)
	// SetRequestModel sets the model the client asked for.
	SetRequestModel(model string)
	// SetResponseModel sets the model that ultimately generated the response.
	SetResponseModel(model string)
	// RecordTokenUsage records the token accounting of one upstream turn.
	RecordTokenUsage(ctx context.Context, usage *openai.ChatCompletionResponseUsage)
	// RecordTokenLatency tracks streaming token timing; tokens is the
	// cumulative output token count when known, zero otherwise.
	RecordTokenLatency(ctx context.Context, tokens int64, endOfStream bool)
	// RecordRequestCompletion records the terminal outcome of the request.
	RecordRequestCompletion(ctx context.Context, success bool)
}

// Factory mints one ChatMetrics per request.
type Factory interface {
	NewChatMetrics() ChatMetrics
}

// NewFactory returns a Factory recording through the given meter.
func NewFactory(meter metric.Meter) Factory {
	return &factory{metrics: newGenAI(meter)}
}

type factory struct {
	metrics *genAI
}

// NewChatMetrics implements [Factory.NewChatMetrics].
func (f *factory) NewChatMetrics() ChatMetrics {
	return &chatMetrics{
		metrics:       f.metrics,
		provider:      "unknown",
		requestModel:  "unknown",
		responseModel: "unknown",
	}
}
