// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package metrics records generative AI client metrics following the OTEL
// gen_ai semantic conventions:
// https://opentelemetry.io/docs/specs/semconv/gen-ai/gen-ai-metrics/
package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// Metric names per the gen_ai semantic conventions.
const (
	genaiMetricClientTokenUsage         = "gen_ai.client.token.usage"
	genaiMetricServerRequestDuration    = "gen_ai.server.request.duration"
	genaiMetricServerTimeToFirstToken   = "gen_ai.server.time_to_first_token"
	genaiMetricServerTimePerOutputToken = "gen_ai.server.time_per_output_token"
)

// Attribute names per the gen_ai semantic conventions.
const (
	genaiAttributeOperationName = "gen_ai.operation.name"
	genaiAttributeProviderName  = "gen_ai.provider.name"
	genaiAttributeRequestModel  = "gen_ai.request.model"
	genaiAttributeResponseModel = "gen_ai.response.model"
	genaiAttributeTokenType     = "gen_ai.token.type"
	genaiAttributeErrorType     = "error.type"
)

// Token type attribute values.
const (
	genaiTokenTypeInput       = "input"
	genaiTokenTypeCachedInput = "cached_input"
	genaiTokenTypeOutput      = "output"
)

const genaiOperationChat = "chat"

// genaiErrorTypeFallback is the placeholder error.type value. See:
// https://opentelemetry.io/docs/specs/semconv/attributes-registry/error/#error-type
const genaiErrorTypeFallback = "_OTHER"

// genAI bundles the four gen_ai histograms.
type genAI struct {
	tokenUsage         metric.Float64Histogram
	requestLatency     metric.Float64Histogram
	firstTokenLatency  metric.Float64Histogram
	outputTokenLatency metric.Float64Histogram
}

func newGenAI(meter metric.Meter) *genAI {
	return &genAI{
		tokenUsage: mustRegisterHistogram(meter, genaiMetricClientTokenUsage,
			metric.WithUnit("token"),
			metric.WithDescription("Number of tokens processed."),
		),
		requestLatency: mustRegisterHistogram(meter, genaiMetricServerRequestDuration,
			metric.WithUnit("s"),
			metric.WithDescription("Generative AI server request duration such as time-to-last byte or last output token."),
		),
		firstTokenLatency: mustRegisterHistogram(meter, genaiMetricServerTimeToFirstToken,
			metric.WithUnit("s"),
			metric.WithDescription("Time to receive first token in streaming responses."),
		),
		outputTokenLatency: mustRegisterHistogram(meter, genaiMetricServerTimePerOutputToken,
			metric.WithUnit("s"),
			metric.WithDescription("Time between consecutive tokens in streaming responses."),
		),
	}
}

func mustRegisterHistogram(meter metric.Meter, name string, options ...metric.Float64HistogramOption) metric.Float64Histogram {
	h, err := meter.Float64Histogram(name, options...)
	if err != nil {
		// The SDK only errors on malformed instrument names, which are
		// constants above.
		panic(err)
	}
	return h
}
