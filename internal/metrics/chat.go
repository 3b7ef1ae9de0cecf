// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/masaic-ai/open-responses/internal/apischema/openai"
)

// chatMetrics implements ChatMetrics for one in-flight request.
type chatMetrics struct {
	metrics       *genAI
	requestStart  time.Time
	provider      string
	requestModel  string
	responseModel string

	// Streaming token latency state, unused for buffered requests.
	firstTokenSent    bool
	timeToFirstToken  time.Duration
	totalOutputTokens int64
}

// StartRequest implements [ChatMetrics.StartRequest].
func (m *chatMetrics) StartRequest() {
	m.requestStart = time.Now()
}

// SetProvider implements [ChatMetrics.SetProvider].
func (m *chatMetrics) SetProvider(name string) {
	m.provider = name
}

// SetRequestModel implements [ChatMetrics.SetRequestModel].
func (m *chatMetrics) SetRequestModel(model string) {
	m.requestModel = model
}

// SetResponseModel implements [ChatMetrics.SetResponseModel].
func (m *chatMetrics) SetResponseModel(model string) {
	m.responseModel = model
}

// baseAttributes builds the low-cardinality attribute set shared by all
// instruments.
func (m *chatMetrics) baseAttributes() attribute.Set {
	return attribute.NewSet(
		attribute.Key(genaiAttributeOperationName).String(genaiOperationChat),
		attribute.Key(genaiAttributeProviderName).String(m.provider),
		attribute.Key(genaiAttributeRequestModel).String(m.requestModel),
		attribute.Key(genaiAttributeResponseModel).String(m.responseModel),
	)
}

// RecordTokenUsage implements [ChatMetrics.RecordTokenUsage].
func (m *chatMetrics) RecordTokenUsage(ctx context.Context, usage *openai.ChatCompletionResponseUsage) {
	if usage == nil {
		return
	}
	attrs := m.baseAttributes()
	m.metrics.tokenUsage.Record(ctx, float64(usage.PromptTokens),
		metric.WithAttributeSet(attrs),
		metric.WithAttributes(attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeInput)),
	)
	if usage.PromptTokensDetails != nil && usage.PromptTokensDetails.CachedTokens > 0 {
		m.metrics.tokenUsage.Record(ctx, float64(usage.PromptTokensDetails.CachedTokens),
			metric.WithAttributeSet(attrs),
			metric.WithAttributes(attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeCachedInput)),
		)
	}
	m.metrics.tokenUsage.Record(ctx, float64(usage.CompletionTokens),
		metric.WithAttributeSet(attrs),
		metric.WithAttributes(attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeOutput)),
	)
}

// RecordTokenLatency implements [ChatMetrics.RecordTokenLatency]. The first
// call records time-to-first-token; the end-of-stream call records the
// average time per output token since the first one.
func (m *chatMetrics) RecordTokenLatency(ctx context.Context, tokens int64, endOfStream bool) {
	attrs := m.baseAttributes()
	if !m.firstTokenSent {
		m.firstTokenSent = true
		m.timeToFirstToken = time.Since(m.requestStart)
		m.metrics.firstTokenLatency.Record(ctx, m.timeToFirstToken.Seconds(), metric.WithAttributeSet(attrs))
		return
	}
	if tokens > m.totalOutputTokens {
		m.totalOutputTokens = tokens
	}
	// time_per_output_token = (duration - time_to_first_token) / (tokens - 1).
	if endOfStream && m.totalOutputTokens > 1 {
		sinceFirst := time.Since(m.requestStart) - m.timeToFirstToken
		perToken := sinceFirst.Seconds() / float64(m.totalOutputTokens-1)
		m.metrics.outputTokenLatency.Record(ctx, perToken, metric.WithAttributeSet(attrs))
	}
}

// RecordRequestCompletion implements [ChatMetrics.RecordRequestCompletion].
func (m *chatMetrics) RecordRequestCompletion(ctx context.Context, success bool) {
	attrs := m.baseAttributes()
	if success {
		// Per the semantic conventions, error.type is absent on success.
		m.metrics.requestLatency.Record(ctx, time.Since(m.requestStart).Seconds(), metric.WithAttributeSet(attrs))
		return
	}
	m.metrics.requestLatency.Record(ctx, time.Since(m.requestStart).Seconds(),
		metric.WithAttributeSet(attrs),
		metric.WithAttributes(attribute.Key(genaiAttributeErrorType).String(genaiErrorTypeFallback)),
	)
}
