// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package upstream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/json"
	"github.com/masaic-ai/open-responses/internal/provider"
)

func chatParams(model string) *openai.ChatCompletionRequest {
	return &openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Role:    openai.ChatMessageRoleUser,
				Content: openai.StringOrUserRoleContentUnion{Value: "hello"},
			},
		}},
	}
}

func TestChatCompletions(t *testing.T) {
	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		gotModel, _ = req["model"].(string)
		content := "Paris."
		_ = json.NewEncoder(w).Encode(&openai.ChatCompletionResponse{
			Model: "gpt-4o-2024-08-06",
			Choices: []openai.ChatCompletionResponseChoice{{
				Message:      openai.ChatCompletionResponseChoiceMessage{Role: "assistant", Content: &content},
				FinishReason: openai.ChatCompletionFinishReasonStop,
			}},
		})
	}))
	defer srv.Close()

	c := NewClient(slog.Default())
	ep := &provider.Endpoint{BaseURL: srv.URL + "/v1", Model: "gpt-4o", APIKey: "sk-test"}
	chat, err := c.ChatCompletions(t.Context(), ep, chatParams("openai@gpt-4o"))
	require.NoError(t, err)
	require.Equal(t, "Bearer sk-test", gotAuth)
	// The provider prefix is stripped before the body goes upstream.
	require.Equal(t, "gpt-4o", gotModel)
	require.Equal(t, "Paris.", *chat.Choices[0].Message.Content)
}

func TestChatCompletionsUpstreamError(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
		kind   apierror.Kind
		msg    string
	}{
		{
			name:   "openai error envelope",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"Rate limit reached","type":"requests"}}`,
			kind:   apierror.KindRateLimitExceeded,
			msg:    "Rate limit reached",
		},
		{
			name:   "plain text body",
			status: http.StatusBadGateway,
			body:   "upstream exploded",
			kind:   apierror.KindGenerationError,
			msg:    "upstream exploded",
		},
		{
			name:   "auth rejection",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Invalid API key"}}`,
			kind:   apierror.KindInvalidConfiguration,
			msg:    "Invalid API key",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(slog.Default())
			ep := &provider.Endpoint{BaseURL: srv.URL, Model: "gpt-4o", APIKey: "sk-test"}
			_, err := c.ChatCompletions(t.Context(), ep, chatParams("gpt-4o"))
			apiErr := apierror.AsError(err)
			require.Equal(t, tc.kind, apiErr.Kind)
			require.Contains(t, apiErr.Message, tc.msg)
		})
	}
}

func TestChatCompletionsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"role":"assistant","content":"Par"}}]}

: keep-alive comment

data: {"choices":[{"delta":{"content":"is."},"finish_reason":null}]}

data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}

data: [DONE]

`)
	}))
	defer srv.Close()

	c := NewClient(slog.Default())
	ep := &provider.Endpoint{BaseURL: srv.URL, Model: "gpt-4o", APIKey: "sk-test"}
	stream, err := c.ChatCompletionsStream(t.Context(), ep, chatParams("gpt-4o"))
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, "Par", *chunk.Choices[0].Delta.Content)

	chunk, err = stream.Recv()
	require.NoError(t, err)
	require.Equal(t, "is.", *chunk.Choices[0].Delta.Content)

	chunk, err = stream.Recv()
	require.NoError(t, err)
	require.Equal(t, openai.ChatCompletionFinishReasonStop, chunk.Choices[0].FinishReason)
	require.Equal(t, int64(5), chunk.Usage.TotalTokens)

	_, err = stream.Recv()
	require.Equal(t, io.EOF, err)
}

func TestChatCompletionsStreamUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"unknown model"}}`))
	}))
	defer srv.Close()

	c := NewClient(slog.Default())
	ep := &provider.Endpoint{BaseURL: srv.URL, Model: "nope", APIKey: "sk-test"}
	_, err := c.ChatCompletionsStream(t.Context(), ep, chatParams("nope"))
	require.Equal(t, apierror.KindInvalidRequest, apierror.AsError(err).Kind)
}

func TestChatCompletionsStreamTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Par\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	c := NewClient(slog.Default())
	ep := &provider.Endpoint{BaseURL: srv.URL, Model: "gpt-4o", APIKey: "sk-test"}
	stream, err := c.ChatCompletionsStream(ctx, ep, chatParams("gpt-4o"))
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, "Par", *chunk.Choices[0].Delta.Content)

	// The deadline fires while the upstream stalls between chunks.
	_, err = stream.Recv()
	require.Equal(t, apierror.KindTimeout, apierror.AsError(err).Kind)
}

func TestChatCompletionsTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	c := NewClient(slog.Default())
	ep := &provider.Endpoint{BaseURL: srv.URL, Model: "gpt-4o", APIKey: "sk-test"}
	_, err := c.ChatCompletions(ctx, ep, chatParams("gpt-4o"))
	require.Equal(t, apierror.KindTimeout, apierror.AsError(err).Kind)
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o"}]}`))
	}))
	defer srv.Close()

	c := NewClient(slog.Default())
	body, err := c.Models(t.Context(), &provider.Endpoint{BaseURL: srv.URL + "/v1", APIKey: "sk-test"})
	require.NoError(t, err)
	require.JSONEq(t, `{"object":"list","data":[{"id":"gpt-4o"}]}`, string(body))
}
