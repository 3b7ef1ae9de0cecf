// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package upstream is the HTTP client for OpenAI-compatible Chat Completions
// providers, covering both buffered and SSE streaming calls.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/json"
	"github.com/masaic-ai/open-responses/internal/provider"
)

var (
	sseDataPrefix = []byte("data: ")
	sseDone       = []byte("[DONE]")
)

// sjsonOptions ensure request rewrites are idempotent: the original body is
// never modified in place.
var sjsonOptions = &sjson.Options{Optimistic: true, ReplaceInPlace: false}

// Client calls upstream Chat Completions endpoints.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. Request deadlines are enforced through the
// caller's context, not a client-level timeout, so streaming responses can
// outlive slow first bytes.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost:   16,
			ResponseHeaderTimeout: 2 * time.Minute,
		}},
		logger: logger,
	}
}

// newRequest marshals params and builds the POST to the chat completions
// endpoint. When the resolved endpoint model differs from the request model
// (a provider prefix was stripped), the body bytes are rewritten rather than
// the struct, keeping the input params untouched across retries.
func (c *Client) newRequest(ctx context.Context, ep *provider.Endpoint, params *openai.ChatCompletionRequest) (*http.Request, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat completion request: %w", err)
	}
	if ep.Model != "" && ep.Model != params.Model {
		body, err = sjson.SetBytesOptions(body, "model", ep.Model, sjsonOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to set model: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	return req, nil
}

// ChatCompletions performs a buffered (non-streaming) chat completion call.
func (c *Client) ChatCompletions(ctx context.Context, ep *provider.Endpoint, params *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	req, err := c.newRequest(ctx, ep, params)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp)
	}

	var chat openai.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, apierror.Wrap(apierror.KindGenerationError, err, "failed to decode upstream response")
	}
	return &chat, nil
}

// ChatCompletionsStream performs a streaming chat completion call. The
// returned stream must be closed by the caller.
func (c *Client) ChatCompletionsStream(ctx context.Context, ep *provider.Endpoint, params *openai.ChatCompletionRequest) (*ChunkStream, error) {
	req, err := c.newRequest(ctx, ep, params)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, upstreamError(resp)
	}
	sc := bufio.NewScanner(resp.Body)
	// Some providers emit the full arguments of a tool call in one line.
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ChunkStream{ctx: ctx, body: resp.Body, scanner: sc}, nil
}

// Models forwards the upstream model listing verbatim.
func (c *Client) Models(ctx context.Context, ep *provider.Endpoint) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp)
	}
	return io.ReadAll(resp.Body)
}

// ChunkStream iterates the SSE chunks of one streaming chat completion.
// It is not safe for concurrent use. It carries the request context so a
// deadline firing between chunks classifies the same way it does before the
// first byte.
type ChunkStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Recv returns the next chunk, or io.EOF after the [DONE] sentinel or stream
// end. Non-data SSE lines are skipped.
func (s *ChunkStream) Recv() (*openai.ChatCompletionResponseChunk, error) {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if !bytes.HasPrefix(line, sseDataPrefix) {
			continue
		}
		data := bytes.TrimSpace(bytes.TrimPrefix(line, sseDataPrefix))
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, sseDone) {
			return nil, io.EOF
		}
		chunk := &openai.ChatCompletionResponseChunk{}
		if err := json.Unmarshal(data, chunk); err != nil {
			return nil, apierror.Wrap(apierror.KindGenerationError, err, "malformed upstream stream chunk")
		}
		return chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		if s.ctx.Err() != nil {
			return nil, classifyTransportError(s.ctx, err)
		}
		return nil, apierror.Wrap(apierror.KindGenerationError, err, "upstream stream read failed")
	}
	return nil, io.EOF
}

// Close releases the underlying connection.
func (s *ChunkStream) Close() error {
	return s.body.Close()
}

// upstreamError reads a non-2xx upstream body and classifies it. OpenAI-style
// error envelopes contribute their message; anything else is passed as-is.
func upstreamError(resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := string(buf)
	if m := gjson.GetBytes(buf, "error.message"); m.Exists() {
		msg = m.String()
	}
	return apierror.FromUpstreamStatus(resp.StatusCode, msg)
}

// classifyTransportError distinguishes caller cancellation and deadline from
// genuine transport failures.
func classifyTransportError(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return apierror.Wrap(apierror.KindTimeout, err, "upstream call exceeded the request deadline")
	case context.Canceled:
		return apierror.Wrap(apierror.KindTimeout, err, "request canceled")
	}
	return apierror.Wrap(apierror.KindGenerationError, err, "upstream transport failure")
}
