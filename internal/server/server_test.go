// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/filestore"
	"github.com/masaic-ai/open-responses/internal/json"
	"github.com/masaic-ai/open-responses/internal/metrics"
	"github.com/masaic-ai/open-responses/internal/provider"
	"github.com/masaic-ai/open-responses/internal/responses"
	"github.com/masaic-ai/open-responses/internal/store"
	"github.com/masaic-ai/open-responses/internal/tools"
	"github.com/masaic-ai/open-responses/internal/tracing"
	"github.com/masaic-ai/open-responses/internal/upstream"
)

const (
	upstreamChatBody = `{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o-2024-08-06",` +
		`"choices":[{"index":0,"message":{"role":"assistant","content":"hello from upstream"},"finish_reason":"stop"}],` +
		`"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`

	upstreamStreamBody = `data: {"id":"chatcmpl-1","model":"gpt-4o-2024-08-06","choices":[{"index":0,"delta":{"role":"assistant","content":"hi"}}]}` + "\n\n" +
		`data: {"id":"chatcmpl-1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}` + "\n\n" +
		"data: [DONE]\n\n"

	upstreamModelsBody = `{"object":"list","data":[{"id":"gpt-4o","object":"model"}]}`
)

// fakeProvider is an OpenAI-compatible upstream good enough for the routes
// under test.
func fakeProvider(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/chat/completions":
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "stream").Bool() {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, upstreamStreamBody)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, upstreamChatBody)
	case "/v1/models":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, upstreamModelsBody)
	default:
		http.NotFound(w, r)
	}
}

type serverFixture struct {
	handler http.Handler
	store   store.ResponseStore
}

func newTestServer(t *testing.T, withFiles bool) *serverFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	up := httptest.NewServer(http.HandlerFunc(fakeProvider))
	t.Cleanup(up.Close)

	router := provider.NewRouter(up.URL + "/v1")
	client := upstream.NewClient(logger)
	st := store.NewMemoryStore()
	orch := responses.NewOrchestrator(logger, router, client, st,
		tools.NewRegistry(logger), nil,
		metrics.NewFactory(noopmetric.NewMeterProvider().Meter("test")),
		tracing.NoopChatTracer{}, responses.Options{})

	var files *filestore.Store
	if withFiles {
		dir := t.TempDir()
		var err error
		files, err = filestore.NewStore(filepath.Join(dir, "files"), filepath.Join(dir, "files.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = files.Close() })
	}

	srv := New(logger, orch, st, files, nil, router, client)
	return &serverFixture{handler: srv.Handler(), store: st}
}

func (f *serverFixture) do(t *testing.T, method, path string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func authed() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer sk-test")
	h.Set("Content-Type", "application/json")
	return h
}

func TestHealth(t *testing.T) {
	f := newTestServer(t, false)
	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
	require.NotEmpty(t, rec.Header().Get("x-request-id"))
}

func TestCreateResponseMissingCredentials(t *testing.T) {
	for _, key := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GROQ_API_KEY", "TOGETHER_API_KEY", "COHERE_API_KEY",
	} {
		t.Setenv(key, "")
	}
	f := newTestServer(t, false)
	rec := f.do(t, http.MethodPost, "/v1/responses",
		strings.NewReader(`{"model":"gpt-4o","input":"hi"}`), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_configuration", gjson.Get(rec.Body.String(), "type").String())
}

func TestCreateResponseValidation(t *testing.T) {
	f := newTestServer(t, false)
	t.Run("malformed body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/responses", strings.NewReader(`{"model":`), authed())
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_request", gjson.Get(rec.Body.String(), "type").String())
	})
	t.Run("missing model", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/responses", strings.NewReader(`{"input":"hi"}`), authed())
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "model", gjson.Get(rec.Body.String(), "param").String())
	})
}

func TestResponseLifecycle(t *testing.T) {
	f := newTestServer(t, false)

	rec := f.do(t, http.MethodPost, "/v1/responses",
		strings.NewReader(`{"model":"gpt-4o","input":"hi"}`), authed())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp openai.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.ID, "resp_"))
	require.Equal(t, openai.ResponseStatusCompleted, resp.Status)

	rec = f.do(t, http.MethodGet, "/v1/responses/"+resp.ID, nil, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, resp.ID, gjson.Get(rec.Body.String(), "id").String())

	rec = f.do(t, http.MethodGet, "/v1/responses/"+resp.ID+"/input_items", nil, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "list", gjson.Get(rec.Body.String(), "object").String())
	require.Equal(t, int64(1), gjson.Get(rec.Body.String(), "data.#").Int())
	require.False(t, gjson.Get(rec.Body.String(), "has_more").Bool())

	rec = f.do(t, http.MethodDelete, "/v1/responses/"+resp.ID, nil, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, gjson.Get(rec.Body.String(), "deleted").Bool())

	rec = f.do(t, http.MethodGet, "/v1/responses/"+resp.ID, nil, authed())
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodDelete, "/v1/responses/"+resp.ID, nil, authed())
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetResponseUnknown(t *testing.T) {
	f := newTestServer(t, false)
	rec := f.do(t, http.MethodGet, "/v1/responses/resp_missing", nil, authed())
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", gjson.Get(rec.Body.String(), "type").String())
}

func TestListInputItems(t *testing.T) {
	f := newTestServer(t, false)

	body := `{"model":"gpt-4o","input":[{"role":"user","content":"one"},{"role":"user","content":"two"}]}`
	rec := f.do(t, http.MethodPost, "/v1/responses", strings.NewReader(body), authed())
	require.Equal(t, http.StatusOK, rec.Code)
	id := gjson.Get(rec.Body.String(), "id").String()

	t.Run("newest first by default", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/responses/"+id+"/input_items", nil, authed())
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "two", gjson.Get(rec.Body.String(), "data.0.content").String())
		require.Equal(t, "one", gjson.Get(rec.Body.String(), "data.1.content").String())
	})
	t.Run("ascending with limit", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/responses/"+id+"/input_items?order=asc&limit=1", nil, authed())
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, int64(1), gjson.Get(rec.Body.String(), "data.#").Int())
		require.Equal(t, "one", gjson.Get(rec.Body.String(), "data.0.content").String())
		require.True(t, gjson.Get(rec.Body.String(), "has_more").Bool())
	})
	t.Run("bad limit", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/responses/"+id+"/input_items?limit=0", nil, authed())
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "limit", gjson.Get(rec.Body.String(), "param").String())
	})
	t.Run("bad order", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/responses/"+id+"/input_items?order=sideways", nil, authed())
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "order", gjson.Get(rec.Body.String(), "param").String())
	})
}

func TestCreateResponseStream(t *testing.T) {
	f := newTestServer(t, false)
	rec := f.do(t, http.MethodPost, "/v1/responses",
		strings.NewReader(`{"model":"gpt-4o","input":"hi","stream":true}`), authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	require.Contains(t, body, "event: response.created\n")
	require.Contains(t, body, "event: response.output_text.delta\n")
	require.Contains(t, body, "event: response.completed\n")
	require.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))

	// Frames carry the event payload as JSON on the data line.
	for _, line := range strings.Split(body, "\n") {
		if payload, ok := strings.CutPrefix(line, "data: "); ok && payload != "[DONE]" {
			require.True(t, gjson.Valid(payload), "invalid frame payload: %s", payload)
		}
	}
}

func TestListModels(t *testing.T) {
	f := newTestServer(t, false)
	rec := f.do(t, http.MethodGet, "/v1/models", nil, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, upstreamModelsBody, rec.Body.String())
}

func multipartUpload(t *testing.T, filename, purpose, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("purpose", purpose))
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestFileLifecycle(t *testing.T) {
	f := newTestServer(t, true)

	body, contentType := multipartUpload(t, "notes.txt", "user_data", "hello files")
	h := http.Header{}
	h.Set("Content-Type", contentType)
	rec := f.do(t, http.MethodPost, "/v1/files", body, h)
	require.Equal(t, http.StatusOK, rec.Code)
	id := gjson.Get(rec.Body.String(), "id").String()
	require.True(t, strings.HasPrefix(id, "file-"))
	require.Equal(t, "notes.txt", gjson.Get(rec.Body.String(), "filename").String())

	rec = f.do(t, http.MethodGet, "/v1/files/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user_data", gjson.Get(rec.Body.String(), "purpose").String())

	rec = f.do(t, http.MethodGet, "/v1/files?purpose=user_data", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(1), gjson.Get(rec.Body.String(), "data.#").Int())

	rec = f.do(t, http.MethodGet, "/v1/files/"+id+"/content", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello files", rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Disposition"), "notes.txt")

	rec = f.do(t, http.MethodDelete, "/v1/files/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, gjson.Get(rec.Body.String(), "deleted").Bool())

	rec = f.do(t, http.MethodGet, "/v1/files/"+id, nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadFileValidation(t *testing.T) {
	f := newTestServer(t, true)
	t.Run("missing file field", func(t *testing.T) {
		body, contentType := multipartUpload(t, "", "user_data", "")
		h := http.Header{}
		h.Set("Content-Type", contentType)
		rec := f.do(t, http.MethodPost, "/v1/files", body, h)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "file", gjson.Get(rec.Body.String(), "param").String())
	})
	t.Run("bad purpose", func(t *testing.T) {
		body, contentType := multipartUpload(t, "notes.txt", "scratch", "x")
		h := http.Header{}
		h.Set("Content-Type", contentType)
		rec := f.do(t, http.MethodPost, "/v1/files", body, h)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "purpose", gjson.Get(rec.Body.String(), "param").String())
	})
}

func TestFilesDisabled(t *testing.T) {
	f := newTestServer(t, false)
	rec := f.do(t, http.MethodGet, "/v1/files", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_configuration", gjson.Get(rec.Body.String(), "type").String())
}
