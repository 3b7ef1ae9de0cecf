// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package responses

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/store"
	"github.com/masaic-ai/open-responses/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func textChunk(text string) *openai.ChatCompletionResponseChunk {
	return &openai.ChatCompletionResponseChunk{
		ID:    "chatcmpl-1",
		Model: "gpt-4o-2024-08-06",
		Choices: []openai.ChatCompletionResponseChunkChoice{{
			Delta: &openai.ChatCompletionResponseChunkChoiceDelta{Content: &text},
		}},
	}
}

func toolChunk(index int64, id, name, arguments string) *openai.ChatCompletionResponseChunk {
	return &openai.ChatCompletionResponseChunk{
		ID:    "chatcmpl-1",
		Model: "gpt-4o-2024-08-06",
		Choices: []openai.ChatCompletionResponseChunkChoice{{
			Delta: &openai.ChatCompletionResponseChunkChoiceDelta{
				ToolCalls: []openai.ChatCompletionChunkToolCall{{
					Index: &index,
					ID:    id,
					Type:  "function",
					Function: openai.ChatCompletionChunkToolCallFunction{
						Name:      name,
						Arguments: arguments,
					},
				}},
			},
		}},
	}
}

func finishChunk(reason string, usage *openai.ChatCompletionResponseUsage) *openai.ChatCompletionResponseChunk {
	return &openai.ChatCompletionResponseChunk{
		ID:      "chatcmpl-1",
		Model:   "gpt-4o-2024-08-06",
		Choices: []openai.ChatCompletionResponseChunkChoice{{FinishReason: reason}},
		Usage:   usage,
	}
}

// collectEvents drains the stream to completion and checks the sequencing
// contract: strictly increasing sequence numbers and a single terminal event
// closing the channel.
func collectEvents(t *testing.T, ch <-chan openai.ResponseStreamEvent) []openai.ResponseStreamEvent {
	t.Helper()
	var events []openai.ResponseStreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	for i := range events {
		require.Equal(t, int64(i), events[i].SequenceNumber)
		if i < len(events)-1 {
			require.False(t, events[i].IsTerminal(), "event %d (%s) is terminal before the end", i, events[i].Type)
		}
	}
	require.True(t, events[len(events)-1].IsTerminal())
	return events
}

func eventTypes(events []openai.ResponseStreamEvent) []string {
	types := make([]string, len(events))
	for i := range events {
		types[i] = events[i].Type
	}
	return types
}

func TestCreateStream(t *testing.T) {
	fake := &fakeUpstream{streams: [][]*openai.ChatCompletionResponseChunk{{
		textChunk("Hel"),
		textChunk("lo"),
		finishChunk(openai.ChatCompletionFinishReasonStop,
			&openai.ChatCompletionResponseUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}),
	}}}
	st := store.NewMemoryStore()
	o := newTestOrchestrator(t, fake, st, nil, Options{})

	ch, err := o.CreateStream(t.Context(), textRequest("hi"), bearerHeader())
	require.NoError(t, err)
	events := collectEvents(t, ch)

	require.Equal(t, []string{
		openai.ResponseEventCreated,
		openai.ResponseEventInProgress,
		openai.ResponseEventOutputItemAdded,
		openai.ResponseEventOutputTextDelta,
		openai.ResponseEventOutputTextDelta,
		openai.ResponseEventOutputTextDone,
		openai.ResponseEventOutputItemDone,
		openai.ResponseEventCompleted,
	}, eventTypes(events))

	require.Equal(t, "Hel", events[3].Delta)
	require.Equal(t, "lo", events[4].Delta)
	require.Equal(t, "Hello", events[5].Text)
	// Delta events reference the item announced by output_item.added.
	require.Equal(t, events[2].Item.OfMessage.ID, events[3].ItemID)

	terminal := events[len(events)-1].Response
	require.Equal(t, "resp_1", terminal.ID)
	require.Equal(t, openai.ResponseStatusCompleted, terminal.Status)
	require.Equal(t, "Hello", outputText(t, terminal))
	require.NotNil(t, terminal.Usage)
	require.Equal(t, int64(7), terminal.Usage.TotalTokens)

	stored, err := st.Get(t.Context(), "resp_1")
	require.NoError(t, err)
	require.Equal(t, openai.ResponseStatusCompleted, stored.Status)
}

func TestCreateStreamExternalToolCall(t *testing.T) {
	fake := &fakeUpstream{streams: [][]*openai.ChatCompletionResponseChunk{{
		toolChunk(0, "call_1", "send_email", `{"to":`),
		toolChunk(0, "", "", `"a@b"}`),
		finishChunk(openai.ChatCompletionFinishReasonToolCalls, nil),
	}}}
	o := newTestOrchestrator(t, fake, nil, nil, Options{})

	ch, err := o.CreateStream(t.Context(), textRequest("email alice"), bearerHeader())
	require.NoError(t, err)
	events := collectEvents(t, ch)

	require.Equal(t, []string{
		openai.ResponseEventCreated,
		openai.ResponseEventInProgress,
		openai.ResponseEventOutputItemAdded,
		openai.ResponseEventFunctionCallArgsDelta,
		openai.ResponseEventFunctionCallArgsDelta,
		openai.ResponseEventFunctionCallArgsDone,
		openai.ResponseEventOutputItemDone,
		openai.ResponseEventCompleted,
	}, eventTypes(events))

	require.Equal(t, "send_email", events[2].Item.OfFunctionCall.Name)
	require.Equal(t, `{"to":"a@b"}`, events[5].Arguments)

	terminal := events[len(events)-1].Response
	require.Len(t, terminal.Output, 1)
	fc := terminal.Output[0].OfFunctionCall
	require.NotNil(t, fc)
	require.Equal(t, "call_1", fc.CallID)
	require.Equal(t, `{"to":"a@b"}`, fc.Arguments)
}

func TestCreateStreamInternalToolLoop(t *testing.T) {
	registry := tools.NewRegistry(slog.Default())
	registry.Register("lookup", tools.ExecutorFunc(func(context.Context, string) (string, error) {
		return "42", nil
	}))
	fake := &fakeUpstream{streams: [][]*openai.ChatCompletionResponseChunk{
		{
			toolChunk(0, "call_1", "lookup", `{}`),
			finishChunk(openai.ChatCompletionFinishReasonToolCalls, nil),
		},
		{
			textChunk("the answer is 42"),
			finishChunk(openai.ChatCompletionFinishReasonStop, nil),
		},
	}}
	o := newTestOrchestrator(t, fake, nil, registry, Options{})

	ch, err := o.CreateStream(t.Context(), textRequest("what is the answer?"), bearerHeader())
	require.NoError(t, err)
	events := collectEvents(t, ch)

	// The internal call is executed silently: one created, one in_progress
	// per upstream turn, and no function_call events at all.
	require.Equal(t, []string{
		openai.ResponseEventCreated,
		openai.ResponseEventInProgress,
		openai.ResponseEventInProgress,
		openai.ResponseEventOutputItemAdded,
		openai.ResponseEventOutputTextDelta,
		openai.ResponseEventOutputTextDone,
		openai.ResponseEventOutputItemDone,
		openai.ResponseEventCompleted,
	}, eventTypes(events))

	// Every lifecycle event carries the same response id.
	for _, ev := range events {
		if ev.Response != nil {
			require.Equal(t, "resp_1", ev.Response.ID)
		}
	}

	terminal := events[len(events)-1].Response
	require.Equal(t, "the answer is 42", outputText(t, terminal))
	require.Len(t, terminal.Output, 1)
	require.Equal(t, 2, fake.requestCount())
}

func TestCreateStreamExternalToolCallNameAfterArguments(t *testing.T) {
	// Argument fragments arrive before the function name; the added event
	// must still precede every delta and carry the resolved name.
	fake := &fakeUpstream{streams: [][]*openai.ChatCompletionResponseChunk{{
		toolChunk(0, "call_1", "", `{"to":`),
		toolChunk(0, "", "send_email", `"a@b"}`),
		finishChunk(openai.ChatCompletionFinishReasonToolCalls, nil),
	}}}
	o := newTestOrchestrator(t, fake, nil, nil, Options{})

	ch, err := o.CreateStream(t.Context(), textRequest("email alice"), bearerHeader())
	require.NoError(t, err)
	events := collectEvents(t, ch)

	require.Equal(t, []string{
		openai.ResponseEventCreated,
		openai.ResponseEventInProgress,
		openai.ResponseEventOutputItemAdded,
		openai.ResponseEventFunctionCallArgsDelta,
		openai.ResponseEventFunctionCallArgsDelta,
		openai.ResponseEventFunctionCallArgsDone,
		openai.ResponseEventOutputItemDone,
		openai.ResponseEventCompleted,
	}, eventTypes(events))

	require.Equal(t, "send_email", events[2].Item.OfFunctionCall.Name)
	// The held-back fragment is replayed before the one that carried the name.
	require.Equal(t, `{"to":`, events[3].Delta)
	require.Equal(t, `"a@b"}`, events[4].Delta)
	require.Equal(t, `{"to":"a@b"}`, events[5].Arguments)
}

func TestCreateStreamInternalToolCallNameAfterArguments(t *testing.T) {
	registry := tools.NewRegistry(slog.Default())
	registry.Register("lookup", tools.ExecutorFunc(func(context.Context, string) (string, error) {
		return "42", nil
	}))
	fake := &fakeUpstream{streams: [][]*openai.ChatCompletionResponseChunk{
		{
			toolChunk(0, "call_1", "", `{"q":`),
			toolChunk(0, "", "lookup", `1}`),
			finishChunk(openai.ChatCompletionFinishReasonToolCalls, nil),
		},
		{
			textChunk("found it"),
			finishChunk(openai.ChatCompletionFinishReasonStop, nil),
		},
	}}
	o := newTestOrchestrator(t, fake, nil, registry, Options{})

	ch, err := o.CreateStream(t.Context(), textRequest("what is q 1?"), bearerHeader())
	require.NoError(t, err)
	events := collectEvents(t, ch)

	// Fragments buffered before the name resolved to an internal tool must
	// not leak; the stream shows no function_call events at all.
	for _, typ := range eventTypes(events) {
		require.NotContains(t, []string{
			openai.ResponseEventFunctionCallArgsDelta,
			openai.ResponseEventFunctionCallArgsDone,
		}, typ)
	}
	require.Equal(t, "found it", outputText(t, events[len(events)-1].Response))
	require.Equal(t, 2, fake.requestCount())
}

func TestCreateStreamTooManyToolCalls(t *testing.T) {
	registry := tools.NewRegistry(slog.Default())
	registry.Register("lookup", tools.ExecutorFunc(func(context.Context, string) (string, error) {
		return "ok", nil
	}))
	fake := &fakeUpstream{streams: [][]*openai.ChatCompletionResponseChunk{{
		toolChunk(0, "call_1", "lookup", `{}`),
		toolChunk(1, "call_2", "lookup", `{}`),
		finishChunk(openai.ChatCompletionFinishReasonToolCalls, nil),
	}}}
	o := newTestOrchestrator(t, fake, nil, registry, Options{MaxToolCalls: 1})

	ch, err := o.CreateStream(t.Context(), textRequest("loop"), bearerHeader())
	require.NoError(t, err)
	events := collectEvents(t, ch)

	last := events[len(events)-1]
	require.Equal(t, openai.ResponseEventError, last.Type)
	require.Equal(t, string(apierror.KindTooManyToolCalls), last.Code)
	require.Contains(t, last.Message, "budget")
}

func TestCreateStreamTimeout(t *testing.T) {
	fake := &fakeUpstream{blockStreams: true}
	o := newTestOrchestrator(t, fake, nil, nil, Options{Timeout: 50 * time.Millisecond})

	ch, err := o.CreateStream(t.Context(), textRequest("hi"), bearerHeader())
	require.NoError(t, err)
	events := collectEvents(t, ch)

	last := events[len(events)-1]
	require.Equal(t, openai.ResponseEventError, last.Type)
	require.Equal(t, "response.error", last.Type)
	require.Equal(t, string(apierror.KindTimeout), last.Code)
}

func TestCreateStreamUpstreamFailure(t *testing.T) {
	fake := &fakeUpstream{err: apierror.New(apierror.KindGenerationError, "upstream exploded")}
	st := store.NewMemoryStore()
	o := newTestOrchestrator(t, fake, st, nil, Options{})

	ch, err := o.CreateStream(t.Context(), textRequest("hi"), bearerHeader())
	require.NoError(t, err)
	events := collectEvents(t, ch)

	last := events[len(events)-1]
	require.Equal(t, openai.ResponseEventFailed, last.Type)
	require.Equal(t, openai.ResponseStatusFailed, last.Response.Status)
	require.NotNil(t, last.Response.Error)
	require.Equal(t, string(apierror.KindGenerationError), last.Response.Error.Code)
	require.Equal(t, "upstream exploded", last.Response.Error.Message)

	// A failed stream persists nothing.
	_, err = st.Get(t.Context(), "resp_1")
	require.Equal(t, apierror.KindNotFound, apierror.AsError(err).Kind)
}

func TestCreateStreamResolveError(t *testing.T) {
	o := newTestOrchestrator(t, &fakeUpstream{}, nil, nil, Options{})
	req := textRequest("hi")
	req.Model = "http://localhost:11434/v1"

	ch, err := o.CreateStream(t.Context(), req, bearerHeader())
	require.Error(t, err)
	require.Nil(t, ch)
	require.Equal(t, apierror.KindInvalidRequest, apierror.AsError(err).Kind)
}

func TestCreateStreamStoreDisabled(t *testing.T) {
	fake := &fakeUpstream{streams: [][]*openai.ChatCompletionResponseChunk{{
		textChunk("ephemeral"),
		finishChunk(openai.ChatCompletionFinishReasonStop, nil),
	}}}
	st := store.NewMemoryStore()
	o := newTestOrchestrator(t, fake, st, nil, Options{})

	req := textRequest("hi")
	disabled := false
	req.Store = &disabled

	ch, err := o.CreateStream(t.Context(), req, bearerHeader())
	require.NoError(t, err)
	events := collectEvents(t, ch)
	require.Equal(t, openai.ResponseEventCompleted, events[len(events)-1].Type)

	_, err = st.Get(t.Context(), "resp_1")
	require.Equal(t, apierror.KindNotFound, apierror.AsError(err).Kind)
}
