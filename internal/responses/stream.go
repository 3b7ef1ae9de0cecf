// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package responses

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/metrics"
	"github.com/masaic-ai/open-responses/internal/provider"
	"github.com/masaic-ai/open-responses/internal/translator"
)

// streamEventBuffer bounds the producer/consumer channel. A slow client
// fills it and suspends the producer, pausing upstream consumption.
const streamEventBuffer = 16

// CreateStream runs the tool-call loop in streaming form. Events arrive on
// the returned channel in strict order; the channel is closed after the
// terminal event. Errors before the stream starts are returned directly.
//
// The producer goroutine exits when the terminal event is sent or ctx is
// canceled (client disconnect), whichever comes first.
func (o *Orchestrator) CreateStream(ctx context.Context, req *openai.ResponseRequest, headers http.Header) (<-chan openai.ResponseStreamEvent, error) {
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

	s := &streamSession{
		o:            o,
		req:          req,
		ep:           ep,
		tr:           translator.NewResponsesToChatTranslator(o.logger),
		ts:           o.newToolSet(req),
		m:            m,
		ch:           make(chan openai.ResponseStreamEvent, streamEventBuffer),
		respID:       o.newID(),
		items:        items,
		initialItems: items,
	}
	go s.run(ctx)
	return s.ch, nil
}

// streamSession is the per-connection state of one streaming response. It is
// owned by the producer goroutine.
type streamSession struct {
	o   *Orchestrator
	req *openai.ResponseRequest
	ep  *provider.Endpoint
	tr  *translator.ResponsesToChatTranslator
	ts  *toolSet
	m   metrics.ChatMetrics
	ch  chan openai.ResponseStreamEvent

	respID       string
	createdAt    int64
	seq          int64
	items        []openai.ResponseInputItemUnion
	initialItems []openai.ResponseInputItemUnion
}

// turnToolCall accumulates one tool call of a turn, keyed by output index.
// pending holds delta events received while the call's name was still
// unknown; they are replayed or discarded once the call can be classified.
type turnToolCall struct {
	index        int64
	itemID       string
	callID       string
	name         string
	args         []string
	pending      []openai.ResponseStreamEvent
	addedEmitted bool
	doneEmitted  bool
}

// turnResult is the accumulator state of one upstream turn, cleared at turn
// start by allocating a fresh value.
type turnResult struct {
	finish      string
	usage       *openai.ChatCompletionResponseUsage
	upstreamID  string
	model       string
	textParts   []string
	textItemID  string
	textFlushed bool
	calls       map[int64]*turnToolCall
	order       []int64
}

func newTurnResult() *turnResult {
	return &turnResult{calls: make(map[int64]*turnToolCall)}
}

// run drives the streaming loop. It always closes the channel on exit.
func (s *streamSession) run(parent context.Context) {
	defer close(s.ch)
	ctx, cancel := context.WithTimeout(parent, s.o.opts.Timeout)
	defer cancel()
	s.createdAt = time.Now().Unix()

	if !s.emit(ctx, openai.ResponseStreamEvent{
		Type:     openai.ResponseEventCreated,
		Response: s.shell(openai.ResponseStatusInProgress, nil),
	}) {
		return
	}

	state := stateAwaitingModel
	var turn *turnResult
	for state != stateDone {
		switch state {
		case stateAwaitingModel:
			t, err := s.streamTurn(ctx)
			if err != nil {
				s.fail(ctx, err)
				return
			}
			turn = t
			// Every emitted delta gets its done boundary before the loop can
			// re-enter on tool outputs.
			if err := s.flushText(ctx, turn); err != nil {
				s.fail(ctx, err)
				return
			}
			if turn.finish != openai.ChatCompletionFinishReasonToolCalls || !s.hasInternalCalls(turn) {
				s.finish(ctx, turn)
				return
			}
			state = stateReconcilingTools

		case stateReconcilingTools:
			rec, err := s.o.reconcile(ctx, s.items, s.turnResponse(turn), s.ts)
			if err != nil {
				s.fail(ctx, err)
				return
			}
			s.items = rec.next
			state = stateAwaitingModel
		}
	}
}

// streamTurn performs one streaming upstream call, emitting converter events
// as chunks arrive and accumulating the turn state.
func (s *streamSession) streamTurn(ctx context.Context) (*turnResult, error) {
	reqCopy := *s.req
	reqCopy.Stream = true
	params, err := s.tr.RequestToChatCompletion(&reqCopy, s.items, s.ep.Model)
	if err != nil {
		return nil, err
	}

	ctx, span := s.o.tracer.StartChat(ctx, s.ep.Name, params.Model, s.ep.BaseURL)
	for i := range params.Messages {
		role, content := messageRoleAndText(&params.Messages[i])
		span.RecordRequestMessage(role, content)
	}

	stream, err := s.o.upstream.ChatCompletionsStream(ctx, s.ep, params)
	if err != nil {
		span.EndWithError(err)
		return nil, err
	}
	defer stream.Close()

	t := newTurnResult()
	first := true
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			span.EndWithError(err)
			return nil, err
		}
		if first {
			first = false
			if !s.emit(ctx, openai.ResponseStreamEvent{
				Type:     openai.ResponseEventInProgress,
				Response: s.shell(openai.ResponseStatusInProgress, nil),
			}) {
				span.EndWithError(ctx.Err())
				return nil, s.ctxError(ctx)
			}
		}
		if err := s.handleChunk(ctx, chunk, t); err != nil {
			span.EndWithError(err)
			return nil, err
		}
	}

	var inTokens, outTokens int64
	if t.usage != nil {
		inTokens, outTokens = t.usage.PromptTokens, t.usage.CompletionTokens
	}
	if text := strings.Join(t.textParts, ""); text != "" {
		span.RecordOutputMessage(openai.ChatMessageRoleAssistant, text)
	}
	for _, idx := range t.order {
		c := t.calls[idx]
		span.RecordOutputMessage(openai.ChatMessageRoleAssistant, c.name+"("+strings.Join(c.args, "")+")")
	}
	span.RecordResponse(t.upstreamID, t.model, inTokens, outTokens, []string{t.finish})
	span.End()

	s.m.RecordTokenUsage(ctx, t.usage)
	s.m.RecordTokenLatency(ctx, outTokens, true)
	return t, nil
}

// handleChunk accumulates one chunk and emits its converted events. Events of
// internal tool-call items are suppressed.
func (s *streamSession) handleChunk(ctx context.Context, chunk *openai.ChatCompletionResponseChunk, t *turnResult) error {
	if chunk.ID != "" {
		t.upstreamID = chunk.ID
	}
	if chunk.Model != "" {
		t.model = chunk.Model
		s.m.SetResponseModel(chunk.Model)
	}
	if chunk.Usage != nil {
		t.usage = chunk.Usage
	}
	if len(chunk.Choices) > 0 {
		choice := &chunk.Choices[0]
		if choice.FinishReason != "" {
			t.finish = choice.FinishReason
		}
		if d := choice.Delta; d != nil {
			if d.Content != nil && *d.Content != "" {
				if t.textItemID == "" {
					t.textItemID = s.newItemID("msg")
					if !s.emit(ctx, s.itemAddedEvent(t.messageSkeleton(), 0)) {
						return s.ctxError(ctx)
					}
				}
				t.textParts = append(t.textParts, *d.Content)
				s.m.RecordTokenLatency(ctx, 0, false)
			}
			for i := range d.ToolCalls {
				tc := &d.ToolCalls[i]
				if tc.Function.Arguments == "" && tc.Function.Name == "" && tc.ID == "" {
					continue
				}
				idx := int64(i)
				if tc.Index != nil {
					idx = *tc.Index
				}
				call := t.calls[idx]
				if call == nil {
					call = &turnToolCall{index: idx, itemID: s.newItemID("fc")}
					t.calls[idx] = call
					t.order = append(t.order, idx)
				}
				if tc.ID != "" {
					call.callID = tc.ID
				}
				if tc.Function.Name != "" {
					call.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					call.args = append(call.args, tc.Function.Arguments)
				}
			}
		}
	}

	for _, ev := range translator.ConvertChunk(chunk) {
		switch ev.Type {
		case openai.ResponseEventOutputTextDelta:
			ev.ItemID = t.textItemID
			if !s.emit(ctx, ev) {
				return s.ctxError(ctx)
			}

		case openai.ResponseEventFunctionCallArgsDelta:
			call := t.calls[*ev.OutputIndex]
			if call == nil {
				continue
			}
			// Some providers stream argument fragments before the function
			// name. Until the name arrives the call cannot be classified, so
			// its deltas are held back.
			if call.name == "" {
				call.pending = append(call.pending, ev)
				continue
			}
			if s.isInternal(call) {
				call.pending = nil
				continue
			}
			if err := s.flushCallBacklog(ctx, call); err != nil {
				return err
			}
			if ev.Delta == "" {
				continue
			}
			ev.ItemID = call.itemID
			if !s.emit(ctx, ev) {
				return s.ctxError(ctx)
			}

		case openai.ResponseEventOutputTextDone:
			if err := s.flushText(ctx, t); err != nil {
				return err
			}

		case openai.ResponseEventFunctionCallArgsDone:
			if err := s.flushToolCalls(ctx, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushText emits the output_text.done and output_item.done pair for the
// accumulated text, once.
func (s *streamSession) flushText(ctx context.Context, t *turnResult) error {
	if t.textFlushed || t.textItemID == "" {
		return nil
	}
	t.textFlushed = true
	zero := int64(0)
	text := strings.Join(t.textParts, "")
	if !s.emit(ctx, openai.ResponseStreamEvent{
		Type:         openai.ResponseEventOutputTextDone,
		ItemID:       t.textItemID,
		OutputIndex:  &zero,
		ContentIndex: &zero,
		Text:         text,
	}) {
		return s.ctxError(ctx)
	}
	item := t.messageItem(text)
	if !s.emit(ctx, openai.ResponseStreamEvent{
		Type:        openai.ResponseEventOutputItemDone,
		OutputIndex: &zero,
		Item:        &item,
	}) {
		return s.ctxError(ctx)
	}
	return nil
}

// flushToolCalls emits (or synthesises) the function_call_arguments.done and
// output_item.done events for every accumulated tool call. Internal calls are
// marked done without emission.
func (s *streamSession) flushToolCalls(ctx context.Context, t *turnResult) error {
	for _, idx := range t.order {
		call := t.calls[idx]
		if call.doneEmitted {
			continue
		}
		call.doneEmitted = true
		if s.isInternal(call) {
			continue
		}
		if err := s.flushCallBacklog(ctx, call); err != nil {
			return err
		}
		i := call.index
		if !s.emit(ctx, openai.ResponseStreamEvent{
			Type:        openai.ResponseEventFunctionCallArgsDone,
			ItemID:      call.itemID,
			OutputIndex: &i,
			Arguments:   strings.Join(call.args, ""),
		}) {
			return s.ctxError(ctx)
		}
		item := s.callItem(call)
		if !s.emit(ctx, openai.ResponseStreamEvent{
			Type:        openai.ResponseEventOutputItemDone,
			OutputIndex: &i,
			Item:        &item,
		}) {
			return s.ctxError(ctx)
		}
	}
	return nil
}

// flushCallBacklog emits the output_item.added event for an external call and
// replays the argument deltas held back while its name was unknown.
func (s *streamSession) flushCallBacklog(ctx context.Context, call *turnToolCall) error {
	if !call.addedEmitted {
		call.addedEmitted = true
		if !s.emit(ctx, s.itemAddedEvent(s.callSkeleton(call), call.index)) {
			return s.ctxError(ctx)
		}
	}
	for i := range call.pending {
		if call.pending[i].Delta == "" {
			continue
		}
		call.pending[i].ItemID = call.itemID
		if !s.emit(ctx, call.pending[i]) {
			return s.ctxError(ctx)
		}
	}
	call.pending = nil
	return nil
}

// finish flushes outstanding boundaries, emits the terminal event and
// persists the response.
func (s *streamSession) finish(ctx context.Context, t *turnResult) {
	// Providers occasionally close the stream without boundary chunks; the
	// done events are synthesised here before the terminal event.
	if err := s.flushText(ctx, t); err != nil {
		return
	}
	if err := s.flushToolCalls(ctx, t); err != nil {
		return
	}

	status, incomplete := s.tr.StatusFromFinishReason(t.finish)
	resp := s.shell(status, nil)
	resp.IncompleteDetails = incomplete
	resp.Output = s.turnOutput(t, false)
	if t.usage != nil {
		resp.Usage = translator.UsageFromChatCompletion(t.usage)
	}

	s.o.persist(ctx, s.req, resp, s.initialItems)

	eventType := openai.ResponseEventCompleted
	if status == openai.ResponseStatusIncomplete {
		eventType = openai.ResponseEventIncomplete
	}
	s.emit(ctx, openai.ResponseStreamEvent{Type: eventType, Response: resp})
	s.m.RecordRequestCompletion(ctx, true)
}

// fail emits the terminal failure event. Timeouts and tool budget exhaustion
// surface as the error event; everything else as response.failed.
func (s *streamSession) fail(ctx context.Context, err error) {
	apiErr := apierror.AsError(err)
	switch apiErr.Kind {
	case apierror.KindTimeout, apierror.KindTooManyToolCalls:
		s.emitBestEffort(openai.ResponseStreamEvent{
			Type:    openai.ResponseEventError,
			Code:    string(apiErr.Kind),
			Message: apiErr.Message,
		})
	default:
		s.emitBestEffort(openai.ResponseStreamEvent{
			Type: openai.ResponseEventFailed,
			Response: s.shell(openai.ResponseStatusFailed, &openai.ResponseError{
				Code:    string(apiErr.Kind),
				Message: apiErr.Message,
			}),
		})
	}
	s.m.RecordRequestCompletion(ctx, false)
}

// emit sends one event, assigning its sequence number. It returns false when
// the context ends before the consumer takes the event.
func (s *streamSession) emit(ctx context.Context, ev openai.ResponseStreamEvent) bool {
	ev.SequenceNumber = s.seq
	select {
	case s.ch <- ev:
		s.seq++
		return true
	case <-ctx.Done():
		return false
	}
}

// emitBestEffort tries to deliver a terminal event to a consumer that may
// already be gone.
func (s *streamSession) emitBestEffort(ev openai.ResponseStreamEvent) {
	ev.SequenceNumber = s.seq
	select {
	case s.ch <- ev:
		s.seq++
	case <-time.After(100 * time.Millisecond):
	}
}

// ctxError maps a context end to the error taxonomy.
func (s *streamSession) ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apierror.New(apierror.KindTimeout, "streaming exceeded the configured timeout")
	}
	return apierror.Wrap(apierror.KindInternalError, ctx.Err(), "client disconnected")
}

// isInternal reports whether the accumulated call targets an internal tool.
func (s *streamSession) isInternal(call *turnToolCall) bool {
	return call.name != "" && s.ts.has(call.name)
}

// hasInternalCalls reports whether the turn produced any internal tool call.
func (s *streamSession) hasInternalCalls(t *turnResult) bool {
	for _, idx := range t.order {
		if s.isInternal(t.calls[idx]) {
			return true
		}
	}
	return false
}

// newItemID mints a Responses item id.
func (s *streamSession) newItemID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// shell builds the response envelope carried by lifecycle events.
func (s *streamSession) shell(status string, respErr *openai.ResponseError) *openai.Response {
	resp := &openai.Response{
		ID:        s.respID,
		Object:    "response",
		CreatedAt: s.createdAt,
		Model:     s.ep.Model,
		Status:    status,
		Output:    []openai.ResponseOutputItemUnion{},
		Error:     respErr,
	}
	echoRequest(resp, s.req)
	return resp
}

// turnResponse materialises the turn accumulators as a Response for the
// reconciler, internal calls included.
func (s *streamSession) turnResponse(t *turnResult) *openai.Response {
	resp := s.shell(openai.ResponseStatusCompleted, nil)
	resp.Output = s.turnOutput(t, true)
	return resp
}

// turnOutput assembles the output items of a turn: the text message first,
// then the tool calls in index order.
func (s *streamSession) turnOutput(t *turnResult, includeInternal bool) []openai.ResponseOutputItemUnion {
	out := []openai.ResponseOutputItemUnion{}
	if text := strings.Join(t.textParts, ""); text != "" {
		out = append(out, t.messageItem(text))
	}
	for _, idx := range t.order {
		call := t.calls[idx]
		if !includeInternal && s.isInternal(call) {
			continue
		}
		out = append(out, s.callItem(call))
	}
	return out
}

// messageSkeleton is the empty message item announced by output_item.added.
func (t *turnResult) messageSkeleton() openai.ResponseOutputItemUnion {
	return openai.ResponseOutputItemUnion{OfMessage: &openai.ResponseOutputMessage{
		Type:    openai.ResponseItemTypeMessage,
		ID:      t.textItemID,
		Role:    openai.ChatMessageRoleAssistant,
		Status:  openai.ResponseStatusInProgress,
		Content: []openai.ResponseOutputTextContent{},
	}}
}

// messageItem is the completed text message item of the turn.
func (t *turnResult) messageItem(text string) openai.ResponseOutputItemUnion {
	return openai.ResponseOutputItemUnion{OfMessage: &openai.ResponseOutputMessage{
		Type:   openai.ResponseItemTypeMessage,
		ID:     t.textItemID,
		Role:   openai.ChatMessageRoleAssistant,
		Status: openai.ResponseStatusCompleted,
		Content: []openai.ResponseOutputTextContent{{
			Type:        openai.ResponseContentTypeOutputText,
			Text:        text,
			Annotations: []any{},
		}},
	}}
}

// callSkeleton is the empty function_call item announced by
// output_item.added.
func (s *streamSession) callSkeleton(call *turnToolCall) openai.ResponseOutputItemUnion {
	return openai.ResponseOutputItemUnion{OfFunctionCall: &openai.ResponseFunctionToolCall{
		Type:   openai.ResponseItemTypeFunctionCall,
		ID:     call.itemID,
		CallID: call.callID,
		Name:   call.name,
		Status: openai.ResponseStatusInProgress,
	}}
}

// callItem is the completed function_call item of one accumulated call.
func (s *streamSession) callItem(call *turnToolCall) openai.ResponseOutputItemUnion {
	return openai.ResponseOutputItemUnion{OfFunctionCall: &openai.ResponseFunctionToolCall{
		Type:      openai.ResponseItemTypeFunctionCall,
		ID:        call.itemID,
		CallID:    call.callID,
		Name:      call.name,
		Arguments: strings.Join(call.args, ""),
		Status:    openai.ResponseStatusCompleted,
	}}
}

// itemAddedEvent wraps an item skeleton in the output_item.added event.
func (s *streamSession) itemAddedEvent(item openai.ResponseOutputItemUnion, index int64) openai.ResponseStreamEvent {
	return openai.ResponseStreamEvent{
		Type:        openai.ResponseEventOutputItemAdded,
		OutputIndex: &index,
		Item:        &item,
	}
}
