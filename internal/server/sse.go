// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/json"
)

// writeSSE drains the event channel to the client as SSE frames of the form
// "event: <type>\ndata: <json>\n\n", closing with "data: [DONE]" after the
// terminal event. The consumer pace backpressures the producer through the
// bounded channel.
func writeSSE(c *gin.Context, logger *slog.Logger, events <-chan openai.ResponseStreamEvent) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	clientGone := c.Request.Context().Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(&ev)
			if err != nil {
				logger.Error("cannot marshal stream event",
					slog.String("event", ev.Type), slog.String("error", err.Error()))
				return
			}
			if _, err := c.Writer.WriteString("event: " + ev.Type + "\ndata: " + string(payload) + "\n\n"); err != nil {
				return
			}
			flush()
			if ev.IsTerminal() {
				_, _ = c.Writer.WriteString("data: [DONE]\n\n")
				flush()
				// Drain so the producer can close the channel and exit.
				for range events { //nolint:revive
				}
				return
			}
		case <-clientGone:
			return
		}
	}
}
