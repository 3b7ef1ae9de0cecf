// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/json"
	"github.com/masaic-ai/open-responses/internal/redaction"
)

// maxRequestBody caps Responses request bodies at 16MB; file content travels
// through the multipart endpoint instead.
const maxRequestBody = 16 * 1024 * 1024

// createResponse handles POST /v1/responses, buffered or streaming by the
// request's stream flag.
func (s *Server) createResponse(c *gin.Context) {
	logger := s.reqLogger(c)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
	if err != nil {
		s.renderError(c, apierror.Wrap(apierror.KindInvalidRequest, err, "cannot read request body"))
		return
	}
	logger.Debug("incoming response request", slog.String("body", redaction.RedactRequestBody(body)))

	req := &openai.ResponseRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		s.renderError(c, apierror.Wrap(apierror.KindInvalidRequest, err, "malformed request body"))
		return
	}
	if req.Model == "" {
		s.renderError(c, apierror.New(apierror.KindInvalidRequest, "model is required").WithParam("model"))
		return
	}

	if req.Stream {
		s.streamResponse(c, req)
		return
	}
	resp, err := s.orch.Create(c.Request.Context(), req, c.Request.Header)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// streamResponse serves the SSE form of POST /v1/responses.
func (s *Server) streamResponse(c *gin.Context, req *openai.ResponseRequest) {
	events, err := s.orch.CreateStream(c.Request.Context(), req, c.Request.Header)
	if err != nil {
		s.renderError(c, err)
		return
	}
	writeSSE(c, s.reqLogger(c), events)
}

// getResponse handles GET /v1/responses/:id.
func (s *Server) getResponse(c *gin.Context) {
	resp, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// deleteResponse handles DELETE /v1/responses/:id.
func (s *Server) deleteResponse(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "object": "response", "deleted": true})
}

// listInputItems handles GET /v1/responses/:id/input_items.
func (s *Server) listInputItems(c *gin.Context) {
	limit, err := parseLimit(c.DefaultQuery("limit", "100"), 1000)
	if err != nil {
		s.renderError(c, err)
		return
	}
	order := c.DefaultQuery("order", "desc")
	if order != "asc" && order != "desc" {
		s.renderError(c, apierror.New(apierror.KindInvalidRequest, "order must be asc or desc").WithParam("order"))
		return
	}

	items, err := s.store.GetInputItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	if order == "desc" {
		reversed := make([]openai.ResponseInputItemUnion, 0, len(items))
		for i := len(items) - 1; i >= 0; i-- {
			reversed = append(reversed, items[i])
		}
		items = reversed
	}
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	c.JSON(http.StatusOK, openai.ResponseInputItemList{
		Object:  "list",
		Data:    items,
		HasMore: hasMore,
	})
}

// listModels handles GET /v1/models as an upstream passthrough.
func (s *Server) listModels(c *gin.Context) {
	ep, err := s.router.ResolveList(c.Request.Header)
	if err != nil {
		s.renderError(c, err)
		return
	}
	body, err := s.upstream.Models(c.Request.Context(), ep)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// parseLimit parses a positive listing limit bounded by max.
func parseLimit(raw string, max int) (int, error) {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > max {
		return 0, apierror.New(apierror.KindInvalidRequest, "limit must be between 1 and %d", max).WithParam("limit")
	}
	return limit, nil
}
