// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package server is the HTTP surface of the gateway: the OpenAI-compatible
// Responses endpoints, file CRUD, the model listing passthrough and health.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/filestore"
	"github.com/masaic-ai/open-responses/internal/provider"
	"github.com/masaic-ai/open-responses/internal/responses"
	"github.com/masaic-ai/open-responses/internal/store"
	"github.com/masaic-ai/open-responses/internal/upstream"
	"github.com/masaic-ai/open-responses/internal/vectorstore"
)

const loggerKey = "logger"

// Server wires the HTTP routes to the orchestrator and the stores.
type Server struct {
	logger   *slog.Logger
	orch     *responses.Orchestrator
	store    store.ResponseStore
	files    *filestore.Store
	vectors  *vectorstore.Store
	router   *provider.Router
	upstream *upstream.Client
	engine   *gin.Engine
}

// New builds the server and registers all routes. files and vectors may be
// nil when their subsystems are disabled.
func New(
	logger *slog.Logger,
	orch *responses.Orchestrator,
	st store.ResponseStore,
	files *filestore.Store,
	vectors *vectorstore.Store,
	router *provider.Router,
	client *upstream.Client,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		logger:   logger,
		orch:     orch,
		store:    st,
		files:    files,
		vectors:  vectors,
		router:   router,
		upstream: client,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

// Handler exposes the engine as an http.Handler for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/health", s.health)

	v1 := s.engine.Group("/v1")
	{
		resp := v1.Group("/responses", s.requireCredentials())
		resp.POST("", s.createResponse)
		resp.GET("/:id", s.getResponse)
		resp.DELETE("/:id", s.deleteResponse)
		resp.GET("/:id/input_items", s.listInputItems)

		files := v1.Group("/files")
		files.POST("", s.uploadFile)
		files.GET("", s.listFiles)
		files.GET("/:id", s.getFile)
		files.GET("/:id/content", s.getFileContent)
		files.DELETE("/:id", s.deleteFile)

		v1.GET("/models", s.listModels)
	}
}

// requestLogger attaches a request-scoped logger carrying a request id.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := uuid.NewString()
		logger := s.logger.With(slog.String("request_id", reqID))
		c.Set(loggerKey, logger)
		c.Header("x-request-id", reqID)
		c.Next()
		logger.Debug("request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
		)
	}
}

// requireCredentials rejects response-endpoint requests that could not
// authenticate any upstream call.
func (s *Server) requireCredentials() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.router.HasCredentials(c.Request.Header) {
			s.renderError(c, apierror.New(apierror.KindInvalidConfiguration,
				"missing api key: set the Authorization header or a provider api key environment variable"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// reqLogger returns the request-scoped logger.
func (s *Server) reqLogger(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if logger, ok := v.(*slog.Logger); ok {
			return logger
		}
	}
	return s.logger
}

// renderError writes the error JSON envelope with the mapped status.
func (s *Server) renderError(c *gin.Context, err error) {
	apiErr := apierror.AsError(err)
	if apiErr.Kind == apierror.KindInternalError {
		s.reqLogger(c).Error("internal error", slog.String("error", err.Error()))
	}
	c.JSON(apiErr.StatusCode(), apiErr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
