// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/masaic-ai/open-responses/internal/apierror"
)

// uploadFile handles POST /v1/files (multipart). Files uploaded with purpose
// "assistants" are indexed for file_search when the vector store is enabled.
func (s *Server) uploadFile(c *gin.Context) {
	if s.files == nil {
		s.renderError(c, apierror.New(apierror.KindInvalidConfiguration, "file storage is not configured"))
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		s.renderError(c, apierror.Wrap(apierror.KindInvalidRequest, err, "multipart field \"file\" is required").WithParam("file"))
		return
	}
	purpose := c.PostForm("purpose")

	src, err := header.Open()
	if err != nil {
		s.renderError(c, apierror.Wrap(apierror.KindInvalidRequest, err, "cannot read uploaded file"))
		return
	}
	defer src.Close()

	file, err := s.files.Put(c.Request.Context(), header.Filename, purpose, src)
	if err != nil {
		s.renderError(c, err)
		return
	}

	if purpose == "assistants" && s.vectors != nil {
		s.indexUpload(c, file.ID, file.Filename)
	}
	c.JSON(http.StatusOK, file)
}

// indexUpload feeds a fresh upload into the vector index. Indexing failures
// are logged and swallowed so the upload itself still succeeds.
func (s *Server) indexUpload(c *gin.Context, fileID, filename string) {
	content, err := s.files.Content(c.Request.Context(), fileID)
	if err != nil {
		s.reqLogger(c).Error("cannot reopen upload for indexing",
			slog.String("file_id", fileID), slog.String("error", err.Error()))
		return
	}
	defer content.Close()
	if err := s.vectors.Index(c.Request.Context(), fileID, filename, content, nil, nil); err != nil {
		s.reqLogger(c).Error("cannot index upload",
			slog.String("file_id", fileID), slog.String("error", err.Error()))
	}
}

// listFiles handles GET /v1/files with optional purpose, limit and order.
func (s *Server) listFiles(c *gin.Context) {
	if s.files == nil {
		s.renderError(c, apierror.New(apierror.KindInvalidConfiguration, "file storage is not configured"))
		return
	}
	limit, err := parseLimit(c.DefaultQuery("limit", "10000"), 10000)
	if err != nil {
		s.renderError(c, err)
		return
	}
	files, err := s.files.List(c.Request.Context(), c.Query("purpose"), limit, c.DefaultQuery("order", "desc"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": files})
}

// getFile handles GET /v1/files/:id.
func (s *Server) getFile(c *gin.Context) {
	if s.files == nil {
		s.renderError(c, apierror.New(apierror.KindInvalidConfiguration, "file storage is not configured"))
		return
	}
	file, err := s.files.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// getFileContent handles GET /v1/files/:id/content.
func (s *Server) getFileContent(c *gin.Context) {
	if s.files == nil {
		s.renderError(c, apierror.New(apierror.KindInvalidConfiguration, "file storage is not configured"))
		return
	}
	file, err := s.files.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	content, err := s.files.Content(c.Request.Context(), file.ID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	defer content.Close()

	c.Header("Content-Disposition", "attachment; filename=\""+file.Filename+"\"")
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, content); err != nil {
		s.reqLogger(c).Error("cannot stream file content",
			slog.String("file_id", file.ID), slog.String("error", err.Error()))
	}
}

// deleteFile handles DELETE /v1/files/:id, removing any index entries too.
func (s *Server) deleteFile(c *gin.Context) {
	if s.files == nil {
		s.renderError(c, apierror.New(apierror.KindInvalidConfiguration, "file storage is not configured"))
		return
	}
	id := c.Param("id")
	if err := s.files.Delete(c.Request.Context(), id); err != nil {
		s.renderError(c, err)
		return
	}
	if s.vectors != nil {
		if err := s.vectors.Delete(c.Request.Context(), id); err != nil {
			s.reqLogger(c).Error("cannot delete index entries",
				slog.String("file_id", id), slog.String("error", err.Error()))
		}
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "object": "file", "deleted": true})
}
