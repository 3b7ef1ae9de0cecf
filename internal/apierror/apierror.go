// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package apierror defines the error taxonomy surfaced by the gateway and
// its mapping to HTTP statuses and the OpenAI-style error JSON body.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the low-cardinality error classification.
type Kind string

// The recognised error kinds.
const (
	KindInvalidRequest       Kind = "invalid_request"
	KindInvalidConfiguration Kind = "invalid_configuration"
	KindNotFound             Kind = "not_found"
	KindRateLimitExceeded    Kind = "rate_limit_exceeded"
	KindTimeout              Kind = "timeout"
	KindTooManyToolCalls     Kind = "too_many_tool_calls"
	KindGenerationError      Kind = "generation_error"
	KindToolExecutionError   Kind = "tool_execution_error"
	KindInternalError        Kind = "internal_error"
)

// Error is a classified, user-facing error. It is safe to render to clients.
type Error struct {
	Kind    Kind    `json:"type"`
	Message string  `json:"message"`
	Param   *string `json:"param"`
	Code    string  `json:"code"`

	cause error
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Code: string(kind)}
}

// Wrap creates an Error of the given kind preserving the cause for errors.Is
// and errors.Unwrap chains.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Code: string(kind), cause: cause}
}

// WithParam attaches the offending request parameter name.
func (e *Error) WithParam(param string) *Error {
	e.Param = &param
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// StatusCode maps the kind to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindInvalidConfiguration:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindTooManyToolCalls:
		return http.StatusUnprocessableEntity
	case KindGenerationError:
		return http.StatusBadGateway
	case KindToolExecutionError, KindInternalError:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// FromUpstreamStatus classifies a non-2xx upstream HTTP status.
func FromUpstreamStatus(status int, body string) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		return New(KindRateLimitExceeded, "upstream rate limit exceeded: %s", body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return New(KindInvalidConfiguration, "upstream rejected credentials: %s", body)
	case status == http.StatusNotFound:
		return New(KindNotFound, "upstream resource not found: %s", body)
	case status >= 400 && status < 500:
		return New(KindInvalidRequest, "upstream rejected request: %s", body)
	default:
		return New(KindGenerationError, "upstream error (status %d): %s", status, body)
	}
}

// AsError converts any error into an *Error, classifying unknown errors as
// internal_error.
func AsError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Kind: KindInternalError, Message: err.Error(), Code: string(KindInternalError), cause: err}
}
