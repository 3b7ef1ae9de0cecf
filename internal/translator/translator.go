// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package translator converts between the Responses API schema exposed to
// clients and the Chat Completions schema spoken by upstream providers.
//
// The request side maps Responses input items onto chat messages; the
// response side folds a chat completion back into a Response. Both sides are
// pure: translation allocates new values and never mutates its inputs, so a
// translator may be reused across the turns of one tool-call loop.
package translator

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/masaic-ai/open-responses/internal/apischema/openai"
)

// ResponsesToChatTranslator is the bidirectional mapper between the two
// dialects. Create one per request via NewResponsesToChatTranslator.
type ResponsesToChatTranslator struct {
	logger *slog.Logger
	// uuidFn is swapped in tests for deterministic item ids.
	uuidFn func() string
}

// NewResponsesToChatTranslator creates a translator logging through the
// given logger.
func NewResponsesToChatTranslator(logger *slog.Logger) *ResponsesToChatTranslator {
	return &ResponsesToChatTranslator{logger: logger, uuidFn: uuid.NewString}
}

// NormalizeInput converts the request input union into the item list form.
// A plain string becomes a single user message item.
func NormalizeInput(input openai.ResponseInputUnion) []openai.ResponseInputItemUnion {
	if input.OfString != nil {
		s := *input.OfString
		return []openai.ResponseInputItemUnion{{
			OfMessage: &openai.ResponseInputItemMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: openai.ResponseInputMessageContentUnion{OfString: &s},
			},
		}}
	}
	return input.OfItems
}

// newItemID mints a Responses item id with the given prefix.
func (t *ResponsesToChatTranslator) newItemID(prefix string) string {
	return prefix + "_" + t.uuidFn()
}
