// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package store persists completed responses and their input-item history so
// follow-up requests can chain on previous_response_id.
package store

import (
	"bytes"
	"context"

	"github.com/masaic-ai/open-responses/internal/apierror"
	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/json"
)

// ResponseStore is the capability set required by the orchestrator. All
// single-key operations are linearisable.
type ResponseStore interface {
	// Put persists a terminal response together with the flattened input
	// items that produced it. Re-putting the same id with equal content is a
	// no-op; differing content is an error.
	Put(ctx context.Context, resp *openai.Response, items []openai.ResponseInputItemUnion) error
	// Get retrieves a response by id; not_found for unknown ids.
	Get(ctx context.Context, id string) (*openai.Response, error)
	// GetInputItems retrieves the stored input items; not_found for unknown
	// ids.
	GetInputItems(ctx context.Context, id string) ([]openai.ResponseInputItemUnion, error)
	// Delete removes a stored response permanently; not_found for unknown
	// ids.
	Delete(ctx context.Context, id string) error
	// Close releases any underlying resources.
	Close() error
}

// errNotFound builds the standard not_found error for a response id.
func errNotFound(id string) error {
	return apierror.New(apierror.KindNotFound, "response %q not found", id)
}

// errConflict builds the error for a conflicting re-put.
func errConflict(id string) error {
	return apierror.New(apierror.KindInvalidRequest, "response %q already stored with different content", id)
}

// encode marshals the pair for storage and equality comparison.
func encode(resp *openai.Response, items []openai.ResponseInputItemUnion) (respJSON, itemsJSON []byte, err error) {
	if respJSON, err = json.Marshal(resp); err != nil {
		return nil, nil, err
	}
	if items == nil {
		items = []openai.ResponseInputItemUnion{}
	}
	if itemsJSON, err = json.Marshal(items); err != nil {
		return nil, nil, err
	}
	return respJSON, itemsJSON, nil
}

// equalStored reports whether a stored pair equals a candidate pair.
func equalStored(aResp, aItems, bResp, bItems []byte) bool {
	return bytes.Equal(aResp, bResp) && bytes.Equal(aItems, bItems)
}
