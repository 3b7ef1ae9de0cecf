// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package store

import (
	"context"
	"sync"

	"github.com/masaic-ai/open-responses/internal/apischema/openai"
	"github.com/masaic-ai/open-responses/internal/json"
)

// MemoryStore is the ephemeral, process-local response store. Entries are
// kept as marshaled JSON so Get returns copies, never aliased state.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	respJSON  []byte
	itemsJSON []byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Put implements [ResponseStore.Put].
func (s *MemoryStore) Put(_ context.Context, resp *openai.Response, items []openai.ResponseInputItemUnion) error {
	respJSON, itemsJSON, err := encode(resp, items)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[resp.ID]; ok {
		if equalStored(prev.respJSON, prev.itemsJSON, respJSON, itemsJSON) {
			return nil
		}
		return errConflict(resp.ID)
	}
	s.entries[resp.ID] = memoryEntry{respJSON: respJSON, itemsJSON: itemsJSON}
	return nil
}

// Get implements [ResponseStore.Get].
func (s *MemoryStore) Get(_ context.Context, id string) (*openai.Response, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errNotFound(id)
	}
	resp := &openai.Response{}
	if err := json.Unmarshal(entry.respJSON, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetInputItems implements [ResponseStore.GetInputItems].
func (s *MemoryStore) GetInputItems(_ context.Context, id string) ([]openai.ResponseInputItemUnion, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errNotFound(id)
	}
	var items []openai.ResponseInputItemUnion
	if err := json.Unmarshal(entry.itemsJSON, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete implements [ResponseStore.Delete].
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return errNotFound(id)
	}
	delete(s.entries, id)
	return nil
}

// Close implements [ResponseStore.Close].
func (s *MemoryStore) Close() error { return nil }
