package store

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/apiforge-ai/apiforge/internal/endpoint"
	"github.com/apiforge-ai/apiforge/internal/errors"
)

// MemoryStore is an in-memory Store for tests and dev mode. Safe for
// concurrent use.
// NewMemoryStore should be used to create instances of MemoryStore.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]endpoint.Document
	servers   map[string]ServerRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]endpoint.Document),
		servers:   make(map[string]ServerRecord),
	}
}

// SaveDocument stores or replaces a document keyed by its id.
func (s *MemoryStore) SaveDocument(doc endpoint.Document) error {
	if strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("%w: document id cannot be empty", errors.ErrBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents[doc.ID] = cloneDocument(doc)

	return nil
}

// GetDocument returns a copy of the stored document.
func (s *MemoryStore) GetDocument(id string) (endpoint.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return endpoint.Document{}, fmt.Errorf("%w: %s", errors.ErrDocumentNotFound, id)
	}

	return cloneDocument(doc), nil
}

// ListDocuments returns all documents sorted by id.
func (s *MemoryStore) ListDocuments() ([]endpoint.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]endpoint.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		out = append(out, cloneDocument(doc))
	}
	slices.SortFunc(out, func(a, b endpoint.Document) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return out, nil
}

// DeleteDocument removes a document.
func (s *MemoryStore) DeleteDocument(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("%w: %s", errors.ErrDocumentNotFound, id)
	}
	delete(s.documents, id)

	return nil
}

// SaveServer stores or replaces a server record keyed by its id.
func (s *MemoryStore) SaveServer(rec ServerRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("%w: server id cannot be empty", errors.ErrBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.servers[rec.ID] = rec

	return nil
}

// GetServer returns the stored server record.
func (s *MemoryStore) GetServer(id string) (ServerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.servers[id]
	if !ok {
		return ServerRecord{}, fmt.Errorf("%w: %s", errors.ErrServerNotFound, id)
	}

	return rec, nil
}

// ListServers returns all server records sorted by id.
func (s *MemoryStore) ListServers() ([]ServerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ServerRecord, 0, len(s.servers))
	for _, rec := range s.servers {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b ServerRecord) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return out, nil
}

// DeleteServer removes a server record.
func (s *MemoryStore) DeleteServer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[id]; !ok {
		return fmt.Errorf("%w: %s", errors.ErrServerNotFound, id)
	}
	delete(s.servers, id)

	return nil
}

// cloneDocument deep-copies a document so callers never share endpoint slices
// with the store.
func cloneDocument(doc endpoint.Document) endpoint.Document {
	out := doc
	out.Endpoints = make([]endpoint.Descriptor, len(doc.Endpoints))
	for i, ep := range doc.Endpoints {
		cp := ep
		cp.Parameters = slices.Clone(ep.Parameters)
		out.Endpoints[i] = cp
	}
	return out
}
