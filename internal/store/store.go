// Package store persists endpoint documents and server deployment records so
// a daemon restart can rebuild its registry. Two implementations are
// provided: an in-memory store for tests and dev mode, and a file store that
// writes one TOML file per record under a data directory.
package store

import (
	"time"

	"github.com/apiforge-ai/apiforge/internal/endpoint"
)

// ServerRecord is the persisted form of a deployed server. Compiled tools are
// not stored; they are recompiled from the referenced document on reload.
type ServerRecord struct {
	ID           string    `toml:"id"`
	Name         string    `toml:"name"`
	DocumentID   string    `toml:"document_id"`
	BaseURL      string    `toml:"base_url"`
	Active       bool      `toml:"active"`
	RegisteredAt time.Time `toml:"registered_at"`
}

// Store is the persistence contract used by the daemon and API layer.
// Get returns ErrDocumentNotFound/ErrServerNotFound for unknown ids; Delete
// of an unknown id is the same error. List order is implementation-defined
// but stable.
type Store interface {
	SaveDocument(doc endpoint.Document) error
	GetDocument(id string) (endpoint.Document, error)
	ListDocuments() ([]endpoint.Document, error)
	DeleteDocument(id string) error

	SaveServer(rec ServerRecord) error
	GetServer(id string) (ServerRecord, error)
	ListServers() ([]ServerRecord, error)
	DeleteServer(id string) error
}
