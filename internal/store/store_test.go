package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge-ai/apiforge/internal/endpoint"
	"github.com/apiforge-ai/apiforge/internal/errors"
)

func sampleDocument() endpoint.Document {
	return endpoint.Document{
		ID:      "doc-1",
		Name:    "users-api",
		BaseURL: "https://api.example.com",
		Endpoints: []endpoint.Descriptor{
			{
				Method:          "GET",
				Path:            "/users/{user_id}",
				Selected:        true,
				ToolDescription: "Fetch a user",
				Parameters: []endpoint.Parameter{
					{Name: "user_id", Location: endpoint.LocationPath, Type: "string", Description: "User id", Required: true},
				},
			},
			{
				Method: "DELETE",
				Path:   "/users/{user_id}",
			},
		},
	}
}

func sampleServer() ServerRecord {
	return ServerRecord{
		ID:           "srv-1",
		Name:         "users-api",
		DocumentID:   "doc-1",
		BaseURL:      "https://api.example.com",
		Active:       true,
		RegisteredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// stores builds one instance of every Store implementation for shared suites.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestStore_Documents(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := s.GetDocument("doc-1")
			require.ErrorIs(t, err, errors.ErrDocumentNotFound)

			doc := sampleDocument()
			require.NoError(t, s.SaveDocument(doc))

			got, err := s.GetDocument("doc-1")
			require.NoError(t, err)
			assert.Equal(t, doc, got)

			// Overwrite replaces the record.
			doc.Name = "users-api-v2"
			require.NoError(t, s.SaveDocument(doc))
			got, err = s.GetDocument("doc-1")
			require.NoError(t, err)
			assert.Equal(t, "users-api-v2", got.Name)

			other := sampleDocument()
			other.ID = "doc-0"
			require.NoError(t, s.SaveDocument(other))

			list, err := s.ListDocuments()
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "doc-0", list[0].ID)
			assert.Equal(t, "doc-1", list[1].ID)

			require.NoError(t, s.DeleteDocument("doc-0"))
			require.ErrorIs(t, s.DeleteDocument("doc-0"), errors.ErrDocumentNotFound)

			list, err = s.ListDocuments()
			require.NoError(t, err)
			require.Len(t, list, 1)
		})
	}
}

func TestStore_Servers(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := s.GetServer("srv-1")
			require.ErrorIs(t, err, errors.ErrServerNotFound)

			rec := sampleServer()
			require.NoError(t, s.SaveServer(rec))

			got, err := s.GetServer("srv-1")
			require.NoError(t, err)
			assert.Equal(t, rec.DocumentID, got.DocumentID)
			assert.True(t, got.RegisteredAt.Equal(rec.RegisteredAt))
			assert.True(t, got.Active)

			rec.Active = false
			require.NoError(t, s.SaveServer(rec))
			got, err = s.GetServer("srv-1")
			require.NoError(t, err)
			assert.False(t, got.Active)

			list, err := s.ListServers()
			require.NoError(t, err)
			require.Len(t, list, 1)

			require.NoError(t, s.DeleteServer("srv-1"))
			require.ErrorIs(t, s.DeleteServer("srv-1"), errors.ErrServerNotFound)
		})
	}
}

func TestStore_RejectsEmptyIDs(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.ErrorIs(t, s.SaveDocument(endpoint.Document{}), errors.ErrBadRequest)
			require.ErrorIs(t, s.SaveServer(ServerRecord{}), errors.ErrBadRequest)
		})
	}
}

func TestMemoryStore_CopySemantics(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	doc := sampleDocument()
	require.NoError(t, s.SaveDocument(doc))

	// Mutating the caller's copy must not affect the stored record.
	doc.Endpoints[0].ToolName = "mutated"
	got, err := s.GetDocument("doc-1")
	require.NoError(t, err)
	assert.Empty(t, got.Endpoints[0].ToolName)

	// Mutating a returned copy must not affect later reads.
	got.Endpoints[0].Selected = false
	again, err := s.GetDocument("doc-1")
	require.NoError(t, err)
	assert.True(t, again.Endpoints[0].Selected)
}

func TestFileStore_RejectsUnsafeIDs(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"../escape", "a/b", "a b", ""} {
		_, err := s.GetDocument(id)
		assert.ErrorIs(t, err, errors.ErrBadRequest, id)
	}
}

func TestFileStore_LayoutAndPermissions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.SaveDocument(sampleDocument()))
	require.NoError(t, s.SaveServer(sampleServer()))

	docPath := filepath.Join(dir, "documents", "doc-1.toml")
	info, err := os.Stat(docPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = os.Stat(filepath.Join(dir, "servers", "srv-1.toml"))
	require.NoError(t, err)

	// No temp files linger after a successful write.
	entries, err := os.ReadDir(filepath.Join(dir, "documents"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s1, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.SaveDocument(sampleDocument()))
	require.NoError(t, s1.SaveServer(sampleServer()))

	s2, err := NewFileStore(dir)
	require.NoError(t, err)

	doc, err := s2.GetDocument("doc-1")
	require.NoError(t, err)
	assert.Equal(t, sampleDocument(), doc)

	rec, err := s2.GetServer("srv-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", rec.DocumentID)
}
