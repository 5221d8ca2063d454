package store

import (
	"cmp"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/apiforge-ai/apiforge/internal/endpoint"
	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/perms"
)

const (
	documentsDir = "documents"
	serversDir   = "servers"
	tomlExt      = ".toml"
)

// safeID restricts record ids to characters that are safe in a file name.
var safeID = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// FileStore persists each record as one TOML file under a data directory:
//
//	<dataDir>/documents/<id>.toml
//	<dataDir>/servers/<id>.toml
//
// Writes go through a temp file and rename so a crash mid-write never leaves
// a truncated record behind.
// NewFileStore should be used to create instances of FileStore.
type FileStore struct {
	dataDir string
}

// NewFileStore creates a file store rooted at dataDir, creating the directory
// layout when missing.
func NewFileStore(dataDir string) (*FileStore, error) {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil, fmt.Errorf("%w: data directory cannot be empty", errors.ErrBadRequest)
	}

	for _, sub := range []string{documentsDir, serversDir} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), perms.SecureDir); err != nil {
			return nil, fmt.Errorf("%w: creating data directory: %w", errors.ErrStore, err)
		}
	}

	return &FileStore{dataDir: dataDir}, nil
}

// SaveDocument writes a document record.
func (s *FileStore) SaveDocument(doc endpoint.Document) error {
	if err := validateID(doc.ID); err != nil {
		return err
	}
	return s.write(filepath.Join(documentsDir, doc.ID+tomlExt), doc)
}

// GetDocument reads a document record.
func (s *FileStore) GetDocument(id string) (endpoint.Document, error) {
	if err := validateID(id); err != nil {
		return endpoint.Document{}, err
	}

	var doc endpoint.Document
	if err := s.read(filepath.Join(documentsDir, id+tomlExt), &doc); err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return endpoint.Document{}, fmt.Errorf("%w: %s", errors.ErrDocumentNotFound, id)
		}
		return endpoint.Document{}, err
	}

	return doc, nil
}

// ListDocuments reads all document records, sorted by id.
func (s *FileStore) ListDocuments() ([]endpoint.Document, error) {
	ids, err := s.listIDs(documentsDir)
	if err != nil {
		return nil, err
	}

	out := make([]endpoint.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.GetDocument(id)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}

	return out, nil
}

// DeleteDocument removes a document record.
func (s *FileStore) DeleteDocument(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.remove(filepath.Join(documentsDir, id+tomlExt)); err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", errors.ErrDocumentNotFound, id)
		}
		return err
	}
	return nil
}

// SaveServer writes a server record.
func (s *FileStore) SaveServer(rec ServerRecord) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	return s.write(filepath.Join(serversDir, rec.ID+tomlExt), rec)
}

// GetServer reads a server record.
func (s *FileStore) GetServer(id string) (ServerRecord, error) {
	if err := validateID(id); err != nil {
		return ServerRecord{}, err
	}

	var rec ServerRecord
	if err := s.read(filepath.Join(serversDir, id+tomlExt), &rec); err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return ServerRecord{}, fmt.Errorf("%w: %s", errors.ErrServerNotFound, id)
		}
		return ServerRecord{}, err
	}

	return rec, nil
}

// ListServers reads all server records, sorted by id.
func (s *FileStore) ListServers() ([]ServerRecord, error) {
	ids, err := s.listIDs(serversDir)
	if err != nil {
		return nil, err
	}

	out := make([]ServerRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetServer(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	return out, nil
}

// DeleteServer removes a server record.
func (s *FileStore) DeleteServer(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.remove(filepath.Join(serversDir, id+tomlExt)); err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", errors.ErrServerNotFound, id)
		}
		return err
	}
	return nil
}

func validateID(id string) error {
	if !safeID.MatchString(id) {
		return fmt.Errorf("%w: invalid record id %q", errors.ErrBadRequest, id)
	}
	return nil
}

// write encodes the value to a temp file in the target directory, then
// renames it into place.
func (s *FileStore) write(rel string, v any) (err error) {
	path := filepath.Join(s.dataDir, rel)

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %s: %w", errors.ErrStore, rel, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if encErr := toml.NewEncoder(f).Encode(v); encErr != nil {
		_ = f.Close()
		return fmt.Errorf("%w: encoding %s: %w", errors.ErrStore, rel, encErr)
	}
	if closeErr := f.Close(); closeErr != nil {
		return fmt.Errorf("%w: closing %s: %w", errors.ErrStore, rel, closeErr)
	}
	if chmodErr := os.Chmod(tmp, perms.SecureFile); chmodErr != nil {
		return fmt.Errorf("%w: setting permissions on %s: %w", errors.ErrStore, rel, chmodErr)
	}
	if renameErr := os.Rename(tmp, path); renameErr != nil {
		return fmt.Errorf("%w: replacing %s: %w", errors.ErrStore, rel, renameErr)
	}

	return nil
}

func (s *FileStore) read(rel string, v any) error {
	path := filepath.Join(s.dataDir, rel)

	if _, err := os.Stat(path); err != nil {
		return err
	}
	if _, err := toml.DecodeFile(path, v); err != nil {
		return fmt.Errorf("%w: parsing %s: %w", errors.ErrStore, rel, err)
	}

	return nil
}

func (s *FileStore) remove(rel string) error {
	path := filepath.Join(s.dataDir, rel)

	if _, err := os.Stat(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: removing %s: %w", errors.ErrStore, rel, err)
	}

	return nil
}

// listIDs returns the record ids present in one subdirectory, sorted.
func (s *FileStore) listIDs(sub string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, sub))
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", errors.ErrStore, sub, err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, tomlExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, tomlExt))
	}
	slices.SortFunc(ids, func(a, b string) int { return cmp.Compare(a, b) })

	return ids, nil
}
