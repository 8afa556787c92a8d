package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps state in a JSON document shaped
// {"issuer": {"address", "secret"}, "foundation": {...}}.
type FileStore struct {
	path string
}

type fileDocument struct {
	Issuer     *AccountRecord `json:"issuer,omitempty"`
	Foundation *AccountRecord `json:"foundation,omitempty"`
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads and decodes the state file.
func (f *FileStore) Load(_ context.Context) (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w: %s: %w", ErrStateFile, ErrNoState, f.path, err)
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrStateFile, f.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrStateFile, f.path, err)
	}

	s := New()
	if doc.Issuer != nil {
		doc.Issuer.Role = RoleIssuer
		s[RoleIssuer] = *doc.Issuer
	}
	if doc.Foundation != nil {
		doc.Foundation.Role = RoleFoundation
		s[RoleFoundation] = *doc.Foundation
	}
	return s, nil
}

// Save replaces the state file atomically, creating its directory if needed.
func (f *FileStore) Save(_ context.Context, s State) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	var doc fileDocument
	if rec, ok := s.Get(RoleIssuer); ok {
		doc.Issuer = &rec
	}
	if rec, ok := s.Get(RoleFoundation); ok {
		doc.Foundation = &rec
	}

	payload, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".accounts-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // nolint:errcheck

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
