package state

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts", "accounts.json")
	store := NewFileStore(path)

	s := New()
	_ = s.Put(AccountRecord{Role: RoleIssuer, Address: "rIssuer", Secret: "sIssuer"})
	_ = s.Put(AccountRecord{Role: RoleFoundation, Address: "rFoundation", Secret: "sFoundation"})

	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var doc map[string]map[string]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("state file is not json: %v", err)
	}
	if doc["issuer"]["address"] != "rIssuer" || doc["foundation"]["secret"] != "sFoundation" {
		t.Fatalf("unexpected file layout: %s", raw)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, role := range Roles {
		rec, ok := loaded.Get(role)
		if !ok || !rec.Valid() {
			t.Fatalf("missing %s after load", role)
		}
		if rec.Role != role {
			t.Fatalf("expected role %s, got %s", role, rec.Role)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "accounts.json"))

	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrStateFile) {
		t.Fatalf("expected ErrStateFile, got %v", err)
	}
	if !errors.Is(err, ErrNoState) {
		t.Fatalf("expected ErrNoState, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist cause, got %v", err)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := NewFileStore(path).Load(context.Background())
	if !errors.Is(err, ErrStateFile) {
		t.Fatalf("expected ErrStateFile, got %v", err)
	}
	if errors.Is(err, ErrNoState) {
		t.Fatal("corrupt state must not look like missing state")
	}
}
