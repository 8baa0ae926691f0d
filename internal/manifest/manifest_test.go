package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Fountain-Coach/Fountain-Store/internal/logging"
)

func TestOpenMissingYieldsEmptyState(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, logging.Discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Sequence() != 0 {
		t.Fatalf("Sequence = %d, want 0", s.Sequence())
	}
	if len(s.State().Tables) != 0 {
		t.Fatal("expected empty table set")
	}
}

func TestSaveThenReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, logging.Discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	next := s.State()
	next.Sequence = 42
	next.Tables["abc-123"] = filepath.Join(dir, "abc-123.sst")
	next.IndexCatalog["users"] = []IndexDef{{Name: "email", Kind: "unique", Field: "email"}}

	if err := s.Save(next); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := Open(dir, logging.Discard)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Sequence() != 42 {
		t.Fatalf("Sequence = %d, want 42", reopened.Sequence())
	}
	state := reopened.State()
	if state.Tables["abc-123"] == "" {
		t.Fatal("expected table entry to survive reopen")
	}
	if len(state.IndexCatalog["users"]) != 1 {
		t.Fatal("expected index catalog entry to survive reopen")
	}
}

func TestOpenCorruptIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Open(dir, logging.Discard)
	if err == nil {
		t.Fatal("expected error for corrupt manifest")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, logging.Discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	a := s.State()
	a.Tables["x"] = "x.sst"

	b := s.State()
	if len(b.Tables) != 0 {
		t.Fatal("mutating one clone should not affect another")
	}
}
