package compaction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/Fountain-Coach/Fountain-Store/internal/logging"
	"github.com/Fountain-Coach/Fountain-Store/internal/manifest"
	"github.com/Fountain-Coach/Fountain-Store/internal/sstable"
)

func statFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func writeTable(t *testing.T, dir string, entries []sstable.KV) (string, string) {
	id := uuid.New().String()
	path := filepath.Join(dir, id+".sst")
	if _, _, err := sstable.Write(path, entries); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return id, path
}

func TestTickMergesOverlappingTables(t *testing.T) {
	dir := t.TempDir()
	ms, err := manifest.Open(dir, logging.Discard)
	if err != nil {
		t.Fatalf("manifest.Open: %v", err)
	}

	id1, path1 := writeTable(t, dir, []sstable.KV{{Key: []byte("a"), Value: []byte("1")}, {Key: []byte("b"), Value: []byte("2")}})
	id2, path2 := writeTable(t, dir, []sstable.KV{{Key: []byte("a"), Value: []byte("1-new")}, {Key: []byte("c"), Value: []byte("3")}})

	state := ms.State()
	state.Sequence = 10
	state.Tables[id1] = path1
	state.Tables[id2] = path2
	if err := ms.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c := New(dir, ms, statFile, logging.Discard)
	if err := c.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	final := ms.State()
	if len(final.Tables) != 1 {
		t.Fatalf("expected tables to merge into one, got %d", len(final.Tables))
	}

	var mergedPath string
	for _, p := range final.Tables {
		mergedPath = p
	}
	r, err := sstable.Open(mergedPath, "merged", nil)
	if err != nil {
		t.Fatalf("Open merged: %v", err)
	}
	defer r.Close()

	v, ok, err := r.Get([]byte("a"))
	if err != nil || !ok || string(v) != "1-new" {
		t.Fatalf("Get(a) = %q, ok=%v, err=%v, want 1-new (last-in-wins)", v, ok, err)
	}
	for _, k := range []string{"b", "c"} {
		_, ok, err := r.Get([]byte(k))
		if err != nil || !ok {
			t.Fatalf("Get(%s) missing after merge", k)
		}
	}
}

func TestTickNoopWithFewerThanTwoTables(t *testing.T) {
	dir := t.TempDir()
	ms, err := manifest.Open(dir, logging.Discard)
	if err != nil {
		t.Fatalf("manifest.Open: %v", err)
	}

	id1, path1 := writeTable(t, dir, []sstable.KV{{Key: []byte("a"), Value: []byte("1")}})
	state := ms.State()
	state.Tables[id1] = path1
	if err := ms.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c := New(dir, ms, statFile, logging.Discard)
	if err := c.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(ms.State().Tables) != 1 {
		t.Fatal("expected single table to remain untouched")
	}
}

func TestLevelFor(t *testing.T) {
	cases := []struct {
		size int64
		want int
	}{
		{0, 0},
		{BlockSizeForLeveling, 0},
		{BlockSizeForLeveling * 2, 1},
		{BlockSizeForLeveling * 4, 2},
	}
	for _, c := range cases {
		if got := levelFor(c.size); got != c.want {
			t.Errorf("levelFor(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestDedupeKeepLast(t *testing.T) {
	in := []sstable.KV{
		{Key: []byte("a"), Value: []byte("old")},
		{Key: []byte("a"), Value: []byte("new")},
		{Key: []byte("b"), Value: []byte("1")},
	}
	out := dedupeKeepLast(in)
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	if string(out[0].Value) != "new" {
		t.Fatalf("expected last-in-wins, got %q", out[0].Value)
	}
}
