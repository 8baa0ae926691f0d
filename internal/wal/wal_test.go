package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Fountain-Coach/Fountain-Store/internal/logging"
)

func TestAppendSyncReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, "wal", 0, logging.Discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	payloads := [][]byte{
		EncodeLegacy("users\x00\"1\"", []byte(`{"name":"a"}`)),
		EncodeLegacy("users\x00\"2\"", nil),
	}
	for i, p := range payloads {
		if err := w.Append(uint64(i+1), p); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := Replay(dir, "wal")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Seq != 1 || records[1].Seq != 2 {
		t.Fatalf("unexpected seqs: %+v", records)
	}

	p0, err := Decode(records[0].Payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p0.Kind != KindLegacy || !p0.HasValue || p0.IsDelete {
		t.Fatalf("unexpected decode: %+v", p0)
	}

	p1, err := Decode(records[1].Payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !p1.HasValue || !p1.IsDelete {
		t.Fatalf("expected tombstone, got %+v", p1)
	}
}

func TestTransactionalBeginOpCommitReplay(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, "wal", 0, logging.Discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	frames := [][]byte{
		EncodeBegin("tx-1"),
		EncodeOp("tx-1", "orders\x00\"7\"", []byte(`{"qty":3}`)),
		EncodeOp("tx-1", "orders\x00\"8\"", nil),
		EncodeCommit("tx-1"),
	}
	for i, f := range frames {
		if err := w.Append(uint64(i+1), f); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	records, err := Replay(dir, "wal")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}

	begin, err := Decode(records[0].Payload)
	if err != nil || begin.Kind != KindBegin || begin.TxID != "tx-1" {
		t.Fatalf("unexpected begin decode: %+v, err=%v", begin, err)
	}
	op1, err := Decode(records[1].Payload)
	if err != nil || op1.Kind != KindOp || !op1.HasValue || op1.IsDelete {
		t.Fatalf("unexpected op1 decode: %+v, err=%v", op1, err)
	}
	op2, err := Decode(records[2].Payload)
	if err != nil || !op2.HasValue || !op2.IsDelete {
		t.Fatalf("unexpected op2 decode: %+v, err=%v", op2, err)
	}
	commit, err := Decode(records[3].Payload)
	if err != nil || commit.Kind != KindCommit || commit.TxID != "tx-1" {
		t.Fatalf("unexpected commit decode: %+v, err=%v", commit, err)
	}
}

func TestReplayTruncatesCorruptTail(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, "wal", 0, logging.Discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Append(1, EncodeLegacy("a\x00\"1\"", []byte("v1"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.Write([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0xFF, 0x01}); err != nil {
		t.Fatalf("write partial frame: %v", err)
	}
	f.Close()

	records, err := Replay(dir, "wal")
	if err != nil {
		t.Fatalf("Replay should not error on corrupt tail: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 (corrupt tail discarded)", len(records))
	}
}

func TestSegmentRotationAndGC(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, "wal", 48, logging.Discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	for i := 1; i <= 5; i++ {
		payload := EncodeLegacy("k\x00\"x\"", []byte("0123456789"))
		if err := w.Append(uint64(i), payload); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	matches, err := filepath.Glob(filepath.Join(dir, "wal.*.log"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("expected at least one rotated segment")
	}

	records, err := Replay(dir, "wal")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d records across rotated segments, want 5", len(records))
	}

	if err := w.GC(3); err != nil {
		t.Fatalf("GC: %v", err)
	}
	records, err = Replay(dir, "wal")
	if err != nil {
		t.Fatalf("Replay after GC: %v", err)
	}
	for _, r := range records {
		if r.Seq <= 3 {
			t.Fatalf("GC should have removed segments with maxSeq <= 3, found seq %d", r.Seq)
		}
	}
}
