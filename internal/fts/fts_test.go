package fts

import "testing"

func TestSearchRanksByTermFrequency(t *testing.T) {
	idx := New()
	idx.Put("1", "the quick brown fox", 1)
	idx.Put("2", "the quick quick quick fox", 2)

	hits := idx.Search("quick", 10, 2)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].DocID != "2" {
		t.Fatalf("expected doc 2 to rank first, got %q", hits[0].DocID)
	}
}

func TestDeleteHidesDocument(t *testing.T) {
	idx := New()
	idx.Put("1", "hello world", 1)
	idx.Delete("1", 2)

	hits := idx.Search("hello", 10, 2)
	if len(hits) != 0 {
		t.Fatalf("got %d hits, want 0 after delete", len(hits))
	}
}

func TestSnapshotIsolation(t *testing.T) {
	idx := New()
	idx.Put("1", "hello", 1)
	idx.Delete("1", 5)

	hits := idx.Search("hello", 10, 3)
	if len(hits) != 1 {
		t.Fatalf("expected doc visible before delete's seq, got %d hits", len(hits))
	}

	hits = idx.Search("hello", 10, 10)
	if len(hits) != 0 {
		t.Fatalf("expected doc hidden after delete's seq, got %d hits", len(hits))
	}
}

func TestLimit(t *testing.T) {
	idx := New()
	idx.Put("1", "go", 1)
	idx.Put("2", "go", 2)
	idx.Put("3", "go", 3)

	hits := idx.Search("go", 2, 3)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
}
