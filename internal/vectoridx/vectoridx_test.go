package vectoridx

import "testing"

func TestSearchFindsClosest(t *testing.T) {
	idx := New(2)
	idx.Put("a", []float64{1, 0}, 1)
	idx.Put("b", []float64{0, 1}, 1)
	idx.Put("c", []float64{0.9, 0.1}, 1)

	got := idx.Search([]float64{1, 0}, 1, 1)
	if len(got) != 1 || got[0].DocID != "a" {
		t.Fatalf("got %+v, want a closest", got)
	}
}

func TestDeleteHidesDocument(t *testing.T) {
	idx := New(2)
	idx.Put("a", []float64{1, 0}, 1)
	idx.Delete("a", 2)

	got := idx.Search([]float64{1, 0}, 5, 2)
	if len(got) != 0 {
		t.Fatalf("got %d results, want 0 after delete", len(got))
	}
}

func TestWrongDimensionIgnored(t *testing.T) {
	idx := New(2)
	idx.Put("a", []float64{1, 2, 3}, 1)

	got := idx.Search([]float64{1, 0}, 5, 1)
	if len(got) != 0 {
		t.Fatalf("expected wrong-dimension vector to be ignored, got %d results", len(got))
	}
}

func TestSnapshotIsolation(t *testing.T) {
	idx := New(1)
	idx.Put("a", []float64{1}, 5)

	got := idx.Search([]float64{1}, 5, 3)
	if len(got) != 0 {
		t.Fatal("expected doc not yet visible at earlier snapshot")
	}

	got = idx.Search([]float64{1}, 5, 10)
	if len(got) != 1 {
		t.Fatal("expected doc visible at later snapshot")
	}
}
