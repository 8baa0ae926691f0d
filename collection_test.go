package fountainstore

import "testing"

type testUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Tag   string `json:"tag"`
}

func userID(u testUser) string { return u.ID }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DefaultOptions(t.TempDir()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCollectionPutGetHistory(t *testing.T) {
	s := openTestStore(t)
	users, err := OpenCollection(s, "users", userID)
	if err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}

	seq1, err := users.Put(testUser{ID: "u1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	seq2, err := users.Put(testUser{ID: "u1", Email: "b@example.com"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if seq2 <= seq1 {
		t.Fatalf("expected seq2 (%d) > seq1 (%d)", seq2, seq1)
	}

	v, ok, err := users.Get("u1", nil)
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if v.Email != "b@example.com" {
		t.Fatalf("expected latest version, got %+v", v)
	}

	old, ok, err := users.Get("u1", newSnapshot(seq1))
	if err != nil || !ok {
		t.Fatalf("Get at seq1: %v, %v", ok, err)
	}
	if old.Email != "a@example.com" {
		t.Fatalf("expected seq1 version, got %+v", old)
	}

	hist, err := users.History("u1", nil)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[0].Seq != seq1 || hist[1].Seq != seq2 {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestCollectionDeleteTombstones(t *testing.T) {
	s := openTestStore(t)
	users, err := OpenCollection(s, "users", userID)
	if err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}

	if _, err := users.Put(testUser{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := users.Delete("u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, ok, err := users.Get("u1", nil); err != nil || ok {
		t.Fatalf("expected not found after delete, got ok=%v err=%v", ok, err)
	}
}

func TestCollectionScanByPrefix(t *testing.T) {
	s := openTestStore(t)
	users, err := OpenCollection(s, "users", userID)
	if err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}

	for _, id := range []string{"alice", "alison", "bob"} {
		if _, err := users.Put(testUser{ID: id}); err != nil {
			t.Fatalf("Put(%s): %v", id, err)
		}
	}

	got, err := users.Scan("ali", 0, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(got), got)
	}
}

func TestUniqueIndexRejectsDuplicateAcrossBatch(t *testing.T) {
	s := openTestStore(t)
	users, err := OpenCollection(s, "users", userID)
	if err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}
	if err := users.DefineUniqueIndex("by_email", "email", func(u testUser) (string, bool) {
		return u.Email, u.Email != ""
	}); err != nil {
		t.Fatalf("DefineUniqueIndex: %v", err)
	}

	if _, err := users.Put(testUser{ID: "u1", Email: "shared@example.com"}); err != nil {
		t.Fatalf("Put u1: %v", err)
	}

	wb := NewWriteBatch()
	u1Encoded, err := users.encode(testUser{ID: "u2", Email: "shared@example.com"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	wb.Put("users", "u2", u1Encoded)

	if _, err := s.Batch(wb.Ops(), nil); err == nil {
		t.Fatal("expected unique constraint violation")
	} else if _, ok := err.(*UniqueConstraintError); !ok {
		t.Fatalf("expected *UniqueConstraintError, got %T: %v", err, err)
	}
}

func TestUniqueIndexAllowsReclaimAfterDelete(t *testing.T) {
	s := openTestStore(t)
	users, err := OpenCollection(s, "users", userID)
	if err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}
	if err := users.DefineUniqueIndex("by_email", "email", func(u testUser) (string, bool) {
		return u.Email, u.Email != ""
	}); err != nil {
		t.Fatalf("DefineUniqueIndex: %v", err)
	}

	if _, err := users.Put(testUser{ID: "u1", Email: "shared@example.com"}); err != nil {
		t.Fatalf("Put u1: %v", err)
	}
	if _, err := users.Delete("u1"); err != nil {
		t.Fatalf("Delete u1: %v", err)
	}
	if _, err := users.Put(testUser{ID: "u2", Email: "shared@example.com"}); err != nil {
		t.Fatalf("Put u2 should reclaim the freed key: %v", err)
	}

	holder, ok, err := users.ByIndex("by_email", "shared@example.com", nil)
	if err != nil || !ok {
		t.Fatalf("ByIndex: %v, %v", ok, err)
	}
	if holder.ID != "u2" {
		t.Fatalf("expected u2 to hold the key, got %+v", holder)
	}
}

func TestMultiIndexScan(t *testing.T) {
	s := openTestStore(t)
	users, err := OpenCollection(s, "users", userID)
	if err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}
	if err := users.DefineMultiIndex("by_tag", "tag", func(u testUser) []string {
		if u.Tag == "" {
			return nil
		}
		return []string{u.Tag}
	}); err != nil {
		t.Fatalf("DefineMultiIndex: %v", err)
	}

	if _, err := users.Put(testUser{ID: "u1", Tag: "admin"}); err != nil {
		t.Fatalf("Put u1: %v", err)
	}
	if _, err := users.Put(testUser{ID: "u2", Tag: "admin"}); err != nil {
		t.Fatalf("Put u2: %v", err)
	}
	if _, err := users.Put(testUser{ID: "u3", Tag: "guest"}); err != nil {
		t.Fatalf("Put u3: %v", err)
	}

	admins, err := users.ScanIndex("by_tag", "admin", 0, nil)
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if len(admins) != 2 {
		t.Fatalf("expected 2 admins, got %d: %+v", len(admins), admins)
	}

	byPrefix, err := users.ScanIndex("by_tag", "adm", 0, nil)
	if err != nil {
		t.Fatalf("ScanIndex prefix: %v", err)
	}
	if len(byPrefix) != 2 {
		t.Fatalf("expected prefix scan to match tag %q, got %d: %+v", "admin", len(byPrefix), byPrefix)
	}

	limited, err := users.ScanIndex("by_tag", "", 1, nil)
	if err != nil {
		t.Fatalf("ScanIndex limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit=1 to cap results, got %d: %+v", len(limited), limited)
	}

	all, err := users.ScanIndex("by_tag", "", 0, nil)
	if err != nil {
		t.Fatalf("ScanIndex default limit: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected all 3 users across both tags, got %d: %+v", len(all), all)
	}
}

func TestFTSAndVectorIndexes(t *testing.T) {
	s := openTestStore(t)
	type article struct {
		ID     string    `json:"id"`
		Body   string    `json:"body"`
		Vector []float64 `json:"vector"`
	}
	articles, err := OpenCollection(s, "articles", func(a article) string { return a.ID })
	if err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}
	if err := articles.DefineFTSIndex("body", "body", func(a article) string { return a.Body }); err != nil {
		t.Fatalf("DefineFTSIndex: %v", err)
	}
	if err := articles.DefineVectorIndex("embedding", "vector", 2, func(a article) []float64 { return a.Vector }); err != nil {
		t.Fatalf("DefineVectorIndex: %v", err)
	}

	if _, err := articles.Put(article{ID: "a1", Body: "the quick brown fox", Vector: []float64{1, 0}}); err != nil {
		t.Fatalf("Put a1: %v", err)
	}
	if _, err := articles.Put(article{ID: "a2", Body: "a lazy dog sleeps", Vector: []float64{0, 1}}); err != nil {
		t.Fatalf("Put a2: %v", err)
	}

	hits, err := articles.SearchFTS("body", "fox", 10, nil)
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != "a1" {
		t.Fatalf("unexpected FTS hits: %+v", hits)
	}

	neighbors, err := articles.SearchVector("embedding", []float64{1, 0}, 1, nil)
	if err != nil {
		t.Fatalf("SearchVector: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].DocID != "a1" {
		t.Fatalf("unexpected vector neighbors: %+v", neighbors)
	}
}

func TestOpenCollectionRejectsTypeMismatch(t *testing.T) {
	s := openTestStore(t)
	if _, err := OpenCollection(s, "users", userID); err != nil {
		t.Fatalf("OpenCollection: %v", err)
	}

	type other struct{ ID string }
	if _, err := OpenCollection(s, "users", func(o other) string { return o.ID }); err == nil {
		t.Fatal("expected error reopening a collection under a different type")
	}
}
