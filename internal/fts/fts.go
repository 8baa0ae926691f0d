// Package fts implements the minimal full-text index contract a
// collection's "fts" secondary index exercises: an inverted index over
// whitespace/punctuation-tokenized text with term-frequency scoring,
// versioned the same way unique/multi indexes are.
package fts

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Hit is one scored search result.
type Hit struct {
	DocID string
	Score float64
}

// postingsEntry is a versioned occurrence of a document for a term.
type postingsEntry struct {
	docID string
	seq   uint64
	freq  int
	live  bool
}

// Index is an inverted index mapping terms to the documents that
// contain them, with per-document token counts for TF scoring. It
// tracks (seq, live) per posting so queries can be bound to a snapshot.
type Index struct {
	mu       sync.RWMutex
	postings map[string][]postingsEntry
	docLen   map[string]int
}

// New returns an empty full-text index.
func New() *Index {
	return &Index{
		postings: make(map[string][]postingsEntry),
		docLen:   make(map[string]int),
	}
}

// Tokenize splits text into lowercase terms on anything that is not a
// letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Put indexes text under docID at sequence seq, replacing any prior
// version. Passing an empty text removes the document's postings at
// this sequence (i.e. acts like a delete, per versioned-index semantics).
func (idx *Index) Put(docID string, text string, seq uint64) {
	terms := Tokenize(text)
	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docLen[docID] = len(terms)
	for term, entries := range idx.postings {
		if _, kept := counts[term]; !kept {
			idx.postings[term] = append(entries, postingsEntry{docID: docID, seq: seq, live: false})
		}
	}
	for term, freq := range counts {
		idx.postings[term] = append(idx.postings[term], postingsEntry{docID: docID, seq: seq, freq: freq, live: true})
	}
}

// Delete removes docID from the index at sequence seq.
func (idx *Index) Delete(docID string, seq uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for term, entries := range idx.postings {
		idx.postings[term] = append(entries, postingsEntry{docID: docID, seq: seq, live: false})
	}
}

// Search scores documents containing any term in query by summed term
// frequency as of snapshot (entries with seq > snapshot are ignored; a
// snapshot of math.MaxUint64 sees everything), returning the top limit
// hits ordered by descending score then docID.
func (idx *Index) Search(query string, limit int, snapshot uint64) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	scores := make(map[string]float64)
	for _, term := range Tokenize(query) {
		entries, ok := idx.postings[term]
		if !ok {
			continue
		}
		latest := latestPerDoc(entries, snapshot)
		for docID, e := range latest {
			if !e.live {
				continue
			}
			scores[docID] += float64(e.freq)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for docID, score := range scores {
		hits = append(hits, Hit{DocID: docID, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func latestPerDoc(entries []postingsEntry, snapshot uint64) map[string]postingsEntry {
	latest := make(map[string]postingsEntry)
	for _, e := range entries {
		if e.seq > snapshot {
			continue
		}
		if cur, ok := latest[e.docID]; !ok || e.seq > cur.seq {
			latest[e.docID] = e
		}
	}
	return latest
}
