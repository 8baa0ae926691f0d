package fountainstore

// index.go implements the versioned unique and multi secondary index
// structures shared by every Collection[T]. Each key holds an ordered
// sequence of versions, letting lookups resolve "the holder of key as of
// sequence s" without discarding older versions compaction might still
// need to answer a live snapshot.

import (
	"sort"
	"strings"
	"sync"
)

// uniqueVersion is one point in a unique index key's history. An empty
// id is a tombstone: nothing holds the key as of this version.
type uniqueVersion struct {
	seq uint64
	id  string
}

type uniqueIndex struct {
	mu   sync.RWMutex
	keys map[string][]uniqueVersion
}

func newUniqueIndex() *uniqueIndex {
	return &uniqueIndex{keys: make(map[string][]uniqueVersion)}
}

// record appends a new version of key, asserting id as its holder (or
// tombstoning it, if id is empty).
func (idx *uniqueIndex) record(key, id string, seq uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.keys[key] = append(idx.keys[key], uniqueVersion{seq: seq, id: id})
}

// holder returns the id holding key as of snapshot, if any.
func (idx *uniqueIndex) holder(key string, snapshot uint64) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var latest *uniqueVersion
	for i, v := range idx.keys[key] {
		if v.seq > snapshot {
			continue
		}
		if latest == nil || v.seq > latest.seq {
			latest = &idx.keys[key][i]
		}
	}
	if latest == nil || latest.id == "" {
		return "", false
	}
	return latest.id, true
}

// multiVersion is one point in a multi index key's history: the full set
// of ids holding the key as of this version (copy-on-write per update).
type multiVersion struct {
	seq uint64
	ids map[string]bool
}

type multiIndex struct {
	mu   sync.RWMutex
	keys map[string][]multiVersion

	// sortedKeys holds every key ever seen, in sorted order, so
	// prefixKeys can range over it instead of scanning the whole map.
	sortedKeys []string
}

func newMultiIndex() *multiIndex {
	return &multiIndex{keys: make(map[string][]multiVersion)}
}

// noteKey inserts key into sortedKeys the first time it's seen. Callers
// must hold idx.mu for writing.
func (idx *multiIndex) noteKey(key string) {
	if _, seen := idx.keys[key]; seen {
		return
	}
	i := sort.SearchStrings(idx.sortedKeys, key)
	idx.sortedKeys = append(idx.sortedKeys, "")
	copy(idx.sortedKeys[i+1:], idx.sortedKeys[i:])
	idx.sortedKeys[i] = key
}

// prefixKeys returns every known key starting with prefix, in sorted
// order.
func (idx *multiIndex) prefixKeys(prefix string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	start := sort.SearchStrings(idx.sortedKeys, prefix)
	var out []string
	for _, key := range idx.sortedKeys[start:] {
		if !strings.HasPrefix(key, prefix) {
			break
		}
		out = append(out, key)
	}
	return out
}

// head returns the set of ids holding key as of snapshot.
func (idx *multiIndex) head(key string, snapshot uint64) map[string]bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var latest *multiVersion
	for i, v := range idx.keys[key] {
		if v.seq > snapshot {
			continue
		}
		if latest == nil || v.seq > latest.seq {
			latest = &idx.keys[key][i]
		}
	}
	if latest == nil {
		return nil
	}
	return latest.ids
}

// add asserts id as a holder of key as of seq, copying the prior id set
// forward.
func (idx *multiIndex) add(key, id string, seq uint64) {
	cur := idx.head(key, ^uint64(0))
	next := make(map[string]bool, len(cur)+1)
	for k := range cur {
		next[k] = true
	}
	next[id] = true

	idx.mu.Lock()
	idx.noteKey(key)
	idx.keys[key] = append(idx.keys[key], multiVersion{seq: seq, ids: next})
	idx.mu.Unlock()
}

// remove retracts id as a holder of key as of seq.
func (idx *multiIndex) remove(key, id string, seq uint64) {
	cur := idx.head(key, ^uint64(0))
	if cur == nil {
		return
	}
	next := make(map[string]bool, len(cur))
	for k := range cur {
		if k != id {
			next[k] = true
		}
	}

	idx.mu.Lock()
	idx.noteKey(key)
	idx.keys[key] = append(idx.keys[key], multiVersion{seq: seq, ids: next})
	idx.mu.Unlock()
}
