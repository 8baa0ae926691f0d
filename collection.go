package fountainstore

// collection.go implements Collection[T], a namespace of typed documents
// keyed by id, with optional unique/multi/full-text/vector secondary
// indexes maintained synchronously alongside the underlying store.

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Fountain-Coach/Fountain-Store/internal/codec"
	"github.com/Fountain-Coach/Fountain-Store/internal/fts"
	"github.com/Fountain-Coach/Fountain-Store/internal/logging"
	"github.com/Fountain-Coach/Fountain-Store/internal/manifest"
	"github.com/Fountain-Coach/Fountain-Store/internal/vectoridx"
)

// docRecord is one historical value for a document id: nil Value is a
// tombstone.
type docRecord struct {
	seq   uint64
	value []byte
}

// HistoryEntry is one version of a document as returned by Collection.History.
type HistoryEntry[T any] struct {
	Seq     uint64
	Value   T
	Deleted bool
}

// batchItem is the type-erased view of a batch op a collection validates
// and applies, shared between Store and Collection.
type batchItem struct {
	ID    string
	Value []byte // nil => delete
}

// collectionHandle lets Store route batch validation and application to
// whichever concrete Collection[T] is registered under a name, without
// Store itself needing a type parameter.
type collectionHandle interface {
	collectionName() string
	validatePuts(items []batchItem) error
	apply(id string, seq uint64, value []byte)
	consumeBootstrap(entries []bootstrapEntry)
}

// Collection is a namespace of documents of type T, identified by a
// caller-supplied id function. All mutation is routed through the owning
// Store's single-writer commit path; Collection itself only maintains
// derived in-memory state (history and secondary indexes).
type Collection[T any] struct {
	mu          sync.RWMutex
	collName    string
	store       *Store
	idFunc      func(T) string
	compression codec.Type

	history map[string][]docRecord

	uniqueNames   []string
	uniqueIdx     map[string]*uniqueIndex
	uniqueProj    map[string]func(T) (string, bool)
	uniqueHeadKey map[string]map[string]string

	multiNames    []string
	multiIdx      map[string]*multiIndex
	multiProj     map[string]func(T) []string
	multiHeadKeys map[string]map[string][]string

	ftsIdx  map[string]*fts.Index
	ftsProj map[string]func(T) string

	vecIdx  map[string]*vectoridx.Index
	vecProj map[string]func(T) []float64
}

// OpenCollection returns the cached handle for name, creating it (and
// draining any bootstrap entries discovered at Open) on first use. A
// collection already opened under a different Go type is an error.
func OpenCollection[T any](s *Store, name string, idFunc func(T) string) (*Collection[T], error) {
	s.collMu.Lock()
	if h, ok := s.collections[name]; ok {
		c, ok := h.(*Collection[T])
		s.collMu.Unlock()
		if !ok {
			return nil, fmt.Errorf("fountainstore: collection %q already opened with a different type", name)
		}
		return c, nil
	}

	c := &Collection[T]{
		collName:      name,
		store:         s,
		idFunc:        idFunc,
		compression:   codec.NoCompression,
		history:       make(map[string][]docRecord),
		uniqueIdx:     make(map[string]*uniqueIndex),
		uniqueProj:    make(map[string]func(T) (string, bool)),
		uniqueHeadKey: make(map[string]map[string]string),
		multiIdx:      make(map[string]*multiIndex),
		multiProj:     make(map[string]func(T) []string),
		multiHeadKeys: make(map[string]map[string][]string),
		ftsIdx:        make(map[string]*fts.Index),
		ftsProj:       make(map[string]func(T) string),
		vecIdx:        make(map[string]*vectoridx.Index),
		vecProj:       make(map[string]func(T) []float64),
	}
	entries := s.bootstrap[name]
	delete(s.bootstrap, name)
	s.collections[name] = c
	s.collMu.Unlock()

	c.consumeBootstrap(entries)
	return c, nil
}

// SetCompression sets the document-value compression algorithm used by
// future Put calls. It does not rewrite already-stored values; Get
// transparently decodes whichever algorithm a given version was written
// with only if the caller keeps using the same Type — mixed-Type history
// within a collection is not supported.
func (c *Collection[T]) SetCompression(t codec.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compression = t
}

func (c *Collection[T]) collectionName() string { return c.collName }

func (c *Collection[T]) encode(v T) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return codec.Encode(c.compression, raw)
}

func (c *Collection[T]) decode(data []byte) (T, error) {
	var v T
	raw, err := codec.Decode(c.compression, data)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Put stores value, replacing any prior version for its id. It returns
// the sequence number assigned to this write.
func (c *Collection[T]) Put(value T) (uint64, error) {
	id := c.idFunc(value)
	encoded, err := c.encode(value)
	if err != nil {
		return 0, err
	}
	seqs, err := c.store.commit([]Op{{Kind: OpPut, Collection: c.collName, ID: id, Value: encoded}}, nil)
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// Delete tombstones id. It returns the sequence number assigned to the
// tombstone.
func (c *Collection[T]) Delete(id string) (uint64, error) {
	seqs, err := c.store.commit([]Op{{Kind: OpDelete, Collection: c.collName, ID: id}}, nil)
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// Get returns the value of id as of snap (or the latest value, if snap is
// nil).
func (c *Collection[T]) Get(id string, snap *Snapshot) (T, bool, error) {
	var zero T
	bound := ^uint64(0)
	if snap != nil {
		bound = snap.sequence
	}

	c.mu.RLock()
	versions := c.history[id]
	c.mu.RUnlock()

	latest, ok := latestRecord(versions, bound)
	if !ok || latest.value == nil {
		return zero, false, nil
	}
	v, err := c.decode(latest.value)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// History returns every version of id with seq <= snap's bound, oldest
// first.
func (c *Collection[T]) History(id string, snap *Snapshot) ([]HistoryEntry[T], error) {
	bound := ^uint64(0)
	if snap != nil {
		bound = snap.sequence
	}

	c.mu.RLock()
	versions := append([]docRecord(nil), c.history[id]...)
	c.mu.RUnlock()

	sort.Slice(versions, func(i, j int) bool { return versions[i].seq < versions[j].seq })

	out := make([]HistoryEntry[T], 0, len(versions))
	for _, rec := range versions {
		if rec.seq > bound {
			continue
		}
		if rec.value == nil {
			out = append(out, HistoryEntry[T]{Seq: rec.seq, Deleted: true})
			continue
		}
		v, err := c.decode(rec.value)
		if err != nil {
			return nil, err
		}
		out = append(out, HistoryEntry[T]{Seq: rec.seq, Value: v})
	}
	return out, nil
}

// Scan returns every live document whose id has the given prefix, in id
// order, as of snap (or the latest state, if snap is nil). limit <= 0
// falls back to the store's configured Options.DefaultScanLimit.
func (c *Collection[T]) Scan(prefix string, limit int, snap *Snapshot) ([]T, error) {
	if limit <= 0 {
		limit = c.store.opts.DefaultScanLimit
	}
	c.mu.RLock()
	ids := make([]string, 0, len(c.history))
	for id := range c.history {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	sort.Strings(ids)

	var out []T
	for _, id := range ids {
		v, ok, err := c.Get(id, snap)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, v)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func latestRecord(versions []docRecord, bound uint64) (docRecord, bool) {
	var latest *docRecord
	for i := range versions {
		v := &versions[i]
		if v.seq > bound {
			continue
		}
		if latest == nil || v.seq > latest.seq {
			latest = v
		}
	}
	if latest == nil {
		return docRecord{}, false
	}
	return *latest, true
}

func (c *Collection[T]) headSeqLocked(id string) uint64 {
	var maxSeq uint64
	for _, v := range c.history[id] {
		if v.seq > maxSeq {
			maxSeq = v.seq
		}
	}
	return maxSeq
}

// validatePuts checks a prospective batch's puts against every unique
// index defined on this collection, honoring deletes present in the same
// batch (a put may reclaim a key a same-batch delete just vacated).
func (c *Collection[T]) validatePuts(items []batchItem) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, name := range c.uniqueNames {
		proj := c.uniqueProj[name]
		idx := c.uniqueIdx[name]

		overlay := make(map[string]string, len(items))
		deleted := make(map[string]bool, len(items))
		for _, it := range items {
			if it.Value == nil {
				deleted[it.ID] = true
				continue
			}
			v, err := c.decode(it.Value)
			if err != nil {
				return err
			}
			if key, ok := proj(v); ok {
				overlay[it.ID] = key
			}
		}

		seen := make(map[string]string, len(overlay))
		for id, key := range overlay {
			if other, ok := seen[key]; ok && other != id {
				return &UniqueConstraintError{Index: name, Key: key}
			}
			seen[key] = id
			if holder, ok := idx.holder(key, ^uint64(0)); ok && holder != id && !deleted[holder] {
				return &UniqueConstraintError{Index: name, Key: key}
			}
		}
	}
	return nil
}

func (c *Collection[T]) apply(id string, seq uint64, value []byte) {
	c.mu.Lock()
	c.history[id] = append(c.history[id], docRecord{seq: seq, value: value})
	c.mu.Unlock()

	if value == nil {
		c.removeFromIndexes(id, seq)
		return
	}
	v, err := c.decode(value)
	if err != nil {
		c.store.logger.Warnf("%scollection %q: dropping undecodable value for id %q at seq %d: %v",
			logging.NSCollection, c.collName, id, seq, err)
		return
	}
	c.updateIndexes(id, seq, v)
}

func (c *Collection[T]) updateIndexes(id string, seq uint64, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range c.uniqueNames {
		if key, ok := c.uniqueProj[name](v); ok {
			c.uniqueIdx[name].record(key, id, seq)
			c.uniqueHeadKey[name][id] = key
		}
	}
	for _, name := range c.multiNames {
		keys := c.multiProj[name](v)
		old := c.multiHeadKeys[name][id]
		oldSet := toSet(old)
		newSet := toSet(keys)
		for k := range oldSet {
			if !newSet[k] {
				c.multiIdx[name].remove(k, id, seq)
			}
		}
		for k := range newSet {
			if !oldSet[k] {
				c.multiIdx[name].add(k, id, seq)
			}
		}
		c.multiHeadKeys[name][id] = keys
	}
	for name, proj := range c.ftsProj {
		c.ftsIdx[name].Put(id, proj(v), seq)
	}
	for name, proj := range c.vecProj {
		c.vecIdx[name].Put(id, proj(v), seq)
	}
}

func (c *Collection[T]) removeFromIndexes(id string, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range c.uniqueNames {
		if key, ok := c.uniqueHeadKey[name][id]; ok {
			c.uniqueIdx[name].record(key, "", seq)
			delete(c.uniqueHeadKey[name], id)
		}
	}
	for _, name := range c.multiNames {
		for _, key := range c.multiHeadKeys[name][id] {
			c.multiIdx[name].remove(key, id, seq)
		}
		delete(c.multiHeadKeys[name], id)
	}
	for name := range c.ftsIdx {
		c.ftsIdx[name].Delete(id, seq)
	}
	for name := range c.vecIdx {
		c.vecIdx[name].Delete(id, seq)
	}
}

func toSet(keys []string) map[string]bool {
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

// consumeBootstrap applies entries discovered before this collection was
// opened (from SSTables and replayed WAL records), oldest seq first
// within each id.
func (c *Collection[T]) consumeBootstrap(entries []bootstrapEntry) {
	sorted := append([]bootstrapEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ID != sorted[j].ID {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Seq < sorted[j].Seq
	})
	for _, e := range sorted {
		c.apply(e.ID, e.Seq, e.Value)
	}
}

// hasIndexNamed reports whether any secondary index named name is
// already defined on c, regardless of kind.
func (c *Collection[T]) hasIndexNamed(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.uniqueIdx[name]; ok {
		return true
	}
	if _, ok := c.multiIdx[name]; ok {
		return true
	}
	if _, ok := c.ftsIdx[name]; ok {
		return true
	}
	if _, ok := c.vecIdx[name]; ok {
		return true
	}
	return false
}

// DefineUniqueIndex registers a unique secondary index and backfills it
// from the collection's current state. project returning ok=false skips
// a document (e.g. the field is absent).
func (c *Collection[T]) DefineUniqueIndex(name, field string, project func(T) (string, bool)) error {
	c.mu.Lock()
	if _, exists := c.uniqueIdx[name]; exists {
		c.mu.Unlock()
		return fmt.Errorf("fountainstore: unique index %q already defined on %q", name, c.collName)
	}
	c.uniqueIdx[name] = newUniqueIndex()
	c.uniqueProj[name] = project
	c.uniqueHeadKey[name] = make(map[string]string)
	c.uniqueNames = append(c.uniqueNames, name)
	ids := make([]string, 0, len(c.history))
	for id := range c.history {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		v, ok, err := c.Get(id, nil)
		if err != nil || !ok {
			continue
		}
		key, ok := project(v)
		if !ok {
			continue
		}
		c.mu.Lock()
		seq := c.headSeqLocked(id)
		c.uniqueIdx[name].record(key, id, seq)
		c.uniqueHeadKey[name][id] = key
		c.mu.Unlock()
	}

	return c.store.registerIndexDef(c.collName, manifest.IndexDef{Name: name, Kind: "unique", Field: field})
}

// DefineMultiIndex registers a multi-valued secondary index and
// backfills it from the collection's current state.
func (c *Collection[T]) DefineMultiIndex(name, field string, project func(T) []string) error {
	c.mu.Lock()
	if _, exists := c.multiIdx[name]; exists {
		c.mu.Unlock()
		return fmt.Errorf("fountainstore: multi index %q already defined on %q", name, c.collName)
	}
	c.multiIdx[name] = newMultiIndex()
	c.multiProj[name] = project
	c.multiHeadKeys[name] = make(map[string][]string)
	c.multiNames = append(c.multiNames, name)
	ids := make([]string, 0, len(c.history))
	for id := range c.history {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		v, ok, err := c.Get(id, nil)
		if err != nil || !ok {
			continue
		}
		keys := project(v)
		c.mu.Lock()
		seq := c.headSeqLocked(id)
		for _, key := range keys {
			c.multiIdx[name].add(key, id, seq)
		}
		c.multiHeadKeys[name][id] = keys
		c.mu.Unlock()
	}

	return c.store.registerIndexDef(c.collName, manifest.IndexDef{Name: name, Kind: "multi", Field: field})
}

// DefineFTSIndex registers a full-text index over the string project
// extracts from each document, and backfills it.
func (c *Collection[T]) DefineFTSIndex(name, field string, project func(T) string) error {
	c.mu.Lock()
	if _, exists := c.ftsIdx[name]; exists {
		c.mu.Unlock()
		return fmt.Errorf("fountainstore: fts index %q already defined on %q", name, c.collName)
	}
	c.ftsIdx[name] = fts.New()
	c.ftsProj[name] = project
	ids := make([]string, 0, len(c.history))
	for id := range c.history {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		v, ok, err := c.Get(id, nil)
		if err != nil || !ok {
			continue
		}
		c.mu.Lock()
		seq := c.headSeqLocked(id)
		c.mu.Unlock()
		c.ftsIdx[name].Put(id, project(v), seq)
	}

	return c.store.registerIndexDef(c.collName, manifest.IndexDef{Name: name, Kind: "fts", Field: field})
}

// DefineVectorIndex registers a nearest-neighbor index over fixed-
// dimension vectors, and backfills it.
func (c *Collection[T]) DefineVectorIndex(name, field string, dim int, project func(T) []float64) error {
	c.mu.Lock()
	if _, exists := c.vecIdx[name]; exists {
		c.mu.Unlock()
		return fmt.Errorf("fountainstore: vector index %q already defined on %q", name, c.collName)
	}
	c.vecIdx[name] = vectoridx.New(dim)
	c.vecProj[name] = project
	ids := make([]string, 0, len(c.history))
	for id := range c.history {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		v, ok, err := c.Get(id, nil)
		if err != nil || !ok {
			continue
		}
		c.mu.Lock()
		seq := c.headSeqLocked(id)
		c.mu.Unlock()
		c.vecIdx[name].Put(id, project(v), seq)
	}

	return c.store.registerIndexDef(c.collName, manifest.IndexDef{Name: name, Kind: "vector", Field: field, Dim: dim})
}

// ByIndex returns the single document currently holding key in the named
// unique index, as of snap.
func (c *Collection[T]) ByIndex(name, key string, snap *Snapshot) (T, bool, error) {
	var zero T
	bound := ^uint64(0)
	if snap != nil {
		bound = snap.sequence
	}
	c.mu.RLock()
	idx, ok := c.uniqueIdx[name]
	c.mu.RUnlock()
	if !ok {
		return zero, false, fmt.Errorf("fountainstore: unknown unique index %q on %q", name, c.collName)
	}
	id, ok := idx.holder(key, bound)
	if !ok {
		return zero, false, nil
	}
	return c.Get(id, snap)
}

// ScanIndex enumerates documents held by every key of the named multi
// index starting with prefix, as of snap, in (key, id) order. Within each
// matching key, document ids are sorted. limit <= 0 falls back to the
// store's configured Options.DefaultScanLimit.
func (c *Collection[T]) ScanIndex(name, prefix string, limit int, snap *Snapshot) ([]T, error) {
	if limit <= 0 {
		limit = c.store.opts.DefaultScanLimit
	}
	bound := ^uint64(0)
	if snap != nil {
		bound = snap.sequence
	}
	c.mu.RLock()
	idx, ok := c.multiIdx[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("fountainstore: unknown multi index %q on %q", name, c.collName)
	}

	var out []T
	for _, key := range idx.prefixKeys(prefix) {
		ids := idx.head(key, bound)
		sorted := make([]string, 0, len(ids))
		for id := range ids {
			sorted = append(sorted, id)
		}
		sort.Strings(sorted)

		for _, id := range sorted {
			v, ok, err := c.Get(id, snap)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			out = append(out, v)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// SearchFTS ranks documents by term-frequency match against the named
// full-text index, as of snap.
func (c *Collection[T]) SearchFTS(name, query string, limit int, snap *Snapshot) ([]fts.Hit, error) {
	bound := ^uint64(0)
	if snap != nil {
		bound = snap.sequence
	}
	c.mu.RLock()
	idx, ok := c.ftsIdx[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("fountainstore: unknown fts index %q on %q", name, c.collName)
	}
	return idx.Search(query, limit, bound), nil
}

// SearchVector returns the k nearest documents to query by cosine
// distance over the named vector index, as of snap.
func (c *Collection[T]) SearchVector(name string, query []float64, k int, snap *Snapshot) ([]vectoridx.Neighbor, error) {
	bound := ^uint64(0)
	if snap != nil {
		bound = snap.sequence
	}
	c.mu.RLock()
	idx, ok := c.vecIdx[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("fountainstore: unknown vector index %q on %q", name, c.collName)
	}
	return idx.Search(query, k, bound), nil
}
