package fountainstore

// store.go implements Store, the single-writer orchestrator tying
// together the write-ahead log, memtable, manifest, SSTables, block
// cache, and background compactor.

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Fountain-Coach/Fountain-Store/internal/cache"
	"github.com/Fountain-Coach/Fountain-Store/internal/compaction"
	"github.com/Fountain-Coach/Fountain-Store/internal/logging"
	"github.com/Fountain-Coach/Fountain-Store/internal/manifest"
	"github.com/Fountain-Coach/Fountain-Store/internal/memtable"
	"github.com/Fountain-Coach/Fountain-Store/internal/sstable"
	"github.com/Fountain-Coach/Fountain-Store/internal/testutil"
	"github.com/Fountain-Coach/Fountain-Store/internal/wal"
)

// backpressureThresholdBytes is the compaction debt above which writers
// are cooperatively slowed down.
const backpressureThresholdBytes = 512 * 1024

// bootstrapEntry is a (id, seq, value?) tuple discovered before its
// collection was opened, either from an SSTable scan or WAL replay.
// A nil Value is a tombstone.
type bootstrapEntry struct {
	ID    string
	Seq   uint64
	Value []byte
}

// Store is the single-writer embedded storage engine. All mutating
// operations serialize through commit; reads proceed concurrently
// against each Collection's own in-memory state.
type Store struct {
	writeMu sync.Mutex

	dir      string
	opts     *Options
	logger   logging.Logger
	lockFile *os.File

	wal        *wal.WAL
	manifestSt *manifest.Store
	mt         *memtable.Memtable
	blockCache cache.Cache
	compactor  *compaction.Compactor

	sequence atomic.Uint64

	collMu      sync.RWMutex
	collections map[string]collectionHandle
	bootstrap   map[string][]bootstrapEntry

	metrics metricsCounters
	closed  atomic.Bool
}

// Open opens or creates a store rooted at opts.Path, replaying any
// unflushed WAL records left by a prior process.
func Open(opts *Options) (*Store, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, err
	}

	lockFile, err := acquireLock(opts.Path)
	if err != nil {
		return nil, err
	}

	manifestSt, err := manifest.Open(opts.Path, opts.Logger)
	if err != nil {
		releaseLock(lockFile)
		return nil, err
	}

	w, err := wal.Open(opts.Path, "wal", opts.WALSegmentBytes, opts.Logger)
	if err != nil {
		releaseLock(lockFile)
		return nil, err
	}

	blockCache := cache.NewShardedLRUCache(uint64(opts.CacheBytes), 16)

	s := &Store{
		dir:         opts.Path,
		opts:        opts,
		logger:      opts.Logger,
		lockFile:    lockFile,
		wal:         w,
		manifestSt:  manifestSt,
		mt:          memtable.New(opts.MemtableLimit),
		blockCache:  blockCache,
		collections: make(map[string]collectionHandle),
		bootstrap:   make(map[string][]bootstrapEntry),
	}
	s.compactor = compaction.New(opts.Path, manifestSt, statFileSize, opts.Logger)

	state := manifestSt.State()
	s.sequence.Store(state.Sequence)

	if err := s.loadSSTables(state); err != nil {
		w.Close()
		releaseLock(lockFile)
		return nil, err
	}
	if err := s.replayWAL(state.Sequence); err != nil {
		w.Close()
		releaseLock(lockFile)
		return nil, err
	}

	return s, nil
}

// Close releases the store's file handles. It does not flush the
// memtable; callers that want a clean shutdown should rely on WAL replay
// on the next Open.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.blockCache.Close()
	werr := s.wal.Close()
	lerr := releaseLock(s.lockFile)
	if werr != nil {
		return werr
	}
	return lerr
}

func statFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *Store) loadSSTables(state *manifest.State) error {
	for id, path := range state.Tables {
		r, err := sstable.Open(path, id, s.blockCache)
		if err != nil {
			return err
		}
		scanErr := r.Scan(func(k, v []byte) bool {
			base, seq, ok := splitSSTableKey(k)
			if !ok {
				base, seq = string(k), state.Sequence
			}
			collection, docID, err := parseBaseKey(base)
			if err != nil {
				return true
			}
			var value []byte
			if len(v) > 0 {
				value = append([]byte(nil), v...)
			}
			s.dispatch(collection, docID, seq, value)
			return true
		})
		r.Close()
		if scanErr != nil {
			return scanErr
		}
	}
	return nil
}

// dispatch routes a discovered (collection, id, seq, value) tuple to a
// live collection handle, or buffers it for whichever collection opens
// under that name later.
func (s *Store) dispatch(collection, id string, seq uint64, value []byte) {
	s.collMu.RLock()
	h, ok := s.collections[collection]
	s.collMu.RUnlock()
	if ok {
		h.apply(id, seq, value)
		return
	}

	s.collMu.Lock()
	s.bootstrap[collection] = append(s.bootstrap[collection], bootstrapEntry{ID: id, Seq: seq, Value: value})
	s.collMu.Unlock()
}

type pendingWALOp struct {
	seq     uint64
	payload wal.Payload
}

func (s *Store) replayWAL(manifestSeq uint64) error {
	records, err := wal.Replay(s.dir, "wal")
	if err != nil {
		return err
	}

	activeTx := make(map[string]bool)
	pending := make(map[string][]pendingWALOp)

	for _, rec := range records {
		p, err := wal.Decode(rec.Payload)
		if err != nil {
			continue
		}
		switch p.Kind {
		case wal.KindBegin:
			activeTx[p.TxID] = true
			pending[p.TxID] = nil
		case wal.KindOp:
			if rec.Seq <= manifestSeq {
				continue
			}
			if activeTx[p.TxID] {
				pending[p.TxID] = append(pending[p.TxID], pendingWALOp{seq: rec.Seq, payload: p})
			} else {
				s.applyReplayedPayload(rec.Seq, p)
			}
		case wal.KindCommit:
			ops := pending[p.TxID]
			delete(pending, p.TxID)
			delete(activeTx, p.TxID)
			for _, op := range ops {
				s.applyReplayedPayload(op.seq, op.payload)
			}
		case wal.KindLegacy:
			if rec.Seq > manifestSeq {
				s.applyReplayedPayload(rec.Seq, p)
			}
		}
		if rec.Seq > s.sequence.Load() {
			s.sequence.Store(rec.Seq)
		}
	}
	return nil
}

func (s *Store) applyReplayedPayload(seq uint64, p wal.Payload) {
	collection, id, err := parseBaseKey(p.Key)
	if err != nil {
		return
	}
	var value []byte
	if p.HasValue && !p.IsDelete {
		value = p.Value
	}
	s.mt.Put(p.Key, value, seq)
	s.dispatch(collection, id, seq, value)
}

// allocateSequences returns the first of n contiguous sequence numbers
// and advances the counter by n. Callers must hold writeMu.
func (s *Store) allocateSequences(n int) uint64 {
	first := s.sequence.Load() + 1
	s.sequence.Add(uint64(n))
	return first
}

func (s *Store) backpressure() {
	debt := s.compactor.Status().DebtBytes
	if debt <= backpressureThresholdBytes {
		return
	}
	delay := time.Duration(debt/1024) * time.Microsecond
	if delay > 5*time.Millisecond {
		delay = 5 * time.Millisecond
	}
	time.Sleep(delay)
}

// Batch commits ops atomically across any mix of collections, failing
// synchronously with no durable effect if guard is set and not met, or
// if a unique constraint would be violated.
func (s *Store) Batch(ops []Op, requireSequenceAtLeast *uint64) ([]uint64, error) {
	return s.commit(ops, requireSequenceAtLeast)
}

// commit is the shared path behind Collection.Put/Delete and Store.Batch.
// A single op commits via a legacy WAL frame; multiple ops commit via a
// begin/op.../commit transactional frame sequence.
func (s *Store) commit(ops []Op, guard *uint64) ([]uint64, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return nil, fmt.Errorf("fountainstore: store is closed")
	}

	s.backpressure()

	current := s.sequence.Load()
	if guard != nil && current < *guard {
		return nil, &SequenceTooLowError{Required: *guard, Current: current}
	}

	if err := s.validateBatch(ops); err != nil {
		return nil, err
	}

	first := s.allocateSequences(len(ops))
	seqs := make([]uint64, len(ops))
	for i := range ops {
		seqs[i] = first + uint64(i)
	}

	if err := s.writeWALFrames(ops, seqs); err != nil {
		return nil, err
	}

	for i, op := range ops {
		base := baseKey(op.Collection, op.ID)
		var value []byte
		if op.Kind == OpPut {
			value = op.Value
		}
		s.mt.Put(base, value, seqs[i])
		s.dispatch(op.Collection, op.ID, seqs[i], value)
	}

	s.metrics.batches.Add(1)
	for _, op := range ops {
		if op.Kind == OpPut {
			s.metrics.puts.Add(1)
		} else {
			s.metrics.deletes.Add(1)
		}
	}

	if s.mt.IsOverLimit() {
		if err := s.flushLocked(); err != nil {
			return seqs, err
		}
	}

	return seqs, nil
}

func (s *Store) validateBatch(ops []Op) error {
	byCollection := make(map[string][]batchItem)
	for _, op := range ops {
		var value []byte
		if op.Kind == OpPut {
			value = op.Value
		}
		byCollection[op.Collection] = append(byCollection[op.Collection], batchItem{ID: op.ID, Value: value})
	}

	for name, items := range byCollection {
		s.collMu.RLock()
		h, ok := s.collections[name]
		s.collMu.RUnlock()
		if !ok {
			continue
		}
		if err := h.validatePuts(items); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeWALFrames(ops []Op, seqs []uint64) error {
	if len(ops) == 1 {
		op := ops[0]
		var value []byte
		if op.Kind == OpPut {
			value = op.Value
		}
		payload := wal.EncodeLegacy(baseKey(op.Collection, op.ID), value)
		if err := s.wal.Append(seqs[0], payload); err != nil {
			return err
		}
		s.metrics.walBytesWritten.Add(uint64(len(payload)))
		return s.syncWAL()
	}

	txid := uuid.New().String()
	beginPayload := wal.EncodeBegin(txid)
	if err := s.wal.Append(0, beginPayload); err != nil {
		return err
	}
	s.metrics.walBytesWritten.Add(uint64(len(beginPayload)))

	for i, op := range ops {
		var value []byte
		if op.Kind == OpPut {
			value = op.Value
		}
		payload := wal.EncodeOp(txid, baseKey(op.Collection, op.ID), value)
		if err := s.wal.Append(seqs[i], payload); err != nil {
			return err
		}
		s.metrics.walBytesWritten.Add(uint64(len(payload)))
	}

	commitPayload := wal.EncodeCommit(txid)
	if err := s.wal.Append(0, commitPayload); err != nil {
		return err
	}
	s.metrics.walBytesWritten.Add(uint64(len(commitPayload)))

	return s.syncWAL()
}

func (s *Store) syncWAL() error {
	return s.wal.Sync()
}

// flushLocked drains the memtable to a new SSTable and updates the
// manifest. Callers must hold writeMu.
func (s *Store) flushLocked() error {
	entries := s.mt.Drain()
	if len(entries) == 0 {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	kvs := make([]sstable.KV, len(entries))
	for i, e := range entries {
		kvs[i] = sstable.KV{Key: sstableKey(e.Key, e.Seq), Value: e.Value}
	}

	newID := uuid.New().String()
	newPath := s.dir + "/" + newID + ".sst"
	if _, _, err := sstable.Write(newPath, kvs); err != nil {
		return err
	}

	testutil.MaybeKill(testutil.KPMemtableFlush)

	next := s.manifestSt.State()
	if cur := s.sequence.Load(); cur > next.Sequence {
		next.Sequence = cur
	}
	next.Tables[newID] = newPath
	if err := s.manifestSt.Save(next); err != nil {
		return err
	}

	if err := s.wal.GC(next.Sequence); err != nil {
		return err
	}

	s.metrics.flushes.Add(1)

	go func() {
		if err := s.compactor.Tick(); err != nil {
			s.logger.Warnf("%scompaction tick failed: %v", logging.NSStore, err)
			return
		}
		s.metrics.compactionTicks.Add(1)
	}()

	return nil
}

func (s *Store) registerIndexDef(collection string, def manifest.IndexDef) error {
	next := s.manifestSt.State()
	defs := next.IndexCatalog[collection]
	for _, existing := range defs {
		if existing.Name == def.Name {
			return nil
		}
	}
	next.IndexCatalog[collection] = append(defs, def)
	return s.manifestSt.Save(next)
}

// ListCollections returns every collection name known to the store,
// whether currently open or only recorded in the manifest's index
// catalog or bootstrap buffer.
func (s *Store) ListCollections() []string {
	seen := make(map[string]bool)
	s.collMu.RLock()
	for name := range s.collections {
		seen[name] = true
	}
	for name := range s.bootstrap {
		seen[name] = true
	}
	s.collMu.RUnlock()

	state := s.manifestSt.State()
	for name := range state.IndexCatalog {
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DropCollection removes name from the catalog and discards its
// in-memory state. Already-persisted SSTable records for name remain on
// disk until overwritten or compacted away.
func (s *Store) DropCollection(name string) error {
	s.collMu.Lock()
	delete(s.collections, name)
	delete(s.bootstrap, name)
	s.collMu.Unlock()

	next := s.manifestSt.State()
	delete(next.IndexCatalog, name)
	return s.manifestSt.Save(next)
}

// Snapshot returns a read view bound to the store's current sequence.
func (s *Store) Snapshot() *Snapshot {
	return newSnapshot(s.sequence.Load())
}

// CompactionStatus returns the result of the most recently completed
// compaction tick.
func (s *Store) CompactionStatus() compaction.Status {
	return s.compactor.Status()
}

// Compact runs one compaction tick synchronously, for administrative
// tools that want to force a merge rather than wait for the background
// tick scheduled after each flush.
func (s *Store) Compact() error {
	return s.compactor.Tick()
}
