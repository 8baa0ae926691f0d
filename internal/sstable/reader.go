package sstable

import (
	"os"

	"github.com/Fountain-Coach/Fountain-Store/internal/bloom"
	"github.com/Fountain-Coach/Fountain-Store/internal/cache"
	"github.com/Fountain-Coach/Fountain-Store/internal/checksum"
	"github.com/Fountain-Coach/Fountain-Store/internal/encoding"
)

// Reader provides Get and Scan access to an immutable SSTable file. It
// holds its own file handle, acquired on Open and closed on Close.
type Reader struct {
	tableID string
	path    string
	file    *os.File
	size    int64

	footer footer
	index  []blockIndexEntry
	filter *bloom.Filter

	blockCache cache.Cache
}

// Open opens the SSTable at path, reading its footer, block index, and
// Bloom filter eagerly. tableID identifies the table for block-cache keys
// and should be stable across process restarts (the table's UUID).
func Open(path, tableID string, blockCache cache.Cache) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := info.Size()
	if size < FooterSize {
		f.Close()
		return nil, ErrCorrupt
	}

	footerBuf := make([]byte, FooterSize)
	if _, err := f.ReadAt(footerBuf, size-FooterSize); err != nil {
		f.Close()
		return nil, err
	}
	ft, err := decodeFooter(footerBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	indexBuf := make([]byte, ft.IndexLen)
	if _, err := f.ReadAt(indexBuf, int64(ft.IndexOff)); err != nil {
		f.Close()
		return nil, err
	}
	index, err := decodeBlockIndex(indexBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	bloomBuf := make([]byte, ft.BloomLen)
	if _, err := f.ReadAt(bloomBuf, int64(ft.BloomOff)); err != nil {
		f.Close()
		return nil, err
	}
	filter, err := bloom.Decode(bloomBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Reader{
		tableID:    tableID,
		path:       path,
		file:       f,
		size:       size,
		footer:     ft,
		index:      index,
		filter:     filter,
		blockCache: blockCache,
	}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.file.Close()
}

// FirstKey returns the lower bound of the table's key range.
func (r *Reader) FirstKey() []byte {
	if len(r.index) == 0 {
		return nil
	}
	return r.index[0].FirstKey
}

// LastKey returns the raw key of the final entry scanned from the table.
// It is computed lazily by scanning the last block.
func (r *Reader) LastKey() ([]byte, error) {
	if len(r.index) == 0 {
		return nil, nil
	}
	entries, err := r.readBlock(len(r.index) - 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[len(entries)-1].Key, nil
}

// Get looks up key, returning (value, true, nil) on a hit, (nil, false,
// nil) when the key is absent, and a non-nil error only on corruption or
// I/O failure.
func (r *Reader) Get(key []byte) ([]byte, bool, error) {
	if r.filter != nil && !r.filter.MayContain(key) {
		return nil, false, nil
	}

	blockIdx := searchBlock(r.index, key)
	if blockIdx < 0 {
		return nil, false, nil
	}

	entries, err := r.readBlock(blockIdx)
	if err != nil {
		return nil, false, err
	}

	for _, e := range entries {
		cmp := compareBytes(e.Key, key)
		if cmp == 0 {
			return e.Value, true, nil
		}
		if cmp > 0 {
			break
		}
	}
	return nil, false, nil
}

// Scan iterates every entry in the table in key order, invoking fn for
// each. Iteration stops early if fn returns false.
func (r *Reader) Scan(fn func(key, value []byte) bool) error {
	for i := range r.index {
		entries, err := r.readBlock(i)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !fn(e.Key, e.Value) {
				return nil
			}
		}
	}
	return nil
}

func (r *Reader) readBlock(i int) ([]KV, error) {
	entry := r.index[i]

	if r.blockCache != nil {
		key := cache.CacheKey{TableID: r.tableID, Offset: entry.Offset, Length: entry.Length}
		if h := r.blockCache.Lookup(key); h != nil {
			defer r.blockCache.Release(h)
			return decodeBlockPayload(h.Value())
		}
	}

	full := make([]byte, entry.Length)
	if _, err := r.file.ReadAt(full, int64(entry.Offset)); err != nil {
		return nil, err
	}

	payload := full[:len(full)-4]
	wantCRC := encoding.Uint32BE(full[len(full)-4:])
	if got := checksum.Value(payload); got != wantCRC {
		return nil, ErrCorrupt
	}

	if r.blockCache != nil {
		key := cache.CacheKey{TableID: r.tableID, Offset: entry.Offset, Length: entry.Length}
		h := r.blockCache.Insert(key, payload, uint64(len(payload)))
		r.blockCache.Release(h)
	}

	return decodeBlockEntries(payload)
}

func decodeBlockPayload(payload []byte) ([]KV, error) {
	return decodeBlockEntries(payload)
}
