// Package sstable implements the immutable sorted-run file format:
// data blocks with trailing CRC, a block index, a Bloom filter, and a
// fixed 32-byte footer.
package sstable

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/Fountain-Coach/Fountain-Store/internal/bloom"
	"github.com/Fountain-Coach/Fountain-Store/internal/checksum"
	"github.com/Fountain-Coach/Fountain-Store/internal/encoding"
)

// MaxBlockBytes is the target payload size of a data block, excluding its
// trailing CRC.
const MaxBlockBytes = 4096

// FooterSize is the fixed size of the trailing footer.
const FooterSize = 32

// ErrCorrupt indicates a block failed its CRC check or the footer/index
// could not be parsed. This is always surfaced, never silently skipped.
var ErrCorrupt = errors.New("sstable: corrupt")

// KV is a single raw key/value pair as stored in a block.
type KV struct {
	Key   []byte
	Value []byte
}

type blockIndexEntry struct {
	FirstKey []byte
	Offset   uint64
	Length   uint64
}

type footer struct {
	IndexOff uint64
	IndexLen uint64
	BloomOff uint64
	BloomLen uint64
}

// Write creates a new SSTable at path from entries, which must already be
// sorted by raw key. It returns the first and last keys written.
func Write(path string, entries []KV) (firstKey, lastKey []byte, err error) {
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("sstable: cannot write empty table")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var offset uint64
	var index []blockIndexEntry
	filterBuilder := bloom.NewBuilder()

	var block []byte
	var blockFirstKey []byte

	flushBlock := func() error {
		if len(block) == 0 {
			return nil
		}
		crc := checksum.Value(block)
		trailer := make([]byte, 4)
		encoding.PutUint32BE(trailer, crc)
		full := append(block, trailer...)

		if _, err := f.Write(full); err != nil {
			return err
		}
		index = append(index, blockIndexEntry{
			FirstKey: blockFirstKey,
			Offset:   offset,
			Length:   uint64(len(full)),
		})
		offset += uint64(len(full))
		block = nil
		blockFirstKey = nil
		return nil
	}

	for _, kv := range entries {
		filterBuilder.Add(kv.Key)

		entryBytes := make([]byte, 4+len(kv.Key)+4+len(kv.Value))
		encoding.PutUint32LE(entryBytes[0:4], uint32(len(kv.Key)))
		copy(entryBytes[4:4+len(kv.Key)], kv.Key)
		encoding.PutUint32LE(entryBytes[4+len(kv.Key):8+len(kv.Key)], uint32(len(kv.Value)))
		copy(entryBytes[8+len(kv.Key):], kv.Value)

		if len(block)+len(entryBytes) > MaxBlockBytes && len(block) > 0 {
			if err := flushBlock(); err != nil {
				return nil, nil, err
			}
		}
		if blockFirstKey == nil {
			blockFirstKey = append([]byte(nil), kv.Key...)
		}
		block = append(block, entryBytes...)
	}
	if err := flushBlock(); err != nil {
		return nil, nil, err
	}

	indexOff := offset
	indexBytes := encodeBlockIndex(index)
	if _, err := f.Write(indexBytes); err != nil {
		return nil, nil, err
	}
	offset += uint64(len(indexBytes))

	bloomOff := offset
	bloomBytes := filterBuilder.Finish()
	if _, err := f.Write(bloomBytes); err != nil {
		return nil, nil, err
	}
	offset += uint64(len(bloomBytes))

	ft := footer{
		IndexOff: indexOff,
		IndexLen: uint64(len(indexBytes)),
		BloomOff: bloomOff,
		BloomLen: uint64(len(bloomBytes)),
	}
	if _, err := f.Write(encodeFooter(ft)); err != nil {
		return nil, nil, err
	}

	return entries[0].Key, entries[len(entries)-1].Key, nil
}

func encodeBlockIndex(index []blockIndexEntry) []byte {
	buf := make([]byte, 4)
	encoding.PutUint32LE(buf, uint32(len(index)))
	for _, e := range index {
		entry := make([]byte, 4+len(e.FirstKey)+8+8)
		encoding.PutUint32LE(entry[0:4], uint32(len(e.FirstKey)))
		copy(entry[4:4+len(e.FirstKey)], e.FirstKey)
		encoding.PutUint64LE(entry[4+len(e.FirstKey):12+len(e.FirstKey)], e.Offset)
		encoding.PutUint64LE(entry[12+len(e.FirstKey):], e.Length)
		buf = append(buf, entry...)
	}
	return buf
}

func decodeBlockIndex(data []byte) ([]blockIndexEntry, error) {
	if len(data) < 4 {
		return nil, ErrCorrupt
	}
	count := encoding.Uint32LE(data[0:4])
	pos := 4
	index := make([]blockIndexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(data) {
			return nil, ErrCorrupt
		}
		klen := int(encoding.Uint32LE(data[pos : pos+4]))
		pos += 4
		if pos+klen+16 > len(data) {
			return nil, ErrCorrupt
		}
		firstKey := append([]byte(nil), data[pos:pos+klen]...)
		pos += klen
		off := encoding.Uint64LE(data[pos : pos+8])
		pos += 8
		length := encoding.Uint64LE(data[pos : pos+8])
		pos += 8
		index = append(index, blockIndexEntry{FirstKey: firstKey, Offset: off, Length: length})
	}
	return index, nil
}

func encodeFooter(ft footer) []byte {
	buf := make([]byte, FooterSize)
	encoding.PutUint64LE(buf[0:8], ft.IndexOff)
	encoding.PutUint64LE(buf[8:16], ft.IndexLen)
	encoding.PutUint64LE(buf[16:24], ft.BloomOff)
	encoding.PutUint64LE(buf[24:32], ft.BloomLen)
	return buf
}

func decodeFooter(buf []byte) (footer, error) {
	if len(buf) < FooterSize {
		return footer{}, ErrCorrupt
	}
	return footer{
		IndexOff: encoding.Uint64LE(buf[0:8]),
		IndexLen: encoding.Uint64LE(buf[8:16]),
		BloomOff: encoding.Uint64LE(buf[16:24]),
		BloomLen: encoding.Uint64LE(buf[24:32]),
	}, nil
}

func decodeBlockEntries(payload []byte) ([]KV, error) {
	var entries []KV
	pos := 0
	for pos < len(payload) {
		if pos+4 > len(payload) {
			return nil, ErrCorrupt
		}
		klen := int(encoding.Uint32LE(payload[pos : pos+4]))
		pos += 4
		if pos+klen+4 > len(payload) {
			return nil, ErrCorrupt
		}
		key := payload[pos : pos+klen]
		pos += klen
		vlen := int(encoding.Uint32LE(payload[pos : pos+4]))
		pos += 4
		if pos+vlen > len(payload) {
			return nil, ErrCorrupt
		}
		value := payload[pos : pos+vlen]
		pos += vlen
		entries = append(entries, KV{Key: key, Value: value})
	}
	return entries, nil
}

// searchBlock returns the index of the last block whose firstKey <= key,
// or -1 if key precedes every block's firstKey.
func searchBlock(index []blockIndexEntry, key []byte) int {
	i := sort.Search(len(index), func(i int) bool {
		return compareBytes(index[i].FirstKey, key) > 0
	})
	return i - 1
}

func compareBytes(a, b []byte) int {
	switch {
	case string(a) < string(b):
		return -1
	case string(a) > string(b):
		return 1
	default:
		return 0
	}
}
