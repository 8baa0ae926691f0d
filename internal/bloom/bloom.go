// Package bloom implements a fixed k-hash Bloom filter using FNV-1a
// seeded by the hash index, a bitset rounded up to whole 64-bit words,
// heuristic sizing of max(64, 10·n) bits, and k = 3 hash probes at
// write time.
//
// Serialization layout (all fields little-endian):
//
//	k(8) | bitCount(8) | word_0(8) ... word_m-1(8)
package bloom

import (
	"github.com/Fountain-Coach/Fountain-Store/internal/encoding"
)

const (
	// defaultK is the number of hash probes used when building a filter.
	defaultK = 3

	// minBits is the floor on filter size regardless of key count.
	minBits = 64

	// bitsPerKey is the heuristic multiplier for sizing a filter.
	bitsPerKey = 10

	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// Builder accumulates keys and produces a serialized Bloom filter.
type Builder struct {
	keys [][]byte
}

// NewBuilder returns an empty filter builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add records a key to be included in the filter.
func (b *Builder) Add(key []byte) {
	b.keys = append(b.keys, append([]byte(nil), key...))
}

// Len returns the number of keys added so far.
func (b *Builder) Len() int {
	return len(b.keys)
}

// Finish builds the bitset and returns its serialized form.
func (b *Builder) Finish() []byte {
	n := len(b.keys)
	bitCount := uint64(minBits)
	if want := uint64(n * bitsPerKey); want > bitCount {
		bitCount = want
	}

	wordCount := (bitCount + 63) / 64
	words := make([]uint64, wordCount)

	for _, key := range b.keys {
		for i := 0; i < defaultK; i++ {
			pos := hashSeeded(uint64(i), key) % bitCount
			words[pos/64] |= 1 << (pos % 64)
		}
	}

	out := make([]byte, 16+8*len(words))
	encoding.PutUint64LE(out[0:8], defaultK)
	encoding.PutUint64LE(out[8:16], bitCount)
	for i, w := range words {
		encoding.PutUint64LE(out[16+8*i:24+8*i], w)
	}
	return out
}

// Filter is a read-only view over a serialized Bloom filter.
type Filter struct {
	k        uint64
	bitCount uint64
	words    []uint64
}

// Decode parses a serialized filter produced by Builder.Finish.
func Decode(data []byte) (*Filter, error) {
	if len(data) < 16 {
		return nil, ErrTruncated
	}
	k := encoding.Uint64LE(data[0:8])
	bitCount := encoding.Uint64LE(data[8:16])
	wordCount := (bitCount + 63) / 64
	if uint64(len(data)-16) < wordCount*8 {
		return nil, ErrTruncated
	}
	words := make([]uint64, wordCount)
	for i := range words {
		words[i] = encoding.Uint64LE(data[16+8*i : 24+8*i])
	}
	return &Filter{k: k, bitCount: bitCount, words: words}, nil
}

// MayContain reports whether key might be a member of the filter. A false
// return means the key is definitely absent; true only means "maybe" — the
// filter returns false only when at least one hashed bit is clear.
func (f *Filter) MayContain(key []byte) bool {
	if f == nil || f.bitCount == 0 {
		return true
	}
	for i := uint64(0); i < f.k; i++ {
		pos := hashSeeded(i, key) % f.bitCount
		if f.words[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// hashSeeded computes FNV-1a over key with the hash index mixed into the
// initial offset basis, giving k independent-enough hash functions from a
// single cheap primitive.
func hashSeeded(seed uint64, key []byte) uint64 {
	h := uint64(fnvOffset64) ^ seed
	for _, c := range key {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}
