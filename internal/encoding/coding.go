// Package encoding provides the small set of fixed-width binary encode/decode
// helpers used by the WAL, SSTable, and Bloom filter formats. Every
// multi-byte integer in this system is fixed-width — there are no
// varints — so this package is intentionally narrow.
package encoding

import "encoding/binary"

// PutUint32BE writes v to dst[0:4] in big-endian order.
// REQUIRES: len(dst) >= 4.
func PutUint32BE(dst []byte, v uint32) {
	binary.BigEndian.PutUint32(dst, v)
}

// Uint32BE reads a big-endian uint32 from src[0:4].
// REQUIRES: len(src) >= 4.
func Uint32BE(src []byte) uint32 {
	return binary.BigEndian.Uint32(src)
}

// PutUint64BE writes v to dst[0:8] in big-endian order.
// REQUIRES: len(dst) >= 8.
func PutUint64BE(dst []byte, v uint64) {
	binary.BigEndian.PutUint64(dst, v)
}

// Uint64BE reads a big-endian uint64 from src[0:8].
// REQUIRES: len(src) >= 8.
func Uint64BE(src []byte) uint64 {
	return binary.BigEndian.Uint64(src)
}

// PutUint32LE writes v to dst[0:4] in little-endian order.
// REQUIRES: len(dst) >= 4.
func PutUint32LE(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst, v)
}

// Uint32LE reads a little-endian uint32 from src[0:4].
// REQUIRES: len(src) >= 4.
func Uint32LE(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// PutUint64LE writes v to dst[0:8] in little-endian order.
// REQUIRES: len(dst) >= 8.
func PutUint64LE(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}

// Uint64LE reads a little-endian uint64 from src[0:8].
// REQUIRES: len(src) >= 8.
func Uint64LE(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}
