// Package checksum provides the CRC32 implementation shared by the WAL and
// SSTable block formats.
//
// Both formats use the standard CRC-32 (IEEE 802.3) polynomial 0xEDB88320,
// computed over a single byte range (never masked, never extended with a
// trailing type byte the way RocksDB's CRC32C framing does).
package checksum

import "hash/crc32"

// ieeeTable is the standard CRC-32 polynomial table (0xEDB88320).
var ieeeTable = crc32.MakeTable(crc32.IEEE)

// Value computes the CRC32 (IEEE) checksum of data.
func Value(data []byte) uint32 {
	return crc32.Checksum(data, ieeeTable)
}

// Extend computes the CRC32 of concat(A, data) where initCRC is the CRC32 of A.
func Extend(initCRC uint32, data []byte) uint32 {
	return crc32.Update(initCRC, ieeeTable, data)
}
