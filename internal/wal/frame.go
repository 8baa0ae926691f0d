// Package wal implements a durable, append-only journal with
// CRC-framed records and size-based segment rotation.
//
// Frame layout (all fields fixed-width, big-endian):
//
//	seq(8) | len(4) | payload(len) | crc32(4)
//
// crc32 is the standard CRC-32 (IEEE) of payload bytes only.
package wal

import (
	"io"

	"github.com/Fountain-Coach/Fountain-Store/internal/checksum"
	"github.com/Fountain-Coach/Fountain-Store/internal/encoding"
)

// HeaderSize is the size of the fixed fields preceding the payload.
const HeaderSize = 8 + 4

// TrailerSize is the size of the trailing CRC32 field.
const TrailerSize = 4

// Record is a single decoded WAL entry.
type Record struct {
	Seq     uint64
	Payload []byte
}

// encodeFrame returns the on-disk bytes for one (seq, payload) record.
func encodeFrame(seq uint64, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload)+TrailerSize)
	encoding.PutUint64BE(buf[0:8], seq)
	encoding.PutUint32BE(buf[8:12], uint32(len(payload)))
	copy(buf[12:12+len(payload)], payload)
	crc := checksum.Value(payload)
	encoding.PutUint32BE(buf[12+len(payload):], crc)
	return buf
}

// readFrame reads a single frame from r. It returns io.EOF when no more
// bytes are available at a frame boundary, and io.ErrUnexpectedEOF (treated
// by callers exactly like a checksum failure) when a partial trailing frame
// is found — bad tails are truncated silently, never propagated as hard
// errors.
func readFrame(r io.Reader) (Record, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Record{}, err
	}
	seq := encoding.Uint64BE(header[0:8])
	length := encoding.Uint32BE(header[8:12])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, io.ErrUnexpectedEOF
	}

	var trailer [TrailerSize]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return Record{}, io.ErrUnexpectedEOF
	}
	wantCRC := encoding.Uint32BE(trailer[:])
	if got := checksum.Value(payload); got != wantCRC {
		return Record{}, ErrCorrupt
	}

	return Record{Seq: seq, Payload: payload}, nil
}
