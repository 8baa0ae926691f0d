// Package codec compresses document values before they are stored in a
// collection's history. Document values are opaque bytes to the engine;
// compression of those bytes is entirely separate from the WAL and
// SSTable wire formats, which are never compressed.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies the compression algorithm applied to a document value.
type Type uint8

const (
	// NoCompression stores the value as-is.
	NoCompression Type = 0x0
	// SnappyCompression uses Google Snappy, favoring speed.
	SnappyCompression Type = 0x1
	// LZ4Compression uses LZ4, a middle ground between speed and ratio.
	LZ4Compression Type = 0x2
	// ZstdCompression uses Zstandard, favoring compression ratio.
	ZstdCompression Type = 0x3
)

// String returns the human-readable name of the compression type.
func (t Type) String() string {
	switch t {
	case NoCompression:
		return "None"
	case SnappyCompression:
		return "Snappy"
	case LZ4Compression:
		return "LZ4"
	case ZstdCompression:
		return "Zstd"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// Encode compresses data using the given algorithm.
func Encode(t Type, data []byte) ([]byte, error) {
	switch t {
	case NoCompression:
		return data, nil
	case SnappyCompression:
		return snappy.Encode(nil, data), nil
	case LZ4Compression:
		return encodeLZ4(data)
	case ZstdCompression:
		return encodeZstd(data)
	default:
		return nil, fmt.Errorf("codec: unsupported compression type %d", t)
	}
}

// Decode reverses Encode.
func Decode(t Type, data []byte) ([]byte, error) {
	switch t {
	case NoCompression:
		return data, nil
	case SnappyCompression:
		return snappy.Decode(nil, data)
	case LZ4Compression:
		return decodeLZ4(data)
	case ZstdCompression:
		return decodeZstd(data)
	default:
		return nil, fmt.Errorf("codec: unsupported compression type %d", t)
	}
}

func encodeLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}

func encodeZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decodeZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
