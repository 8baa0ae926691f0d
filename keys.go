package fountainstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

const keySep byte = 0x00

// baseKey returns the encoded key for id within collection, without a
// sequence suffix: collectionName || 0x00 || idJSON.
func baseKey(collection, id string) string {
	idJSON, _ := json.Marshal(id)
	return collection + string(keySep) + string(idJSON)
}

// sstableKey appends the sequence suffix used in on-disk SSTable keys:
// baseKey || 0x00 || seq(8 BE).
func sstableKey(base string, seq uint64) []byte {
	buf := make([]byte, len(base)+1+8)
	copy(buf, base)
	buf[len(base)] = keySep
	binary.BigEndian.PutUint64(buf[len(base)+1:], seq)
	return buf
}

// splitSSTableKey decodes a raw SSTable key back into its base key and
// sequence. Keys without a sequence suffix (defensively handled, never
// produced by this store) return the whole key as base and seq 0.
func splitSSTableKey(raw []byte) (base string, seq uint64, ok bool) {
	if len(raw) < 9 {
		return string(raw), 0, false
	}
	n := len(raw) - 9
	if raw[n] != keySep {
		return string(raw), 0, false
	}
	return string(raw[:n]), binary.BigEndian.Uint64(raw[n+1:]), true
}

// parseBaseKey splits a base key (no sequence suffix) back into its
// collection name and JSON-decoded id.
func parseBaseKey(base string) (collection, id string, err error) {
	for i := 0; i < len(base); i++ {
		if base[i] == keySep {
			var decoded string
			if err := json.Unmarshal([]byte(base[i+1:]), &decoded); err != nil {
				return "", "", fmt.Errorf("fountainstore: malformed key %q: %w", base, err)
			}
			return base[:i], decoded, nil
		}
	}
	return "", "", fmt.Errorf("fountainstore: malformed key %q: no separator", base)
}
