package wal

import (
	"io"
	"os"
)

// Replay reads every record from dir/base's rotated segments (oldest first)
// followed by the active file, returning them in the order they were
// appended (begin and commit frames carry seq 0). A bad tail — a
// partial frame or one whose CRC fails — is truncated silently: Replay
// stops reading that file and moves on, never returning an error for
// trailing corruption left by a crash mid-append.
func Replay(dir, base string) ([]Record, error) {
	segments, err := listRotatedSegments(dir, base)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, path := range segments {
		recs, err := readAllFrames(path)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}

	activePath := activeSegmentPath(dir, base)
	recs, err := readAllFrames(activePath)
	if err != nil {
		return nil, err
	}
	records = append(records, recs...)

	return records, nil
}

func readAllFrames(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []Record
	for {
		rec, err := readFrame(f)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF || err == ErrCorrupt {
				break
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
