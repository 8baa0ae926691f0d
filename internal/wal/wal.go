// wal.go implements segment rotation and the durable append path for the
// write-ahead log.
package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Fountain-Coach/Fountain-Store/internal/logging"
	"github.com/Fountain-Coach/Fountain-Store/internal/testutil"
)

type segmentMeta struct {
	path   string
	maxSeq uint64
}

// WAL is the active write-ahead log for a store. A single WAL owns one
// active file (`<base>.log`) and zero or more retired, rotated segments
// (`<base>.NNNNNN.log`) awaiting garbage collection.
type WAL struct {
	mu sync.Mutex

	dir         string
	base        string
	rotateBytes int64
	logger      logging.Logger

	file         *os.File
	size         int64
	lastSeq      uint64
	nextSegIndex int
	segments     []segmentMeta
}

// Open opens or creates the WAL rooted at dir/base.log, discovering any
// rotated segments left behind by a previous process.
func Open(dir, base string, rotateBytes int64, logger logging.Logger) (*WAL, error) {
	logger = logging.OrDefault(logger)

	existing, err := listRotatedSegments(dir, base)
	if err != nil {
		return nil, err
	}

	w := &WAL{
		dir:         dir,
		base:        base,
		rotateBytes: rotateBytes,
		logger:      logger,
	}
	for _, path := range existing {
		idx, maxSeq, err := segmentInfo(path)
		if err != nil {
			return nil, err
		}
		w.segments = append(w.segments, segmentMeta{path: path, maxSeq: maxSeq})
		if idx+1 > w.nextSegIndex {
			w.nextSegIndex = idx + 1
		}
	}

	activePath := activeSegmentPath(dir, base)
	f, err := os.OpenFile(activePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	w.size = info.Size()

	if last, err := lastSeqInFile(activePath); err == nil {
		w.lastSeq = last
	}

	return w, nil
}

// ActivePath returns the path of the currently-active segment file.
func (w *WAL) ActivePath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return activeSegmentPath(w.dir, w.base)
}

// activeSegmentPath returns the path of the active (unrotated) segment
// file for dir/base, shared with Replay.
func activeSegmentPath(dir, base string) string {
	return filepath.Join(dir, base+".log")
}

// Append writes a single framed record for (seq, payload). The caller is
// responsible for calling Sync after a committed batch — Append alone does
// not guarantee durability.
func (w *WAL) Append(seq uint64, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	frame := encodeFrame(seq, payload)

	if w.rotateBytes > 0 && w.size > 0 && w.size+int64(len(frame)) > w.rotateBytes {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}

	testutil.MaybeKill(testutil.KPWALAppend)

	n, err := w.file.Write(frame)
	w.size += int64(n)
	if err != nil {
		return err
	}
	if seq > w.lastSeq {
		w.lastSeq = seq
	}
	return nil
}

// Sync forces the active segment durably to disk.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	testutil.MaybeKill(testutil.KPWALFsync)
	return w.file.Sync()
}

// Close closes the active file handle.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// GC unlinks rotated segments whose maximum sequence is at or below
// manifestSeq. The active file is never unlinked.
func (w *WAL) GC(manifestSeq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.segments[:0:0]
	for _, seg := range w.segments {
		if seg.maxSeq <= manifestSeq {
			if err := os.Remove(seg.path); err != nil && !os.IsNotExist(err) {
				return err
			}
			w.logger.Debugf("%sgc removed %s (maxSeq=%d <= manifestSeq=%d)", logging.NSWAL, seg.path, seg.maxSeq, manifestSeq)
			continue
		}
		kept = append(kept, seg)
	}
	w.segments = kept
	return nil
}

func (w *WAL) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	rotatedPath := filepath.Join(w.dir, fmt.Sprintf("%s.%06d.log", w.base, w.nextSegIndex))
	activePath := activeSegmentPath(w.dir, w.base)
	if err := os.Rename(activePath, rotatedPath); err != nil {
		return err
	}
	w.segments = append(w.segments, segmentMeta{path: rotatedPath, maxSeq: w.lastSeq})
	w.nextSegIndex++

	f, err := os.OpenFile(activePath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.size = 0
	return nil
}

// listRotatedSegments returns rotated segment paths under dir in filename
// order (lexicographic, which matches numeric order since the index is
// zero-padded).
func listRotatedSegments(dir, base string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, base+".*.log"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func segmentInfo(path string) (index int, maxSeq uint64, err error) {
	name := filepath.Base(path)
	parts := strings.Split(name, ".")
	if len(parts) < 3 {
		return 0, 0, fmt.Errorf("wal: malformed segment name %q", name)
	}
	idx, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, 0, fmt.Errorf("wal: malformed segment index in %q: %w", name, err)
	}
	maxSeq, err = lastSeqInFile(path)
	if err != nil {
		return 0, 0, err
	}
	return idx, maxSeq, nil
}

func lastSeqInFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	var maxSeq uint64
	for {
		rec, err := readFrame(f)
		if err != nil {
			break
		}
		if rec.Seq > maxSeq {
			maxSeq = rec.Seq
		}
	}
	return maxSeq, nil
}
