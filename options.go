package fountainstore

// options.go implements store configuration options.

import (
	"github.com/Fountain-Coach/Fountain-Store/internal/logging"
)

// Logger is an alias for the logging.Logger interface.
// This allows users to pass their own logger implementation.
type Logger = logging.Logger

// Options configures a Store.
type Options struct {
	// Path is the directory the store reads from and writes to.
	Path string

	// CacheBytes bounds the block cache used to hold decoded SSTable
	// blocks in memory. Default: 64MB.
	CacheBytes int64

	// DefaultScanLimit bounds the number of results a scan returns when
	// the caller does not specify one. Default: 100.
	DefaultScanLimit int

	// WALSegmentBytes is the size at which the write-ahead log rotates
	// to a new segment. Default: 4MB.
	WALSegmentBytes int64

	// MemtableLimit is the number of entries a memtable holds before a
	// flush to a new SSTable is triggered. Default: 1024.
	MemtableLimit int

	// Logger receives the store's structured log output.
	// If nil, a default logger writing to stderr is used.
	Logger Logger
}

const (
	defaultCacheBytes      = 64 * 1024 * 1024
	defaultScanLimit       = 100
	defaultWALSegmentBytes = 4 * 1024 * 1024
)

// DefaultOptions returns Options with default values for the store at path.
func DefaultOptions(path string) *Options {
	return &Options{
		Path:             path,
		CacheBytes:       defaultCacheBytes,
		DefaultScanLimit: defaultScanLimit,
		WALSegmentBytes:  defaultWALSegmentBytes,
		MemtableLimit:    0,
		Logger:           nil,
	}
}

// withDefaults returns a copy of o with zero-valued fields filled in.
func (o *Options) withDefaults() *Options {
	out := *o
	if out.CacheBytes <= 0 {
		out.CacheBytes = defaultCacheBytes
	}
	if out.DefaultScanLimit <= 0 {
		out.DefaultScanLimit = defaultScanLimit
	}
	if out.WALSegmentBytes <= 0 {
		out.WALSegmentBytes = defaultWALSegmentBytes
	}
	if out.MemtableLimit <= 0 {
		out.MemtableLimit = 1024
	}
	out.Logger = logging.OrDefault(out.Logger)
	return &out
}
