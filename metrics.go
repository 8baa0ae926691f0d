package fountainstore

// metrics.go implements lightweight counters describing a Store's
// activity, separate from compaction.Status (which describes the live
// table set rather than request volume).

import (
	"sync/atomic"

	"github.com/Fountain-Coach/Fountain-Store/internal/cache"
)

type metricsCounters struct {
	puts            atomic.Uint64
	deletes         atomic.Uint64
	batches         atomic.Uint64
	flushes         atomic.Uint64
	compactionTicks atomic.Uint64
	walBytesWritten atomic.Uint64
}

// Metrics is a point-in-time snapshot of a Store's counters.
type Metrics struct {
	Puts            uint64
	Deletes         uint64
	Batches         uint64
	Flushes         uint64
	CompactionTicks uint64
	WALBytesWritten uint64
	CacheHits       uint64
	CacheMisses     uint64
}

// Metrics returns a snapshot of the store's activity counters.
func (s *Store) Metrics() Metrics {
	m := Metrics{
		Puts:            s.metrics.puts.Load(),
		Deletes:         s.metrics.deletes.Load(),
		Batches:         s.metrics.batches.Load(),
		Flushes:         s.metrics.flushes.Load(),
		CompactionTicks: s.metrics.compactionTicks.Load(),
		WALBytesWritten: s.metrics.walBytesWritten.Load(),
	}
	if sc, ok := s.blockCache.(*cache.ShardedLRUCache); ok {
		m.CacheHits = sc.GetHitCount()
		m.CacheMisses = sc.GetMissCount()
	}
	return m
}

// ResetMetrics zeroes the store's own counters. CacheHits and CacheMisses
// are read from the block cache and are not reset.
func (s *Store) ResetMetrics() {
	s.metrics.puts.Store(0)
	s.metrics.deletes.Store(0)
	s.metrics.batches.Store(0)
	s.metrics.flushes.Store(0)
	s.metrics.compactionTicks.Store(0)
	s.metrics.walBytesWritten.Store(0)
}
