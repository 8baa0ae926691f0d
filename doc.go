/*
Package fountainstore provides an embedded, ACID, LSM-tree key/value
storage engine with typed collections, secondary indexes, MVCC snapshots,
and transactional multi-collection batches.

Writes go through a single-writer Store: append to the write-ahead log,
sync, apply to an in-memory memtable, and eventually flush to an
immutable SSTable filtered by a Bloom filter and read back through a
bounded block cache. Every persisted version is also materialized into
its Collection's in-memory history at Open, so reads resolve entirely
against that history rather than re-walking the memtable/SSTable chain
per call. Every record carries the sequence at which it was written, so
a Snapshot is simply an opaque sequence bound: reads against a snapshot
see the latest version of each key with seq <= snapshot.sequence.

# Usage

Open a Store, then obtain typed Collection handles from it. A Collection
is a namespace of documents keyed by id, with optional secondary indexes
(unique, multi, full-text, vector) maintained transactionally alongside
the underlying WAL/memtable/SSTable writes.

# Concurrency

A Store is safe for concurrent use. All mutating operations serialize
through the store; reads proceed concurrently against stable in-memory
snapshots and never block on the writer except briefly while traversing
shared maps.
*/
package fountainstore
