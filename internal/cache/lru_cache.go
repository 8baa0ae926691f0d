// Package cache provides the block cache used to hold decoded SSTable
// blocks in memory, reducing disk I/O on reads.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"
)

// Cache is the interface for all cache implementations.
type Cache interface {
	// Insert adds a block to the cache. If the key already exists, it updates the value.
	// Returns the handle to the cached block.
	Insert(key CacheKey, value []byte, charge uint64) *Handle

	// Lookup retrieves a block from the cache.
	// Returns nil if not found.
	Lookup(key CacheKey) *Handle

	// Release releases a handle obtained from Insert or Lookup.
	// The caller must call Release when done using the handle.
	Release(handle *Handle)

	// Erase removes a key from the cache.
	Erase(key CacheKey)

	// SetCapacity sets the maximum capacity of the cache.
	SetCapacity(capacity uint64)

	// GetCapacity returns the maximum capacity of the cache.
	GetCapacity() uint64

	// GetUsage returns the current usage of the cache.
	GetUsage() uint64

	// GetPinnedUsage returns the usage of currently pinned entries.
	GetPinnedUsage() uint64

	// GetOccupancyCount returns the number of entries in the cache.
	GetOccupancyCount() uint64

	// Close releases all resources associated with the cache.
	Close()
}

// CacheKey uniquely identifies a cached block within an SSTable.
type CacheKey struct {
	TableID string
	Offset  uint64
	Length  uint64
}

// Handle is a caller's reference to one cached block. It also doubles as
// the cache's own LRU ring node: a Handle with a nonzero reference count
// is unlinked from the ring entirely, so it can never be picked as an
// eviction victim and eviction never has to scan past pinned entries to
// find one.
type Handle struct {
	key     CacheKey
	value   []byte
	charge  uint64
	refs    int32
	deleted bool

	prev, next *Handle // nil while pinned; linked into the owning cache's ring otherwise
}

// Value returns the cached block data.
func (h *Handle) Value() []byte {
	return h.value
}

// Charge returns the memory charge of this entry.
func (h *Handle) Charge() uint64 {
	return h.charge
}

// LRUCache is a thread-safe, reference-counted LRU cache with a fixed
// byte capacity. Entries referenced by an outstanding Handle are held out
// of the eviction ring and return to it, at the front, only once their
// last reference is released.
type LRUCache struct {
	mu       sync.Mutex
	capacity uint64
	usage    uint64
	table    map[CacheKey]*Handle
	ring     Handle // sentinel: ring.next is most recently released, ring.prev is next to evict

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewLRUCache creates a new LRU cache with the given capacity in bytes.
func NewLRUCache(capacity uint64) *LRUCache {
	c := &LRUCache{
		capacity: capacity,
		table:    make(map[CacheKey]*Handle),
	}
	c.ring.next = &c.ring
	c.ring.prev = &c.ring
	return c
}

// linkFront inserts h as the most-recently-released ring entry. h must
// not already be linked.
func (c *LRUCache) linkFront(h *Handle) {
	h.next = c.ring.next
	h.prev = &c.ring
	c.ring.next.prev = h
	c.ring.next = h
}

// unlink removes h from the ring, leaving it pinned or standalone.
func (c *LRUCache) unlink(h *Handle) {
	h.prev.next = h.next
	h.next.prev = h.prev
	h.prev = nil
	h.next = nil
}

// reclaim evicts from the tail of the ring until usage fits capacity or
// the ring (which only ever holds unpinned entries) runs dry.
func (c *LRUCache) reclaim() {
	for c.usage > c.capacity {
		victim := c.ring.prev
		if victim == &c.ring {
			return
		}
		c.unlink(victim)
		delete(c.table, victim.key)
		c.usage -= victim.charge
	}
}

// Insert adds a block to the cache, pinning it once on the caller's
// behalf. The returned handle must be released.
func (c *LRUCache) Insert(key CacheKey, value []byte, charge uint64) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.table[key]; ok {
		if h.refs == 0 {
			c.unlink(h)
		}
		c.usage -= h.charge
		h.value = value
		h.charge = charge
		h.deleted = false
		h.refs++
		c.usage += charge
		c.reclaim()
		return h
	}

	h := &Handle{key: key, value: value, charge: charge, refs: 1}
	c.table[key] = h
	c.usage += charge
	c.reclaim()
	return h
}

// Lookup retrieves a block from the cache, pinning it. Returns nil if the
// key is absent or has been erased.
func (c *LRUCache) Lookup(key CacheKey) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.table[key]
	if !ok || h.deleted {
		c.misses.Add(1)
		return nil
	}
	if h.refs == 0 {
		c.unlink(h)
	}
	h.refs++
	c.hits.Add(1)
	return h
}

// Release drops one reference to handle. Once the last reference goes
// away, the entry either rejoins the ring (where it becomes eligible for
// eviction) or, if it was erased while pinned, is removed outright.
func (c *LRUCache) Release(handle *Handle) {
	if handle == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	handle.refs--
	if handle.refs > 0 {
		return
	}
	if handle.deleted {
		delete(c.table, handle.key)
		c.usage -= handle.charge
		return
	}
	c.linkFront(handle)
	c.reclaim()
}

// Erase removes a key from the cache. A pinned entry is only marked for
// removal; Release finishes the job once its last reference drops.
func (c *LRUCache) Erase(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.table[key]
	if !ok {
		return
	}
	h.deleted = true
	if h.refs == 0 {
		c.unlink(h)
		delete(c.table, key)
		c.usage -= h.charge
	}
}

// SetCapacity sets the maximum capacity, evicting unpinned entries if the
// new capacity is smaller than the current usage.
func (c *LRUCache) SetCapacity(capacity uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = capacity
	c.reclaim()
}

// GetCapacity returns the maximum capacity.
func (c *LRUCache) GetCapacity() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// GetUsage returns the current usage.
func (c *LRUCache) GetUsage() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// GetPinnedUsage returns the usage of currently pinned entries.
func (c *LRUCache) GetPinnedUsage() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pinned uint64
	for _, h := range c.table {
		if h.refs > 0 {
			pinned += h.charge
		}
	}
	return pinned
}

// GetOccupancyCount returns the number of entries.
func (c *LRUCache) GetOccupancyCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.table))
}

// Close releases all resources.
func (c *LRUCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.table = make(map[CacheKey]*Handle)
	c.ring.next = &c.ring
	c.ring.prev = &c.ring
	c.usage = 0
}

// GetHitCount returns the number of cache hits.
func (c *LRUCache) GetHitCount() uint64 {
	return c.hits.Load()
}

// GetMissCount returns the number of cache misses.
func (c *LRUCache) GetMissCount() uint64 {
	return c.misses.Load()
}

// GetHitRate returns the cache hit rate (0.0 to 1.0).
func (c *LRUCache) GetHitRate() float64 {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// ShardedLRUCache is an LRU cache split across multiple independently
// locked LRUCache shards, for reduced contention under concurrent access.
type ShardedLRUCache struct {
	shards    []*LRUCache
	numShards uint64
}

// NewShardedLRUCache creates a new sharded LRU cache split into numShards
// independently-locked segments (16 by default; other counts are rounded
// up to the next power of two), keyed by an xxh3 hash of the CacheKey.
func NewShardedLRUCache(capacity uint64, numShards int) *ShardedLRUCache {
	if numShards <= 0 {
		numShards = 16
	}
	numShards = nextPowerOf2(numShards)

	shardCapacity := capacity / uint64(numShards)
	if shardCapacity == 0 {
		shardCapacity = 1
	}

	c := &ShardedLRUCache{
		shards:    make([]*LRUCache, numShards),
		numShards: uint64(numShards),
	}
	for i := 0; i < numShards; i++ {
		c.shards[i] = NewLRUCache(shardCapacity)
	}
	return c
}

func nextPowerOf2(n int) int {
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

func (c *ShardedLRUCache) shard(key CacheKey) *LRUCache {
	buf := make([]byte, 0, len(key.TableID)+16)
	buf = append(buf, key.TableID...)
	buf = appendUint64(buf, key.Offset)
	buf = appendUint64(buf, key.Length)
	h := xxh3.Hash(buf)
	return c.shards[h%c.numShards]
}

func appendUint64(b []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(v>>(56-8*i)))
	}
	return b
}

// Insert adds a block to the cache.
func (c *ShardedLRUCache) Insert(key CacheKey, value []byte, charge uint64) *Handle {
	return c.shard(key).Insert(key, value, charge)
}

// Lookup retrieves a block from the cache.
func (c *ShardedLRUCache) Lookup(key CacheKey) *Handle {
	return c.shard(key).Lookup(key)
}

// Release releases a handle.
func (c *ShardedLRUCache) Release(handle *Handle) {
	if handle == nil {
		return
	}
	c.shard(handle.key).Release(handle)
}

// Erase removes a key from the cache.
func (c *ShardedLRUCache) Erase(key CacheKey) {
	c.shard(key).Erase(key)
}

// SetCapacity sets the maximum capacity, split evenly across shards.
func (c *ShardedLRUCache) SetCapacity(capacity uint64) {
	shardCapacity := capacity / c.numShards
	if shardCapacity == 0 {
		shardCapacity = 1
	}
	for _, s := range c.shards {
		s.SetCapacity(shardCapacity)
	}
}

// GetCapacity returns the maximum capacity.
func (c *ShardedLRUCache) GetCapacity() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.GetCapacity()
	}
	return total
}

// GetUsage returns the current usage.
func (c *ShardedLRUCache) GetUsage() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.GetUsage()
	}
	return total
}

// GetPinnedUsage returns the usage of currently pinned entries.
func (c *ShardedLRUCache) GetPinnedUsage() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.GetPinnedUsage()
	}
	return total
}

// GetOccupancyCount returns the number of entries.
func (c *ShardedLRUCache) GetOccupancyCount() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.GetOccupancyCount()
	}
	return total
}

// Close releases all resources.
func (c *ShardedLRUCache) Close() {
	for _, s := range c.shards {
		s.Close()
	}
}

// GetHitCount returns the total number of cache hits.
func (c *ShardedLRUCache) GetHitCount() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.GetHitCount()
	}
	return total
}

// GetMissCount returns the total number of cache misses.
func (c *ShardedLRUCache) GetMissCount() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.GetMissCount()
	}
	return total
}

// GetHitRate returns the overall cache hit rate.
func (c *ShardedLRUCache) GetHitRate() float64 {
	hits := c.GetHitCount()
	misses := c.GetMissCount()
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}
