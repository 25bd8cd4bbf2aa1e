package database

import (
	"container/list"
	"fmt"
	"sync"
)

// MaxCacheCapacity is the largest statement cache an Engine will create.
const MaxCacheCapacity = 1000

// CacheStatus is the outcome of a StatementCache operation.
//
// These are expected, locally handled conditions rather than errors: a BUSY
// Get simply means the caller should compile an uncached statement.
type CacheStatus int

// Cache outcomes.
const (
	CacheOK CacheStatus = iota
	CacheDuplicate
	CacheFull
	CacheNotFound
	CacheBusy
	CacheInvalidState
)

// String returns the status name.
func (s CacheStatus) String() string {
	switch s {
	case CacheOK:
		return "ok"
	case CacheDuplicate:
		return "duplicate"
	case CacheFull:
		return "full"
	case CacheNotFound:
		return "not_found"
	case CacheBusy:
		return "busy"
	case CacheInvalidState:
		return "invalid_state"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Capacity  int
	Entries   int
	InUse     int
	Hits      uint64 // Get returned a handle
	Misses    uint64 // Get found nothing
	Busy      uint64 // Get found the entry borrowed
	Evictions uint64
	Rejected  uint64 // Put returned FULL
}

// cacheEntry is one compiled statement tracked by the cache.
type cacheEntry struct {
	key    string
	handle *Handle
	inUse  bool
}

// StatementCache is an LRU cache of compiled statements keyed by SQL text.
//
// Entries are either idle or borrowed. Borrowed entries are never evicted,
// finalized, or handed to a second caller; eviction takes the least recently
// used idle entry.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type StatementCache struct {
	mu       sync.Mutex
	capacity int

	// recency holds *cacheEntry values, most recently used at the front.
	recency  *list.List
	byKey    map[string]*list.Element
	byHandle map[*Handle]*list.Element

	stats CacheStats

	logger Logger
}

// NewStatementCache creates an empty cache holding at most capacity statements.
//
// Returns:
//   - *StatementCache: Ready for use
//   - error: ErrCacheLimit if capacity is not in [1, MaxCacheCapacity]
func NewStatementCache(capacity int) (*StatementCache, error) {
	if capacity < 1 || capacity > MaxCacheCapacity {
		return nil, fmt.Errorf("%w: %d (allowed 1-%d)", ErrCacheLimit, capacity, MaxCacheCapacity)
	}

	return &StatementCache{
		capacity: capacity,
		recency:  list.New(),
		byKey:    make(map[string]*list.Element),
		byHandle: make(map[*Handle]*list.Element),
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger used to report finalize failures during eviction.
func (c *StatementCache) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Put inserts an idle entry for key at the most recently used position.
//
// If the cache is full the least recently used idle entry is evicted first.
// When every entry is borrowed, Put returns CacheFull and the caller keeps
// ownership of h. A key that is already present yields CacheDuplicate; the
// existing entry is left as it was.
func (c *StatementCache) Put(key string, h *Handle) CacheStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byKey[key]; ok {
		return CacheDuplicate
	}

	if c.recency.Len() >= c.capacity {
		if c.evictLocked() != CacheOK {
			c.stats.Rejected++
			return CacheFull
		}
	}

	elem := c.recency.PushFront(&cacheEntry{key: key, handle: h})
	c.byKey[key] = elem
	c.byHandle[h] = elem
	return CacheOK
}

// Get borrows the statement cached for key.
//
// On success the entry is marked in use, moved to the most recently used
// position, and its bindings and execution state are cleared. A borrowed entry
// yields CacheBusy and a nil handle; nothing about it changes.
func (c *StatementCache) Get(key string) (*Handle, CacheStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.byKey[key]
	if !ok {
		c.stats.Misses++
		return nil, CacheNotFound
	}

	entry := elem.Value.(*cacheEntry)
	if entry.inUse {
		c.stats.Busy++
		return nil, CacheBusy
	}

	entry.inUse = true
	c.recency.MoveToFront(elem)
	entry.handle.reset()
	entry.handle.clearBindings()
	c.stats.Hits++

	return entry.handle, CacheOK
}

// Release returns a borrowed handle to the cache.
//
// The entry becomes idle and most recently used, so the statement that was
// just in use is the last one to be evicted.
func (c *StatementCache) Release(h *Handle) CacheStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.byHandle[h]
	if !ok {
		return CacheNotFound
	}

	entry := elem.Value.(*cacheEntry)
	if !entry.inUse {
		return CacheInvalidState
	}

	entry.inUse = false
	c.recency.MoveToFront(elem)
	return CacheOK
}

// Evict finalizes and removes the least recently used idle entry.
// It returns CacheFull if every entry is borrowed (or the cache is empty).
func (c *StatementCache) Evict() CacheStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked()
}

func (c *StatementCache) evictLocked() CacheStatus {
	for elem := c.recency.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*cacheEntry)
		if entry.inUse {
			continue
		}

		c.removeLocked(elem)
		if err := entry.handle.finalize(); err != nil {
			c.logger.Warn("finalizing evicted statement", "sql", entry.key, "error", err)
		}
		c.stats.Evictions++
		return CacheOK
	}
	return CacheFull
}

// ClearAll finalizes every cached statement and empties the cache.
// It refuses with CacheBusy while any entry is borrowed.
func (c *StatementCache) ClearAll() CacheStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.recency.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*cacheEntry).inUse {
			return CacheBusy
		}
	}

	c.purgeLocked()
	return CacheOK
}

// purge finalizes everything, borrowed entries included. Only Engine.Close
// uses it, after which no borrower can reach the engine again.
func (c *StatementCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
}

func (c *StatementCache) purgeLocked() {
	for elem := c.recency.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*cacheEntry)
		c.removeLocked(elem)
		if err := entry.handle.finalize(); err != nil {
			c.logger.Warn("finalizing cached statement", "sql", entry.key, "error", err)
		}
		elem = next
	}
}

// removeLocked unlinks elem from the list and both indices.
func (c *StatementCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.recency.Remove(elem)
	delete(c.byKey, entry.key)
	delete(c.byHandle, entry.handle)
}

// Contains reports whether key is cached, borrowed or not.
func (c *StatementCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byKey[key]
	return ok
}

// Len returns the number of cached statements.
func (c *StatementCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Cap returns the cache capacity.
func (c *StatementCache) Cap() int {
	return c.capacity
}

// Stats returns a snapshot of the cache counters.
func (c *StatementCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Capacity = c.capacity
	stats.Entries = c.recency.Len()
	for elem := c.recency.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*cacheEntry).inUse {
			stats.InUse++
		}
	}
	return stats
}
