package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/percolate/query"
	"github.com/hupe1980/percolate/resource"
)

// Key identifies a decoded stored query by id and a 128-bit hash of its serialized
// form, so a replaced query never hits a stale entry.
type Key struct {
	ID     string
	H1, H2 uint64
}

// LRU is a size-bounded LRU of decoded queries. Sizes are the serialized lengths
// the caller reports.
type LRU struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[Key]*list.Element
	evictList *list.List
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key  Key
	q    query.Query
	size int64
}

// NewLRU creates an LRU holding up to capacity bytes. If rc is set, entries are
// also charged against its memory limit.
func NewLRU(capacity int64, rc *resource.Controller) *LRU {
	return &LRU{
		capacity:  capacity,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

// Get returns a cached query.
func (c *LRU) Get(key Key) (query.Query, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry).q, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches q. Entries larger than the capacity are not cached.
func (c *LRU) Set(key Key, q query.Query, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		// Same key means same serialized query.
		c.evictList.MoveToFront(ent)
		return
	}
	if size > c.capacity {
		return
	}

	for c.size+size > c.capacity {
		ent := c.evictList.Back()
		if ent == nil {
			break
		}
		c.removeElement(ent)
	}

	// Never block on the shared budget; skip caching instead.
	if c.rc != nil && !c.rc.TryAcquireMemory(size) {
		return
	}

	c.items[key] = c.evictList.PushFront(&entry{key: key, q: q, size: size})
	c.size += size
}

// Invalidate removes entries matching the predicate.
func (c *LRU) Invalidate(predicate func(key Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for key, element := range c.items {
		if predicate(key) {
			toRemove = append(toRemove, element)
		}
	}
	for _, e := range toRemove {
		c.removeElement(e)
	}
}

// Stats returns hit and miss counts.
func (c *LRU) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the current size of the cache in bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached queries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	kv := e.Value.(*entry)
	delete(c.items, kv.key)
	c.size -= kv.size
	if c.rc != nil {
		c.rc.ReleaseMemory(kv.size)
	}
}
