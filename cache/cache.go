// Package cache provides the fixed-size LRU used by snapshot readers to
// keep recently decoded chunks in memory. A capacity of zero disables
// caching entirely.
package cache

import (
	"container/list"
	"expvar"
	"sync"
)

// cacheEntry holds the key and value for one cached item.
type cacheEntry struct {
	key   string
	value any
}

// LRUCache implements a generic fixed-size LRU cache. All methods are safe
// for concurrent use.
type LRUCache struct {
	mu         sync.Mutex
	capacity   int
	lruList    *list.List
	cacheItems map[string]*list.Element
	onEvicted  func(key string, value any)

	hits   *expvar.Int
	misses *expvar.Int
}

// NewLRUCache creates a new LRUCache. onEvicted, if non-nil, is called for
// each entry pushed out by capacity pressure.
func NewLRUCache(capacity int, onEvicted func(key string, value any)) *LRUCache {
	if capacity < 0 {
		capacity = 0
	}
	return &LRUCache{
		capacity:   capacity,
		lruList:    list.New(),
		cacheItems: make(map[string]*list.Element),
		onEvicted:  onEvicted,
	}
}

// SetMetrics attaches hit/miss counters. Optional; nil counters are skipped.
func (c *LRUCache) SetMetrics(hits, misses *expvar.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = hits
	c.misses = misses
}

// Get retrieves a value from the cache, marking it most recently used.
func (c *LRUCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity == 0 {
		return nil, false
	}
	elem, ok := c.cacheItems[key]
	if !ok {
		if c.misses != nil {
			c.misses.Add(1)
		}
		return nil, false
	}
	c.lruList.MoveToFront(elem)
	if c.hits != nil {
		c.hits.Add(1)
	}
	return elem.Value.(*cacheEntry).value, true
}

// Put inserts or updates a value, evicting the least recently used entry
// when over capacity.
func (c *LRUCache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity == 0 {
		return
	}
	if elem, ok := c.cacheItems[key]; ok {
		c.lruList.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}
	elem := c.lruList.PushFront(&cacheEntry{key: key, value: value})
	c.cacheItems[key] = elem

	if c.lruList.Len() > c.capacity {
		c.evictOldest()
	}
}

// Len returns the number of cached entries.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Purge drops every entry without invoking the eviction callback.
func (c *LRUCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lruList.Init()
	c.cacheItems = make(map[string]*list.Element)
}

// evictOldest removes the LRU entry. Caller must hold c.mu.
func (c *LRUCache) evictOldest() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}
	c.lruList.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.cacheItems, entry.key)
	if c.onEvicted != nil {
		c.onEvicted(entry.key, entry.value)
	}
}
