package cache

import (
	"expvar"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUBasicPutGet(t *testing.T) {
	c := NewLRUCache(2, nil)

	c.Put("a", 1)
	c.Put("b", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := NewLRUCache(2, func(key string, _ any) {
		evicted = append(evicted, key)
	})

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // touch: "b" is now the oldest
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []string{"b"}, evicted)
}

func TestLRUPutExistingUpdates(t *testing.T) {
	c := NewLRUCache(2, nil)
	c.Put("a", 1)
	c.Put("a", 10)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, c.Len())
}

func TestLRUZeroCapacityDisabled(t *testing.T) {
	c := NewLRUCache(0, nil)
	c.Put("a", 1)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	// negative capacity clamps to disabled
	c = NewLRUCache(-5, nil)
	c.Put("a", 1)
	assert.Equal(t, 0, c.Len())
}

func TestLRUPurge(t *testing.T) {
	evictions := 0
	c := NewLRUCache(4, func(string, any) { evictions++ })
	c.Put("a", 1)
	c.Put("b", 2)
	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, evictions, "purge must not invoke the eviction callback")
}

func TestLRUMetrics(t *testing.T) {
	hits := new(expvar.Int)
	misses := new(expvar.Int)
	c := NewLRUCache(2, nil)
	c.SetMetrics(hits, misses)

	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("nope")

	assert.Equal(t, int64(2), hits.Value())
	assert.Equal(t, int64(1), misses.Value())
}

func TestLRUConcurrentAccess(t *testing.T) {
	c := NewLRUCache(16, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", (n+j)%32)
				c.Put(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}
