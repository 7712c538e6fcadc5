package store

import (
	"github.com/imagingkit/acqstream/cache"
	"github.com/imagingkit/acqstream/core"
)

// DefaultReaderCacheSize is the chunk cache capacity a reader gets when the
// caller does not specify one.
const DefaultReaderCacheSize = 32

// Reader is a read-only view over one group's array, safe to hand to
// analysis workers and save steps while the run is still writing. Decoded
// chunks are cached; the cached frames are shared, so callers must treat
// them as immutable (frames are never mutated anywhere in the write path).
type Reader struct {
	arr    *Array
	chunks *cache.LRUCache
}

// NewReader wraps an array in a caching read-only view. cacheSize <= 0
// selects DefaultReaderCacheSize; use NewUncachedReader to disable caching.
func NewReader(arr *Array, cacheSize int) *Reader {
	if cacheSize <= 0 {
		cacheSize = DefaultReaderCacheSize
	}
	return &Reader{arr: arr, chunks: cache.NewLRUCache(cacheSize, nil)}
}

// NewUncachedReader wraps an array without a chunk cache.
func NewUncachedReader(arr *Array) *Reader {
	return &Reader{arr: arr, chunks: cache.NewLRUCache(0, nil)}
}

// ReadFrame returns the frame at an outer coordinate, from cache when warm.
func (r *Reader) ReadFrame(coord core.Coord) (*core.Frame, error) {
	key := ChunkName(coord)
	if v, ok := r.chunks.Get(key); ok {
		return v.(*core.Frame), nil
	}
	f, err := r.arr.ReadFrame(coord)
	if err != nil {
		return nil, err
	}
	r.chunks.Put(key, f)
	return f, nil
}

// Shape returns the full array shape, frame plane included.
func (r *Reader) Shape() []int { return r.arr.Shape() }

// OuterShape returns the coordinate space of the array.
func (r *Reader) OuterShape() []int { return r.arr.OuterShape() }

// AxisLabels returns the array's axis labels.
func (r *Reader) AxisLabels() []string { return r.arr.Meta().AxisLabels }

// Dir returns the directory currently backing the array.
func (r *Reader) Dir() string { return r.arr.Dir() }

// PixelType returns the array's sample type.
func (r *Reader) PixelType() core.PixelType { return r.arr.PixelType() }
