package playback

import (
	"sync"
)

// segmentCache holds produced segments for one session. Indices are expected
// to mostly arrive in order; a seek can legitimately bring a lower index
// after a higher one, and that late write is served to the client but never
// replaces a segment already cached.
type segmentCache struct {
	mu       sync.RWMutex
	segments map[int][]byte
	highest  int
}

func newSegmentCache() *segmentCache {
	return &segmentCache{segments: make(map[int][]byte), highest: -1}
}

// Put stores the segment unless an out-of-order write would clobber an
// existing one. It returns the bytes that should be served, which are the
// cached bytes when the write was rejected.
func (c *segmentCache) Put(index int, data []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.segments[index]; ok && index < c.highest {
		return existing
	}
	c.segments[index] = data
	if index > c.highest {
		c.highest = index
	}
	return data
}

// Get returns the cached segment.
func (c *segmentCache) Get(index int) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.segments[index]
	return data, ok
}

// Len reports how many segments are cached.
func (c *segmentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.segments)
}
