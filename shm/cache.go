package shm

// MaxCacheSize bounds the reuse cache (spec §6 MAX_CACHE_SIZE). Shared-
// memory region creation costs a file descriptor, an ftruncate and an mmap
// syscall, so reusing regions across sends amortizes real overhead; the
// bound exists so a transient run of oversize allocations can't pin the
// node to a large memory footprint forever.
const MaxCacheSize = 20

// Cache is a bounded FIFO of free Handles, reused by best-fit size. It is
// not safe for concurrent use — NodeCore owns it exclusively, matching the
// single-actor model of spec.md §5.
type Cache struct {
	free []*Handle
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Len reports the number of free handles currently cached.
func (c *Cache) Len() int {
	return len(c.free)
}

// Take removes and returns the smallest cached handle with capacity ≥ len,
// or nil if none fits. Ties are broken toward the most recently inserted
// entry: the scan runs from the back of the FIFO first, mirroring the
// original Rust implementation's `.rev().min_by_key(...)` (see
// DESIGN.md / SPEC_FULL.md §12).
func (c *Cache) Take(length int) *Handle {
	best := -1
	for i := len(c.free) - 1; i >= 0; i-- {
		h := c.free[i]
		if h.Capacity() < length {
			continue
		}
		if best == -1 || h.Capacity() < c.free[best].Capacity() {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	h := c.free[best]
	c.free = append(c.free[:best], c.free[best+1:]...)
	return h
}

// Put returns a handle to the back of the cache, evicting from the front
// (destroying the evicted region) when the cache is over MaxCacheSize.
func (c *Cache) Put(h *Handle) {
	c.free = append(c.free, h)
	for len(c.free) > MaxCacheSize {
		evicted := c.free[0]
		c.free = c.free[1:]
		evicted.Destroy()
	}
}

// Drain destroys every cached handle and empties the cache. Used at node
// shutdown, when the cache itself is discarded.
func (c *Cache) Drain() {
	for _, h := range c.free {
		h.Destroy()
	}
	c.free = nil
}
