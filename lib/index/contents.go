package index

// contents is the read-only view of the inverse index of a SimpleIndex.
// Every call takes the read lock of the index, so results are consistent
// snapshots of the moment of the call.
type contents[K comparable, V any] struct {
	idx *SimpleIndex[K, V]
}

func (c *contents[K, V]) Get(value any) []K {
	c.idx.mu.RLock()
	defer c.idx.mu.RUnlock()
	if keys, ok := c.lookup(value); ok {
		return keys.keys()
	}
	return nil
}

func (c *contents[K, V]) Contains(value any) bool {
	c.idx.mu.RLock()
	defer c.idx.mu.RUnlock()
	_, ok := c.lookup(value)
	return ok
}

func (c *contents[K, V]) Len() int {
	c.idx.mu.RLock()
	defer c.idx.mu.RUnlock()
	return c.idx.inverse.len()
}

// Range holds the read lock while fn runs, fn must not modify the index
func (c *contents[K, V]) Range(fn func(value any, keys []K) bool) {
	c.idx.mu.RLock()
	defer c.idx.mu.RUnlock()
	c.idx.inverse.ascend(func(value any, keys *keySet[K]) bool {
		return fn(external(value), keys.keys())
	})
}

func (c *contents[K, V]) Snapshot() map[any][]K {
	c.idx.mu.RLock()
	defer c.idx.mu.RUnlock()
	out := make(map[any][]K, c.idx.inverse.len())
	c.idx.inverse.ascend(func(value any, keys *keySet[K]) bool {
		out[external(value)] = keys.keys()
		return true
	})
	return out
}

// lookup guards against unhashable lookup values, which would make the hash
// store panic, and maps NaN to its stored form
func (c *contents[K, V]) lookup(value any) (*keySet[K], bool) {
	key, err := c.idx.normalizeLookup(value)
	if err != nil {
		return nil, false
	}
	return c.idx.inverse.get(key)
}
