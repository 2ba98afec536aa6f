package index

import (
	"github.com/google/btree"
)

// inverseStore maps extracted values to key sets. The hash variant has no
// order, the sorted variant keeps values in a B-tree.
type inverseStore[K comparable] interface {
	get(value any) (*keySet[K], bool)
	put(value any, keys *keySet[K])
	delete(value any)
	len() int
	// ascend visits all values (sorted if the store is ordered)
	ascend(fn func(value any, keys *keySet[K]) bool)
}

// --------------------------------------------------------------------------
// Hash store
// --------------------------------------------------------------------------

type hashStore[K comparable] map[any]*keySet[K]

func (h hashStore[K]) get(value any) (*keySet[K], bool) {
	s, ok := h[value]
	return s, ok
}

func (h hashStore[K]) put(value any, keys *keySet[K]) { h[value] = keys }
func (h hashStore[K]) delete(value any)               { delete(h, value) }
func (h hashStore[K]) len() int                       { return len(h) }

func (h hashStore[K]) ascend(fn func(value any, keys *keySet[K]) bool) {
	for v, s := range h {
		if !fn(v, s) {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Sorted store
// --------------------------------------------------------------------------

// btreeDegree is the degree of the B-tree backing ordered indexes
const btreeDegree = 16

type inverseItem[K comparable] struct {
	value any
	keys  *keySet[K]
}

type sortedStore[K comparable] struct {
	tree *btree.BTreeG[inverseItem[K]]
}

func newSortedStore[K comparable](compare CompareFunc) *sortedStore[K] {
	less := func(a, b inverseItem[K]) bool {
		return compare(external(a.value), external(b.value)) < 0
	}
	return &sortedStore[K]{tree: btree.NewG[inverseItem[K]](btreeDegree, less)}
}

func (s *sortedStore[K]) get(value any) (*keySet[K], bool) {
	item, ok := s.tree.Get(inverseItem[K]{value: value})
	if !ok {
		return nil, false
	}
	return item.keys, true
}

func (s *sortedStore[K]) put(value any, keys *keySet[K]) {
	s.tree.ReplaceOrInsert(inverseItem[K]{value: value, keys: keys})
}

func (s *sortedStore[K]) delete(value any) {
	s.tree.Delete(inverseItem[K]{value: value})
}

func (s *sortedStore[K]) len() int { return s.tree.Len() }

func (s *sortedStore[K]) ascend(fn func(value any, keys *keySet[K]) bool) {
	s.tree.Ascend(func(item inverseItem[K]) bool {
		return fn(item.value, item.keys)
	})
}
