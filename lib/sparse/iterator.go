package sparse

import (
	"errors"
	"iter"
)

// ErrIllegalState is returned (or, for Index and Value, raised as a panic) if
// the iterator is used while it is not positioned on an element: before the
// first call to Next, after Next returned false or after the current element
// was removed.
var ErrIllegalState = errors.New("sparse: iterator is not positioned on an element")

// Iterator walks over the elements of an Array in index order (or in reverse
// index order). Use it like a bufio.Scanner:
//
//	it := arr.Iterator()
//	for it.Next() {
//	    fmt.Println(it.Index(), it.Value())
//	}
//
// The current element can be removed or replaced while iterating. Any other
// structural modification of the array invalidates the iterator.
type Iterator[V any] struct {
	array   *Array[V]
	reverse bool
	curr    *node[V] // element the iterator is positioned on
	next    *node[V] // element returned by the following call to Next
}

// Iterator returns an iterator over all elements in ascending index order
func (a *Array[V]) Iterator() *Iterator[V] {
	it := &Iterator[V]{array: a}
	if a.root != nil {
		it.next = leftmost(a.root)
	}
	return it
}

// ReverseIterator returns an iterator over all elements in descending index
// order
func (a *Array[V]) ReverseIterator() *Iterator[V] {
	it := &Iterator[V]{array: a, reverse: true}
	if a.root != nil {
		it.next = rightmost(a.root)
	}
	return it
}

// IteratorFrom returns an iterator starting at index. The first call to Next
// positions the iterator on the nearest existing index >= index (or <= index
// if reverse is set).
func (a *Array[V]) IteratorFrom(index int64, reverse bool) *Iterator[V] {
	it := &Iterator[V]{array: a, reverse: reverse}
	if reverse {
		it.next = a.floorNode(index)
	} else {
		it.next = a.ceilingNode(index)
	}
	return it
}

// Next advances the iterator to the next element.
// It returns false if there are no more elements.
func (it *Iterator[V]) Next() bool {
	it.curr = it.next
	if it.curr == nil {
		return false
	}
	if it.reverse {
		it.next = predecessor(it.curr)
	} else {
		it.next = successor(it.curr)
	}
	return true
}

// HasNext returns true if a following call to Next will succeed
func (it *Iterator[V]) HasNext() bool {
	return it.next != nil
}

// Index returns the index of the current element.
// It panics with ErrIllegalState if the iterator is not positioned.
func (it *Iterator[V]) Index() int64 {
	if it.curr == nil {
		panic(ErrIllegalState)
	}
	return it.curr.key
}

// Value returns the value of the current element.
// It panics with ErrIllegalState if the iterator is not positioned.
func (it *Iterator[V]) Value() V {
	if it.curr == nil {
		panic(ErrIllegalState)
	}
	return it.curr.value
}

// SetValue replaces the value of the current element and returns the old one
func (it *Iterator[V]) SetValue(value V) (V, error) {
	if it.curr == nil {
		var zero V
		return zero, ErrIllegalState
	}
	old := it.curr.value
	it.curr.value = value
	return old, nil
}

// Remove removes the current element from the array. Calling Remove twice
// without a call to Next in between returns ErrIllegalState.
func (it *Iterator[V]) Remove() error {
	if it.curr == nil {
		return ErrIllegalState
	}
	it.array.removeNode(it.curr)
	it.curr = nil
	return nil
}

// --------------------------------------------------------------------------
// Range-over-func support
// --------------------------------------------------------------------------

// All returns a sequence of all (index, value) pairs in ascending order
func (a *Array[V]) All() iter.Seq2[int64, V] {
	return func(yield func(int64, V) bool) {
		it := a.Iterator()
		for it.Next() {
			if !yield(it.curr.key, it.curr.value) {
				return
			}
		}
	}
}

// Backward returns a sequence of all (index, value) pairs in descending order
func (a *Array[V]) Backward() iter.Seq2[int64, V] {
	return func(yield func(int64, V) bool) {
		it := a.ReverseIterator()
		for it.Next() {
			if !yield(it.curr.key, it.curr.value) {
				return
			}
		}
	}
}

// Indices returns all indices in ascending order
func (a *Array[V]) Indices() []int64 {
	out := make([]int64, 0, a.size)
	for idx := range a.All() {
		out = append(out, idx)
	}
	return out
}
