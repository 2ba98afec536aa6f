// Package sparse provides a sparse array: an ordered container of values keyed
// by arbitrary int64 indices, backed by a self-balancing AVL tree.
//
// Unlike a slice, the array only allocates memory for indices that were set,
// so it can hold values at index math.MinInt64, 0 and math.MaxInt64 at the same
// time without allocating anything in between.
//
// Features:
//   - O(log n) Get, Set, Remove, Floor and Ceiling
//   - Range removal (RemoveRange) walking the tree in order without allocating
//     an iterator
//   - Forward and reverse iteration, optionally starting at an arbitrary index
//   - In-place removal and value replacement through the iterator
//   - Go 1.23 range-over-func support via All and Backward
//
// Balancing:
//
//	Every node stores its balance factor (height of the right subtree minus the
//	height of the left subtree) instead of its height. After an insertion the
//	balance factors on the path to the root are updated until a subtree height
//	stops changing or a single (or double) rotation restores the balance. A
//	single insertion can unbalance at most one node, so the walk stops after the
//	first rotation. A deletion can shrink subtrees on the whole path to the root,
//	so the walk only stops when a subtree keeps its height.
//
// Thread Safety:
//
//	An Array is not thread-safe. Concurrent structural modification must be
//	synchronized externally.
//
// Usage Example:
//
//	arr := sparse.New[string]()
//	arr.Set(10, "ten")
//	arr.Set(-3, "minus three")
//
//	v, ok := arr.Floor(7) // "minus three", true
//
//	for idx, v := range arr.All() {
//	    fmt.Println(idx, v)
//	}
//
//	it := arr.Iterator()
//	for it.Next() {
//	    if it.Index() < 0 {
//	        _ = it.Remove()
//	    }
//	}
package sparse
