package sparse

import (
	"fmt"
	"math"
	"strings"
)

// NotFound is returned by the index lookups (FloorIndex, CeilingIndex,
// FirstIndex, LastIndex) if no matching index exists.
//
// Note: math.MinInt64 is also a valid index. Use FloorEntry or CeilingEntry if
// the array may contain it.
const NotFound int64 = math.MinInt64

// --------------------------------------------------------------------------
// Tree Node
// --------------------------------------------------------------------------

// node is a single element of the AVL tree. The key never changes after the
// node was created; removal moves nodes around instead of copying keys, so a
// node pointer stays valid for its element until the element is removed.
type node[V any] struct {
	key     int64
	value   V
	parent  *node[V]
	left    *node[V]
	right   *node[V]
	balance int8 // height(right) - height(left)
}

// detach clears all links so that stale iterators can't walk into the tree
func (n *node[V]) detach() {
	n.parent = nil
	n.left = nil
	n.right = nil
}

// clone copies the subtree rooted at n. Values are copied shallowly.
func (n *node[V]) clone(parent *node[V]) *node[V] {
	if n == nil {
		return nil
	}
	c := &node[V]{
		key:     n.key,
		value:   n.value,
		parent:  parent,
		balance: n.balance,
	}
	c.left = n.left.clone(c)
	c.right = n.right.clone(c)
	return c
}

// --------------------------------------------------------------------------
// Array
// --------------------------------------------------------------------------

// Array is a sparse array of values of type V indexed by int64.
// The zero value is an empty array ready to use.
type Array[V any] struct {
	root *node[V]
	size int
}

// New creates a new empty sparse array
func New[V any]() *Array[V] {
	return &Array[V]{}
}

// Len returns the number of indices that hold a value
func (a *Array[V]) Len() int {
	return a.size
}

// IsEmpty returns true if the array holds no values
func (a *Array[V]) IsEmpty() bool {
	return a.size == 0
}

// Clear removes all values from the array
func (a *Array[V]) Clear() {
	a.root = nil
	a.size = 0
}

// Clone returns a structural copy of the array. The tree is copied node by
// node, the values themselves are copied shallowly.
func (a *Array[V]) Clone() *Array[V] {
	return &Array[V]{
		root: a.root.clone(nil),
		size: a.size,
	}
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the value stored at index.
// The boolean indicates whether a value exists at the index.
func (a *Array[V]) Get(index int64) (V, bool) {
	if n := a.find(index); n != nil {
		return n.value, true
	}
	var zero V
	return zero, false
}

// Exists returns true if a value is stored at index
func (a *Array[V]) Exists(index int64) bool {
	return a.find(index) != nil
}

// FirstIndex returns the lowest index holding a value, or NotFound
func (a *Array[V]) FirstIndex() int64 {
	if a.root == nil {
		return NotFound
	}
	return leftmost(a.root).key
}

// LastIndex returns the highest index holding a value, or NotFound
func (a *Array[V]) LastIndex() int64 {
	if a.root == nil {
		return NotFound
	}
	return rightmost(a.root).key
}

// Floor returns the value at the highest index that is less than or equal to
// the given index
func (a *Array[V]) Floor(index int64) (V, bool) {
	_, v, ok := a.FloorEntry(index)
	return v, ok
}

// FloorIndex returns the highest index that is less than or equal to the
// given index, or NotFound
func (a *Array[V]) FloorIndex(index int64) int64 {
	if n := a.floorNode(index); n != nil {
		return n.key
	}
	return NotFound
}

// FloorEntry returns index and value of the floor element
func (a *Array[V]) FloorEntry(index int64) (int64, V, bool) {
	if n := a.floorNode(index); n != nil {
		return n.key, n.value, true
	}
	var zero V
	return NotFound, zero, false
}

// Ceiling returns the value at the lowest index that is greater than or equal
// to the given index
func (a *Array[V]) Ceiling(index int64) (V, bool) {
	_, v, ok := a.CeilingEntry(index)
	return v, ok
}

// CeilingIndex returns the lowest index that is greater than or equal to the
// given index, or NotFound
func (a *Array[V]) CeilingIndex(index int64) int64 {
	if n := a.ceilingNode(index); n != nil {
		return n.key
	}
	return NotFound
}

// CeilingEntry returns index and value of the ceiling element
func (a *Array[V]) CeilingEntry(index int64) (int64, V, bool) {
	if n := a.ceilingNode(index); n != nil {
		return n.key, n.value, true
	}
	var zero V
	return NotFound, zero, false
}

// find returns the node for index or nil
func (a *Array[V]) find(index int64) *node[V] {
	n := a.root
	for n != nil {
		switch {
		case index < n.key:
			n = n.left
		case index > n.key:
			n = n.right
		default:
			return n
		}
	}
	return nil
}

func (a *Array[V]) floorNode(index int64) *node[V] {
	var best *node[V]
	n := a.root
	for n != nil {
		switch {
		case index < n.key:
			n = n.left
		case index > n.key:
			best = n
			n = n.right
		default:
			return n
		}
	}
	return best
}

func (a *Array[V]) ceilingNode(index int64) *node[V] {
	var best *node[V]
	n := a.root
	for n != nil {
		switch {
		case index < n.key:
			best = n
			n = n.left
		case index > n.key:
			n = n.right
		default:
			return n
		}
	}
	return best
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Set stores value at index and returns the previous value.
// The boolean indicates whether a previous value existed. An existing node is
// updated in place, otherwise a new node is inserted and the tree rebalanced.
func (a *Array[V]) Set(index int64, value V) (V, bool) {
	if a.root == nil {
		a.root = &node[V]{key: index, value: value}
		a.size = 1
		var zero V
		return zero, false
	}

	n := a.root
	for {
		switch {
		case index < n.key:
			if n.left == nil {
				n.left = &node[V]{key: index, value: value, parent: n}
				a.size++
				a.balanceInsertion(n.left)
				var zero V
				return zero, false
			}
			n = n.left
		case index > n.key:
			if n.right == nil {
				n.right = &node[V]{key: index, value: value, parent: n}
				a.size++
				a.balanceInsertion(n.right)
				var zero V
				return zero, false
			}
			n = n.right
		default:
			old := n.value
			n.value = value
			return old, true
		}
	}
}

// Remove removes the value at index and returns it.
// The boolean indicates whether a value was removed.
func (a *Array[V]) Remove(index int64) (V, bool) {
	n := a.find(index)
	if n == nil {
		var zero V
		return zero, false
	}
	v := n.value
	a.removeNode(n)
	return v, true
}

// RemoveRange removes all values with fromInclusive <= index < toExclusive.
//
// The removal walks the tree in order starting at the first node >=
// fromInclusive instead of searching every index of the range.
func (a *Array[V]) RemoveRange(fromInclusive, toExclusive int64) {
	if fromInclusive >= toExclusive {
		return
	}
	n := a.ceilingNode(fromInclusive)
	for n != nil && n.key < toExclusive {
		// the successor keeps its identity while n is removed (see node)
		next := successor(n)
		a.removeNode(n)
		n = next
	}
}

// removeNode unlinks n from the tree and rebalances it
func (a *Array[V]) removeNode(n *node[V]) {
	parent := n.parent

	switch {
	case n.left == nil || n.right == nil:
		child := n.left
		if child == nil {
			child = n.right
		}
		leftShrank := parent != nil && parent.left == n
		a.replaceChild(parent, n, child)
		if parent != nil {
			a.balanceDeletion(parent, leftShrank)
		}

	default:
		heir := leftmost(n.right)

		if heir == n.right {
			// the heir is the direct right child: it only adopts the left subtree
			heir.left = n.left
			heir.left.parent = heir
			heir.balance = n.balance
			a.replaceChild(parent, n, heir)
			a.balanceDeletion(heir, false)
		} else {
			// detach the heir from its parent (the heir has no left child)
			heirParent := heir.parent
			heirParent.left = heir.right
			if heir.right != nil {
				heir.right.parent = heirParent
			}

			heir.left = n.left
			heir.left.parent = heir
			heir.right = n.right
			heir.right.parent = heir
			heir.balance = n.balance
			a.replaceChild(parent, n, heir)
			a.balanceDeletion(heirParent, true)
		}
	}

	n.detach()
	a.size--
}

// --------------------------------------------------------------------------
// Balancing
// --------------------------------------------------------------------------

// balanceInsertion walks from the inserted leaf to the root and updates the
// balance factors. The walk stops as soon as the height of a subtree did not
// change or after the first rotation.
func (a *Array[V]) balanceInsertion(n *node[V]) {
	for p := n.parent; p != nil; n, p = p, p.parent {
		if p.left == n {
			p.balance--
		} else {
			p.balance++
		}

		switch p.balance {
		case 0:
			return
		case -1, 1:
			continue
		default:
			a.rotate(p)
			return
		}
	}
}

// balanceDeletion walks from p to the root after a subtree of p lost one level
// of height. leftShrank tells which side of p shrank.
func (a *Array[V]) balanceDeletion(p *node[V], leftShrank bool) {
	for p != nil {
		if leftShrank {
			p.balance++
		} else {
			p.balance--
		}

		switch p.balance {
		case -1, 1:
			// the subtree kept its height
			return
		case 0:
			// the subtree is one level lower, continue with the parent
		default:
			top, shorter := a.rotate(p)
			if !shorter {
				return
			}
			p = top
		}

		parent := p.parent
		if parent == nil {
			return
		}
		leftShrank = parent.left == p
		p = parent
	}
}

// rotate restores the balance of p (balance factor +-2) with a single or a
// double rotation. It returns the new root of the subtree and whether the
// subtree is now lower than before the rotation.
func (a *Array[V]) rotate(p *node[V]) (*node[V], bool) {
	if p.balance < 0 {
		c := p.left
		if c.balance <= 0 {
			top := a.rotateRight(p)
			if c.balance == 0 {
				// only possible after a deletion
				p.balance, c.balance = -1, 1
				return top, false
			}
			p.balance, c.balance = 0, 0
			return top, true
		}

		g := c.right
		a.rotateLeft(c)
		top := a.rotateRight(p)
		switch g.balance {
		case -1:
			c.balance, p.balance = 0, 1
		case 1:
			c.balance, p.balance = -1, 0
		default:
			c.balance, p.balance = 0, 0
		}
		g.balance = 0
		return top, true
	}

	c := p.right
	if c.balance >= 0 {
		top := a.rotateLeft(p)
		if c.balance == 0 {
			p.balance, c.balance = 1, -1
			return top, false
		}
		p.balance, c.balance = 0, 0
		return top, true
	}

	g := c.left
	a.rotateRight(c)
	top := a.rotateLeft(p)
	switch g.balance {
	case 1:
		c.balance, p.balance = 0, -1
	case -1:
		c.balance, p.balance = 1, 0
	default:
		c.balance, p.balance = 0, 0
	}
	g.balance = 0
	return top, true
}

// rotateLeft makes the right child of n the root of the subtree
func (a *Array[V]) rotateLeft(n *node[V]) *node[V] {
	r := n.right
	n.right = r.left
	if r.left != nil {
		r.left.parent = n
	}
	a.replaceChild(n.parent, n, r)
	r.left = n
	n.parent = r
	return r
}

// rotateRight makes the left child of n the root of the subtree
func (a *Array[V]) rotateRight(n *node[V]) *node[V] {
	l := n.left
	n.left = l.right
	if l.right != nil {
		l.right.parent = n
	}
	a.replaceChild(n.parent, n, l)
	l.right = n
	n.parent = l
	return l
}

// replaceChild links replacement into the position of old below parent
func (a *Array[V]) replaceChild(parent, old, replacement *node[V]) {
	if replacement != nil {
		replacement.parent = parent
	}
	switch {
	case parent == nil:
		a.root = replacement
	case parent.left == old:
		parent.left = replacement
	default:
		parent.right = replacement
	}
}

// --------------------------------------------------------------------------
// Navigation
// --------------------------------------------------------------------------

func leftmost[V any](n *node[V]) *node[V] {
	for n.left != nil {
		n = n.left
	}
	return n
}

func rightmost[V any](n *node[V]) *node[V] {
	for n.right != nil {
		n = n.right
	}
	return n
}

// walkState is the direction from which the in-order walk arrived at a node
type walkState int8

const (
	walkAbove walkState = iota // came from the parent, descend
	walkLeft                   // came back from the left child
	walkRight                  // came back from the right child
)

// successor returns the in-order successor of n (or nil).
// It is the in-order walk written as a state machine so that no stack or
// iterator has to be allocated.
func successor[V any](n *node[V]) *node[V] {
	// everything up to and including n was visited
	state := walkRight
	if n.right != nil {
		n = n.right
		state = walkAbove
	}
	for {
		switch state {
		case walkAbove:
			if n.left == nil {
				return n
			}
			n = n.left
		case walkLeft:
			return n
		case walkRight:
			p := n.parent
			if p == nil {
				return nil
			}
			if p.left == n {
				state = walkLeft
			}
			n = p
		}
	}
}

// predecessor returns the in-order predecessor of n (or nil)
func predecessor[V any](n *node[V]) *node[V] {
	if n.left != nil {
		return rightmost(n.left)
	}
	for p := n.parent; p != nil; n, p = p, p.parent {
		if p.right == n {
			return p
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Diagnostics
// --------------------------------------------------------------------------

// Validate checks the structural invariants of the tree: key ordering, parent
// links, balance factors and the element count. It is meant for tests and
// debugging, the hot path never checks these invariants.
func (a *Array[V]) Validate() error {
	if a.root != nil && a.root.parent != nil {
		return fmt.Errorf("root %d has a parent", a.root.key)
	}
	count := 0
	if _, err := validate(a.root, nil, nil, &count); err != nil {
		return err
	}
	if count != a.size {
		return fmt.Errorf("size mismatch: counted %d nodes, size is %d", count, a.size)
	}
	return nil
}

// validate returns the height of the subtree rooted at n
func validate[V any](n *node[V], lower, upper *int64, count *int) (int, error) {
	if n == nil {
		return 0, nil
	}
	*count++

	if lower != nil && n.key <= *lower {
		return 0, fmt.Errorf("node %d is not greater than %d", n.key, *lower)
	}
	if upper != nil && n.key >= *upper {
		return 0, fmt.Errorf("node %d is not less than %d", n.key, *upper)
	}
	if n.left != nil && n.left.parent != n {
		return 0, fmt.Errorf("left child %d of %d has a wrong parent", n.left.key, n.key)
	}
	if n.right != nil && n.right.parent != n {
		return 0, fmt.Errorf("right child %d of %d has a wrong parent", n.right.key, n.key)
	}

	hl, err := validate(n.left, lower, &n.key, count)
	if err != nil {
		return 0, err
	}
	hr, err := validate(n.right, &n.key, upper, count)
	if err != nil {
		return 0, err
	}

	if diff := hr - hl; diff != int(n.balance) {
		return 0, fmt.Errorf("node %d has balance %d but subtree heights differ by %d", n.key, n.balance, diff)
	}
	if n.balance < -1 || n.balance > 1 {
		return 0, fmt.Errorf("node %d is unbalanced (%d)", n.key, n.balance)
	}

	return max(hl, hr) + 1, nil
}

// String returns the elements in index order, e.g. "[1=a, 5=b]"
func (a *Array[V]) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	first := true
	for idx, v := range a.All() {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(fmt.Sprintf("%d=%v", idx, v))
	}
	sb.WriteString("]")
	return sb.String()
}
