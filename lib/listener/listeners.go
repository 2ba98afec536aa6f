package listener

// Listener receives map events. Listeners are compared by identity when they
// are registered and removed, so implementations must be comparable (use
// pointer types or NewListener).
type Listener[K comparable, V any] interface {
	OnEvent(evt *MapEvent[K, V]) error
}

type funcListener[K comparable, V any] struct {
	fn func(evt *MapEvent[K, V]) error
}

func (l *funcListener[K, V]) OnEvent(evt *MapEvent[K, V]) error {
	return l.fn(evt)
}

// NewListener wraps a function as a Listener. Every call returns a new
// identity.
func NewListener[K comparable, V any](fn func(evt *MapEvent[K, V]) error) Listener[K, V] {
	return &funcListener[K, V]{fn: fn}
}

// --------------------------------------------------------------------------
// Listeners
// --------------------------------------------------------------------------

// Listeners is an ordered set of listeners. Collected sets also record the
// filters that selected them and the transformer a listener was selected by.
//
// Thread-safety: not safe for concurrent modification. Sets returned by
// Support.CollectListeners are not modified after they are returned.
type Listeners[K comparable, V any] struct {
	list    []Listener[K, V]
	via     []TransformerFilter[K, V] // parallel to list, nil delivers the original event
	pos     map[Listener[K, V]]int
	filters []Filter[K, V]
}

func NewListeners[K comparable, V any]() *Listeners[K, V] {
	return &Listeners[K, V]{pos: make(map[Listener[K, V]]int)}
}

// Add appends l if it is not yet contained
func (ls *Listeners[K, V]) Add(l Listener[K, V]) bool {
	return ls.add(l, nil)
}

func (ls *Listeners[K, V]) add(l Listener[K, V], via TransformerFilter[K, V]) bool {
	if i, ok := ls.pos[l]; ok {
		// a listener reached without transformation gets the original event
		if via == nil {
			ls.via[i] = nil
		}
		return false
	}
	ls.pos[l] = len(ls.list)
	ls.list = append(ls.list, l)
	ls.via = append(ls.via, via)
	return true
}

// addAll merges other into ls
func (ls *Listeners[K, V]) addAll(other *Listeners[K, V], via TransformerFilter[K, V]) {
	for _, l := range other.list {
		ls.add(l, via)
	}
}

// Remove removes l and keeps the order of the remaining listeners
func (ls *Listeners[K, V]) Remove(l Listener[K, V]) bool {
	i, ok := ls.pos[l]
	if !ok {
		return false
	}
	delete(ls.pos, l)
	ls.list = append(ls.list[:i], ls.list[i+1:]...)
	ls.via = append(ls.via[:i], ls.via[i+1:]...)
	for j := i; j < len(ls.list); j++ {
		ls.pos[ls.list[j]] = j
	}
	return true
}

func (ls *Listeners[K, V]) Contains(l Listener[K, V]) bool {
	_, ok := ls.pos[l]
	return ok
}

func (ls *Listeners[K, V]) Len() int {
	return len(ls.list)
}

func (ls *Listeners[K, V]) IsEmpty() bool {
	return len(ls.list) == 0
}

// List copies the listeners in order
func (ls *Listeners[K, V]) List() []Listener[K, V] {
	out := make([]Listener[K, V], len(ls.list))
	copy(out, ls.list)
	return out
}

// Filters returns the filters that selected this set (collected sets only)
func (ls *Listeners[K, V]) Filters() []Filter[K, V] {
	return ls.filters
}

// SameSet returns true if both sets contain the same listeners, regardless
// of the order
func (ls *Listeners[K, V]) SameSet(other *Listeners[K, V]) bool {
	if ls.Len() != other.Len() {
		return false
	}
	for _, l := range ls.list {
		if !other.Contains(l) {
			return false
		}
	}
	return true
}

func (ls *Listeners[K, V]) clone() *Listeners[K, V] {
	out := &Listeners[K, V]{
		list: make([]Listener[K, V], len(ls.list)),
		via:  make([]TransformerFilter[K, V], len(ls.via)),
		pos:  make(map[Listener[K, V]]int, len(ls.pos)),
	}
	copy(out.list, ls.list)
	copy(out.via, ls.via)
	for l, i := range ls.pos {
		out.pos[l] = i
	}
	return out
}
