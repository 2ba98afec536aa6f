package listener

import (
	"fmt"
	"sync"
)

// --------------------------------------------------------------------------
// Event Types
// --------------------------------------------------------------------------

// EventID identifies the kind of change
type EventID int8

const (
	Inserted EventID = iota + 1
	Updated
	Deleted
)

func (id EventID) String() string {
	switch id {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("EventID(%d)", int8(id))
	}
}

// TransformState describes the relation of an event to transformer filters
type TransformState int8

const (
	// Transformable events may be matched and rewritten by transformer filters
	Transformable TransformState = iota
	// NonTransformable events skip all transformer filters
	NonTransformable
	// Transformed events are the result of a transformation and skip key listeners
	Transformed
)

func (s TransformState) String() string {
	switch s {
	case Transformable:
		return "transformable"
	case NonTransformable:
		return "non-transformable"
	case Transformed:
		return "transformed"
	default:
		return fmt.Sprintf("TransformState(%d)", int8(s))
	}
}

// --------------------------------------------------------------------------
// Old Values
// --------------------------------------------------------------------------

// OldValue is the old value of an event, either Active (loaded on demand) or
// Deactivated (fixed). The only transition is Active -> Deactivated.
type OldValue[V any] interface {
	load() (V, bool)
}

// Active loads the old value on first access
type Active[V any] struct {
	loader  func() (V, bool)
	once    sync.Once
	loaded  bool
	value   V
	present bool
}

// NewActive creates a lazily loaded old value
func NewActive[V any](loader func() (V, bool)) *Active[V] {
	return &Active[V]{loader: loader}
}

func (a *Active[V]) load() (V, bool) {
	a.once.Do(func() {
		a.value, a.present = a.loader()
		a.loaded = true
	})
	return a.value, a.present
}

// deactivate fixes the value loaded so far. A value that was never
// requested is dropped.
func (a *Active[V]) deactivate() Deactivated[V] {
	a.once.Do(func() {}) // no load after deactivation
	if !a.loaded {
		return Deactivated[V]{}
	}
	return Deactivated[V]{Value: a.value, Present: a.present}
}

// Deactivated is a fixed old value
type Deactivated[V any] struct {
	Value   V
	Present bool
}

func (d Deactivated[V]) load() (V, bool) {
	return d.Value, d.Present
}

// --------------------------------------------------------------------------
// Map Event
// --------------------------------------------------------------------------

// MapEvent describes a change of a single map entry.
//
// Thread-safety: an event is dispatched by one goroutine at a time, the old
// value may be loaded concurrently.
type MapEvent[K comparable, V any] struct {
	Source    string
	ID        EventID
	Key       K
	NewValue  V
	HasNew    bool
	Transform TransformState

	old OldValue[V]
	// filters that selected the listeners of this event, set on dispatch
	filters []Filter[K, V]
}

// NewInsertEvent creates an event for a new entry
func NewInsertEvent[K comparable, V any](source string, key K, value V) *MapEvent[K, V] {
	return &MapEvent[K, V]{Source: source, ID: Inserted, Key: key, NewValue: value, HasNew: true}
}

// NewUpdateEvent creates an event for a changed entry
func NewUpdateEvent[K comparable, V any](source string, key K, oldValue, newValue V) *MapEvent[K, V] {
	return &MapEvent[K, V]{
		Source: source, ID: Updated, Key: key, NewValue: newValue, HasNew: true,
		old: Deactivated[V]{Value: oldValue, Present: true},
	}
}

// NewDeleteEvent creates an event for a removed entry
func NewDeleteEvent[K comparable, V any](source string, key K, oldValue V) *MapEvent[K, V] {
	return &MapEvent[K, V]{
		Source: source, ID: Deleted, Key: key,
		old: Deactivated[V]{Value: oldValue, Present: true},
	}
}

// NewDeferredEvent creates an event whose old value is loaded on demand
func NewDeferredEvent[K comparable, V any](source string, id EventID, key K, newValue V, hasNew bool, loader func() (V, bool)) *MapEvent[K, V] {
	return &MapEvent[K, V]{
		Source: source, ID: id, Key: key, NewValue: newValue, HasNew: hasNew,
		old: NewActive(loader),
	}
}

// OldValue returns the old value. Deferred values are loaded on first access.
func (e *MapEvent[K, V]) OldValue() (V, bool) {
	if e.old == nil {
		var zero V
		return zero, false
	}
	return e.old.load()
}

// Deactivate ends the lazy loading of the old value
func (e *MapEvent[K, V]) Deactivate() {
	if a, ok := e.old.(*Active[V]); ok {
		e.old = a.deactivate()
	}
}

// IsActive returns true if the old value may still be loaded lazily
func (e *MapEvent[K, V]) IsActive() bool {
	_, ok := e.old.(*Active[V])
	return ok
}

// Filters returns the filters that matched this event during dispatch
func (e *MapEvent[K, V]) Filters() []Filter[K, V] {
	return e.filters
}

// WithNewValue returns a copy of the event with another new value, marked as
// transformed. Used by transformers.
func (e *MapEvent[K, V]) WithNewValue(value V) *MapEvent[K, V] {
	out := &MapEvent[K, V]{
		Source: e.Source, ID: e.ID, Key: e.Key, NewValue: value, HasNew: true,
		Transform: Transformed, filters: e.filters,
	}
	if old, ok := e.OldValue(); ok {
		out.old = Deactivated[V]{Value: old, Present: true}
	}
	return out
}

func (e *MapEvent[K, V]) String() string {
	old := "-"
	switch o := e.old.(type) {
	case *Active[V]:
		old = "<deferred>"
	case Deactivated[V]:
		if o.Present {
			old = fmt.Sprint(o.Value)
		}
	}
	newValue := "-"
	if e.HasNew {
		newValue = fmt.Sprint(e.NewValue)
	}
	return fmt.Sprintf("MapEvent{%s %s key=%v old=%s new=%s}", e.Source, e.ID, e.Key, old, newValue)
}
