package listener

import "fmt"

// Filter selects the events a listener registration receives. Filters are
// used as registry keys, so implementations must be comparable (use pointer
// types). A nil Filter matches every event.
type Filter[K comparable, V any] interface {
	Evaluate(evt *MapEvent[K, V]) bool
}

// TransformerFilter is a Filter that also rewrites the events it matches.
// Listeners registered with a transformer filter receive the transformed
// event.
type TransformerFilter[K comparable, V any] interface {
	Filter[K, V]
	Transform(evt *MapEvent[K, V]) *MapEvent[K, V]
}

// --------------------------------------------------------------------------
// Event Filter
// --------------------------------------------------------------------------

// EventMask selects event kinds for an EventFilter
type EventMask uint8

const (
	MaskInserted EventMask = 1 << iota
	MaskDeleted
	MaskUpdated
	// MaskUpdatedEntered matches updates where the old value failed the
	// predicate and the new one passes
	MaskUpdatedEntered
	// MaskUpdatedLeft matches updates where the old value passed the
	// predicate and the new one fails
	MaskUpdatedLeft
	// MaskUpdatedWithin matches updates where both values pass
	MaskUpdatedWithin

	MaskAll = MaskInserted | MaskDeleted | MaskUpdated
	// MaskKeySet matches events that change the set of keys passing the
	// predicate
	MaskKeySet = MaskInserted | MaskDeleted | MaskUpdatedEntered | MaskUpdatedLeft
)

// EventFilter matches events by kind and an optional predicate on the values
type EventFilter[K comparable, V any] struct {
	mask      EventMask
	predicate func(V) bool
}

// NewEventFilter creates an event filter. A nil predicate accepts all values.
func NewEventFilter[K comparable, V any](mask EventMask, predicate func(V) bool) *EventFilter[K, V] {
	return &EventFilter[K, V]{mask: mask, predicate: predicate}
}

func (f *EventFilter[K, V]) Evaluate(evt *MapEvent[K, V]) bool {
	switch evt.ID {
	case Inserted:
		return f.mask&MaskInserted != 0 && f.test(evt.NewValue, evt.HasNew)
	case Deleted:
		if f.mask&MaskDeleted == 0 {
			return false
		}
		return f.test(evt.OldValue())
	case Updated:
		if f.mask&(MaskUpdated|MaskUpdatedEntered|MaskUpdatedLeft|MaskUpdatedWithin) == 0 {
			return false
		}
		wasIn := f.test(evt.OldValue())
		isIn := f.test(evt.NewValue, evt.HasNew)
		return f.mask&MaskUpdated != 0 && (wasIn || isIn) ||
			f.mask&MaskUpdatedEntered != 0 && !wasIn && isIn ||
			f.mask&MaskUpdatedLeft != 0 && wasIn && !isIn ||
			f.mask&MaskUpdatedWithin != 0 && wasIn && isIn
	default:
		return false
	}
}

// test applies the predicate. Missing values only pass without predicate.
func (f *EventFilter[K, V]) test(value V, present bool) bool {
	if f.predicate == nil {
		return true
	}
	return present && f.predicate(value)
}

func (f *EventFilter[K, V]) String() string {
	return fmt.Sprintf("EventFilter(mask=%06b, predicate=%t)", f.mask, f.predicate != nil)
}

// --------------------------------------------------------------------------
// Key & Predicate Filter
// --------------------------------------------------------------------------

// KeyFilter matches events for a fixed set of keys
type KeyFilter[K comparable, V any] struct {
	keys map[K]struct{}
}

func NewKeyFilter[K comparable, V any](keys ...K) *KeyFilter[K, V] {
	f := &KeyFilter[K, V]{keys: make(map[K]struct{}, len(keys))}
	for _, k := range keys {
		f.keys[k] = struct{}{}
	}
	return f
}

func (f *KeyFilter[K, V]) Evaluate(evt *MapEvent[K, V]) bool {
	_, ok := f.keys[evt.Key]
	return ok
}

// PredicateFilter matches events accepted by a function
type PredicateFilter[K comparable, V any] struct {
	fn func(evt *MapEvent[K, V]) bool
}

func NewPredicateFilter[K comparable, V any](fn func(evt *MapEvent[K, V]) bool) *PredicateFilter[K, V] {
	return &PredicateFilter[K, V]{fn: fn}
}

func (f *PredicateFilter[K, V]) Evaluate(evt *MapEvent[K, V]) bool {
	return f.fn(evt)
}

// --------------------------------------------------------------------------
// Transformer
// --------------------------------------------------------------------------

// Transformer is a TransformerFilter built from a filter and a function
// computing the transformed new value
type Transformer[K comparable, V any] struct {
	filter Filter[K, V]
	fn     func(evt *MapEvent[K, V]) V
}

// NewTransformer creates a transformer. A nil filter transforms all events.
func NewTransformer[K comparable, V any](filter Filter[K, V], fn func(evt *MapEvent[K, V]) V) *Transformer[K, V] {
	return &Transformer[K, V]{filter: filter, fn: fn}
}

func (t *Transformer[K, V]) Evaluate(evt *MapEvent[K, V]) bool {
	return t.filter == nil || t.filter.Evaluate(evt)
}

func (t *Transformer[K, V]) Transform(evt *MapEvent[K, V]) *MapEvent[K, V] {
	return evt.WithNewValue(t.fn(evt))
}
