package index

import (
	"errors"

	"github.com/ValentinKolb/dMap/lib/util"
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrNoOriginalValue is returned by Update if the previously extracted
	// value is unknown to the index and the entry has no original value.
	ErrNoOriginalValue = errors.New("index: cannot extract the old value")

	// ErrUnhashable is the extraction error recorded for values that can't be
	// used as keys of the inverse index (e.g. maps or unsplit slices).
	ErrUnhashable = errors.New("index: extracted value is not hashable")

	// ErrInvalidOption is returned by New for contradicting or malformed options.
	ErrInvalidOption = errors.New("index: invalid option")
)

// --------------------------------------------------------------------------
// Entries
// --------------------------------------------------------------------------

// Entry is the view of a map entry an index is notified with
type Entry[K comparable, V any] interface {
	Key() K
	Value() V
}

// OriginalEntry is an Entry that also knows the value it had before the
// current change (a before-image)
type OriginalEntry[K comparable, V any] interface {
	Entry[K, V]
	OriginalValue() V
	IsOriginalPresent() bool
}

// SimpleEntry is a plain OriginalEntry implementation
type SimpleEntry[K comparable, V any] struct {
	K           K
	V           V
	Original    V
	HasOriginal bool
}

// NewEntry creates an entry without original value
func NewEntry[K comparable, V any](key K, value V) *SimpleEntry[K, V] {
	return &SimpleEntry[K, V]{K: key, V: value}
}

// NewUpdateEntry creates an entry with an original value
func NewUpdateEntry[K comparable, V any](key K, value, original V) *SimpleEntry[K, V] {
	return &SimpleEntry[K, V]{K: key, V: value, Original: original, HasOriginal: true}
}

func (e *SimpleEntry[K, V]) Key() K                  { return e.K }
func (e *SimpleEntry[K, V]) Value() V                { return e.V }
func (e *SimpleEntry[K, V]) OriginalValue() V        { return e.Original }
func (e *SimpleEntry[K, V]) IsOriginalPresent() bool { return e.HasOriginal }

// originalView presents the original value of an entry as its value, so that
// extractors can be applied to the before-image
type originalView[K comparable, V any] struct {
	OriginalEntry[K, V]
}

func (o originalView[K, V]) Value() V { return o.OriginalValue() }

// --------------------------------------------------------------------------
// Extractors
// --------------------------------------------------------------------------

// Extractor computes the indexed value of an entry
type Extractor[K comparable, V any] interface {
	Extract(entry Entry[K, V]) (any, error)
}

// ExtractorFunc adapts a function to the Extractor interface
type ExtractorFunc[K comparable, V any] func(entry Entry[K, V]) (any, error)

func (f ExtractorFunc[K, V]) Extract(entry Entry[K, V]) (any, error) {
	return f(entry)
}

// Identity returns an extractor that indexes the entry value itself
func Identity[K comparable, V any]() ExtractorFunc[K, V] {
	return func(entry Entry[K, V]) (any, error) {
		return entry.Value(), nil
	}
}

// ValueFunc returns an extractor applying fn to the entry value
func ValueFunc[K comparable, V any](fn func(V) (any, error)) ExtractorFunc[K, V] {
	return func(entry Entry[K, V]) (any, error) {
		return fn(entry.Value())
	}
}

// Condition decides whether an entry is part of a conditional index
type Condition[K comparable, V any] func(entry Entry[K, V]) bool

// --------------------------------------------------------------------------
// Index Interface
// --------------------------------------------------------------------------

// MapIndex is a secondary index over the entries of a map with keys of type K
// and values of type V
type MapIndex[K comparable, V any] interface {
	// Insert adds the mappings for a new entry
	Insert(entry Entry[K, V])

	// Update replaces the mappings of an existing entry.
	// Returns ErrNoOriginalValue if the old extracted value can't be determined.
	Update(entry Entry[K, V]) error

	// Delete removes all mappings of an entry
	Delete(entry Entry[K, V])

	// Get returns the extracted value for a key. The boolean is false if the
	// key is not indexed, excluded or the index has no forward index.
	// Split collections are returned as []any.
	Get(key K) (any, bool)

	// Contents returns a read-only view of the inverse index
	Contents() Contents[K]

	// IsPartial returns true if at least one entry is excluded because its
	// value could not be extracted
	IsPartial() bool

	// IsOrdered returns true if the inverse index is sorted by value
	IsOrdered() bool

	// Extractor returns the extractor of this index
	Extractor() Extractor[K, V]

	// Units returns the estimated memory footprint of the index
	Units() int64

	// Info returns statistics about the index
	Info() Info
}

// Contents is a read-only view of the inverse index (extracted value -> keys)
type Contents[K comparable] interface {
	// Get returns the keys that produced value (nil if none)
	Get(value any) []K
	// Contains returns true if at least one key produced value
	Contains(value any) bool
	// Len returns the number of distinct extracted values
	Len() int
	// Range calls fn for every value and its keys, in ascending value order
	// if the index is ordered. Returning false stops the iteration.
	Range(fn func(value any, keys []K) bool)
	// Snapshot copies the whole inverse index. A NaN value appears as a NaN
	// key, which can be ranged over but not looked up; use Get for it.
	Snapshot() map[any][]K
}

// Info describes the state of an index
type Info struct {
	Units        int64      `json:"units"`
	Keys         int        `json:"keys"`
	Values       int        `json:"values"`
	Ordered      bool       `json:"ordered"`
	Partial      bool       `json:"partial"`
	Excluded     int        `json:"excluded"`
	KeySetSizes  util.Stats `json:"key_set_sizes"`
	KeySetMedian int        `json:"key_set_median"`
}
