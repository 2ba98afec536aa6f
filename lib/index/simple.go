package index

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/ValentinKolb/dMap/lib/util"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("index")

// Unit estimates for the structures of an index
const (
	entryOverhead      = 48 // map slot of a forward or inverse entry
	keySetOverhead     = 48 // map header of an inflated key set
	keySetEntry        = 16 // key slot in an inflated key set
	multiValueOverhead = 32 // pointer + slice header of a split collection
	sharedValueUnits   = 8  // pointer to a multi-value owned by another key
)

// multiValue is a split collection. Elements are unique and hashable.
type multiValue struct {
	values []any
}

func (m *multiValue) equal(o *multiValue) bool {
	if m == o {
		return true
	}
	if len(m.values) != len(o.values) {
		return false
	}
	set := make(map[any]struct{}, len(m.values))
	for _, v := range m.values {
		set[v] = struct{}{}
	}
	for _, v := range o.values {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}

type forwardEntry struct {
	value any
	units int64
}

// prevState describes what is known about the value an entry contributed
// to the index before the current change
type prevState int8

const (
	prevNone    prevState = iota // nothing indexed for the key
	prevKnown                    // the previous value is known
	prevUnknown                  // something may be indexed, but the value is unknown
)

// SimpleIndex is the default MapIndex implementation, see the package
// documentation for details.
//
// Thread-safety: mutations are serialized by an internal lock, reads take
// the lock in shared mode.
type SimpleIndex[K comparable, V any] struct {
	mu        sync.RWMutex
	extractor Extractor[K, V]
	condition Condition[K, V]
	cfg       config
	calc      *Calculator

	forward  map[K]forwardEntry // nil without forward index
	inverse  inverseStore[K]
	excluded map[K]struct{}
	units    int64
	missing  missingLimiter
}

var _ MapIndex[string, string] = (*SimpleIndex[string, string])(nil)

// New creates an index using extractor
func New[K comparable, V any](extractor Extractor[K, V], opts ...Option) (*SimpleIndex[K, V], error) {
	if extractor == nil {
		return nil, fmt.Errorf("%w: nil extractor", ErrInvalidOption)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	idx := &SimpleIndex[K, V]{
		extractor: extractor,
		cfg:       cfg,
		calc:      NewCalculator(cfg.calculator),
		excluded:  make(map[K]struct{}),
		missing:   missingLimiter{now: cfg.now},
	}

	if cfg.condition != nil {
		cond, ok := cfg.condition.(Condition[K, V])
		if !ok {
			return nil, fmt.Errorf("%w: condition of type %T does not match the index", ErrInvalidOption, cfg.condition)
		}
		if !cfg.forward {
			return nil, fmt.Errorf("%w: a conditional index needs a forward index", ErrInvalidOption)
		}
		idx.condition = cond
	}

	if cfg.forward {
		idx.forward = make(map[K]forwardEntry)
	}
	if cfg.ordered {
		idx.inverse = newSortedStore[K](cfg.compare)
	} else {
		idx.inverse = make(hashStore[K])
	}
	return idx, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see MapIndex interface)
// --------------------------------------------------------------------------

func (idx *SimpleIndex[K, V]) Insert(entry Entry[K, V]) {
	if idx.condition != nil && !idx.condition(entry) {
		idx.leave(entry.Key())
		return
	}
	value, err := idx.extract(entry)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := entry.Key()
	var prev any
	state := prevNone
	if fe, ok := idx.forward[key]; ok {
		prev, state = fe.value, prevKnown
	}
	idx.apply(key, prev, state, value, err)
}

func (idx *SimpleIndex[K, V]) Update(entry Entry[K, V]) error {
	key := entry.Key()

	if idx.condition != nil && !idx.condition(entry) {
		idx.leave(key)
		return nil
	}

	value, err := idx.extract(entry)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	prev, state, perr := idx.previous(entry)
	if perr != nil {
		return perr
	}
	idx.apply(key, prev, state, value, err)
	return nil
}

func (idx *SimpleIndex[K, V]) Delete(entry Entry[K, V]) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := entry.Key()
	partial := idx.isPartial()
	prev, state, err := idx.previous(entry)
	if err != nil {
		state = prevUnknown
	}
	idx.removePrevious(key, prev, state, partial)
	idx.dropForward(key)
	idx.include(key)
}

func (idx *SimpleIndex[K, V]) Get(key K) (any, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fe, ok := idx.forward[key]
	if !ok {
		return nil, false
	}
	if mv, ok := fe.value.(*multiValue); ok {
		out := make([]any, len(mv.values))
		for i, e := range mv.values {
			out[i] = external(e)
		}
		return out, true
	}
	return external(fe.value), true
}

func (idx *SimpleIndex[K, V]) Contents() Contents[K] {
	return &contents[K, V]{idx: idx}
}

func (idx *SimpleIndex[K, V]) IsPartial() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.isPartial()
}

func (idx *SimpleIndex[K, V]) IsOrdered() bool {
	return idx.cfg.ordered
}

func (idx *SimpleIndex[K, V]) Extractor() Extractor[K, V] {
	return idx.extractor
}

func (idx *SimpleIndex[K, V]) Units() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.units
}

func (idx *SimpleIndex[K, V]) Info() Info {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hist := util.NewCardinalityHistogram()
	sizes := make([]float64, 0, idx.inverse.len())
	idx.inverse.ascend(func(_ any, keys *keySet[K]) bool {
		n := keys.len()
		hist.AddSample(n)
		sizes = append(sizes, float64(n))
		return true
	})

	return Info{
		Units:        idx.units,
		Keys:         len(idx.forward),
		Values:       idx.inverse.len(),
		Ordered:      idx.cfg.ordered,
		Partial:      idx.isPartial(),
		Excluded:     len(idx.excluded),
		KeySetSizes:  util.NewStats(sizes),
		KeySetMedian: hist.Median(),
	}
}

// Keys returns all keys with a forward mapping (nil without forward index)
func (idx *SimpleIndex[K, V]) Keys() []K {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.forward == nil {
		return nil
	}
	keys := make([]K, 0, len(idx.forward))
	for k := range idx.forward {
		keys = append(keys, k)
	}
	return keys
}

// ExcludedKeys returns the keys whose value could not be extracted
func (idx *SimpleIndex[K, V]) ExcludedKeys() []K {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	keys := make([]K, 0, len(idx.excluded))
	for k := range idx.excluded {
		keys = append(keys, k)
	}
	return keys
}

func (idx *SimpleIndex[K, V]) String() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return fmt.Sprintf("SimpleIndex(ordered=%t, partial=%t, keys=%d, values=%d, units=%d)",
		idx.cfg.ordered, idx.isPartial(), len(idx.forward), idx.inverse.len(), idx.units)
}

// --------------------------------------------------------------------------
// Extraction
// --------------------------------------------------------------------------

// extract applies the extractor and normalizes the result. A panicking
// extractor is reported as an error.
func (idx *SimpleIndex[K, V]) extract(entry Entry[K, V]) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("index: extractor panicked: %v", r)
		}
	}()
	v, err := idx.extractor.Extract(entry)
	if err != nil {
		return nil, err
	}
	return idx.normalize(v)
}

func (idx *SimpleIndex[K, V]) normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if idx.cfg.split && isCollection(rv) {
		n := rv.Len()
		mv := &multiValue{values: make([]any, 0, n)}
		seen := make(map[any]struct{}, n)
		for i := 0; i < n; i++ {
			ev, ok := inverseKey(rv.Index(i).Interface())
			if !ok {
				return nil, fmt.Errorf("%w: element %d of %T", ErrUnhashable, i, v)
			}
			if _, dup := seen[ev]; dup {
				continue
			}
			seen[ev] = struct{}{}
			mv.values = append(mv.values, ev)
		}
		return mv, nil
	}
	key, ok := inverseKey(v)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnhashable, v)
	}
	return key, nil
}

// inverseKey converts a single extracted value into a key of the inverse
// index. NaN is replaced by a nanValue, composite values holding a NaN are
// rejected like unhashable values.
func inverseKey(v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	rv := reflect.ValueOf(v)
	if !rv.Comparable() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Array, reflect.Struct, reflect.Interface:
		if containsNaN(rv) {
			return nil, false
		}
	}
	return canonical(v), true
}

// isCollection reports whether v is split into its elements. Byte slices are
// treated as a single (unhashable) value.
func isCollection(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice:
		return v.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	default:
		return false
	}
}

// previous determines the value an entry contributed before the current
// change, falling back to the original value of the entry
func (idx *SimpleIndex[K, V]) previous(entry Entry[K, V]) (any, prevState, error) {
	key := entry.Key()
	if idx.forward != nil {
		if fe, ok := idx.forward[key]; ok {
			return fe.value, prevKnown, nil
		}
		if idx.condition != nil {
			return nil, prevNone, nil
		}
	}
	if _, ok := idx.excluded[key]; ok {
		return nil, prevNone, nil
	}

	orig, ok := entry.(OriginalEntry[K, V])
	if !ok || !orig.IsOriginalPresent() {
		return nil, prevUnknown, ErrNoOriginalValue
	}
	value, err := idx.extract(originalView[K, V]{orig})
	if err != nil {
		plog.Debugf("cannot extract original value of key %v: %v", key, err)
		return nil, prevUnknown, nil
	}
	return value, prevKnown, nil
}

// leave removes a key that no longer passes the condition (or never did)
func (idx *SimpleIndex[K, V]) leave(key K) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if fe, ok := idx.forward[key]; ok {
		idx.removeInverse(key, fe.value, idx.isPartial())
		idx.dropForward(key)
	}
	idx.include(key)
}

// --------------------------------------------------------------------------
// Mutations (callers hold idx.mu)
// --------------------------------------------------------------------------

// apply moves the key from its previous value to the newly extracted value
// (or excludes it if the extraction failed)
func (idx *SimpleIndex[K, V]) apply(key K, prev any, state prevState, value any, extractErr error) {
	partial := idx.isPartial()

	if extractErr != nil {
		idx.removePrevious(key, prev, state, partial)
		idx.dropForward(key)
		idx.exclude(key, extractErr)
		return
	}

	if state == prevKnown && valuesEqual(prev, value) {
		// without forward mapping the previous value came from the original
		// value and the forward index still has to be filled
		if _, ok := idx.forward[key]; ok || idx.forward == nil {
			return
		}
	}

	idx.include(key)
	if state == prevKnown {
		idx.replaceInverse(key, prev, value, partial)
	} else {
		idx.removePrevious(key, prev, state, partial)
		idx.addInverse(key, value)
	}
	idx.setForward(key, value)
}

func (idx *SimpleIndex[K, V]) removePrevious(key K, prev any, state prevState, partial bool) {
	switch state {
	case prevKnown:
		idx.removeInverse(key, prev, partial)
	case prevUnknown:
		if !partial {
			idx.scanRemove(key)
		}
	}
}

func (idx *SimpleIndex[K, V]) addInverse(key K, value any) {
	for _, e := range elements(value) {
		idx.addMapping(e, key)
	}
}

func (idx *SimpleIndex[K, V]) removeInverse(key K, value any, partial bool) {
	for _, e := range elements(value) {
		if !idx.removeMapping(e, key) && !partial {
			idx.reportMissing(key, e)
		}
	}
}

// replaceInverse only touches the elements that differ between old and new
func (idx *SimpleIndex[K, V]) replaceInverse(key K, prev, next any, partial bool) {
	oldElems, newElems := elements(prev), elements(next)
	if len(oldElems) == 1 && len(newElems) == 1 {
		if oldElems[0] != newElems[0] {
			idx.removeInverse(key, prev, partial)
		}
		idx.addInverse(key, next)
		return
	}

	newSet := make(map[any]struct{}, len(newElems))
	for _, e := range newElems {
		newSet[e] = struct{}{}
	}
	oldSet := make(map[any]struct{}, len(oldElems))
	for _, e := range oldElems {
		oldSet[e] = struct{}{}
		if _, keep := newSet[e]; keep {
			continue
		}
		if !idx.removeMapping(e, key) && !partial {
			idx.reportMissing(key, e)
		}
	}
	for _, e := range newElems {
		if _, had := oldSet[e]; !had {
			idx.addMapping(e, key)
		}
	}
}

func (idx *SimpleIndex[K, V]) addMapping(value any, key K) {
	keys, ok := idx.inverse.get(value)
	if !ok {
		keys = newKeySet(key)
		keys.units = entryOverhead + idx.calc.Units(external(value))
		idx.units += keys.units
		idx.inverse.put(value, keys)
		return
	}
	added, inflated := keys.add(key)
	switch {
	case inflated:
		idx.units += keySetOverhead + 2*keySetEntry
	case added:
		idx.units += keySetEntry
	}
}

// removeMapping returns false if the key was not mapped to value
func (idx *SimpleIndex[K, V]) removeMapping(value any, key K) bool {
	keys, ok := idx.inverse.get(value)
	if !ok || !keys.contains(key) {
		return false
	}
	if keys.len() == 1 {
		idx.inverse.delete(value)
		idx.units -= keys.units
		return true
	}
	if _, deflated := keys.remove(key); deflated {
		idx.units -= keySetOverhead + 2*keySetEntry
	} else {
		idx.units -= keySetEntry
	}
	return true
}

// scanRemove removes key from every key set. Used when the previous value
// of the key is unknown.
func (idx *SimpleIndex[K, V]) scanRemove(key K) {
	var hits []any
	idx.inverse.ascend(func(value any, keys *keySet[K]) bool {
		if keys.contains(key) {
			hits = append(hits, value)
		}
		return true
	})
	for _, value := range hits {
		idx.removeMapping(value, key)
	}
}

func (idx *SimpleIndex[K, V]) setForward(key K, value any) {
	if idx.forward == nil {
		return
	}
	if old, ok := idx.forward[key]; ok {
		idx.units -= old.units
	}

	units := int64(entryOverhead)
	if mv, ok := value.(*multiValue); ok {
		if shared := idx.findShared(key, mv); shared != nil {
			value = shared
			units += sharedValueUnits
		} else {
			units += multiValueOverhead
			for _, e := range mv.values {
				units += idx.calc.Units(external(e))
			}
		}
	} else {
		units += idx.calc.Units(external(value))
	}

	idx.forward[key] = forwardEntry{value: value, units: units}
	idx.units += units
}

func (idx *SimpleIndex[K, V]) dropForward(key K) {
	if fe, ok := idx.forward[key]; ok {
		idx.units -= fe.units
		delete(idx.forward, key)
	}
}

// findShared looks for a multi-value of another key equal to mv, so that both
// keys can reference the same slice. The candidates are the keys of the
// element with the smallest key set. The search gives up once the number of
// compared elements exceeds the multi-value budget.
func (idx *SimpleIndex[K, V]) findShared(key K, mv *multiValue) *multiValue {
	if idx.cfg.mvBudget == 0 || len(mv.values) == 0 {
		return nil
	}

	var smallest *keySet[K]
	for _, e := range mv.values {
		keys, ok := idx.inverse.get(e)
		if !ok {
			return nil
		}
		if smallest == nil || keys.len() < smallest.len() {
			smallest = keys
		}
	}

	var found *multiValue
	cost := 0
	smallest.each(func(other K) bool {
		if other == key {
			return true
		}
		cost += len(mv.values)
		if cost > idx.cfg.mvBudget {
			return false
		}
		if fe, ok := idx.forward[other]; ok {
			if omv, ok := fe.value.(*multiValue); ok && omv.equal(mv) {
				found = omv
				return false
			}
		}
		return true
	})
	return found
}

func (idx *SimpleIndex[K, V]) exclude(key K, err error) {
	if _, ok := idx.excluded[key]; ok {
		return
	}
	idx.excluded[key] = struct{}{}
	idx.units += entryOverhead
	plog.Warningf("excluding key %v from index, extraction failed: %v", key, err)
}

func (idx *SimpleIndex[K, V]) include(key K) {
	if _, ok := idx.excluded[key]; ok {
		delete(idx.excluded, key)
		idx.units -= entryOverhead
	}
}

func (idx *SimpleIndex[K, V]) isPartial() bool {
	return len(idx.excluded) > 0
}

func (idx *SimpleIndex[K, V]) reportMissing(key K, value any) {
	ok, last, resumed := idx.missing.allow()
	if !ok {
		return
	}
	if resumed > 0 {
		plog.Warningf("%d missing inverse mapping warnings were suppressed", resumed)
	}
	plog.Warningf("missing inverse mapping %v -> %v, the index may be inconsistent", value, key)
	if last {
		plog.Warningf("suppressing missing inverse mapping warnings for %v", missingLogCooldown)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// elements returns the values a key is mapped to in the inverse index
func elements(value any) []any {
	if mv, ok := value.(*multiValue); ok {
		return mv.values
	}
	return []any{value}
}

func valuesEqual(a, b any) bool {
	ma, aok := a.(*multiValue)
	mb, bok := b.(*multiValue)
	if aok != bok {
		return false
	}
	if aok {
		return ma.equal(mb)
	}
	return a == b
}

// normalizeLookup converts a query value the same way extracted values are
// converted
func (idx *SimpleIndex[K, V]) normalizeLookup(value any) (any, error) {
	key, ok := inverseKey(value)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnhashable, value)
	}
	return key, nil
}
