package listener

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var plog = logger.GetLogger("listener")

// ErrListenerPanic wraps panics recovered from listeners during dispatch
var ErrListenerPanic = errors.New("listener: panic during dispatch")

// Metric names registered by Support
const (
	MetricDispatch = "listener.dispatch"
	MetricErrors   = "listener.errors"
	MetricEvents   = "listener.events"
)

// --------------------------------------------------------------------------
// Plan
// --------------------------------------------------------------------------

// Plan is the cached strategy used to collect the listeners of an event
type Plan int8

const (
	PlanNone Plan = iota // not computed since the last registration change
	PlanNoListeners
	PlanAllListener
	PlanKeyListener
	PlanNoOptimize
)

func (p Plan) String() string {
	switch p {
	case PlanNone:
		return "none"
	case PlanNoListeners:
		return "no-listeners"
	case PlanAllListener:
		return "all-listener"
	case PlanKeyListener:
		return "key-listener"
	case PlanNoOptimize:
		return "no-optimize"
	default:
		return fmt.Sprintf("Plan(%d)", int8(p))
	}
}

// snapshot couples a plan with the listeners it caches. Snapshots are never
// modified once stored.
type snapshot[K comparable, V any] struct {
	plan      Plan
	listeners *Listeners[K, V]
	keys      map[K]struct{}
}

// --------------------------------------------------------------------------
// Registrations
// --------------------------------------------------------------------------

type registration[K comparable, V any] struct {
	listeners *Listeners[K, V]
	standard  map[Listener[K, V]]struct{}
}

func newRegistration[K comparable, V any]() *registration[K, V] {
	return &registration[K, V]{
		listeners: NewListeners[K, V](),
		standard:  make(map[Listener[K, V]]struct{}),
	}
}

func (r *registration[K, V]) add(l Listener[K, V], lite bool) {
	r.listeners.Add(l)
	if !lite {
		r.standard[l] = struct{}{}
	}
}

func (r *registration[K, V]) remove(l Listener[K, V]) {
	r.listeners.Remove(l)
	delete(r.standard, l)
}

// --------------------------------------------------------------------------
// Support
// --------------------------------------------------------------------------

// Support is the listener registry and dispatcher of a map.
//
// Thread-safety: all methods are safe for concurrent use. Registration
// changes are serialized by a mutex, dispatch with a cached plan does not
// lock. Filters are evaluated while the registry is locked and must not call
// back into the Support.
type Support[K comparable, V any] struct {
	mu          sync.Mutex
	filters     map[Filter[K, V]]*registration[K, V]
	filterOrder []Filter[K, V]
	keys        map[K]*registration[K, V]
	current     atomic.Pointer[snapshot[K, V]]

	metrics  gometrics.Registry
	dispatch gometrics.Timer
	errors   gometrics.Meter
	events   gometrics.Counter
}

// NewSupport creates an empty registry reporting to registry (a new registry
// if nil)
func NewSupport[K comparable, V any](registry gometrics.Registry) *Support[K, V] {
	if registry == nil {
		registry = gometrics.NewRegistry()
	}
	return &Support[K, V]{
		filters:  make(map[Filter[K, V]]*registration[K, V]),
		keys:     make(map[K]*registration[K, V]),
		metrics:  registry,
		dispatch: gometrics.GetOrRegisterTimer(MetricDispatch, registry),
		errors:   gometrics.GetOrRegisterMeter(MetricErrors, registry),
		events:   gometrics.GetOrRegisterCounter(MetricEvents, registry),
	}
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// AddListener registers l for all events matching filter (nil matches all)
func (s *Support[K, V]) AddListener(l Listener[K, V], filter Filter[K, V], lite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addFilterLocked(l, filter, lite)
}

// AddKeyListener registers l for all events of key
func (s *Support[K, V]) AddKeyListener(l Listener[K, V], key K, lite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addKeyLocked(l, key, lite)
}

// RemoveListener removes the registration of l for filter
func (s *Support[K, V]) RemoveListener(l Listener[K, V], filter Filter[K, V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeFilterLocked(l, filter)
}

// RemoveKeyListener removes the registration of l for key
func (s *Support[K, V]) RemoveKeyListener(l Listener[K, V], key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeKeyLocked(l, key)
}

// AddListenerWithCheck registers l and returns true if filter had no
// listeners before, or only lite listeners and l is standard
func (s *Support[K, V]) AddListenerWithCheck(l Listener[K, V], filter Filter[K, V], lite bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.filters[filter]
	wasEmpty := reg == nil
	wasLite := !wasEmpty && len(reg.standard) == 0
	s.addFilterLocked(l, filter, lite)
	return wasEmpty || wasLite && !lite
}

// AddKeyListenerWithCheck is AddListenerWithCheck for key registrations
func (s *Support[K, V]) AddKeyListenerWithCheck(l Listener[K, V], key K, lite bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.keys[key]
	wasEmpty := reg == nil
	wasLite := !wasEmpty && len(reg.standard) == 0
	s.addKeyLocked(l, key, lite)
	return wasEmpty || wasLite && !lite
}

// RemoveListenerWithCheck removes l and returns true if filter has no
// listeners left, or its last standard listener was removed
func (s *Support[K, V]) RemoveListenerWithCheck(l Listener[K, V], filter Filter[K, V]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.filters[filter]
	if reg == nil {
		return false
	}
	wasStandard := len(reg.standard) > 0
	s.removeFilterLocked(l, filter)
	reg = s.filters[filter]
	return reg == nil || wasStandard && len(reg.standard) == 0
}

// RemoveKeyListenerWithCheck is RemoveListenerWithCheck for key registrations
func (s *Support[K, V]) RemoveKeyListenerWithCheck(l Listener[K, V], key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.keys[key]
	if reg == nil {
		return false
	}
	wasStandard := len(reg.standard) > 0
	s.removeKeyLocked(l, key)
	reg = s.keys[key]
	return reg == nil || wasStandard && len(reg.standard) == 0
}

// Clear removes all registrations
func (s *Support[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = make(map[Filter[K, V]]*registration[K, V])
	s.filterOrder = nil
	s.keys = make(map[K]*registration[K, V])
	s.invalidate()
}

func (s *Support[K, V]) addFilterLocked(l Listener[K, V], filter Filter[K, V], lite bool) {
	reg, ok := s.filters[filter]
	if !ok {
		reg = newRegistration[K, V]()
		s.filters[filter] = reg
		s.filterOrder = append(s.filterOrder, filter)
	}
	reg.add(l, lite)
	s.invalidate()
}

func (s *Support[K, V]) addKeyLocked(l Listener[K, V], key K, lite bool) {
	reg, ok := s.keys[key]
	if !ok {
		reg = newRegistration[K, V]()
		s.keys[key] = reg
	}
	reg.add(l, lite)
	s.invalidate()
}

func (s *Support[K, V]) removeFilterLocked(l Listener[K, V], filter Filter[K, V]) {
	reg, ok := s.filters[filter]
	if !ok {
		return
	}
	reg.remove(l)
	if reg.listeners.IsEmpty() {
		delete(s.filters, filter)
		s.filterOrder = slices.DeleteFunc(s.filterOrder, func(f Filter[K, V]) bool {
			return f == filter
		})
	}
	s.invalidate()
}

func (s *Support[K, V]) removeKeyLocked(l Listener[K, V], key K) {
	reg, ok := s.keys[key]
	if !ok {
		return
	}
	reg.remove(l)
	if reg.listeners.IsEmpty() {
		delete(s.keys, key)
	}
	s.invalidate()
}

// invalidate drops the cached plan, callers hold s.mu
func (s *Support[K, V]) invalidate() {
	s.current.Store(nil)
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// IsEmpty returns true if no listener is registered
func (s *Support[K, V]) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filters) == 0 && len(s.keys) == 0
}

// HasListeners returns true if at least one listener is registered
func (s *Support[K, V]) HasListeners() bool {
	return !s.IsEmpty()
}

// HasStandardListeners returns true if any registration is standard
func (s *Support[K, V]) HasStandardListeners() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.filters {
		if len(reg.standard) > 0 {
			return true
		}
	}
	for _, reg := range s.keys {
		if len(reg.standard) > 0 {
			return true
		}
	}
	return false
}

// ContainsStandardListeners returns true if filter has a standard listener
func (s *Support[K, V]) ContainsStandardListeners(filter Filter[K, V]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg := s.filters[filter]
	return reg != nil && len(reg.standard) > 0
}

// ContainsStandardKeyListeners returns true if key has a standard listener
func (s *Support[K, V]) ContainsStandardKeyListeners(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg := s.keys[key]
	return reg != nil && len(reg.standard) > 0
}

// Filters returns the registered filters in registration order
func (s *Support[K, V]) Filters() []Filter[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.filterOrder)
}

// Keys returns the keys with key listeners
func (s *Support[K, V]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]K, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	return keys
}

// ListenersFor returns a copy of the listeners registered for filter (nil if none)
func (s *Support[K, V]) ListenersFor(filter Filter[K, V]) *Listeners[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.filters[filter]; ok {
		return reg.listeners.clone()
	}
	return nil
}

// ListenersForKey returns a copy of the listeners registered for key (nil if none)
func (s *Support[K, V]) ListenersForKey(key K) *Listeners[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.keys[key]; ok {
		return reg.listeners.clone()
	}
	return nil
}

// Plan returns the currently cached plan (PlanNone if it must be recomputed)
func (s *Support[K, V]) Plan() Plan {
	if snap := s.current.Load(); snap != nil {
		return snap.plan
	}
	return PlanNone
}

// Metrics returns the registry of the dispatch metrics
func (s *Support[K, V]) Metrics() gometrics.Registry {
	return s.metrics
}

func (s *Support[K, V]) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("Support(filters=%d, keys=%d, plan=%s)", len(s.filters), len(s.keys), s.planLocked())
}

func (s *Support[K, V]) planLocked() Plan {
	if snap := s.current.Load(); snap != nil {
		return snap.plan
	}
	return PlanNone
}

// --------------------------------------------------------------------------
// Collect & Dispatch
// --------------------------------------------------------------------------

// CollectListeners returns the listeners to notify for evt. The returned set
// may be shared with other callers and must not be modified.
func (s *Support[K, V]) CollectListeners(evt *MapEvent[K, V]) *Listeners[K, V] {
	snap := s.current.Load()
	if snap == nil {
		snap = s.computePlan()
	}

	switch snap.plan {
	case PlanNoListeners:
		return snap.listeners
	case PlanAllListener:
		return snap.listeners
	case PlanKeyListener:
		if evt.Transform != Transformed {
			if _, ok := snap.keys[evt.Key]; ok {
				return snap.listeners
			}
		}
		return NewListeners[K, V]()
	default:
		return s.collectAll(evt)
	}
}

func (s *Support[K, V]) computePlan() *snapshot[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap := s.current.Load(); snap != nil {
		return snap
	}

	snap := &snapshot[K, V]{plan: PlanNoOptimize}
	switch {
	case len(s.filters) == 0 && len(s.keys) == 0:
		snap.plan = PlanNoListeners
		snap.listeners = NewListeners[K, V]()

	case len(s.keys) == 0 && len(s.filters) == 1:
		if reg, ok := s.filters[nil]; ok {
			snap.plan = PlanAllListener
			snap.listeners = reg.listeners.clone()
		}

	case len(s.filters) == 0:
		var shared *Listeners[K, V]
		same := true
		for _, reg := range s.keys {
			if shared == nil {
				shared = reg.listeners
			} else if !shared.SameSet(reg.listeners) {
				same = false
				break
			}
		}
		if same {
			snap.plan = PlanKeyListener
			snap.listeners = shared.clone()
			snap.keys = make(map[K]struct{}, len(s.keys))
			for k := range s.keys {
				snap.keys[k] = struct{}{}
			}
		}
	}

	plog.Debugf("computed listener plan %s (filters=%d, keys=%d)", snap.plan, len(s.filters), len(s.keys))
	s.current.Store(snap)
	return snap
}

// collectAll evaluates every registered filter
func (s *Support[K, V]) collectAll(evt *MapEvent[K, V]) *Listeners[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := NewListeners[K, V]()
	for _, f := range s.filterOrder {
		reg := s.filters[f]
		if f == nil {
			out.addAll(reg.listeners, nil)
			continue
		}

		tf, isTransformer := f.(TransformerFilter[K, V])
		if isTransformer && evt.Transform == NonTransformable {
			continue
		}
		if !evaluate(f, evt) {
			continue
		}
		out.filters = append(out.filters, f)
		if isTransformer {
			out.addAll(reg.listeners, tf)
		} else {
			out.addAll(reg.listeners, nil)
		}
	}

	if evt.Transform != Transformed {
		if reg, ok := s.keys[evt.Key]; ok {
			out.addAll(reg.listeners, nil)
		}
	}
	return out
}

// FireEvent dispatches evt to all listeners collected for it. In strict mode
// the first listener error stops the dispatch and is returned, otherwise
// errors are logged and the remaining listeners are still notified. The old
// value of the event is deactivated once dispatch returns.
func (s *Support[K, V]) FireEvent(evt *MapEvent[K, V], strict bool) error {
	defer evt.Deactivate()

	ls := s.CollectListeners(evt)
	if ls.IsEmpty() {
		return nil
	}
	evt.filters = ls.filters

	start := time.Now()
	defer s.dispatch.UpdateSince(start)

	var transformed map[TransformerFilter[K, V]]*MapEvent[K, V]
	for i, l := range ls.list {
		tf := ls.via[i]
		err := safeCall(l, func() error {
			target := evt
			if tf != nil {
				if transformed == nil {
					transformed = make(map[TransformerFilter[K, V]]*MapEvent[K, V])
				}
				if target = transformed[tf]; target == nil {
					target = tf.Transform(evt)
					transformed[tf] = target
				}
			}
			s.events.Inc(1)
			return l.OnEvent(target)
		})
		if err == nil {
			continue
		}
		s.errors.Mark(1)
		if strict {
			return err
		}
		plog.Errorf("listener %T failed for %v: %v", l, evt, err)
	}
	return nil
}

// safeCall runs fn and converts a panic into an error
func safeCall[K comparable, V any](l Listener[K, V], fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %T: %v", ErrListenerPanic, l, r)
		}
	}()
	return fn()
}

// evaluate applies a filter, a panicking filter does not match
func evaluate[K comparable, V any](f Filter[K, V], evt *MapEvent[K, V]) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			plog.Errorf("filter %T panicked for %v: %v", f, evt, r)
			ok = false
		}
	}()
	return f.Evaluate(evt)
}
