package observable

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dMap/lib/index"
	"github.com/ValentinKolb/dMap/lib/listener"
	"github.com/ValentinKolb/dMap/lib/util"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

var plog = logger.GetLogger("observable")

var (
	// ErrConcurrentModification is returned by AddIndex if the map was
	// modified during every build attempt
	ErrConcurrentModification = errors.New("observable: concurrent modification during index build")
	ErrIndexExists            = errors.New("observable: index already exists")
	ErrNoSuchIndex            = errors.New("observable: no such index")
	ErrClosed                 = errors.New("observable: map is closed")
)

// --------------------------------------------------------------------------
// Core Map structure
// --------------------------------------------------------------------------

// Map is a concurrent map with secondary indexes and change listeners.
//
// Indexes are updated while the entry is locked, so they always follow the
// order of the mutations of a key. Events are delivered in that order only
// with WithAsyncEvents. Without it, the calling goroutine fires the event
// after the entry was released, and events of concurrent writers of the same
// key may reach the listeners out of order.
//
// Thread-safety: all methods are safe for concurrent use.
type Map[K comparable, V any] struct {
	name string
	opts Options
	data *xsync.MapOf[K, V]

	// gate is read-locked by mutations and write-locked to install an index,
	// so an index is either installed before or after a mutation
	gate     sync.RWMutex
	modCount atomic.Uint64
	indexes  *xsync.MapOf[string, index.MapIndex[K, V]]

	listeners  *listener.Support[K, V]
	queue      *util.Queue[dispatchJob[K, V]]
	dispatcher sync.WaitGroup
	closed     atomic.Bool

	metrics *metrics.Set
	puts    *metrics.Counter
	removes *metrics.Counter
	hits    *metrics.Counter
	misses  *metrics.Counter
	failed  *metrics.Counter
	dropped *metrics.Counter
}

// dispatchJob is an event for the async dispatcher, or a flush barrier
type dispatchJob[K comparable, V any] struct {
	evt  *listener.MapEvent[K, V]
	done chan struct{}
}

// mutation is the outcome of an entry function
type mutation int8

const (
	keep mutation = iota
	set
	remove
)

// New creates an empty map
func New[K comparable, V any](opts ...Option) *Map[K, V] {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Name == "" {
		o.Name = uuid.NewString()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewSet()
	}

	var data *xsync.MapOf[K, V]
	if o.Presize > 0 {
		data = xsync.NewMapOf[K, V](xsync.WithPresize(o.Presize))
	} else {
		data = xsync.NewMapOf[K, V]()
	}

	m := &Map[K, V]{
		name:      o.Name,
		opts:      *o,
		data:      data,
		indexes:   xsync.NewMapOf[string, index.MapIndex[K, V]](),
		listeners: listener.NewSupport[K, V](o.Registry),
		metrics:   o.Metrics,
	}

	m.puts = m.metrics.GetOrCreateCounter(m.metricName("dmap_puts_total", ""))
	m.removes = m.metrics.GetOrCreateCounter(m.metricName("dmap_removes_total", ""))
	m.hits = m.metrics.GetOrCreateCounter(m.metricName("dmap_gets_total", `result="hit"`))
	m.misses = m.metrics.GetOrCreateCounter(m.metricName("dmap_gets_total", `result="miss"`))
	m.failed = m.metrics.GetOrCreateCounter(m.metricName("dmap_event_errors_total", ""))
	m.dropped = m.metrics.GetOrCreateCounter(m.metricName("dmap_events_dropped_total", ""))
	m.metrics.GetOrCreateGauge(m.metricName("dmap_entries", ""), func() float64 {
		return float64(m.data.Size())
	})

	if o.AsyncEvents {
		m.queue = util.NewQueue[dispatchJob[K, V]]()
		m.dispatcher.Add(1)
		go m.dispatch()
	}

	return m
}

// metricName builds a metric name with the map label and optional extra labels
func (m *Map[K, V]) metricName(name, labels string) string {
	if labels == "" {
		return fmt.Sprintf(`%s{map=%q}`, name, m.name)
	}
	return fmt.Sprintf(`%s{map=%q,%s}`, name, m.name, labels)
}

// Name returns the name of the map
func (m *Map[K, V]) Name() string { return m.name }

// Listeners returns the listener registry of the map
func (m *Map[K, V]) Listeners() *listener.Support[K, V] { return m.listeners }

// Metrics returns the metrics set of the map
func (m *Map[K, V]) Metrics() *metrics.Set { return m.metrics }

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Put stores value for key and returns the previous value.
// The error is only set for a closed map or a listener error in strict mode.
func (m *Map[K, V]) Put(key K, value V) (V, bool, error) {
	return m.mutate(key, func(V, bool) (V, mutation) {
		return value, set
	})
}

// PutIfAbsent stores value only if key is not present. It returns the value
// stored for key after the call and whether it was already present.
func (m *Map[K, V]) PutIfAbsent(key K, value V) (V, bool, error) {
	prev, loaded, err := m.mutate(key, func(old V, loaded bool) (V, mutation) {
		if loaded {
			return old, keep
		}
		return value, set
	})
	if loaded {
		return prev, true, err
	}
	return value, false, err
}

// Remove deletes key and returns the removed value
func (m *Map[K, V]) Remove(key K) (V, bool, error) {
	return m.mutate(key, func(old V, _ bool) (V, mutation) {
		return old, remove
	})
}

// Entry is the live entry an Invoke processor works on
type Entry[K comparable, V any] struct {
	key    K
	value  V
	exists bool
	op     mutation
}

func (e *Entry[K, V]) Key() K { return e.key }

// Value returns the current value (including changes made by SetValue)
func (e *Entry[K, V]) Value() (V, bool) { return e.value, e.exists }

func (e *Entry[K, V]) Exists() bool { return e.exists }

// SetValue replaces the value of the entry (or creates it)
func (e *Entry[K, V]) SetValue(value V) {
	e.value, e.exists, e.op = value, true, set
}

// Remove deletes the entry
func (e *Entry[K, V]) Remove() {
	var zero V
	e.value, e.exists, e.op = zero, false, remove
}

// Invoke runs processor on the entry of key while the entry is locked.
// Changes made through the entry are applied if processor returns nil.
// The processor must not access the map.
func (m *Map[K, V]) Invoke(key K, processor func(e *Entry[K, V]) error) error {
	var procErr error
	_, _, err := m.mutate(key, func(old V, loaded bool) (V, mutation) {
		e := &Entry[K, V]{key: key, value: old, exists: loaded}
		if procErr = processor(e); procErr != nil {
			return old, keep
		}
		return e.value, e.op
	})
	if procErr != nil {
		return procErr
	}
	return err
}

// mutate applies fn to the entry of key, updates the indexes and dispatches
// the resulting event
func (m *Map[K, V]) mutate(key K, fn func(old V, loaded bool) (V, mutation)) (prev V, existed bool, err error) {
	if m.closed.Load() {
		return prev, false, ErrClosed
	}

	var evt *listener.MapEvent[K, V]

	m.gate.RLock()
	// Close sets the flag before it takes the gate, once the read lock is
	// held the queue stays open until the mutation is done
	if m.closed.Load() {
		m.gate.RUnlock()
		return prev, false, ErrClosed
	}
	m.data.Compute(key, func(old V, loaded bool) (V, bool) {
		prev, existed = old, loaded
		next, op := fn(old, loaded)
		del := false

		switch {
		case op == set && loaded:
			m.modCount.Add(1)
			m.puts.Inc()
			m.updateIndexes(index.NewUpdateEntry(key, next, old))
			evt = listener.NewDeferredEvent(m.name, listener.Updated, key, next, true, func() (V, bool) {
				return old, true
			})
		case op == set:
			m.modCount.Add(1)
			m.puts.Inc()
			m.insertIndexes(index.NewEntry(key, next))
			evt = listener.NewInsertEvent(m.name, key, next)
		case op == remove && loaded:
			m.modCount.Add(1)
			m.removes.Inc()
			m.deleteIndexes(index.NewUpdateEntry(key, old, old))
			var zero V
			evt = listener.NewDeferredEvent(m.name, listener.Deleted, key, zero, false, func() (V, bool) {
				return old, true
			})
			next, del = old, true
		default:
			// keep, or remove of a missing key: don't create the entry
			return old, !loaded
		}

		// events of one key are queued in the order of the mutations
		if m.queue != nil && !m.queue.Push(dispatchJob[K, V]{evt: evt}) {
			m.dropped.Inc()
			plog.Errorf("dropped %v, the event queue is closed", evt)
		}
		return next, del
	})
	m.gate.RUnlock()

	if evt != nil && m.queue == nil {
		if err = m.listeners.FireEvent(evt, m.opts.StrictEvents); err != nil {
			m.failed.Inc()
		}
	}
	return prev, existed, err
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the value of key
func (m *Map[K, V]) Get(key K) (V, bool) {
	v, ok := m.data.Load(key)
	if ok {
		m.hits.Inc()
	} else {
		m.misses.Inc()
	}
	return v, ok
}

// ContainsKey returns true if key is present
func (m *Map[K, V]) ContainsKey(key K) bool {
	_, ok := m.data.Load(key)
	return ok
}

// Len returns the number of entries
func (m *Map[K, V]) Len() int {
	return m.data.Size()
}

// Range calls fn for every entry until fn returns false. The iteration is
// not a snapshot, concurrent changes may or may not be observed.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	m.data.Range(fn)
}

// Keys returns a snapshot of all keys
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.data.Size())
	m.data.Range(func(key K, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// dispatch is the loop of the async dispatcher
func (m *Map[K, V]) dispatch() {
	defer m.dispatcher.Done()
	for job := range m.queue.Recv() {
		if job.evt != nil {
			if err := m.listeners.FireEvent(job.evt, m.opts.StrictEvents); err != nil {
				m.failed.Inc()
				plog.Warningf("async dispatch of %v failed: %v", job.evt, err)
			}
		}
		if job.done != nil {
			close(job.done)
		}
	}
}

// Flush waits until all events queued by the calling goroutine are
// dispatched. Without async events it returns immediately.
func (m *Map[K, V]) Flush() {
	if m.queue == nil {
		return
	}
	done := make(chan struct{})
	m.gate.RLock()
	pushed := !m.closed.Load() && m.queue.Push(dispatchJob[K, V]{done: done})
	m.gate.RUnlock()
	if !pushed {
		// Close already drained the queue
		return
	}
	<-done
}

// PendingEvents returns the number of queued events
func (m *Map[K, V]) PendingEvents() int64 {
	if m.queue == nil {
		return 0
	}
	return m.queue.Pending()
}

// Close rejects further mutations and waits until all queued events are
// dispatched
func (m *Map[K, V]) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if m.queue != nil {
		// wait for mutations that passed the closed check to queue their events
		m.gate.Lock()
		m.queue.Close()
		m.gate.Unlock()
		m.dispatcher.Wait()
	}
	return nil
}

// --------------------------------------------------------------------------
// Indexes
// --------------------------------------------------------------------------

// insertIndexes, updateIndexes and deleteIndexes run while the entry is
// locked and the gate is read-locked

func (m *Map[K, V]) insertIndexes(entry index.Entry[K, V]) {
	m.indexes.Range(func(_ string, idx index.MapIndex[K, V]) bool {
		idx.Insert(entry)
		return true
	})
}

func (m *Map[K, V]) updateIndexes(entry index.Entry[K, V]) {
	m.indexes.Range(func(name string, idx index.MapIndex[K, V]) bool {
		if err := idx.Update(entry); err != nil {
			plog.Errorf("index %s: update of key %v failed: %v", name, entry.Key(), err)
		}
		return true
	})
}

func (m *Map[K, V]) deleteIndexes(entry index.Entry[K, V]) {
	m.indexes.Range(func(_ string, idx index.MapIndex[K, V]) bool {
		idx.Delete(entry)
		return true
	})
}

// AddIndex creates an index over the map and populates it with the current
// entries. See the package documentation for the build retry behavior.
func (m *Map[K, V]) AddIndex(name string, extractor index.Extractor[K, V], opts ...index.Option) (index.MapIndex[K, V], error) {
	if _, ok := m.indexes.Load(name); ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexExists, name)
	}

	for attempt := 1; attempt <= m.opts.BuildAttempts; attempt++ {
		idx, err := index.New(extractor, opts...)
		if err != nil {
			return nil, err
		}

		before := m.modCount.Load()
		if attempt == 1 {
			m.data.Range(func(key K, value V) bool {
				idx.Insert(index.NewEntry(key, value))
				return true
			})
		} else {
			for _, key := range m.Keys() {
				if value, ok := m.data.Load(key); ok {
					idx.Insert(index.NewEntry(key, value))
				}
			}
		}

		m.gate.Lock()
		if m.modCount.Load() != before {
			m.gate.Unlock()
			plog.Debugf("index %s: map modified during build attempt %d", name, attempt)
			continue
		}
		_, loaded := m.indexes.LoadOrStore(name, idx)
		m.gate.Unlock()
		if loaded {
			return nil, fmt.Errorf("%w: %s", ErrIndexExists, name)
		}

		m.metrics.GetOrCreateGauge(m.indexMetricName(name), func() float64 {
			return float64(idx.Units())
		})
		plog.Infof("index %s built after %d attempt(s): %v", name, attempt, idx)
		return idx, nil
	}

	err := errors.Wrapf(ErrConcurrentModification, "index %s not built after %d attempts", name, m.opts.BuildAttempts)
	plog.Errorf("%+v", err)
	return nil, err
}

func (m *Map[K, V]) indexMetricName(name string) string {
	return m.metricName("dmap_index_units", fmt.Sprintf("index=%q", name))
}

// RemoveIndex drops an index
func (m *Map[K, V]) RemoveIndex(name string) error {
	m.gate.Lock()
	_, ok := m.indexes.LoadAndDelete(name)
	m.gate.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchIndex, name)
	}
	m.metrics.UnregisterMetric(m.indexMetricName(name))
	return nil
}

// Index returns the index registered under name
func (m *Map[K, V]) Index(name string) (index.MapIndex[K, V], bool) {
	return m.indexes.Load(name)
}

// Indexes returns the sorted names of all indexes
func (m *Map[K, V]) Indexes() []string {
	names := make([]string, 0, m.indexes.Size())
	m.indexes.Range(func(name string, _ index.MapIndex[K, V]) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

// Query returns the keys whose extracted value in index name equals value
func (m *Map[K, V]) Query(name string, value any) ([]K, error) {
	idx, ok := m.indexes.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchIndex, name)
	}
	return idx.Contents().Get(value), nil
}

// --------------------------------------------------------------------------
// Info
// --------------------------------------------------------------------------

// Info describes the state of a map
type Info struct {
	Name          string                 `json:"name"`
	Entries       int                    `json:"entries"`
	Indexes       map[string]index.Info  `json:"indexes"`
	IndexUnits    int64                  `json:"index_units"`
	UnitBalance   util.DistributionStats `json:"unit_balance"`
	ListenerPlan  string                 `json:"listener_plan"`
	PendingEvents int64                  `json:"pending_events"`
}

// Info collects statistics about the map and its indexes
func (m *Map[K, V]) Info() Info {
	info := Info{
		Name:          m.name,
		Entries:       m.data.Size(),
		Indexes:       make(map[string]index.Info),
		ListenerPlan:  m.listeners.Plan().String(),
		PendingEvents: m.PendingEvents(),
	}

	var units []float64
	for _, name := range m.Indexes() {
		idx, ok := m.indexes.Load(name)
		if !ok {
			continue
		}
		ii := idx.Info()
		info.Indexes[name] = ii
		info.IndexUnits += ii.Units
		units = append(units, float64(ii.Units))
	}
	info.UnitBalance = util.NewDistributionStats(units)
	return info
}
