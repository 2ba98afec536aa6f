// Package observable provides Map, a concurrent in-memory map that keeps
// secondary indexes up to date and notifies listeners about every change.
//
// Every mutation (Put, PutIfAbsent, Remove, Invoke) is applied in three steps:
//
//  1. the entry is updated atomically in the underlying xsync.MapOf
//  2. while the entry is still locked, all registered indexes are updated, so
//     indexes see the changes of a key in the order they were applied
//  3. a listener.MapEvent is built and dispatched through the listener
//     registry, either synchronously by the mutating goroutine or, with
//     WithAsyncEvents, by a background dispatcher fed by a lock-free queue
//
// Index Build:
//
//	AddIndex populates a new index by scanning the map without blocking
//	writers. A modification counter detects writes that happened during the
//	scan. In that case the build is retried (the second and later attempts
//	scan a snapshot of the key set) up to WithBuildAttempts times before the
//	build fails with ErrConcurrentModification.
//
// Metrics:
//
//	Operation counters, the number of entries and the units of every index are
//	exported through a VictoriaMetrics metrics.Set (see WithMetricsSet). The
//	listener dispatch metrics live in the go-metrics registry of the listener
//	support (see Listeners().Metrics()).
//
// Usage Example:
//
//	m := observable.New[string, string]()
//	defer m.Close()
//
//	_, err := m.AddIndex("value", index.Identity[string, string]())
//	...
//	m.Put("a", "x")
//	m.Put("b", "x")
//	keys, _ := m.Query("value", "x") // [a b]
package observable
