// Package listener implements the registry and dispatcher for map events.
//
// Listeners are registered either for a Filter (a nil filter matches every
// event) or for a single key. Every registration is lite or standard: lite
// listeners don't need the old and new values of an event, standard listeners
// do. The owning map uses AddListenerWithCheck and RemoveListenerWithCheck to
// learn when the first standard registration for a filter or key appears or
// the last one disappears.
//
// Dispatch Plan:
//
//	CollectListeners computes the listeners for an event. Because listeners
//	are registered rarely but events are fired constantly, the Support caches
//	a plan that is recomputed lazily after every registration change:
//
//	  - PlanNoListeners: nothing is registered
//	  - PlanAllListener: the only registration is the nil filter, every event
//	    goes to the same listeners
//	  - PlanKeyListener: only key registrations exist and all of them share
//	    the same listeners, a single key lookup decides
//	  - PlanNoOptimize: all filters are evaluated
//
//	The plan and the listeners it caches are one immutable snapshot that is
//	replaced atomically.
//
// Transformations:
//
//	A TransformerFilter rewrites the events it matches. Events marked
//	NonTransformable are never matched by transformer filters, events that are
//	already Transformed are not delivered to key listeners.
//
// Deferred Old Values:
//
//	The old value of an event can be loaded lazily (Active). After dispatch
//	the event is deactivated: a value loaded until then is kept, otherwise the
//	old value is dropped.
package listener
