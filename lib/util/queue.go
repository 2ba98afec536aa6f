package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// queueNode is a single element of the queue's linked list
type queueNode[T any] struct {
	value T
	next  atomic.Pointer[queueNode[T]]
}

// Queue is an unbounded lock-free multi-producer single-consumer queue.
//
// Any number of goroutines may Push concurrently. A single internal goroutine
// moves the items to the channel returned by Recv. Items pushed by the same
// goroutine are received in the order they were pushed; the order between
// producers is decided by whichever append wins.
type Queue[T any] struct {
	head     atomic.Pointer[queueNode[T]]
	tail     atomic.Pointer[queueNode[T]]
	out      chan T
	consumer sync.WaitGroup
	closed   atomic.Bool
	pending  atomic.Int64

	// wakes up the consumer when items arrive
	mu   sync.Mutex
	cond *sync.Cond
}

// NewQueue creates a new queue and starts its consumer goroutine
func NewQueue[T any]() *Queue[T] {
	sentinel := &queueNode[T]{}

	q := &Queue[T]{
		out: make(chan T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push appends an item to the queue.
// Returns false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Queue[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	n := &queueNode[T]{value: value}
	q.pending.Add(1)

	var backoff uint8
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// may fail if another producer already moved the tail, which is fine
				q.tail.CompareAndSwap(tail, n)

				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		// spin at low contention, yield with growing back off otherwise
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume moves items from the linked list to the output channel
func (q *Queue[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		delivered := false
		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			delivered = true

			value := next.value
			q.head.Store(next)
			q.out <- value
			q.pending.Add(-1)

			// release the reference for the go gc
			var zero T
			next.value = zero
		}

		if !delivered && q.closed.Load() {
			return
		}

		if !delivered {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the channel the items are delivered on. The channel is closed
// after Close was called and all remaining items were delivered.
func (q *Queue[T]) Recv() <-chan T {
	return q.out
}

// Close stops accepting new items. Items already pushed are still delivered.
func (q *Queue[T]) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// IsClosed returns true if the queue is closed
func (q *Queue[T]) IsClosed() bool {
	return q.closed.Load()
}

// Pending returns the number of items pushed but not yet received
func (q *Queue[T]) Pending() int64 {
	return q.pending.Load()
}
