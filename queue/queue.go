// Package queue provides the priority message queue each component drains
// on its own goroutine.
//
// Messages posted at a higher priority are always delivered ahead of
// lower-priority ones already waiting; messages at the same priority are
// delivered in the order they were posted. Timer timeouts are posted at
// PriorityTimeout so a component processes its own timeouts ahead of any
// ordinary service traffic still waiting.
package queue

import (
	"container/heap"
	"sync"
)

// Priority of a queued item. Larger values are drained first.
type Priority int

const (
	// PriorityNormal is the default priority for CSMessage traffic.
	PriorityNormal Priority = 0
	// PriorityTimeout is used for TimeoutMessage delivery.
	PriorityTimeout Priority = 1000
)

// item is one entry in the underlying heap.
type item struct {
	value    any
	priority Priority
	seq      uint64 // insertion order, for FIFO-within-priority
}

type heapSlice []*item

func (h heapSlice) Len() int { return len(h) }

func (h heapSlice) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h heapSlice) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *heapSlice) Push(x any) { *h = append(*h, x.(*item)) }

func (h *heapSlice) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// MessageQueue is a blocking, priority-ordered FIFO queue. A single
// MessageQueue is owned by exactly one Component and drained by exactly
// one goroutine, but Push may be called concurrently from many.
type MessageQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  heapSlice
	seq    uint64
	closed bool
}

// New returns an empty, open MessageQueue.
func New() *MessageQueue {
	q := &MessageQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues value at priority. Push on a closed queue is a no-op.
func (q *MessageQueue) Push(value any, priority Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.seq++
	heap.Push(&q.items, &item{value: value, priority: priority, seq: q.seq})
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed. ok is
// false only when the queue was closed and drained.
func (q *MessageQueue) Pop() (value any, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	it := heap.Pop(&q.items).(*item)
	return it.value, true
}

// TryPop returns immediately with ok false if nothing is queued.
func (q *MessageQueue) TryPop() (value any, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	it := heap.Pop(&q.items).(*item)
	return it.value, true
}

// Len returns the number of items currently queued.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and wakes every blocked Pop. Items already
// queued remain poppable until drained; after that Pop returns ok=false.
func (q *MessageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *MessageQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
