package pool

import (
	"sync"
	"sync/atomic"
)

// noCopy may be embedded into structs which must not be copied after first use.
// go vet will warn on accidental copies (it looks for Lock methods).
type noCopy struct{}

func (*noCopy) Lock() {}

// rnode for the single-lock report list (plain pointer; protected by mu)
type rnode struct {
	val  Report
	next *rnode
}

// reportQueue is a simple, single-mutex many-producer queue for worker
// failure reports. Producers never block. The pool is the only consumer
// and drains it opportunistically between batches, so there is no blocking
// pop and no condition variable to get wrong.
type reportQueue struct {
	noCopy noCopy

	mu     sync.Mutex
	head   *rnode // sentinel
	tail   *rnode
	closed bool
	size   int64 // track queued count (atomic operations used for count to avoid taking mu)
}

func newReportQueue() *reportQueue {
	s := &rnode{}
	return &reportQueue{head: s, tail: s}
}

func (q *reportQueue) put(r Report) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	n := &rnode{val: r}
	q.tail.next = n
	q.tail = n
	atomic.AddInt64(&q.size, 1)
	return nil
}

func (q *reportQueue) tryPop() (Report, bool) {
	q.mu.Lock()
	if q.head.next == nil {
		q.mu.Unlock()
		return Report{}, false
	}

	// pop head.next
	n := q.head.next
	q.head.next = n.next
	if q.head.next == nil {
		q.tail = q.head
	}
	q.mu.Unlock()

	atomic.AddInt64(&q.size, -1)
	return n.val, true
}

// drain empties the queue in arrival order.
func (q *reportQueue) drain() []Report {
	var out []Report
	for {
		r, ok := q.tryPop()
		if !ok {
			return out
		}
		out = append(out, r)
	}
}

func (q *reportQueue) count() int {
	return int(atomic.LoadInt64(&q.size))
}

func (q *reportQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
