package engine

import "sync"

// fifo is an unbounded FIFO of model changes. It is the single
// serialization point between the many producer goroutines and the one
// worker: changes come out in exactly the order they went in.
type fifo struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Change
	closed bool
}

func newFIFO() *fifo {
	q := &fifo{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends a change and never blocks.
func (q *fifo) push(c Change) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, c)
	q.cond.Signal()
}

// pop blocks until a change is available or the queue is closed.
func (q *fifo) pop() (Change, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Change{}, false
	}
	c := q.items[0]
	q.items = q.items[1:]
	return c, true
}

// tryPop pops without blocking; ok is false when the queue is empty.
func (q *fifo) tryPop() (Change, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Change{}, false
	}
	c := q.items[0]
	q.items = q.items[1:]
	return c, true
}

func (q *fifo) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close wakes the worker; queued items can still be drained.
func (q *fifo) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
