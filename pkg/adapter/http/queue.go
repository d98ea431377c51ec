package http

import (
	"sync"
	"time"

	httpproto "github.com/marmos91/dittohttp/internal/protocol/http"
	"github.com/marmos91/dittohttp/pkg/engine"
)

// workItem is one captured request waiting for a worker. The connection is
// detached from the engine; whoever pops the item owns it.
type workItem struct {
	id       string
	conn     engine.Conn
	request  *httpproto.Request
	enqueued time.Time
}

// workQueue is an unbounded FIFO shared by the dispatcher and the workers.
//
// After Close, Pop keeps handing out queued items until the queue is empty
// and only then reports closed, so nothing accepted before shutdown is lost.
//
// onDepth, if set, is called with the new length after every Push and Pop
// while the lock is held, so reported depths arrive in order.
type workQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []*workItem
	head    int
	closed  bool
	onDepth func(depth int)
}

func newWorkQueue(onDepth func(depth int)) *workQueue {
	q := &workQueue{onDepth: onDepth}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item and wakes one waiting worker. It reports false if the
// queue is closed; the caller still owns the item then.
func (q *workQueue) Push(item *workItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.reportDepth()
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available or the queue is closed and drained.
// The item is removed before it is returned.
func (q *workQueue) Pop() (*workItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head == len(q.items) {
		return nil, false
	}

	item := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// compact once the consumed prefix dominates
	if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	q.reportDepth()
	return item, true
}

// reportDepth must be called with mu held.
func (q *workQueue) reportDepth() {
	if q.onDepth != nil {
		q.onDepth(len(q.items) - q.head)
	}
}

// Close stops accepting items and wakes every waiting worker.
func (q *workQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
