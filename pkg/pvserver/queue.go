package pvserver

import "sync"

type outItem struct {
	data      []byte
	droppable bool
}

// outQueue is an unbounded FIFO of responses interleaved with a bounded
// number of droppable notifications. Push never blocks.
type outQueue struct {
	mu        sync.Mutex
	items     []outItem
	droppable int
	limit     int
	closed    bool
	signal    chan struct{}
}

func newOutQueue(limit int) *outQueue {
	return &outQueue{
		limit:  limit,
		signal: make(chan struct{}, 1),
	}
}

// push appends data. It returns the number of notifications dropped to
// make room.
func (q *outQueue) push(data []byte, droppable bool) int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}

	dropped := 0
	if droppable {
		for q.droppable >= q.limit && q.dropOldest() {
			dropped++
		}
		q.droppable++
	}
	q.items = append(q.items, outItem{data: data, droppable: droppable})
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return dropped
}

func (q *outQueue) dropOldest() bool {
	for i, it := range q.items {
		if it.droppable {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.droppable--
			return true
		}
	}
	return false
}

// drain removes and returns everything queued.
func (q *outQueue) drain() []outItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	q.droppable = 0
	return items
}

func (q *outQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *outQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.droppable = 0
	q.mu.Unlock()
}
