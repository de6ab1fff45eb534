package session

import (
	"sync"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/metrics"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

type outMsg struct {
	msg      models.ServerMessage
	critical bool
}

// sendQueue is a bounded FIFO of outbound frames with an explicit shed
// policy: when full, the oldest non-critical frame is dropped to make room;
// a critical frame that still cannot fit means the consumer is too slow and
// the session must be evicted instead of blocking the broadcaster.
type sendQueue struct {
	mu       sync.Mutex
	items    []outMsg
	capacity int
	closed   bool
	notify   chan struct{} // wakes the writer, capacity 1
}

func newSendQueue(capacity int) *sendQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &sendQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// push enqueues a frame. Returns ErrSlowConsumer when a critical frame
// cannot be accommodated, ErrSessionClosed after close. A non-critical
// frame that cannot fit is silently dropped.
func (q *sendQueue) push(msg models.ServerMessage, critical bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrSessionClosed
	}

	if len(q.items) >= q.capacity {
		if !q.shedLocked() {
			if !critical {
				metrics.EventsDropped.Inc()
				return nil
			}
			return ErrSlowConsumer
		}
	}

	q.items = append(q.items, outMsg{msg: msg, critical: critical})
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// shedLocked removes the oldest non-critical frame, reporting whether a
// slot was freed. Caller holds q.mu.
func (q *sendQueue) shedLocked() bool {
	for i, item := range q.items {
		if !item.critical {
			q.items = append(q.items[:i], q.items[i+1:]...)
			metrics.EventsDropped.Inc()
			return true
		}
	}
	return false
}

// pop blocks until a frame is available or the queue closes. ok is false
// once the queue is closed and drained.
func (q *sendQueue) pop(done <-chan struct{}) (models.ServerMessage, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item.msg, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return models.ServerMessage{}, false
		}

		select {
		case <-q.notify:
		case <-done:
			return models.ServerMessage{}, false
		}
	}
}

// len returns the number of queued frames.
func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
