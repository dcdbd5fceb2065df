package session

import (
	"sync"
	"time"
)

type itemKind int

const (
	itemControl itemKind = iota
	itemStart
	itemAudio
)

// item is one outbound message. Start is tagged separately so the writer can
// reset its sequence guard at the session boundary.
type item struct {
	kind itemKind
	data []byte
	seq  uint64
	dur  time.Duration
}

// outbound is the FIFO between producers (Start/Feed/Stop) and the single
// connection writer. Control items and audio items share one queue so the
// service observes them in the order they were issued.
//
// The queue is bounded by the total duration of buffered audio. Control
// items are never dropped.
type outbound struct {
	limit time.Duration

	mu       sync.Mutex
	items    []item
	buffered time.Duration

	// ready has capacity one and is signalled after every push.
	ready chan struct{}
}

func newOutbound(limit time.Duration) *outbound {
	return &outbound{limit: limit, ready: make(chan struct{}, 1)}
}

// push appends it. For audio items the oldest queued audio is evicted until
// the buffered duration fits the limit again; the evicted items are
// returned. The newest frame itself is always kept.
func (q *outbound) push(it item) (dropped []item) {
	q.mu.Lock()
	if it.kind == itemAudio {
		for q.buffered+it.dur > q.limit {
			i := q.oldestAudio()
			if i < 0 {
				break
			}
			dropped = append(dropped, q.items[i])
			q.buffered -= q.items[i].dur
			q.items = append(q.items[:i], q.items[i+1:]...)
		}
		q.buffered += it.dur
	}
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return dropped
}

func (q *outbound) oldestAudio() int {
	for i, it := range q.items {
		if it.kind == itemAudio {
			return i
		}
	}
	return -1
}

// pop removes and returns the head item, or false when empty.
func (q *outbound) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	q.items[0] = item{}
	q.items = q.items[1:]
	if it.kind == itemAudio {
		q.buffered -= it.dur
	}
	return it, true
}

// len returns the number of queued items.
func (q *outbound) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
