package client

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kineintra/kineintra/internal/protocol"
)

// DefaultQueueSize is the capacity of the poll queue.
const DefaultQueueSize = 1024

// Event is one decoded frame as seen by Poll.
type Event struct {
	Kind     protocol.Kind
	Message  protocol.Message
	Received time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Received.Format("15:04:05.000"), e.Message)
}

// AsStatus returns the payload of a STATUS event.
func (e Event) AsStatus() (protocol.StatusPayload, bool) {
	s, ok := e.Message.(protocol.StatusPayload)
	return s, ok
}

// AsData returns the payload of a DATA event.
func (e Event) AsData() (protocol.DataPayload, bool) {
	d, ok := e.Message.(protocol.DataPayload)
	return d, ok
}

// AsAck returns the payload of an ACK event.
func (e Event) AsAck() (protocol.AckPayload, bool) {
	a, ok := e.Message.(protocol.AckPayload)
	return a, ok
}

// AsError returns the payload of an ERROR event.
func (e Event) AsError() (protocol.ErrorPayload, bool) {
	p, ok := e.Message.(protocol.ErrorPayload)
	return p, ok
}

// eventQueue is a bounded FIFO that never blocks the producer: when full,
// the oldest event is discarded and counted.
type eventQueue struct {
	ch      chan Event
	dropped atomic.Uint64
}

func newEventQueue(size int) *eventQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &eventQueue{ch: make(chan Event, size)}
}

func (q *eventQueue) push(e Event) {
	for {
		select {
		case q.ch <- e:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

// pop waits up to timeout for an event. A non-positive timeout does not wait.
func (q *eventQueue) pop(timeout time.Duration) (Event, bool) {
	if timeout <= 0 {
		select {
		case e := <-q.ch:
			return e, true
		default:
			return Event{}, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e := <-q.ch:
		return e, true
	case <-timer.C:
		return Event{}, false
	}
}

func (q *eventQueue) len() int {
	return len(q.ch)
}

// Sequence hands out command sequence numbers, wrapping after 255.
type Sequence struct {
	n atomic.Uint32
}

// Next returns the next sequence number, starting at 1.
func (s *Sequence) Next() uint8 {
	return uint8(s.n.Add(1))
}
