package engine

import (
	"sync"

	"github.com/taehoon/flowkit/internal/flow"
)

// Notifier delivers lifecycle events from one run to its listener in
// generation order. The internal queue is unbounded, so a slow listener
// never blocks the executing run; publishing is non-blocking.
type Notifier struct {
	mu     sync.Mutex
	queue  []flow.Event
	wake   chan struct{}
	out    chan flow.Event
	closed bool
}

// NewNotifier creates a Notifier and starts its delivery goroutine.
func NewNotifier() *Notifier {
	n := &Notifier{
		wake: make(chan struct{}, 1),
		out:  make(chan flow.Event),
	}
	go n.pump()
	return n
}

// Events returns the ordered event stream. The channel is closed after
// Close once every published event has been delivered.
func (n *Notifier) Events() <-chan flow.Event { return n.out }

// Publish enqueues an event. It never blocks and is a no-op after Close.
func (n *Notifier) Publish(e flow.Event) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, e)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Close marks the stream complete. Queued events are still delivered
// before the Events channel closes.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *Notifier) pump() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			if n.closed {
				n.mu.Unlock()
				close(n.out)
				return
			}
			n.mu.Unlock()
			<-n.wake
			continue
		}
		e := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()

		n.out <- e
	}
}
