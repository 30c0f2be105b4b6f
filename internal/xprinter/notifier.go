package xprinter

import (
	"log/slog"
	"sync"
)

// Observer receives state events.
type Observer func(Event)

const notifyQueueSize = 64

// Notifier delivers events to a single observer on one execution context.
// By default that is a dedicated goroutine, so events arrive in the order
// they were published; a UI toolkit can supply its own post function.
type Notifier struct {
	mu       sync.Mutex
	observer Observer
	post     func(func())
	log      *slog.Logger

	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewNotifier returns a notifier that runs deliveries through post. A nil
// post starts the internal dispatcher goroutine; Stop ends it.
func NewNotifier(post func(func()), logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{post: post, log: logger, done: make(chan struct{})}
	if post == nil {
		n.queue = make(chan func(), notifyQueueSize)
		n.post = n.enqueue
		go n.dispatch()
	}
	return n
}

// Observe registers o, replacing any previous observer. nil unregisters.
func (n *Notifier) Observe(o Observer) {
	n.mu.Lock()
	n.observer = o
	n.mu.Unlock()
}

// Notify publishes an event. Without an observer the event is dropped.
func (n *Notifier) Notify(state State, message string) {
	n.mu.Lock()
	o := n.observer
	n.mu.Unlock()
	if o == nil {
		n.log.Debug("[xprinter] no observer, dropping state event", "state", state)
		return
	}
	ev := Event{State: state, Message: message}
	n.post(func() { o(ev) })
}

// Stop ends the internal dispatcher. Pending events are discarded.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.done) })
}

func (n *Notifier) enqueue(f func()) {
	select {
	case <-n.done:
	case n.queue <- f:
	default:
		n.log.Warn("[xprinter] observer is not keeping up, dropping state event")
	}
}

func (n *Notifier) dispatch() {
	for {
		select {
		case <-n.done:
			return
		case f := <-n.queue:
			f()
		}
	}
}
