package worker

import (
	"sync"

	"go.uber.org/zap"
)

// subscriptionBuffer is the capacity of each subscriber's event channel.
// A subscriber that falls this far behind is dropped rather than allowed
// to backpressure the consume loop.
const subscriptionBuffer = 64

// Subscription is one attachment to the Broadcaster. Receive events from C;
// it is closed when the subscriber is dropped or the broadcaster shuts down.
type Subscription struct {
	C <-chan Event

	ch chan Event
}

// Broadcaster fans runtime events out to any number of in-process
// subscribers. It complements Handlers: callbacks are awaited by the
// consume loop, while broadcast delivery is non-blocking.
//
// Safe for concurrent use.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	logger *zap.Logger
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		logger: logger.Named("broadcast"),
	}
}

// Subscribe attaches a new subscriber and returns its Subscription.
// Subscribing to a closed broadcaster returns an already-closed channel.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan Event, subscriptionBuffer)}
	sub.C = sub.ch

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe detaches sub and closes its channel. Safe to call more than
// once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// Publish delivers ev to every subscriber without blocking. A subscriber
// whose buffer is full is dropped, the same policy a push hub applies to
// slow clients: one stalled consumer must not hold up the rest.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("dropping slow event subscriber",
				zap.String("event_type", string(ev.Type)),
			)
			b.removeLocked(sub)
		}
	}
}

// Close drops every subscriber and marks the broadcaster closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		b.removeLocked(sub)
	}
}

// removeLocked detaches sub and closes its channel. Caller holds b.mu.
func (b *Broadcaster) removeLocked(sub *Subscription) {
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}
