// Package event provides the notification port for task lifecycle
// transitions. Listeners subscribe explicitly and must close their
// subscription when done; there is no implicit listener lifetime.
package event

import (
	"sync"
	"time"
)

// Event names published by the coordinator and the monitor.
const (
	TaskCreated     = "task:created"
	TaskAccepted    = "task:accepted"
	TaskCompleted   = "task:completed"
	TaskConfirmed   = "task:confirmed"
	PaymentSent     = "payment:sent"
	PaymentFailed   = "payment:failed"
	StaleClaim      = "monitor:stale_claim"
	AwaitingPayment = "monitor:awaiting_payment"
)

// Event is a single notification with its payload fields.
type Event struct {
	Name    string                 `json:"name"`
	Payload map[string]interface{} `json:"payload"`
	At      time.Time              `json:"at"`
}

// DefaultBuffer is the subscription channel capacity used when the
// subscriber does not pick one.
const DefaultBuffer = 64

// Broadcaster fans events out to all active subscriptions. Delivery is
// non-blocking: a subscriber that stops draining its channel loses
// events instead of stalling the publisher.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is one listener's channel into the broadcaster.
type Subscription struct {
	bus *Broadcaster
	ch  chan Event
}

// C returns the channel events are delivered on. It is closed when the
// subscription or the broadcaster closes.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new listener. buffer <= 0 uses DefaultBuffer.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		bus: b,
		ch:  make(chan Event, buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers the event to every active subscription. Callers
// publish only after the corresponding state mutation has committed,
// so subscribers observe notifications in mutation order.
func (b *Broadcaster) Publish(name string, payload map[string]interface{}) {
	ev := Event{Name: name, Payload: payload, At: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Buffer full, drop for this subscriber.
		}
	}
}

// Close detaches all subscriptions and closes their channels. Further
// publishes are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

func (b *Broadcaster) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}
