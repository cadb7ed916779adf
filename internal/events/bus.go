package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscriber buffer used by Subscribe.
const DefaultBufferSize = 256

// Bus fans events out to subscribers without ever blocking publishers.
// Slow consumers lose events once their buffer fills.
type Bus struct {
	mu      sync.RWMutex
	subs    map[<-chan Event]chan Event
	dropped atomic.Uint64
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[<-chan Event]chan Event),
	}
}

// Subscribe registers a subscriber with the default buffer size
func (b *Bus) Subscribe() <-chan Event {
	return b.SubscribeBuffered(DefaultBufferSize)
}

// SubscribeBuffered registers a subscriber with its own buffer size.
// Consumers that relay events over the network should size the buffer
// for their expected backlog.
func (b *Bus) SubscribeBuffered(size int) <-chan Event {
	if size <= 0 {
		size = DefaultBufferSize
	}
	ch := make(chan Event, size)

	b.mu.Lock()
	b.subs[ch] = ch
	b.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(sub)
	}
}

// Publish delivers the event to every subscriber whose buffer has room.
// Events for full subscribers are dropped and counted.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many events were discarded because a
// subscriber's buffer was full
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, ch := range b.subs {
		close(ch)
		delete(b.subs, key)
	}
}
