package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// Broker fans events out to in-process subscribers.
//
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Broker struct {
	buffer  int
	dropped atomic.Int64

	mu   sync.RWMutex
	subs map[chan Event]string
}

// NewBroker creates a Broker whose subscriber channels hold buffer events.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{buffer: buffer, subs: make(map[chan Event]string)}
}

// Publish delivers ev to every matching subscriber.
func (b *Broker) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, taskID := range b.subs {
		if taskID != "" && taskID != ev.TaskID {
			continue
		}
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe returns a channel of events for taskID, or for every task when taskID is empty, and a
// function that unsubscribes and closes the channel.
func (b *Broker) Subscribe(taskID string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.subs[ch] = taskID
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
