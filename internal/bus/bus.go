// Package bus fans sync_complete events out to in-process subscribers
// and optionally bridges them through Redis for cross-process delivery.
package bus

import (
	"log"
	"sync"

	"github.com/pasthortown/cripto/internal/model"
)

// Bus broadcasts sync results to N subscriber channels. If a subscriber
// channel is full the event is dropped for that consumer so a slow
// subscriber never blocks the publisher.
type Bus struct {
	mu      sync.RWMutex
	outputs []chan model.SyncResult
	bufSize int

	// OnDrop is called when an event is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a Bus with the given buffer size for subscriber channels.
func New(outputBufferSize int) *Bus {
	return &Bus{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new subscriber channel.
func (b *Bus) Subscribe() <-chan model.SyncResult {
	ch := make(chan model.SyncResult, b.bufSize)
	b.mu.Lock()
	b.outputs = append(b.outputs, ch)
	b.mu.Unlock()
	return ch
}

// Publish fans an event out to all subscribers without blocking.
func (b *Bus) Publish(ev model.SyncResult) {
	b.mu.RLock()
	for i, ch := range b.outputs {
		select {
		case ch <- ev:
		default:
			if b.OnDrop != nil {
				b.OnDrop(i)
			} else {
				log.Printf("[bus] subscriber %d full, dropping sync_complete %s", i, ev.Symbol)
			}
		}
	}
	b.mu.RUnlock()
}

// Close closes all subscriber channels. Publish must not be called after.
func (b *Bus) Close() {
	b.mu.Lock()
	for _, ch := range b.outputs {
		close(ch)
	}
	b.outputs = nil
	b.mu.Unlock()
}
