package chat

import (
	"context"
	"sync"

	"ecosweep.org/internal/obs"
)

const subscriberBuffer = 16

// Fanout broadcasts messages to all live subscribers of an event. It never
// owns message state; callers publish only messages that are already
// persisted.
type Fanout struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan Message
	next int
}

// NewFanout initialises an empty registry.
func NewFanout() *Fanout {
	return &Fanout{subs: make(map[string]map[int]chan Message)}
}

// Subscribe registers a subscriber for the event and returns the channel it
// will receive messages on. The subscription deregisters itself and closes
// the channel when the provided context ends, so disconnects cannot leak.
func (f *Fanout) Subscribe(ctx context.Context, eventID string) <-chan Message {
	ch := make(chan Message, subscriberBuffer)

	f.mu.Lock()
	id := f.next
	f.next++
	if f.subs[eventID] == nil {
		f.subs[eventID] = make(map[int]chan Message)
	}
	f.subs[eventID][id] = ch
	f.mu.Unlock()
	obs.ChatSubscriberDelta(1)

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs[eventID], id)
		if len(f.subs[eventID]) == 0 {
			delete(f.subs, eventID)
		}
		close(ch)
		f.mu.Unlock()
		obs.ChatSubscriberDelta(-1)
	}()

	return ch
}

// Publish delivers the message to every current subscriber of its event.
// Delivery is non-blocking per subscriber: a full buffer means the message
// is dropped for that subscriber, never that delivery to others stalls.
func (f *Fanout) Publish(msg Message) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs[msg.EventID] {
		select {
		case ch <- msg:
		default:
			// Slow subscriber; it catches up from persisted history.
		}
	}
}

// Subscribers reports the number of live subscribers for an event.
func (f *Fanout) Subscribers(eventID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[eventID])
}
