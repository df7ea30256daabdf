package memory

import (
	"context"
	"sync"

	"liveclass-service/internal/domain"
)

// Broadcaster is a single-process implementation of the broadcast group:
// Publish fans an event out to every subscriber channel for the room.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan domain.Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string]map[chan domain.Event]struct{})}
}

func (b *Broadcaster) Publish(_ context.Context, roomID string, event domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers[roomID] {
		select {
		case ch <- event:
		default:
			// Slow subscriber: drop its oldest pending event so broadcast
			// never blocks the room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	return nil
}

func (b *Broadcaster) Subscribe(roomID string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, 16)

	b.mu.Lock()
	if b.subscribers[roomID] == nil {
		b.subscribers[roomID] = make(map[chan domain.Event]struct{})
	}
	b.subscribers[roomID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.subscribers[roomID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(b.subscribers, roomID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel, nil
}
