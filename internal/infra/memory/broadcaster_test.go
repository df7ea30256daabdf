package memory

import (
	"context"
	"testing"
	"time"

	"liveclass-service/internal/domain"
)

func TestBroadcasterFanOut(t *testing.T) {
	bus := NewBroadcaster()

	first, cancelFirst, err := bus.Subscribe("lesson:l1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelFirst()
	second, cancelSecond, err := bus.Subscribe("lesson:l1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelSecond()
	other, cancelOther, err := bus.Subscribe("lesson:l2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelOther()

	if err := bus.Publish(context.Background(), "lesson:l1", domain.Event{Type: domain.EventChatMessage}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, ch := range []<-chan domain.Event{first, second} {
		select {
		case event := <-ch:
			if event.Type != domain.EventChatMessage {
				t.Fatalf("unexpected event: %+v", event)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
	select {
	case event := <-other:
		t.Fatalf("event leaked across rooms: %+v", event)
	default:
	}
}

func TestBroadcasterDropsOldestForSlowSubscriber(t *testing.T) {
	bus := NewBroadcaster()
	ch, cancel, err := bus.Subscribe("lesson:l1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Overfill the buffer without draining; publishes must never block.
	for i := 0; i < 40; i++ {
		if err := bus.Publish(context.Background(), "lesson:l1", domain.Event{Type: domain.EventRankingUpdate}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received == 0 || received > 16 {
				t.Fatalf("expected between 1 and 16 buffered events, got %d", received)
			}
			return
		}
	}
}

func TestBroadcasterCancelIsIdempotent(t *testing.T) {
	bus := NewBroadcaster()
	ch, cancel, err := bus.Subscribe("lesson:l1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	cancel()

	if _, open := <-ch; open {
		t.Fatalf("expected channel closed after cancel")
	}
	if err := bus.Publish(context.Background(), "lesson:l1", domain.Event{Type: domain.EventChatMessage}); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}
