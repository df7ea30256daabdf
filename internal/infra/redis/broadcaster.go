package redis

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"liveclass-service/internal/domain"
)

// Broadcaster implements the broadcast group on Redis pub/sub: Publish
// reaches every process holding live connections for the room, including
// this one. Each Subscribe opens its own pub/sub subscription and relays
// into a buffered channel; a subscriber that falls behind loses its oldest
// pending event rather than blocking the relay.
type Broadcaster struct {
	client *redis.Client
}

func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client}
}

func (b *Broadcaster) Publish(ctx context.Context, roomID string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel(roomID), data).Err()
}

func (b *Broadcaster) Subscribe(roomID string) (<-chan domain.Event, func(), error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	sub := b.client.Subscribe(ctx, b.channel(roomID))
	// Force the subscription handshake so events published right after
	// Subscribe returns are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		cancelCtx()
		_ = sub.Close()
		return nil, nil, err
	}

	ch := make(chan domain.Event, 16)
	go func() {
		defer close(ch)
		for msg := range sub.Channel() {
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("drop malformed bus event: room=%s err=%v", roomID, err)
				continue
			}
			select {
			case ch <- event:
			default:
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
	}()

	cancel := func() {
		cancelCtx()
		_ = sub.Close()
	}
	return ch, cancel, nil
}

func (b *Broadcaster) channel(roomID string) string {
	return "room:events:" + roomID
}
