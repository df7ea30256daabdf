package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName = "progression"
	routingKey   = "xp.award"
)

// ProgressionPublisher delivers XP awards to the external progression
// service through a RabbitMQ exchange.
type ProgressionPublisher struct {
	channel *amqp.Channel
}

// NewProgressionPublisher opens a channel on the given connection and
// declares the progression exchange idempotently.
func NewProgressionPublisher(conn *amqp.Connection) (*ProgressionPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &ProgressionPublisher{channel: ch}, nil
}

type xpAwardEvent struct {
	UserID    string    `json:"userId"`
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	AwardedAt time.Time `json:"awardedAt"`
}

func (p *ProgressionPublisher) AwardXP(ctx context.Context, userID string, points int, reason string) error {
	body, err := json.Marshal(xpAwardEvent{
		UserID:    userID,
		Points:    points,
		Reason:    reason,
		AwardedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close releases the underlying channel.
func (p *ProgressionPublisher) Close() error {
	return p.channel.Close()
}
