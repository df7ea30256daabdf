package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"liveclass-service/internal/domain"
)

// MessageStore persists chat messages; rooms broadcast the stored
// representation rather than the raw inbound payload.
type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) SaveMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg.ID = uuid.NewString()
	msg.SentAt = time.Now().UTC()
	if msg.ContentKind == "" {
		msg.ContentKind = "TEXT"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, room_id, sender_id, sender_name, content, content_kind, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Content, msg.ContentKind, msg.SentAt)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}
