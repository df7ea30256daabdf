package app

import (
	"context"
	"time"

	"liveclass-service/internal/domain"
)

// RoomStore abstracts how live room state is tracked (in-memory, Redis-backed).
// The *Room values it hands out are the single source of truth for mutation;
// snapshot mirroring is best-effort and TTL-bound.
type RoomStore interface {
	GetOrCreate(roomID string, kind RoomKind) *Room
	Get(roomID string) (*Room, bool)
	DeleteIfEmpty(roomID string)
	SaveGameSnapshot(snap domain.GameSnapshot)
	ClearGame(roomID string)
}

// MembershipRepository answers the authorization questions asked at join time.
type MembershipRepository interface {
	// LessonAccess reports whether the user may join the lesson's room:
	// the professor of the lesson's course, or a student with a completed
	// enrollment. Returns domain.ErrNotAuthorized otherwise.
	LessonAccess(ctx context.Context, userID, lessonID string) error
	// ConversationAccess reports whether the user participates in the conversation.
	ConversationAccess(ctx context.Context, userID, conversationID string) error
}

// MessageStore persists chat messages before they are fanned out.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
}

// ContentRepository loads game content (from cache/backing store).
type ContentRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	GetChallenge(ctx context.Context, challengeID string) (domain.Challenge, error)
}

// Broadcaster is the fan-out capability: Publish reaches every process
// holding live connections for the room.
type Broadcaster interface {
	Publish(ctx context.Context, roomID string, event domain.Event) error
	Subscribe(roomID string) (<-chan domain.Event, func(), error)
}

// GradingOracle judges a free-form code submission.
type GradingOracle interface {
	Evaluate(ctx context.Context, challengeID, code string) (bool, error)
}

// ProgressionSink delivers XP awards to the external progression service.
type ProgressionSink interface {
	AwardXP(ctx context.Context, userID string, points int, reason string) error
}

// GameConfig tunes timers and scoring. Zero values are replaced by defaults.
type GameConfig struct {
	QuizRoundDuration time.Duration
	CodeRoundDuration time.Duration
	SettleDelay       time.Duration
	GetReadyDelay     time.Duration
	AutoCloseGrace    time.Duration

	BasePoints int
	DecayStep  int
	FloorPoint int

	TopN    int
	BonusXP int
}

func (c GameConfig) withDefaults() GameConfig {
	if c.QuizRoundDuration <= 0 {
		c.QuizRoundDuration = 30 * time.Second
	}
	if c.CodeRoundDuration <= 0 {
		c.CodeRoundDuration = 10 * time.Minute
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 3 * time.Second
	}
	if c.GetReadyDelay <= 0 {
		c.GetReadyDelay = 2 * time.Second
	}
	if c.AutoCloseGrace <= 0 {
		c.AutoCloseGrace = 3 * time.Second
	}
	if c.BasePoints <= 0 {
		c.BasePoints = 100
	}
	if c.DecayStep <= 0 {
		c.DecayStep = 10
	}
	if c.FloorPoint <= 0 {
		c.FloorPoint = 10
	}
	if c.TopN <= 0 {
		c.TopN = 3
	}
	if c.BonusXP <= 0 {
		c.BonusXP = 50
	}
	return c
}
