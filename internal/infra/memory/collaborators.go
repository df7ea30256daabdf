package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveclass-service/internal/domain"
)

// MembershipRepository answers join authorization from in-memory maps.
// Useful for tests and redis/postgres-less demo deployments.
type MembershipRepository struct {
	mu            sync.RWMutex
	professors    map[string]string              // lessonID -> professor userID
	enrollments   map[string]map[string]struct{} // lessonID -> enrolled students
	conversations map[string]map[string]struct{} // conversationID -> participants
}

func NewMembershipRepository() *MembershipRepository {
	return &MembershipRepository{
		professors:    make(map[string]string),
		enrollments:   make(map[string]map[string]struct{}),
		conversations: make(map[string]map[string]struct{}),
	}
}

// GrantLesson marks a user as allowed into a lesson room.
func (m *MembershipRepository) GrantLesson(lessonID, userID string, professor bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if professor {
		m.professors[lessonID] = userID
		return
	}
	if m.enrollments[lessonID] == nil {
		m.enrollments[lessonID] = make(map[string]struct{})
	}
	m.enrollments[lessonID][userID] = struct{}{}
}

// GrantConversation marks a user as a conversation participant.
func (m *MembershipRepository) GrantConversation(conversationID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conversations[conversationID] == nil {
		m.conversations[conversationID] = make(map[string]struct{})
	}
	m.conversations[conversationID][userID] = struct{}{}
}

func (m *MembershipRepository) LessonAccess(_ context.Context, userID, lessonID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.professors[lessonID] == userID {
		return nil
	}
	if _, ok := m.enrollments[lessonID][userID]; ok {
		return nil
	}
	return domain.ErrNotAuthorized
}

func (m *MembershipRepository) ConversationAccess(_ context.Context, userID, conversationID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.conversations[conversationID][userID]; ok {
		return nil
	}
	return domain.ErrNotAuthorized
}

// AllowAllMembership admits every authenticated user; for demo deployments
// without a relational backend.
type AllowAllMembership struct{}

func (AllowAllMembership) LessonAccess(context.Context, string, string) error       { return nil }
func (AllowAllMembership) ConversationAccess(context.Context, string, string) error { return nil }

// MessageStore keeps chat messages in memory.
type MessageStore struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

func (s *MessageStore) SaveMessage(_ context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = uuid.NewString()
	msg.SentAt = time.Now()
	s.messages = append(s.messages, msg)
	return msg, nil
}

// Messages snapshots the stored messages, for tests.
func (s *MessageStore) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// ProgressionSink records XP awards instead of publishing them.
type ProgressionSink struct {
	mu     sync.Mutex
	awards []XPAward
}

type XPAward struct {
	UserID string
	Points int
	Reason string
}

func NewProgressionSink() *ProgressionSink {
	return &ProgressionSink{}
}

func (p *ProgressionSink) AwardXP(_ context.Context, userID string, points int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.awards = append(p.awards, XPAward{UserID: userID, Points: points, Reason: reason})
	return nil
}

// Awards snapshots the recorded grants, for tests.
func (p *ProgressionSink) Awards() []XPAward {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]XPAward, len(p.awards))
	copy(out, p.awards)
	return out
}

// GradingOracle judges a submission by comparing it to the challenge's
// reference solution; a stand-in for the external oracle in tests/demos.
type GradingOracle struct {
	loader ContentLoader
}

func NewGradingOracle(loader ContentLoader) *GradingOracle {
	return &GradingOracle{loader: loader}
}

func (g *GradingOracle) Evaluate(ctx context.Context, challengeID, code string) (bool, error) {
	challenge, err := g.loader.LoadChallenge(ctx, challengeID)
	if err != nil {
		return false, err
	}
	return code != "" && code == challenge.ReferenceSolution, nil
}
