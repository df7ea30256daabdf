package app

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"liveclass-service/internal/domain"
)

// RoomService contains the room-session use cases: joining and leaving,
// presence, chat relay and direct XP grants. Game commands go through the
// GameEngine; the service only tells it about departures so the
// full-participation denominator shrinks.
type RoomService struct {
	rooms       RoomStore
	membership  MembershipRepository
	messages    MessageStore
	bus         Broadcaster
	progression ProgressionSink
	engine      *GameEngine
}

func NewRoomService(rooms RoomStore, membership MembershipRepository, messages MessageStore, bus Broadcaster, progression ProgressionSink, engine *GameEngine) *RoomService {
	return &RoomService{
		rooms:       rooms,
		membership:  membership,
		messages:    messages,
		bus:         bus,
		progression: progression,
		engine:      engine,
	}
}

// JoinLesson admits a connection to a lesson room. Authorization runs
// before any registration; rejected connections learn nothing about the
// room. Returns the connection ID used for the later Leave.
func (s *RoomService) JoinLesson(ctx context.Context, lessonID string, id domain.Identity) (string, error) {
	if err := s.membership.LessonAccess(ctx, id.UserID, lessonID); err != nil {
		return "", err
	}
	return s.admit(ctx, s.rooms.GetOrCreate(LessonRoomID(lessonID), RoomLesson), id), nil
}

// JoinConversation admits a connection to a chat-only conversation room.
func (s *RoomService) JoinConversation(ctx context.Context, conversationID string, id domain.Identity) (string, error) {
	if err := s.membership.ConversationAccess(ctx, id.UserID, conversationID); err != nil {
		return "", err
	}
	return s.admit(ctx, s.rooms.GetOrCreate(ConversationRoomID(conversationID), RoomConversation), id), nil
}

func (s *RoomService) admit(ctx context.Context, room *Room, id domain.Identity) string {
	connID := uuid.NewString()
	present, newcomer := room.attach(connID, id.UserID, id.DisplayName, id.Role.Staff())
	if newcomer {
		s.publish(ctx, room.ID(), domain.NewParticipantJoined(id, present))
	}
	return connID
}

// Leave unregisters a connection, shrinks the presence set when it was the
// participant's last connection, and dissolves the room when empty.
func (s *RoomService) Leave(ctx context.Context, roomID, connID string) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return
	}
	info, present, departed := room.detach(connID)
	if departed {
		id := domain.Identity{UserID: info.userID, DisplayName: info.displayName, Role: domain.RoleStudent}
		s.publish(ctx, roomID, domain.NewParticipantLeft(id, present))
		s.engine.HandleDeparture(roomID)
	}
	if room.IsEmpty() {
		s.rooms.DeleteIfEmpty(roomID)
	}
}

// SendChat persists the message, then broadcasts the stored representation.
// Empty payloads are dropped silently: callers get ErrEmptyContent only so
// they can skip replying, never to surface it to the client.
func (s *RoomService) SendChat(ctx context.Context, roomID string, id domain.Identity, content, contentKind string) error {
	if strings.TrimSpace(content) == "" {
		return domain.ErrEmptyContent
	}
	if _, ok := s.rooms.Get(roomID); !ok {
		return domain.ErrRoomNotFound
	}

	stored, err := s.messages.SaveMessage(ctx, domain.ChatMessage{
		RoomID:      roomID,
		SenderID:    id.UserID,
		SenderName:  id.DisplayName,
		Content:     content,
		ContentKind: contentKind,
	})
	if err != nil {
		return err
	}
	s.publish(ctx, roomID, domain.NewChatMessage(stored))
	return nil
}

// AwardXP lets a professor grant points directly, independent of any game.
func (s *RoomService) AwardXP(ctx context.Context, roomID string, actor domain.Identity, targetUserID string, points int) error {
	if actor.Role != domain.RoleProfessor {
		return domain.ErrNotProfessor
	}
	if points <= 0 || targetUserID == "" {
		return domain.ErrInvalidCommand
	}
	if err := s.progression.AwardXP(ctx, targetUserID, points, "professor grant"); err != nil {
		log.Printf("award xp failed: room=%s target=%s err=%v", roomID, targetUserID, err)
		return err
	}
	return nil
}

// Presence returns the current presence-set size.
func (s *RoomService) Presence(roomID string) (int, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	return room.PresenceCount(), nil
}

// AnnouncePresence re-broadcasts the sender's participant_joined event, for
// clients that reconnect their UI without reconnecting the socket.
func (s *RoomService) AnnouncePresence(ctx context.Context, roomID string, id domain.Identity) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	s.publish(ctx, roomID, domain.NewParticipantJoined(id, room.PresenceCount()))
	return nil
}

// Subscribe returns the room's event stream from the broadcast bus. The
// caller must invoke the cancel function to avoid leaks.
func (s *RoomService) Subscribe(roomID string) (<-chan domain.Event, func(), error) {
	return s.bus.Subscribe(roomID)
}

func (s *RoomService) publish(ctx context.Context, roomID string, event domain.Event) {
	if err := s.bus.Publish(ctx, roomID, event); err != nil {
		log.Printf("broadcast failed: room=%s type=%s err=%v", roomID, event.Type, err)
	}
}
