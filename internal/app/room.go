package app

import (
	"sync"
	"time"
)

// RoomKind distinguishes lesson rooms (chat + games) from plain
// conversation rooms (chat only).
type RoomKind string

const (
	RoomLesson       RoomKind = "LESSON"
	RoomConversation RoomKind = "CONVERSATION"
)

// LessonRoomID builds the room key for a lesson's live session.
func LessonRoomID(lessonID string) string { return "lesson:" + lessonID }

// ConversationRoomID builds the room key for an inbox conversation.
func ConversationRoomID(conversationID string) string { return "conversation:" + conversationID }

// Room owns one live session's connection registry and presence set, plus
// the active game state when one is running. All mutation goes through the
// room's lock; different rooms proceed fully in parallel.
type Room struct {
	id        string
	kind      RoomKind
	createdAt time.Time
	now       func() time.Time

	mu       sync.RWMutex
	conns    map[string]connInfo
	presence map[string]int // non-staff userID -> live connection count
	game     *gameState
}

type connInfo struct {
	userID      string
	displayName string
	staff       bool
}

// NewRoom is exported for infrastructure layers that need to seed rooms.
func NewRoom(id string, kind RoomKind) *Room {
	return newRoomWithClock(id, kind, time.Now)
}

// NewRoomWithClock is test-only for deterministic timestamps.
func NewRoomWithClock(id string, kind RoomKind, now func() time.Time) *Room {
	return newRoomWithClock(id, kind, now)
}

func newRoomWithClock(id string, kind RoomKind, now func() time.Time) *Room {
	return &Room{
		id:        id,
		kind:      kind,
		createdAt: now(),
		now:       now,
		conns:     make(map[string]connInfo),
		presence:  make(map[string]int),
	}
}

// ID returns the room key.
func (r *Room) ID() string { return r.id }

// Kind returns whether this is a lesson or conversation room.
func (r *Room) Kind() RoomKind { return r.kind }

// attach registers a connection. It reports the presence-set size after the
// join and whether this connection brought a new participant into presence.
func (r *Room) attach(connID, userID, displayName string, staff bool) (present int, newcomer bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[connID] = connInfo{userID: userID, displayName: displayName, staff: staff}
	if !staff {
		r.presence[userID]++
		newcomer = r.presence[userID] == 1
	}
	return len(r.presence), newcomer
}

// detach removes a connection. departed is true when the participant has no
// remaining connections and left the presence set.
func (r *Room) detach(connID string) (info connInfo, present int, departed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.conns[connID]
	if !ok {
		return connInfo{}, len(r.presence), false
	}
	delete(r.conns, connID)
	if !info.staff {
		r.presence[info.userID]--
		if r.presence[info.userID] <= 0 {
			delete(r.presence, info.userID)
			departed = true
		}
	}
	return info, len(r.presence), departed
}

// PresenceCount returns the number of connected non-staff participants.
func (r *Room) PresenceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.presence)
}

// PresentUsers snapshots the presence set.
func (r *Room) PresentUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.presence))
	for userID := range r.presence {
		users = append(users, userID)
	}
	return users
}

func (r *Room) isEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns) == 0
}

// IsEmpty reports whether the room has no live connections.
func (r *Room) IsEmpty() bool {
	return r.isEmpty()
}

// currentGame returns the active game state, or nil when idle.
func (r *Room) currentGame() *gameState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.game
}

// installGame sets a fresh game state if no live game exists. A previous
// game that already reached GAME_OVER is stale remnant and is overwritten.
func (r *Room) installGame(g *gameState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.game != nil && !r.game.finished() {
		return false
	}
	r.game = g
	return true
}

// clearGame drops the game state if it is still the given one.
func (r *Room) clearGame(g *gameState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.game == g {
		r.game = nil
	}
}
