package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"liveclass-service/internal/app"
	"liveclass-service/internal/domain"
)

// RoomStore is a Redis-aware implementation of app.RoomStore.
// Notes:
//   - The *Room values (and their game state) stay in a local in-memory map;
//     mutation authority never leaves the process that owns the connections.
//   - Redis marks room liveness and mirrors the active game state as a
//     TTL-bound JSON document, so a game abandoned by a crashed process
//     expires on its own instead of lingering forever.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	rooms  map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
	}
}

func (s *RoomStore) GetOrCreate(roomID string, kind app.RoomKind) *app.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		return room
	}
	room := app.NewRoom(roomID, kind)
	s.rooms[roomID] = room
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.roomKey(roomID), "1", s.ttl).Err()
	return room
}

func (s *RoomStore) Get(roomID string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

func (s *RoomStore) DeleteIfEmpty(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	if room.IsEmpty() {
		delete(s.rooms, roomID)
		_ = s.client.Del(context.Background(), s.roomKey(roomID), s.gameKey(roomID)).Err()
	}
}

func (s *RoomStore) SaveGameSnapshot(snap domain.GameSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("marshal game snapshot: room=%s err=%v", snap.RoomID, err)
		return
	}
	if err := s.client.Set(context.Background(), s.gameKey(snap.RoomID), data, s.ttl).Err(); err != nil {
		log.Printf("mirror game snapshot: room=%s err=%v", snap.RoomID, err)
	}
}

func (s *RoomStore) ClearGame(roomID string) {
	_ = s.client.Del(context.Background(), s.gameKey(roomID)).Err()
}

// GameSnapshot reads back the mirrored game state, for tests and admin checks.
func (s *RoomStore) GameSnapshot(ctx context.Context, roomID string) (domain.GameSnapshot, bool) {
	raw, err := s.client.Get(ctx, s.gameKey(roomID)).Bytes()
	if err != nil {
		return domain.GameSnapshot{}, false
	}
	var snap domain.GameSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.GameSnapshot{}, false
	}
	return snap, true
}

func (s *RoomStore) roomKey(roomID string) string {
	return "room:live:" + roomID
}

func (s *RoomStore) gameKey(roomID string) string {
	return "room:game:" + roomID
}
