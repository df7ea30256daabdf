package memory

import (
	"sync"

	"liveclass-service/internal/app"
	"liveclass-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. Snapshots are
// retained in a plain map so tests can inspect the last mirrored state.
type RoomStore struct {
	mu        sync.RWMutex
	rooms     map[string]*app.Room
	snapshots map[string]domain.GameSnapshot
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:     make(map[string]*app.Room),
		snapshots: make(map[string]domain.GameSnapshot),
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
		delete(s.snapshots, roomID)
	}
}

func (s *RoomStore) SaveGameSnapshot(snap domain.GameSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.RoomID] = snap
}

func (s *RoomStore) ClearGame(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, roomID)
}

// GameSnapshot returns the last mirrored game state, for tests.
func (s *RoomStore) GameSnapshot(roomID string) (domain.GameSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[roomID]
	return snap, ok
}
