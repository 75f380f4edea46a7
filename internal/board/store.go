package board

import (
	"encoding/json"
	"sync"
	"time"
)

// A live collaboration session: its members and the latest scene snapshot
type Room struct {
	ID         string
	members    map[string]struct{}
	scene      json.RawMessage
	createdAt  time.Time
	lastUpdate time.Time
}

// Store owns the mapping of room id -> room state. All mutation goes
// through its methods; callers never touch the maps directly.
type Store struct {
	rooms map[string]*Room

	// Reverse index: connection id -> room ids it has joined.
	// Lets a disconnect find its rooms without scanning the store.
	byConn map[string]map[string]struct{}

	mu sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		rooms:  make(map[string]*Room),
		byConn: make(map[string]map[string]struct{}),
	}
}

// EnsureRoom creates the room if it does not exist yet. Idempotent.
func (s *Store) EnsureRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(roomID)
}

func (s *Store) ensureLocked(roomID string) *Room {
	r, ok := s.rooms[roomID]
	if !ok {
		now := time.Now()
		r = &Room{
			ID:         roomID,
			members:    make(map[string]struct{}),
			createdAt:  now,
			lastUpdate: now,
		}
		s.rooms[roomID] = r
	}
	return r
}

// AddMember registers a connection in a room, creating the room if needed.
// No-op if the connection is already a member.
func (s *Store) AddMember(roomID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.ensureLocked(roomID)
	r.members[connID] = struct{}{}

	joined, ok := s.byConn[connID]
	if !ok {
		joined = make(map[string]struct{})
		s.byConn[connID] = joined
	}
	joined[roomID] = struct{}{}
}

// RemoveMember drops a connection from a room. When the last member leaves
// the room is deleted immediately and RemoveMember reports true.
func (s *Store) RemoveMember(roomID, connID string) (wasLast bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if joined, ok := s.byConn[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(s.byConn, connID)
		}
	}

	r, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	delete(r.members, connID)
	if len(r.members) == 0 {
		delete(s.rooms, roomID)
		return true
	}
	return false
}

// IsMember reports whether a connection has joined a room.
func (s *Store) IsMember(roomID, connID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = r.members[connID]
	return ok
}

// SetScene replaces the stored snapshot wholesale (last-write-wins).
// Silently ignores unknown rooms so stale events cannot resurrect a
// room that was already reclaimed.
func (s *Store) SetScene(roomID string, elements json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return
	}
	snapshot := make(json.RawMessage, len(elements))
	copy(snapshot, elements)
	r.scene = snapshot
	r.lastUpdate = time.Now()
}

// Scene returns the latest snapshot for a room, or nil if the room is
// unknown or has no snapshot yet.
func (s *Store) Scene(roomID string) json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok || r.scene == nil {
		return nil
	}
	snapshot := make(json.RawMessage, len(r.scene))
	copy(snapshot, r.scene)
	return snapshot
}

// Members returns the connection ids currently in a room.
func (s *Store) Members(roomID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// RoomsOf returns the room ids a connection has joined.
func (s *Store) RoomsOf(connID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	joined, ok := s.byConn[connID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(joined))
	for id := range joined {
		ids = append(ids, id)
	}
	return ids
}

// MemberCount returns the number of members in a room (0 if unknown).
func (s *Store) MemberCount(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return 0
	}
	return len(r.members)
}

// RoomCount returns the number of live rooms.
func (s *Store) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// ActiveRooms returns member counts keyed by room id, for the stats API.
func (s *Store) ActiveRooms() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.rooms))
	for id, r := range s.rooms {
		out[id] = len(r.members)
	}
	return out
}
