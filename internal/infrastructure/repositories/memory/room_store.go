package memory

import (
	"context"
	"sort"
	"sync"

	"pairview/internal/core/domain"
	"pairview/internal/core/ports"
)

// RoomStore tracks room membership in process memory. All rooms are
// process-lifetime only; a room disappears as soon as its last member
// leaves.
type RoomStore struct {
	rooms map[string]map[string]struct{}
	mu    sync.Mutex
}

func NewRoomStore() ports.RoomStore {
	return &RoomStore{
		rooms: make(map[string]map[string]struct{}),
	}
}

func (s *RoomStore) Join(ctx context.Context, roomID, connID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, exists := s.rooms[roomID]
	if !exists {
		members = make(map[string]struct{})
		s.rooms[roomID] = members
	}

	if _, present := members[connID]; !present {
		if len(members) >= domain.RoomCapacity {
			return nil, domain.ErrRoomFull
		}
		members[connID] = struct{}{}
	}

	return sortedMembers(members), nil
}

func (s *RoomStore) Leave(ctx context.Context, roomID, connID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, exists := s.rooms[roomID]
	if !exists {
		return nil, nil
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(s.rooms, roomID)
		return nil, nil
	}

	return sortedMembers(members), nil
}

func (s *RoomStore) Members(ctx context.Context, roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, exists := s.rooms[roomID]
	if !exists {
		return nil, nil
	}
	return sortedMembers(members), nil
}

func (s *RoomStore) RoomCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms), nil
}

func sortedMembers(members map[string]struct{}) []string {
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
