package ports

import (
	"context"
	"time"

	"pairview/internal/core/domain"
)

// RoomStore is the authoritative membership tracker. All mutation happens
// through atomic add/remove so the in-process implementation can be swapped
// for a distributed one without changing the relay.
type RoomStore interface {
	// Join adds connID to the room, creating it on first join. Returns the
	// updated member list sorted ascending, or domain.ErrRoomFull when the
	// room already holds two other members. Joining a room you are already
	// in is a no-op.
	Join(ctx context.Context, roomID, connID string) ([]string, error)

	// Leave removes connID and discards the room once it is empty. Returns
	// the remaining member list.
	Leave(ctx context.Context, roomID, connID string) ([]string, error)

	// Members returns the current member list sorted ascending. A missing
	// room yields an empty list, not an error.
	Members(ctx context.Context, roomID string) ([]string, error)

	// RoomCount reports how many non-empty rooms exist.
	RoomCount(ctx context.Context) (int, error)
}

// SessionRepository is the contract with external persistence: fetch the
// record, push lifecycle transitions back.
type SessionRepository interface {
	Get(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	Put(ctx context.Context, session *domain.Session) error

	// UpdateStatus patches status and, when non-nil, the started/ended
	// timestamps.
	UpdateStatus(ctx context.Context, id domain.SessionID, status domain.LifecycleStatus, startedAt, endedAt *time.Time) error
}
