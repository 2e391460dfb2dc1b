package memory

import (
	"context"
	"sync"
	"time"

	"pairview/internal/core/domain"
	"pairview/internal/core/ports"
)

// SessionRepository keeps session records in process memory. In a real
// deployment the external scheduler owns persistence and pushes records in
// over HTTP; this implementation backs that surface and the tests.
type SessionRepository struct {
	sessions map[domain.SessionID]*domain.Session
	mu       sync.RWMutex
}

func NewSessionRepository() ports.SessionRepository {
	return &SessionRepository{
		sessions: make(map[domain.SessionID]*domain.Session),
	}
}

func (r *SessionRepository) Get(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepository) Put(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, id domain.SessionID, status domain.LifecycleStatus, startedAt, endedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	if !exists {
		return domain.ErrSessionNotFound
	}

	s.Status = status
	if startedAt != nil {
		s.StartedAt = startedAt
	}
	if endedAt != nil {
		s.EndedAt = endedAt
	}
	return nil
}
