package domain

import "time"

// SessionID identifies a scheduled live interview. It doubles as the
// room key on the signaling side.
type SessionID string

// LifecycleStatus describes how far a session has progressed.
type LifecycleStatus string

const (
	StatusScheduled   LifecycleStatus = "scheduled"
	StatusOngoing     LifecycleStatus = "ongoing"
	StatusCompleted   LifecycleStatus = "completed"
	StatusNotAttended LifecycleStatus = "not-attended"
)

// Terminal reports whether no further transitions are allowed from s.
func (s LifecycleStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusNotAttended
}

// Valid reports whether s is one of the known statuses.
func (s LifecycleStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusOngoing, StatusCompleted, StatusNotAttended:
		return true
	}
	return false
}

// CanTransition reports whether moving from one status to another is legal.
// Transitions are monotonic forward: scheduled may become ongoing or
// not-attended, ongoing may become completed, and a scheduled session whose
// participant leaves mid-window goes straight to completed. Re-applying the
// current status is always allowed (idempotent no-op for callers).
func CanTransition(from, to LifecycleStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusScheduled:
		return to == StatusOngoing || to == StatusNotAttended || to == StatusCompleted
	case StatusOngoing:
		return to == StatusCompleted
	}
	return false
}

// WindowPhase locates the wall clock relative to the session window.
type WindowPhase int

const (
	PhaseBefore WindowPhase = iota
	PhaseOpen
	PhaseAfter
)

func (p WindowPhase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseOpen:
		return "open"
	case PhaseAfter:
		return "after"
	}
	return "unknown"
}

// Session is the record supplied by external persistence. The coordinator
// reads the window bounds and writes lifecycle transitions; everything else
// is opaque scheduling metadata.
type Session struct {
	ID              SessionID       `json:"id"`
	Position        string          `json:"position,omitempty"`
	InterviewType   string          `json:"interview_type,omitempty"`
	ScheduledStart  time.Time       `json:"scheduled_start"`
	DurationMinutes int             `json:"duration_minutes"`
	Status          LifecycleStatus `json:"status"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
}

// RoomID returns the signaling room key for this session.
func (s *Session) RoomID() string {
	return string(s.ID)
}

// Window returns the authorized interval [start, end).
func (s *Session) Window() (start, end time.Time) {
	start = s.ScheduledStart
	end = start.Add(time.Duration(s.DurationMinutes) * time.Minute)
	return start, end
}

// Phase locates now relative to the session window.
func (s *Session) Phase(now time.Time) WindowPhase {
	start, end := s.Window()
	switch {
	case now.Before(start):
		return PhaseBefore
	case now.Before(end):
		return PhaseOpen
	default:
		return PhaseAfter
	}
}
