package ports

import (
	"context"
	"time"

	"pairview/internal/core/domain"
)

// LifecycleService enforces the session time window and keeps the persisted
// status consistent with wall-clock reality. Every transition is idempotent:
// re-applying the current status is a no-op, never an error.
type LifecycleService interface {
	Session(ctx context.Context, id domain.SessionID) (*domain.Session, error)

	// Authorize locates now relative to the session window. Entry is only
	// permitted while the phase is PhaseOpen.
	Authorize(ctx context.Context, id domain.SessionID, now time.Time) (domain.WindowPhase, error)

	// MarkStarted transitions scheduled -> ongoing and records startedAt.
	MarkStarted(ctx context.Context, id domain.SessionID, now time.Time) error

	// Complete transitions a non-terminal session to completed and records
	// endedAt.
	Complete(ctx context.Context, id domain.SessionID, now time.Time) error

	// MarkNotAttended transitions scheduled -> not-attended for a session
	// whose window ended before anyone joined.
	MarkNotAttended(ctx context.Context, id domain.SessionID, now time.Time) error

	// Monitor re-evaluates the window on a fixed interval until the session
	// reaches a terminal status or ctx is cancelled. joined reports whether
	// any participant ever entered the room; onExpired fires once after the
	// terminal transition has been applied.
	Monitor(ctx context.Context, id domain.SessionID, joined func() bool, onExpired func(domain.LifecycleStatus))
}
