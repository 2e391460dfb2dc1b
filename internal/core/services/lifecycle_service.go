package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pairview/internal/core/domain"
	"pairview/internal/core/ports"
	"pairview/internal/infrastructure/monitoring"
	"pairview/pkg/retry"
)

// LifecycleService enforces the session time window and drives status
// transitions. Persistence writes go through retry with backoff since the
// session repository may be remote.
type LifecycleService struct {
	sessions ports.SessionRepository
	metrics  *monitoring.PrometheusCollector
	retryCfg retry.Config
	interval time.Duration
	logger   *zap.SugaredLogger
}

func NewLifecycleService(sessions ports.SessionRepository, metrics *monitoring.PrometheusCollector, checkInterval time.Duration, logger *zap.SugaredLogger) *LifecycleService {
	return &LifecycleService{
		sessions: sessions,
		metrics:  metrics,
		retryCfg: retry.DefaultConfig(),
		interval: checkInterval,
		logger:   logger,
	}
}

func (s *LifecycleService) Session(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.sessions.Get(ctx, id)
}

func (s *LifecycleService) Authorize(ctx context.Context, id domain.SessionID, now time.Time) (domain.WindowPhase, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return domain.PhaseBefore, err
	}

	phase := session.Phase(now)
	switch phase {
	case domain.PhaseBefore:
		return phase, domain.ErrWindowNotOpen
	case domain.PhaseAfter:
		return phase, domain.ErrWindowClosed
	}
	return phase, nil
}

func (s *LifecycleService) MarkStarted(ctx context.Context, id domain.SessionID, now time.Time) error {
	return s.transition(ctx, id, domain.StatusOngoing, &now, nil)
}

func (s *LifecycleService) Complete(ctx context.Context, id domain.SessionID, now time.Time) error {
	return s.transition(ctx, id, domain.StatusCompleted, nil, &now)
}

func (s *LifecycleService) MarkNotAttended(ctx context.Context, id domain.SessionID, now time.Time) error {
	return s.transition(ctx, id, domain.StatusNotAttended, nil, &now)
}

// transition applies one idempotent status change. Re-applying the current
// status, or asking for a transition out of a terminal status that targets
// that same status, is a no-op. An illegal change out of a live status is
// an error; an attempt after the session has already been finalized is not,
// since the poll loop and explicit teardown race benignly.
func (s *LifecycleService) transition(ctx context.Context, id domain.SessionID, to domain.LifecycleStatus, startedAt, endedAt *time.Time) error {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return err
	}

	if session.Status == to {
		return nil
	}
	if session.Status.Terminal() {
		s.logger.Debugw("ignoring transition on terminal session",
			"session_id", id, "status", session.Status, "requested", to)
		return nil
	}
	if !domain.CanTransition(session.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, session.Status, to)
	}

	err = retry.Retry(ctx, s.retryCfg, func() error {
		return s.sessions.UpdateStatus(ctx, id, to, startedAt, endedAt)
	})
	if err != nil {
		return fmt.Errorf("persist status %s: %w", to, err)
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(to)
		if to == domain.StatusCompleted && session.StartedAt != nil && endedAt != nil {
			s.metrics.RecordSessionDuration(endedAt.Sub(*session.StartedAt))
		}
	}

	s.logger.Infow("session status changed",
		"session_id", id, "from", session.Status, "to", to)
	return nil
}

// Monitor polls the window on a fixed interval. Once the window has ended
// it applies the terminal transition (completed when anyone ever joined,
// not-attended otherwise), fires onExpired once, and returns. It never
// busy-polls and stops as soon as ctx is cancelled.
func (s *LifecycleService) Monitor(ctx context.Context, id domain.SessionID, joined func() bool, onExpired func(domain.LifecycleStatus)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			session, err := s.sessions.Get(ctx, id)
			if err != nil {
				if errors.Is(err, domain.ErrSessionNotFound) {
					return
				}
				s.logger.Warnw("lifecycle poll failed", "session_id", id, "error", err)
				continue
			}

			if session.Status.Terminal() {
				return
			}
			if session.Phase(now) != domain.PhaseAfter {
				continue
			}

			target := domain.StatusNotAttended
			if joined() || session.Status == domain.StatusOngoing {
				target = domain.StatusCompleted
			}

			if err := s.transition(ctx, id, target, nil, &now); err != nil {
				s.logger.Warnw("expiry transition failed", "session_id", id, "error", err)
				continue
			}
			if onExpired != nil {
				onExpired(target)
			}
			return
		}
	}
}
