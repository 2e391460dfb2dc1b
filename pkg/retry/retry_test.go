package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_RecoversAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	sentinel := errors.New("persistent")
	calls := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel error, got: %v", err)
	}
	// First try plus MaxAttempts retries.
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestRetry_DisabledRunsOnce(t *testing.T) {
	cfg := fastConfig()
	cfg.Enabled = false

	sentinel := errors.New("fail")
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastConfig(), func() error {
		return errors.New("never succeeds")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got: %v", err)
	}
}

func TestBackoffDelay_CappedAtMax(t *testing.T) {
	cfg := fastConfig()
	for attempt := 0; attempt < 10; attempt++ {
		if d := backoffDelay(cfg, attempt); d > cfg.MaxDelay {
			t.Fatalf("attempt %d: delay %v above max %v", attempt, d, cfg.MaxDelay)
		}
	}
}

func TestBackoffDelay_JitterStaysBounded(t *testing.T) {
	cfg := fastConfig()
	cfg.Jitter = true
	cfg.MaxDelay = time.Second
	for attempt := 0; attempt < 5; attempt++ {
		d := backoffDelay(cfg, attempt)
		if d > cfg.MaxDelay+cfg.MaxDelay/4 {
			t.Fatalf("jittered delay %v beyond 125%% of max", d)
		}
	}
}
