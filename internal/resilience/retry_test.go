package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	t.Parallel()
	calls := 0
	got, err := Do(context.Background(), RetryConfig{Provider: "p", MaxRetries: 1}, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestDo_RetriesTransientOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	got, err := Do(context.Background(), RetryConfig{Provider: "p", MaxRetries: 1}, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("connection reset by peer")
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "recovered" || calls != 2 {
		t.Errorf("got %q after %d calls, want recovered after 2", got, calls)
	}
}

func TestDo_ExhaustedRetries(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Do(context.Background(), RetryConfig{Provider: "p", MaxRetries: 1}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("503 service unavailable")
	})
	if err == nil {
		t.Fatal("Do returned nil error after exhausting retries")
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2 (attempt + one retry)", calls)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ProviderError in chain", err)
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Errorf("err = %v, want retries-exhausted wrapper", err)
	}
}

func TestDo_PermanentNotRetried(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Do(context.Background(), RetryConfig{Provider: "p", MaxRetries: 3}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("invalid request: bad model")
	})
	if err == nil {
		t.Fatal("Do returned nil error")
	}
	if calls != 1 {
		t.Errorf("fn called %d times for a permanent error, want 1", calls)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindPermanent {
		t.Errorf("err = %v, want permanent ProviderError", err)
	}
}

func TestDo_ParentCancellationStopsRetrying(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, RetryConfig{Provider: "p", MaxRetries: 5}, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times after parent cancellation, want 1", calls)
	}
}

func TestDo_CancelledBeforeFirstAttempt(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, RetryConfig{Provider: "p", MaxRetries: 1}, func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("fn called %d times with a dead context, want 0", calls)
	}
}

func TestDo_AttemptTimeoutApplies(t *testing.T) {
	t.Parallel()
	calls := 0
	start := time.Now()
	_, err := Do(context.Background(), RetryConfig{Provider: "p", AttemptTimeout: 20 * time.Millisecond, MaxRetries: 1}, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if err == nil {
		t.Fatal("Do returned nil error")
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2 (deadline is transient)", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do took %v; per-attempt deadlines not applied", elapsed)
	}
}
