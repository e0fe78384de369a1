package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/curatd/curatd/internal/domain/policy"
)

var errTest = errors.New("test error")

func fastPolicy(maxAttempts int) policy.RetryPolicy {
	return policy.RetryPolicy{
		Class:              policy.ClassLightweight,
		Timeout:            time.Second,
		MaxAttempts:        maxAttempts,
		InitialInterval:    time.Millisecond,
		BackoffCoefficient: 2.0,
		MaxInterval:        10 * time.Millisecond,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), fastPolicy(4), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	attempts, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("expected errTest, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	attempts, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		return policy.Permanent(errTest)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !policy.IsPermanent(err) {
		t.Fatalf("expected permanent classification, got %v", err)
	}
	if !errors.Is(err, errTest) {
		t.Fatalf("expected errTest in chain, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetrySingleAttempt(t *testing.T) {
	attempts, err := Retry(context.Background(), fastPolicy(1), func(ctx context.Context) error {
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("expected errTest, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts, err := Retry(ctx, fastPolicy(5), func(ctx context.Context) error {
		cancel()
		return errTest
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestRetryAttemptTimeout(t *testing.T) {
	p := fastPolicy(2)
	p.Timeout = 5 * time.Millisecond

	attempts, err := Retry(context.Background(), p, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("timed-out attempt should be retried: got %d attempts", attempts)
	}
}

func TestRetryDelaysFollowPolicyCurve(t *testing.T) {
	p := fastPolicy(4)

	var delays []time.Duration
	_, err := RetryNotify(context.Background(), p, func(ctx context.Context) error {
		return errTest
	}, func(err error, next time.Duration) {
		delays = append(delays, next)
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("expected errTest, got %v", err)
	}

	if len(delays) != 3 {
		t.Fatalf("expected 3 backoff sleeps for 4 attempts, got %d", len(delays))
	}
	for i, d := range delays {
		want := p.Interval(i + 1)
		if d != want {
			t.Errorf("delay[%d] = %v, want %v", i, d, want)
		}
	}
}
