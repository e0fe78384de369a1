package resilience

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream unavailable")

// testBreaker pins the clock so timeout transitions are driven by the test.
func testBreaker(name string, maxFailures int, timeout time.Duration) (*Breaker, func(time.Duration)) {
	b := NewBreaker(name, maxFailures, timeout)
	clock := time.Now()
	b.now = func() time.Time { return clock }
	return b, func(d time.Duration) { clock = clock.Add(d) }
}

func trip(b *Breaker, failures int) {
	for range failures {
		_ = b.Execute(func() error { return errUpstream })
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker("scorer", 3, time.Second)

	if got := b.State(); got != "closed" {
		t.Fatalf("State() = %q, want closed", got)
	}
	if got := b.Name(); got != "scorer" {
		t.Fatalf("Name() = %q, want scorer", got)
	}

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("call not admitted while closed")
	}
}

func TestBreakerReturnsCallErrorUnchanged(t *testing.T) {
	b := NewBreaker("scorer", 3, time.Second)

	if err := b.Execute(func() error { return errUpstream }); !errors.Is(err, errUpstream) {
		t.Fatalf("Execute = %v, want errUpstream", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("scorer", 3, time.Second)
	trip(b, 3)

	if got := b.State(); got != "open" {
		t.Fatalf("State() = %q, want open", got)
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("call admitted while open")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("scorer", 3, time.Second)

	trip(b, 2)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	trip(b, 2)

	if got := b.State(); got != "closed" {
		t.Fatalf("State() = %q, want closed", got)
	}
}

func TestBreakerTimeoutAdmitsProbe(t *testing.T) {
	b, advance := testBreaker("search", 2, time.Second)
	trip(b, 2)

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute before timeout = %v, want ErrCircuitOpen", err)
	}

	advance(2 * time.Second)
	if got := b.State(); got != "half_open" {
		t.Fatalf("State() = %q, want half_open", got)
	}

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !called {
		t.Fatal("probe not admitted")
	}
	if got := b.State(); got != "closed" {
		t.Fatalf("State() after probe success = %q, want closed", got)
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b, advance := testBreaker("graph", 2, time.Second)
	trip(b, 2)
	advance(2 * time.Second)

	if err := b.Execute(func() error { return errUpstream }); !errors.Is(err, errUpstream) {
		t.Fatalf("probe = %v, want errUpstream", err)
	}
	if got := b.State(); got != "open" {
		t.Fatalf("State() after failed probe = %q, want open", got)
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute after reopen = %v, want ErrCircuitOpen", err)
	}

	// The re-armed timeout grants a fresh probe.
	advance(2 * time.Second)
	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if !called {
		t.Fatal("second probe not admitted")
	}
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	b, advance := testBreaker("graph", 1, time.Second)
	trip(b, 1)
	advance(2 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("call during probe = %v, want ErrCircuitOpen", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if got := b.State(); got != "closed" {
		t.Fatalf("State() = %q, want closed", got)
	}
}
