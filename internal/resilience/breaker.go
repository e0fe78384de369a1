// Package resilience provides the retry and circuit-breaking primitives
// that guard calls to the scoring, search and graph upstreams.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen rejects calls while the upstream is considered down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker cuts calls to an upstream after maxFailures consecutive errors.
// Once the open timeout elapses a single probe call is let through; its
// outcome either closes the circuit or re-arms the timeout.
type Breaker struct {
	name        string
	maxFailures int
	timeout     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    state
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker. The name identifies the protected
// upstream in logs and health reports.
func NewBreaker(name string, maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Name returns the upstream identifier this breaker protects.
func (b *Breaker) Name() string { return b.name }

// State reports "closed", "open" or "half_open".
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState().String()
}

// currentState applies the timeout transition. Callers hold b.mu.
func (b *Breaker) currentState() state {
	if b.state == stateOpen && b.now().Sub(b.openedAt) >= b.timeout {
		b.state = stateHalfOpen
		b.probing = false
	}
	return b.state
}

// Execute runs fn unless the circuit is open and returns fn's error
// unchanged. In the half-open state only one probe is admitted; calls
// arriving while it is in flight get ErrCircuitOpen.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}

	err := fn()
	b.settle(err)
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case stateClosed:
		return true
	case stateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		if b.state == stateHalfOpen || b.failures >= b.maxFailures {
			b.state = stateOpen
			b.openedAt = b.now()
			b.probing = false
		}
		return
	}

	b.failures = 0
	b.state = stateClosed
	b.probing = false
}
