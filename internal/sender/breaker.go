package sender

import (
	"fmt"
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// ErrCircuitOpen short-circuits sends while a provider is considered down.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open")

// circuitBreaker trips open when the recent failure ratio crosses a
// threshold, rejects calls for openDuration, then lets a single probe
// through in half-open state.
type circuitBreaker struct {
	mu sync.Mutex

	minRequests  int
	failureRatio float64
	openDuration time.Duration
	now          func() time.Time

	state    breakerState
	requests int
	failures int
	openedAt time.Time
	probing  bool
}

func newCircuitBreaker(minRequests int, failureRatio float64, openDuration time.Duration) *circuitBreaker {
	if minRequests < 1 {
		minRequests = 1
	}
	if failureRatio <= 0 || failureRatio > 1 {
		failureRatio = 0.5
	}
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}

	return &circuitBreaker{
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openDuration: openDuration,
		now:          time.Now,
	}
}

// allow reports whether a call may proceed.
func (b *circuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.openDuration {
			return false
		}
		b.state = stateHalfOpen
		b.probing = true
		return true
	case stateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.reset()
		return
	}

	b.requests++
	b.maybeRollWindow()
}

func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.trip()
		return
	}

	b.requests++
	b.failures++

	if b.requests >= b.minRequests &&
		float64(b.failures)/float64(b.requests) >= b.failureRatio {
		b.trip()
		return
	}
	b.maybeRollWindow()
}

func (b *circuitBreaker) trip() {
	b.state = stateOpen
	b.openedAt = b.now()
	b.probing = false
	b.requests = 0
	b.failures = 0
}

func (b *circuitBreaker) reset() {
	b.state = stateClosed
	b.probing = false
	b.requests = 0
	b.failures = 0
}

// maybeRollWindow keeps the counters from growing without bound so a long
// healthy streak does not mask a sudden burst of failures.
func (b *circuitBreaker) maybeRollWindow() {
	if b.requests >= b.minRequests*10 {
		b.requests = 0
		b.failures = 0
	}
}
