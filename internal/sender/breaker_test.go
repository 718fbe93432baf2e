package sender

import (
	"testing"
	"time"
)

func TestBreakerTripsOnFailureRatio(t *testing.T) {
	t.Parallel()

	b := newCircuitBreaker(4, 0.5, 30*time.Second)

	for i := 0; i < 2; i++ {
		if !b.allow() {
			t.Fatal("closed breaker should allow")
		}
		b.recordSuccess()
	}
	for i := 0; i < 2; i++ {
		if !b.allow() {
			t.Fatal("closed breaker should allow")
		}
		b.recordFailure()
	}

	// 2 failures out of 4 requests hits the 0.5 ratio.
	if b.allow() {
		t.Fatal("breaker should be open after crossing the failure ratio")
	}
}

func TestBreakerBelowMinRequests(t *testing.T) {
	t.Parallel()

	b := newCircuitBreaker(10, 0.5, 30*time.Second)

	for i := 0; i < 5; i++ {
		b.recordFailure()
	}
	if !b.allow() {
		t.Fatal("breaker must not trip before minRequests observations")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := newCircuitBreaker(1, 0.5, 10*time.Second)
	b.now = func() time.Time { return now }

	b.recordFailure()
	if b.allow() {
		t.Fatal("breaker should be open")
	}

	// After the open window one probe is let through.
	now = now.Add(11 * time.Second)
	if !b.allow() {
		t.Fatal("half-open breaker should allow one probe")
	}
	if b.allow() {
		t.Fatal("half-open breaker should block a second call while probing")
	}

	b.recordSuccess()
	if !b.allow() {
		t.Fatal("successful probe should close the breaker")
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := newCircuitBreaker(1, 0.5, 10*time.Second)
	b.now = func() time.Time { return now }

	b.recordFailure()
	now = now.Add(11 * time.Second)
	if !b.allow() {
		t.Fatal("half-open breaker should allow one probe")
	}

	b.recordFailure()
	if b.allow() {
		t.Fatal("failed probe should reopen the breaker")
	}
}
