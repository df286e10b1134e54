package resilience

import (
	"context"
	"testing"
	"time"
)

// TestRateLimiterGatesEventTriggerBurst mirrors the /v1/events ingestion
// guard in cmd/ingestord/main.go: a burst up to capacity is allowed,
// the next call is denied, and a call after the refill window succeeds.
func TestRateLimiterGatesEventTriggerBurst(t *testing.T) {
	limiter := NewRateLimiter(5, 5, time.Second, 10)
	for i := 0; i < 5; i++ {
		if !limiter.Allow() {
			t.Fatalf("expected webhook trigger %d to be allowed within burst capacity", i)
		}
	}
	if limiter.Allow() {
		t.Fatalf("expected trigger to be denied once burst capacity is exhausted")
	}
	time.Sleep(1100 * time.Millisecond)
	if !limiter.Allow() {
		t.Fatalf("expected trigger to be allowed again after the bucket refills")
	}
}

// TestCircuitBreakerOpensAfterVendorFailuresAndRecovers mirrors the
// breaker wrapping a vendor fetch in internal/collectors: a run of
// failures trips it, it stays closed to new requests until the
// half-open window, then closes again once probes succeed.
func TestCircuitBreakerOpensAfterVendorFailuresAndRecovers(t *testing.T) {
	breaker := NewCircuitBreakerAdaptive(2*time.Second, 4, 4, 0.5, 500*time.Millisecond, 2)
	for i := 0; i < 4; i++ {
		if !breaker.Allow() {
			t.Fatalf("expected vendor call %d to be allowed before the breaker trips", i)
		}
		breaker.RecordResult(false)
	}
	if breaker.Allow() {
		t.Fatalf("expected breaker to deny vendor calls once the failure rate trips it open")
	}

	time.Sleep(600 * time.Millisecond)
	if !breaker.Allow() {
		t.Fatalf("expected a half-open probe to be allowed through")
	}
	breaker.RecordResult(true)
	if !breaker.Allow() {
		t.Fatalf("expected a second half-open probe to be allowed through")
	}
	breaker.RecordResult(true)
	if !breaker.Allow() {
		t.Fatalf("expected breaker to close again after enough successful probes")
	}
}

// TestHybridRateLimiterSmoothsVendorCallsAfterBurst mirrors how
// internal/collectors gates fetchers: an initial burst up to capacity
// proceeds immediately, and a call past capacity is smoothed onto the
// leaky-bucket queue rather than rejected outright.
func TestHybridRateLimiterSmoothsVendorCallsAfterBurst(t *testing.T) {
	limiter := NewHybridRateLimiter(2, 2, 4, 20*time.Millisecond)
	defer limiter.Stop()

	ctx := context.Background()
	if !limiter.Allow(ctx) {
		t.Fatalf("expected first vendor call to consume a burst token")
	}
	if !limiter.Allow(ctx) {
		t.Fatalf("expected second vendor call to consume the remaining burst token")
	}

	done := make(chan error, 1)
	go func() { done <- limiter.AllowOrWait(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected the queued vendor call to eventually proceed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("queued vendor call never proceeded")
	}
}

func TestHybridRateLimiterDeniesWhenQueueIsFull(t *testing.T) {
	// leakRate of an hour means the worker never drains the queue
	// during this test, and a zero-size queue has no room to hold even
	// one waiter, so the second call is denied immediately.
	limiter := NewHybridRateLimiter(1, 0, 0, time.Hour)
	defer limiter.Stop()

	ctx := context.Background()
	if !limiter.Allow(ctx) {
		t.Fatalf("expected the single burst token to be available")
	}
	if err := limiter.Wait(ctx); err != ErrRateLimitExceeded {
		t.Fatalf("expected a full queue to deny immediately, got %v", err)
	}
}
