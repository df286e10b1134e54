// Package collectors holds the Runnable implementations that fetch
// vendor market data and stage it into relstore, grounded on the
// original system's src/actions/collect/*.rs and src/actions/stage/*.rs
// pairs: one Runnable per vendor endpoint that fetches and decodes,
// one paired Runnable that upserts the decoded rows.
package collectors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/semaphore"

	"github.com/swarmguard/databridge/internal/resilience"
)

// maxResponseBytes bounds how much of a vendor response body gets
// read, mirroring the pooled HTTP executor this package's fetchers
// replace.
const maxResponseBytes = 10 << 20

// maxInFlight bounds the number of vendor requests this process has
// open at once, independent of whatever rate limiter a fetcher is
// given.
const maxInFlight = 8

var tracer = otel.Tracer("databridge/collectors")

// httpClient is the pooled client every fetcher in this package shares.
var httpClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	},
}

var inFlight = semaphore.NewWeighted(maxInFlight)

// getJSON issues a traced GET against url and reads up to
// maxResponseBytes of the response body. limiter and breaker may be
// nil, in which case the call proceeds unguarded by vendor-specific
// throttling (the process-wide inFlight cap still applies). limiter
// gates on its token bucket first and falls back to queuing on its
// leaky bucket, so a burst of ready tasks is smoothed rather than
// rejected outright.
func getJSON(ctx context.Context, url string, limiter *resilience.HybridRateLimiter, breaker *resilience.CircuitBreaker) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "collectors.getJSON")
	defer span.End()

	if breaker != nil && !breaker.Allow() {
		return nil, fmt.Errorf("collectors: circuit open for %s", url)
	}
	if limiter != nil {
		if err := limiter.AllowOrWait(ctx); err != nil {
			return nil, fmt.Errorf("collectors: rate limited fetching %s: %w", url, err)
		}
	}

	if err := inFlight.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("collectors: wait for request slot: %w", err)
	}
	defer inFlight.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("collectors: build request: %w", err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := httpClient.Do(req)
	if breaker != nil {
		breaker.RecordResult(err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("collectors: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("collectors: %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("collectors: read body from %s: %w", url, err)
	}
	return body, nil
}
