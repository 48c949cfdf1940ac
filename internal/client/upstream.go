package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/kjstillabower/travel-discovery-service/internal/circuitbreaker"
	"github.com/kjstillabower/travel-discovery-service/internal/observability"
	"github.com/kjstillabower/travel-discovery-service/internal/traffic"
)

var (
	ErrMissingCredential = errors.New("missing API credential")
	ErrUnauthorized      = errors.New("upstream rejected credentials")
	ErrNotFound          = errors.New("upstream resource not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// maxBodyBytes caps upstream responses.
const maxBodyBytes = 8 << 20

// RetryPolicy controls retries of transient failures.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy is used when callers pass a zero policy.
var DefaultRetryPolicy = RetryPolicy{Attempts: 2, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

// upstream is the transport shared by the three clients: timeout, retries
// with jittered backoff, optional circuit breaker, metrics and correlation
// id propagation.
type upstream struct {
	api     string
	client  *http.Client
	timeout time.Duration
	retry   RetryPolicy
	breaker *circuitbreaker.CircuitBreaker
}

// Option customizes a client.
type Option func(*upstream)

// WithRetry overrides DefaultRetryPolicy.
func WithRetry(p RetryPolicy) Option {
	return func(u *upstream) {
		if p.Attempts > 0 {
			u.retry = p
		}
	}
}

// WithBreaker routes every attempt through cb.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(u *upstream) { u.breaker = cb }
}

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(u *upstream) {
		if c != nil {
			u.client = c
		}
	}
}

func newUpstream(api string, timeout time.Duration, opts []Option) upstream {
	u := upstream{
		api:     api,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		retry:   DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

// get performs the request built by build, retrying transient failures, and
// returns the response body of a 2xx reply.
func (u *upstream) get(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < u.retry.Attempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.WithLabelValues(u.api).Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(u.backoff(attempt)):
			}
		}

		var body []byte
		call := func() error {
			var err error
			body, err = u.call(ctx, build)
			return err
		}
		var err error
		if u.breaker != nil {
			err = u.breaker.Call(ctx, call)
		} else {
			err = call()
		}
		if err == nil {
			traffic.RecordSuccess(u.api)
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			u.recordFailure(err)
			return nil, err
		}
	}
	u.recordFailure(lastErr)
	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (u *upstream) recordFailure(err error) {
	if IsBreakerFailure(err) {
		traffic.RecordError(u.api)
	}
}

func (u *upstream) call(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := build(reqCtx)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(u.api, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(u.api, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(u.api, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := observability.StatusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(u.api, status).Inc()
	observability.UpstreamDuration.WithLabelValues(u.api, status).Observe(time.Since(start).Seconds())

	if err := statusError(resp.StatusCode); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func (u *upstream) backoff(attempt int) time.Duration {
	delay := float64(u.retry.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(u.retry.MaxDelay) {
		delay = float64(u.retry.MaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusError(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, code)
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code < 200 || code >= 300:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
	return nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstreamFailure) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsBreakerFailure reports whether err should count against an upstream's
// circuit breaker. Caller-side problems (missing key, cancellation) do not.
func IsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrMissingCredential) &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled)
}
