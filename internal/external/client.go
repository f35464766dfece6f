// Package external contains clients for third-party APIs. Outbound calls go
// through BaseClient, which applies circuit breaking, retry with backoff,
// request ID propagation and upstream error mapping.
package external

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"envmonitor/internal/types"
)

// RetryPolicy configures how BaseClient retries 429 and 5xx responses.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the policy used for weather lookups.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    500 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// BaseClient wraps an *http.Client with a named circuit breaker.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(context.Context, time.Duration) error
}

// BaseClientOption configures a BaseClient.
type BaseClientOption func(*BaseClient)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c *http.Client) BaseClientOption {
	return func(bc *BaseClient) { bc.client = c }
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) BaseClientOption {
	return func(bc *BaseClient) { bc.retryPolicy = p }
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) BaseClientOption {
	return func(bc *BaseClient) { bc.userAgent = ua }
}

// WithSleepFunc overrides the wait between retries. Tests pass a no-op.
func WithSleepFunc(fn func(context.Context, time.Duration) error) BaseClientOption {
	return func(bc *BaseClient) { bc.sleepFn = fn }
}

// WithBreaker supplies a preconfigured circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(bc *BaseClient) { bc.breaker = cb }
}

// NewBreaker returns the breaker used by default: it opens after more than
// five consecutive failures and probes again after 30 seconds.
func NewBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
}

// NewBaseClient creates a BaseClient whose breaker is named breakerName.
func NewBaseClient(breakerName string, opts ...BaseClientOption) *BaseClient {
	bc := &BaseClient{
		client:      &http.Client{Timeout: 10 * time.Second},
		retryPolicy: DefaultRetryPolicy(),
		sleepFn:     sleepCtx,
	}
	for _, opt := range opts {
		opt(bc)
	}
	if bc.breaker == nil {
		bc.breaker = NewBreaker(breakerName)
	}
	return bc
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Do executes a body-less request. 2xx-4xx responses other than 429 are
// returned as-is and the caller closes the body. 429 and 5xx are retried per
// the policy; when retries run out, or the breaker is open, Do returns an
// upstream AppError and no response.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if id := types.GetRequestID(ctx); id != "" {
		req.Header.Set("X-B3-TraceId", id)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastStatus int
	var lastErr error
	for attempt := 0; attempt <= c.retryPolicy.MaxRetries; attempt++ {
		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, err := c.client.Do(req)
			if err != nil {
				return nil, err
			}
			if retryable(r.StatusCode) {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		lastStatus = 0
		var retryAfter string
		if resp != nil {
			lastStatus = resp.StatusCode
			retryAfter = resp.Header.Get("Retry-After")
			resp.Body.Close()
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < c.retryPolicy.MaxRetries {
			if err := c.sleepFn(ctx, c.backoff(attempt, retryAfter)); err != nil {
				lastErr = err
				break
			}
		}
	}

	return nil, c.mapError(lastStatus, lastErr)
}

// backoff honours a Retry-After header (seconds or HTTP date), otherwise uses
// exponential backoff with jitter in [MinWait, MinWait*2^attempt], capped at
// MaxWait.
func (c *BaseClient) backoff(attempt int, retryAfter string) time.Duration {
	p := c.retryPolicy
	clamp := func(d time.Duration) time.Duration {
		if d < p.MinWait {
			return p.MinWait
		}
		if d > p.MaxWait {
			return p.MaxWait
		}
		return d
	}

	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return clamp(time.Duration(secs) * time.Second)
		}
		if t, err := http.ParseTime(retryAfter); err == nil {
			return clamp(time.Until(t))
		}
	}

	ceiling := float64(p.MinWait) * math.Pow(2, float64(attempt))
	if ceiling > float64(p.MaxWait) {
		ceiling = float64(p.MaxWait)
	}
	floor := float64(p.MinWait)
	if ceiling <= floor {
		return p.MinWait
	}
	return time.Duration(floor + rand.Float64()*(ceiling-floor))
}

func (c *BaseClient) mapError(status int, err error) *types.AppError {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "circuit breaker is open", err)
	case status == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
	case status >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("upstream returned %d after retries", status), err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request failed", err)
	}
}
