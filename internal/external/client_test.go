package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"envmonitor/internal/types"
)

func noopSleep(context.Context, time.Duration) error { return nil }

func newTestClient(opts ...BaseClientOption) *BaseClient {
	base := []BaseClientOption{
		WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
		WithUserAgent("envmonitor-test/1.0"),
		WithSleepFunc(noopSleep),
	}
	return NewBaseClient("test-breaker", append(base, opts...)...)
}

func get(t *testing.T, ctx context.Context, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func TestDo_SuccessInjectsHeaders(t *testing.T) {
	var gotUA, gotTrace string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotTrace = r.Header.Get("X-B3-TraceId")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	ctx := types.WithRequestID(context.Background(), "req-123")
	resp, err := newTestClient().Do(get(t, ctx, server.URL))
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
	if gotUA != "envmonitor-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotTrace != "req-123" {
		t.Errorf("X-B3-TraceId = %q, want req-123", gotTrace)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := newTestClient().Do(get(t, context.Background(), server.URL))
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	resp.Body.Close()
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestDo_ExhaustedRetriesMapsStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   types.ErrorCode
	}{
		{"server error", http.StatusBadGateway, types.ErrCodeUpstreamUnavailable},
		{"rate limited", http.StatusTooManyRequests, types.ErrCodeUpstreamRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			policy := RetryPolicy{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: time.Millisecond}
			resp, err := newTestClient(WithRetryPolicy(policy)).Do(get(t, context.Background(), server.URL))
			if resp != nil {
				t.Error("expected nil response on exhausted retries")
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *AppError, got %v", err)
			}
			if appErr.Code != tt.want {
				t.Errorf("Code = %q, want %q", appErr.Code, tt.want)
			}
			if calls.Load() != 3 {
				t.Errorf("calls = %d, want 3", calls.Load())
			}
		})
	}
}

func TestDo_ClientErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	resp, err := newTestClient().Do(get(t, context.Background(), server.URL))
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestDo_BreakerOpensAndShortCircuits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "trip-fast",
		Timeout: time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 2
		},
	})
	client := newTestClient(WithBreaker(cb), WithRetryPolicy(RetryPolicy{MaxRetries: 5}))

	_, err := client.Do(get(t, context.Background(), server.URL))
	var appErr *types.AppError
	if !errors.As(err, &appErr) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open-breaker error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 before the breaker opened", calls.Load())
	}
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancelOnSleep := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := newTestClient(WithSleepFunc(cancelOnSleep)).Do(get(t, ctx, server.URL))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	c := newTestClient(WithRetryPolicy(RetryPolicy{MaxRetries: 3, MinWait: 100 * time.Millisecond, MaxWait: 2 * time.Second}))

	if got := c.backoff(0, ""); got != 100*time.Millisecond {
		t.Errorf("attempt 0 = %v, want MinWait", got)
	}
	for i := 0; i < 20; i++ {
		got := c.backoff(3, "")
		if got < 100*time.Millisecond || got > 800*time.Millisecond {
			t.Fatalf("attempt 3 = %v, want within [100ms, 800ms]", got)
		}
	}
	if got := c.backoff(0, "1"); got != time.Second {
		t.Errorf("Retry-After 1 = %v, want 1s", got)
	}
	if got := c.backoff(0, "120"); got != 2*time.Second {
		t.Errorf("Retry-After 120 = %v, want capped at MaxWait", got)
	}
}
