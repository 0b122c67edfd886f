package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/rxclaims/internal/cache"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/util"
)

func testHTTPConfig() model.HTTPConfig {
	return model.HTTPConfig{
		Timeout:      5 * time.Second,
		UserAgent:    "test-agent",
		MaxBodyBytes: 1 << 20,
	}
}

func noSleep(t *testing.T) {
	t.Helper()
	origSleep := fetchSleepFunc
	fetchSleepFunc = func(ctx context.Context, d time.Duration) error { return nil }
	t.Cleanup(func() { fetchSleepFunc = origSleep })
}

func TestFetcherGet_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("User-Agent = %q", ua)
		}
		_, _ = fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	f := NewFetcher(testHTTPConfig(), nil, nil, nil)
	body, err := f.Get(context.Background(), server.URL, "application/json")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("Unexpected body: %s", body)
	}
}

func TestFetcherGet_TransientThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "OK")
	}))
	defer server.Close()

	var delays []time.Duration
	origSleep := fetchSleepFunc
	fetchSleepFunc = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	defer func() { fetchSleepFunc = origSleep }()

	f := NewFetcher(testHTTPConfig(), nil, nil, nil)
	body, err := f.Get(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if string(body) != "OK" {
		t.Errorf("Unexpected body: %s", body)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 4*time.Second {
		t.Errorf("Unexpected backoff delays: %v", delays)
	}
}

func TestFetcherGet_CancelDuringBackoff(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	origSleep := fetchSleepFunc
	fetchSleepFunc = func(c context.Context, d time.Duration) error {
		cancel()
		return util.SleepContext(c, d)
	}
	defer func() { fetchSleepFunc = origSleep }()

	f := NewFetcher(testHTTPConfig(), nil, nil, nil)
	start := time.Now()
	_, err := f.Get(ctx, server.URL, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected no attempt after cancel, got %d", attempts.Load())
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Cancelled backoff took %v", elapsed)
	}
}

func TestFetcherGet_PermanentFailure(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()
	noSleep(t)

	f := NewFetcher(testHTTPConfig(), nil, nil, nil)
	_, err := f.Get(context.Background(), server.URL, "")
	if err == nil {
		t.Fatal("Expected error for 404, got nil")
	}
	if got := err.Error(); got != "unexpected status: 404 Not Found" {
		t.Errorf("Unexpected error: %s", got)
	}
	if !IsNotFound(err) {
		t.Error("Expected IsNotFound to report true")
	}
	if attempts.Load() != 1 {
		t.Errorf("404 must not be retried, got %d attempts", attempts.Load())
	}
}

func TestFetcherGet_AllRetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	noSleep(t)

	f := NewFetcher(testHTTPConfig(), nil, nil, nil)
	if _, err := f.Get(context.Background(), server.URL, ""); err == nil {
		t.Fatal("Expected error after all retries exhausted")
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetcherGet_429Retried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = fmt.Fprint(w, "OK")
	}))
	defer server.Close()
	noSleep(t)

	f := NewFetcher(testHTTPConfig(), nil, nil, nil)
	if _, err := f.Get(context.Background(), server.URL, ""); err != nil {
		t.Fatalf("Expected success after 429 retry, got %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts.Load())
	}
}

func TestFetcherGet_CacheHit(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = fmt.Fprint(w, "cached body")
	}))
	defer server.Close()

	c := cache.NewMemoryCache(time.Minute, time.Minute)
	f := NewFetcher(testHTTPConfig(), nil, c, nil)

	for i := 0; i < 3; i++ {
		body, err := f.Get(context.Background(), server.URL, "")
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		if string(body) != "cached body" {
			t.Errorf("Get #%d body = %q", i, body)
		}
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 upstream request, got %d", attempts.Load())
	}
}

func TestBackoffDelay(t *testing.T) {
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for attempt, w := range want {
		if got := backoffDelay(attempt); got != w {
			t.Errorf("backoffDelay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestIsRetryableFetchError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"503", &StatusError{StatusCode: 503}, true},
		{"500", &StatusError{StatusCode: 500}, true},
		{"429", &StatusError{StatusCode: 429}, true},
		{"404", &StatusError{StatusCode: 404}, false},
		{"403", &StatusError{StatusCode: 403}, false},
		{"wrapped 502", fmt.Errorf("esearch: %w", &StatusError{StatusCode: 502}), true},
		{"connection refused", fmt.Errorf("fetch: connection refused"), true},
		{"connection reset", fmt.Errorf("fetch: connection reset by peer"), true},
		{"timeout", fmt.Errorf("fetch: i/o timeout"), true},
		{"invalid url", fmt.Errorf("create request: invalid URL"), false},
		{"eof", fmt.Errorf("read body: unexpected EOF"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableFetchError(tt.err); got != tt.retryable {
				t.Errorf("isRetryableFetchError(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}
