// Package source holds the HTTP adapters for the evidence sources:
// NCBI E-utilities (PubMed/PMC), OpenFDA drug labels and ClinicalTrials.gov.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/rxclaims/internal/cache"
	"github.com/ppiankov/rxclaims/internal/logging"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/util"
	"github.com/ppiankov/rxclaims/internal/worker"
	"go.uber.org/zap"
)

const (
	fetchMaxAttempts    = 3
	fetchInitialBackoff = 2 * time.Second
	fetchMaxBackoff     = 10 * time.Second
)

// fetchSleepFunc waits between retries and returns early when ctx is done
// (injectable for tests)
var fetchSleepFunc = util.SleepContext

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.StatusCode, e.Status)
}

// IsNotFound reports whether err is a 404 from a source
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Fetcher performs single outbound GETs with rate limiting, caching and bounded retry.
// Each adapter owns the Fetcher it is constructed with.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    *worker.Limiter
	cache      cache.Cache
	log        *zap.SugaredLogger
}

// NewFetcher creates a Fetcher. limiter and c may be nil.
func NewFetcher(cfg model.HTTPConfig, limiter *worker.Limiter, c cache.Cache, log *zap.SugaredLogger) *Fetcher {
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 20_000_000
	}

	return &Fetcher{
		httpClient: util.NewHTTPClient(cfg),
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		limiter:    limiter,
		cache:      c,
		log:        logging.OrNop(log),
	}
}

// Get fetches rawURL, retrying transient failures with exponential backoff
func (f *Fetcher) Get(ctx context.Context, rawURL string, accept string) ([]byte, error) {
	key := cache.CacheKey(rawURL)
	if f.cache != nil {
		if body, ok := f.cache.Get(key); ok {
			f.log.Debugw("cache hit", "url", rawURL)
			return body, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < fetchMaxAttempts; attempt++ {
		body, err := f.fetchOnce(ctx, rawURL, accept)
		if err == nil {
			if f.cache != nil {
				if cerr := f.cache.Set(key, body, 0); cerr != nil {
					f.log.Debugw("cache write failed", "error", cerr)
				}
			}
			return body, nil
		}

		lastErr = err
		if !isRetryableFetchError(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt < fetchMaxAttempts-1 {
			delay := backoffDelay(attempt)
			f.log.Debugw("retrying source request", "url", rawURL, "attempt", attempt+1, "delay", delay, "error", err)
			if err := fetchSleepFunc(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", fetchMaxAttempts, lastErr)
}

// fetchOnce performs one request; the response body is always released before returning
func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string, accept string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			URL:        rawURL,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// backoffDelay returns 2s, 4s, 8s... capped at 10s
func backoffDelay(attempt int) time.Duration {
	d := fetchInitialBackoff << uint(attempt)
	if d > fetchMaxBackoff || d <= 0 {
		return fetchMaxBackoff
	}
	return d
}

// isRetryableFetchError returns true for rate limiting, 5xx and transient network failures
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || (se.StatusCode >= 500 && se.StatusCode < 600)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}

// buildURL appends encoded query parameters to base
func buildURL(base string, params url.Values) string {
	if len(params) == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + params.Encode()
}
