package worker

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Published per-host request budgets for the evidence sources
const (
	NCBIHost           = "eutils.ncbi.nlm.nih.gov"
	OpenFDAHost        = "api.fda.gov"
	ClinicalTrialsHost = "clinicaltrials.gov"

	ncbiRate        = 3  // without api_key
	ncbiRateWithKey = 10 // with api_key
	openFDARate     = 4
	trialsRate      = 5
)

// Limiter implements per-host rate limiting
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new rate limiter
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// NewSourceLimiter returns a limiter preloaded with the NCBI, OpenFDA and
// ClinicalTrials.gov budgets. NCBI allows more traffic when an API key is sent.
func NewSourceLimiter(hasNCBIKey bool) *Limiter {
	l := NewLimiter(5, 5)

	ncbi := float64(ncbiRate)
	if hasNCBIKey {
		ncbi = ncbiRateWithKey
	}
	l.SetDomainRate(NCBIHost, ncbi, int(ncbi))
	l.SetDomainRate(OpenFDAHost, openFDARate, openFDARate)
	l.SetDomainRate(ClinicalTrialsHost, trialsRate, trialsRate)

	return l
}

// Wait waits for rate limit clearance for the given URL
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := extractHost(rawURL)
	if err != nil {
		return err
	}

	return l.getLimiter(host).Wait(ctx)
}

// Allow checks if a request is allowed without waiting
func (l *Limiter) Allow(rawURL string) bool {
	host, err := extractHost(rawURL)
	if err != nil {
		return false
	}

	return l.getLimiter(host).Allow()
}

// Limit returns the configured rate for a host
func (l *Limiter) Limit(host string) rate.Limit {
	return l.getLimiter(host).Limit()
}

// getLimiter returns the rate limiter for a host
func (l *Limiter) getLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = limiter

	return limiter
}

// SetDomainRate sets a custom rate limit for a specific host
func (l *Limiter) SetDomainRate(host string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}

	l.limiters[host] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// extractHost returns the host without port
func extractHost(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Hostname(), nil
}
