package worker

import (
	"context"
	"testing"

	"golang.org/x/time/rate"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "http://example.com/foo"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if err := limiter.Wait(ctx, "http://other.example"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	limiter := NewLimiter(1, 1)
	url := "http://example.com"

	if err := limiter.Wait(context.Background(), url); err != nil {
		t.Errorf("first wait failed: %v", err)
	}
	// burst 1: token consumed
	if limiter.Allow(url) {
		t.Errorf("expected allow to fail (exhausted tokens)")
	}
	if !limiter.Allow("http://other.com") {
		t.Errorf("expected allow for other host")
	}
}

func TestLimiter_PortIgnored(t *testing.T) {
	limiter := NewLimiter(1, 1)
	if !limiter.Allow("http://example.com:8080/a") {
		t.Fatal("first request should pass")
	}
	if limiter.Allow("http://example.com/b") {
		t.Error("same host on another port should share the budget")
	}
}

func TestNewSourceLimiter(t *testing.T) {
	tests := []struct {
		name   string
		hasKey bool
		host   string
		want   rate.Limit
	}{
		{"ncbi without key", false, NCBIHost, 3},
		{"ncbi with key", true, NCBIHost, 10},
		{"openfda", false, OpenFDAHost, 4},
		{"trials", false, ClinicalTrialsHost, 5},
		{"unknown host gets default", false, "example.org", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewSourceLimiter(tt.hasKey)
			if got := l.Limit(tt.host); got != tt.want {
				t.Errorf("Limit(%s) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestLimiter_SetDomainRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	limiter.SetDomainRate("slow.com", 0.1, 1)

	if !limiter.Allow("http://slow.com") {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("http://slow.com") {
		t.Errorf("second request should fail")
	}
	if !limiter.Allow("http://fast.com") {
		t.Errorf("other host should pass")
	}
}

func TestExtractHost(t *testing.T) {
	host, err := extractHost("https://eutils.ncbi.nlm.nih.gov:443/entrez/eutils/esearch.fcgi")
	if err != nil {
		t.Fatalf("extractHost failed: %v", err)
	}
	if host != NCBIHost {
		t.Errorf("expected %s, got %s", NCBIHost, host)
	}

	if _, err := extractHost("::invalid"); err == nil {
		t.Errorf("expected error for invalid URL")
	}
}
