package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/rxclaims/internal/model"
)

func TestCacheKey_Stable(t *testing.T) {
	a := CacheKey("https://api.fda.gov/drug/label.json?search=x")
	b := CacheKey("https://api.fda.gov/drug/label.json?search=x")
	c := CacheKey("https://api.fda.gov/drug/label.json?search=y")

	if a != b {
		t.Error("Expected identical URLs to produce identical keys")
	}
	if a == c {
		t.Error("Expected different URLs to produce different keys")
	}
	if !strings.HasPrefix(a, "rxclaims:v1:") {
		t.Errorf("Unexpected key prefix: %s", a)
	}
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("Get = %q, %v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Expected miss after delete")
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	key := CacheKey("https://example.org/a")
	if err := c.Set(key, []byte("payload"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != "payload" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	// Expired entry is a miss and is removed
	if err := c.Set(key, []byte("old"), -time.Second); err != nil {
		t.Fatalf("Set expired: %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("Expected expired entry to miss")
	}
	if _, err := os.Stat(c.path(key)); !os.IsNotExist(err) {
		t.Error("Expected expired entry file to be removed")
	}
}

func TestDiskCache_ClearKeepsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	_ = c.Set("a", []byte("1"), 0)
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Expected entry to be cleared")
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("Expected unrelated file to survive: %v", err)
	}
}

func TestLayeredCache_PromotesToFasterTier(t *testing.T) {
	fast := NewMemoryCache(time.Minute, time.Minute)
	slow := NewDiskCache(t.TempDir(), time.Hour)
	c := NewLayeredCache(fast, slow)

	_ = slow.Set("k", []byte("v"), 0)
	if _, ok := fast.Get("k"); ok {
		t.Fatal("Precondition: fast tier should be empty")
	}

	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if _, ok := fast.Get("k"); !ok {
		t.Error("Expected hit to be promoted into the memory tier")
	}
}

func TestNew_Disabled(t *testing.T) {
	c, err := New(model.CacheConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c != nil {
		t.Error("Expected nil cache when disabled")
	}
}

func TestNew_MemoryAndDisk(t *testing.T) {
	c, err := New(model.CacheConfig{
		Enabled:   true,
		Dir:       t.TempDir(),
		MemoryTTL: time.Minute,
		DiskTTL:   time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	layered, ok := c.(*LayeredCache)
	if !ok {
		t.Fatalf("Expected *LayeredCache, got %T", c)
	}
	if len(layered.tiers) != 2 {
		t.Errorf("Expected 2 tiers, got %d", len(layered.tiers))
	}
}
