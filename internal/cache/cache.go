package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ppiankov/rxclaims/internal/model"
	"go.uber.org/zap"
)

// Cache defines the interface for caching source responses
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey generates a cache key from a request URL (query string included)
func CacheKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "rxclaims:v1:" + hex.EncodeToString(hash[:])
}

// New builds the cache described by cfg: memory, then disk, then redis when configured.
// Returns nil when caching is disabled.
func New(cfg model.CacheConfig, log *zap.SugaredLogger) (Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	tiers := []Cache{
		NewMemoryCache(cfg.MemoryTTL, 10*time.Minute),
	}
	if cfg.Dir != "" {
		tiers = append(tiers, NewDiskCache(cfg.Dir, cfg.DiskTTL))
	}
	if cfg.RedisAddr != "" {
		rc, err := NewRedisCache(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.DiskTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		if log != nil {
			log.Infow("shared response cache enabled", "addr", cfg.RedisAddr)
		}
		tiers = append(tiers, rc)
	}

	return NewLayeredCache(tiers...), nil
}
