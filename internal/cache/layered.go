package cache

import (
	"errors"
	"io"
	"time"
)

// LayeredCache checks tiers in order (fastest first) and writes through to all of them
type LayeredCache struct {
	tiers []Cache
}

// NewLayeredCache creates a layered cache over the given tiers
func NewLayeredCache(tiers ...Cache) *LayeredCache {
	return &LayeredCache{tiers: tiers}
}

// Get returns the first hit and promotes it into every faster tier
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	for i, tier := range c.tiers {
		val, found := tier.Get(key)
		if !found {
			continue
		}
		for j := 0; j < i; j++ {
			_ = c.tiers[j].Set(key, val, 0) // tier default TTL
		}
		return val, true
	}
	return nil, false
}

// Set stores a value in every tier; a failing tier does not stop the others
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	var errs []error
	for _, tier := range c.tiers {
		if err := tier.Set(key, value, ttl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delete removes a value from every tier
func (c *LayeredCache) Delete(key string) error {
	for _, tier := range c.tiers {
		_ = tier.Delete(key)
	}
	return nil
}

// Clear empties every tier
func (c *LayeredCache) Clear() error {
	var errs []error
	for _, tier := range c.tiers {
		if err := tier.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases tiers that hold connections
func (c *LayeredCache) Close() error {
	var errs []error
	for _, tier := range c.tiers {
		if closer, ok := tier.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
