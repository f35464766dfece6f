// Package weather provides a caching layer in front of the outdoor weather
// provider. Lookups collapse onto a two-decimal coordinate grid (about 1.1 km)
// so nearby devices share one upstream request per TTL.
package weather

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"envmonitor/internal/types"
)

// DefaultTTL is how long a fetched sample is served from cache.
const DefaultTTL = time.Hour

// Provider fetches the current outdoor sample for a coordinate pair. A nil
// sample with a nil error means no data is available.
type Provider interface {
	CurrentWeather(ctx context.Context, lat, lon float64) (*types.WeatherSample, error)
}

type entry struct {
	sample    *types.WeatherSample
	expiresAt time.Time
}

// CachedProvider memoizes Provider results per rounded coordinate pair.
type CachedProvider struct {
	upstream Provider
	ttl      time.Duration
	clock    types.Clock

	mu      sync.Mutex
	entries map[string]entry
}

// NewCachedProvider wraps upstream. A non-positive ttl selects DefaultTTL.
func NewCachedProvider(upstream Provider, ttl time.Duration, clock types.Clock) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &CachedProvider{
		upstream: upstream,
		ttl:      ttl,
		clock:    clock,
		entries:  make(map[string]entry),
	}
}

// Round returns v rounded half away from zero to two decimals.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}

// CacheKey returns the cache key for a coordinate pair, e.g.
// "weather:50.46:30.52".
func CacheKey(lat, lon float64) string {
	return "weather:" + strconv.FormatFloat(Round(lat), 'f', -1, 64) +
		":" + strconv.FormatFloat(Round(lon), 'f', -1, 64)
}

// GetOrFetch returns the cached sample for the rounded (lat, lon), calling the
// upstream provider on a miss. Unavailable samples are not cached, so the
// next call retries upstream. Every call returns its own copy; callers may
// set ID or other fields without touching the cached entry.
func (c *CachedProvider) GetOrFetch(ctx context.Context, lat, lon float64) (*types.WeatherSample, error) {
	key := CacheKey(lat, lon)
	now := c.clock.Now()

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return clone(e.sample), nil
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	sample, err := c.upstream.CurrentWeather(ctx, lat, lon)
	if err != nil || sample == nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = entry{sample: clone(sample), expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return sample, nil
}

// clone copies the struct. The optional measurement pointers are shared;
// nothing downstream writes through them.
func clone(s *types.WeatherSample) *types.WeatherSample {
	cp := *s
	return &cp
}

// CurrentWeather implements Provider so a CachedProvider can stand in for the
// upstream client.
func (c *CachedProvider) CurrentWeather(ctx context.Context, lat, lon float64) (*types.WeatherSample, error) {
	return c.GetOrFetch(ctx, lat, lon)
}

// Len returns the number of live and expired entries currently held.
func (c *CachedProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
