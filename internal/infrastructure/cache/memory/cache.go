package memory

import (
	"context"
	"sync"
	"time"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

type entry struct {
	rate    domain.Rate
	expires time.Time
}

// Cache is an in-process RateCache. Expired entries are treated as absent
// and removed lazily.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	raw     map[string]map[string]entry // symbol -> platform -> entry
	derived map[string]entry
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		raw:     make(map[string]map[string]entry),
		derived: make(map[string]entry),
	}
}

// WithClock replaces the time source; used by tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) PutRaw(ctx context.Context, rate domain.Rate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	bySymbol, ok := c.raw[rate.Symbol]
	if !ok {
		bySymbol = make(map[string]entry)
		c.raw[rate.Symbol] = bySymbol
	}
	bySymbol[rate.Platform] = c.entry(rate)
	return nil
}

func (c *Cache) GetRaw(ctx context.Context, platform, symbol string) (domain.Rate, bool, error) {
	c.mu.RLock()
	e, ok := c.raw[symbol][platform]
	c.mu.RUnlock()
	if !ok || c.expired(e) {
		return domain.Rate{}, false, nil
	}
	return e.rate, true, nil
}

func (c *Cache) GetAllRawForSymbol(ctx context.Context, symbol string) (map[string]domain.Rate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]domain.Rate)
	for platform, e := range c.raw[symbol] {
		if c.expired(e) {
			delete(c.raw[symbol], platform)
			continue
		}
		out[platform] = e.rate
	}
	return out, nil
}

func (c *Cache) PutDerived(ctx context.Context, rate domain.Rate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.derived[rate.Symbol] = c.entry(rate)
	return nil
}

func (c *Cache) GetDerived(ctx context.Context, symbol string) (domain.Rate, bool, error) {
	c.mu.RLock()
	e, ok := c.derived[symbol]
	c.mu.RUnlock()
	if !ok || c.expired(e) {
		return domain.Rate{}, false, nil
	}
	return e.rate, true, nil
}

func (c *Cache) entry(rate domain.Rate) entry {
	e := entry{rate: rate}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	return e
}

func (c *Cache) expired(e entry) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}

var _ port.RateCache = (*Cache)(nil)
