package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

// Cache stores one key per raw (platform, symbol) and per derived symbol,
// each with SET EX, plus a per-symbol set of platforms used to enumerate
// raw entries.
type Cache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *Cache) rawKey(platform, symbol string) string {
	return fmt.Sprintf("%s:raw:%s:%s", c.prefix, platform, symbol)
}

func (c *Cache) indexKey(symbol string) string {
	return fmt.Sprintf("%s:raw-platforms:%s", c.prefix, symbol)
}

func (c *Cache) derivedKey(symbol string) string {
	return fmt.Sprintf("%s:derived:%s", c.prefix, symbol)
}

func (c *Cache) PutRaw(ctx context.Context, rate domain.Rate) error {
	b, err := json.Marshal(rate)
	if err != nil {
		return err
	}
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, c.rawKey(rate.Platform, rate.Symbol), b, c.ttl)
	pipe.SAdd(ctx, c.indexKey(rate.Symbol), rate.Platform)
	if c.ttl > 0 {
		pipe.Expire(ctx, c.indexKey(rate.Symbol), c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *Cache) GetRaw(ctx context.Context, platform, symbol string) (domain.Rate, bool, error) {
	return c.get(ctx, c.rawKey(platform, symbol))
}

func (c *Cache) GetAllRawForSymbol(ctx context.Context, symbol string) (map[string]domain.Rate, error) {
	platforms, err := c.rdb.SMembers(ctx, c.indexKey(symbol)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Rate, len(platforms))
	if len(platforms) == 0 {
		return out, nil
	}

	keys := make([]string, len(platforms))
	for i, p := range platforms {
		keys[i] = c.rawKey(p, symbol)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var stale []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, platforms[i])
			continue
		}
		var r domain.Rate
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out[platforms[i]] = r
	}
	if len(stale) > 0 {
		// expired raw keys leave their platform behind in the index
		_ = c.pruneIndex(ctx, symbol, stale)
	}
	return out, nil
}

// pruneIndexScript removes a platform from the index only while its raw key
// is still absent, so a PutRaw landing after the MGET keeps its entry.
var pruneIndexScript = redis.NewScript(`
local removed = 0
for i, platform in ipairs(ARGV) do
  if redis.call("EXISTS", KEYS[i + 1]) == 0 then
    removed = removed + redis.call("SREM", KEYS[1], platform)
  end
end
return removed
`)

func (c *Cache) pruneIndex(ctx context.Context, symbol string, platforms []string) error {
	keys := make([]string, 0, len(platforms)+1)
	args := make([]any, 0, len(platforms))
	keys = append(keys, c.indexKey(symbol))
	for _, p := range platforms {
		keys = append(keys, c.rawKey(p, symbol))
		args = append(args, p)
	}
	return pruneIndexScript.Run(ctx, c.rdb, keys, args...).Err()
}

func (c *Cache) PutDerived(ctx context.Context, rate domain.Rate) error {
	b, err := json.Marshal(rate)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.derivedKey(rate.Symbol), b, c.ttl).Err()
}

func (c *Cache) GetDerived(ctx context.Context, symbol string) (domain.Rate, bool, error) {
	return c.get(ctx, c.derivedKey(symbol))
}

func (c *Cache) get(ctx context.Context, key string) (domain.Rate, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Rate{}, false, nil
	}
	if err != nil {
		return domain.Rate{}, false, err
	}
	var r domain.Rate
	if err := json.Unmarshal(b, &r); err != nil {
		return domain.Rate{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return r, true, nil
}

var _ port.RateCache = (*Cache)(nil)
