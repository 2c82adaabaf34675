package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// Each entry is a hash of the value (d), its absolute deadline in unix
// milliseconds (a) and its sliding window in milliseconds (s). Both scripts
// read the clock with TIME so every instance agrees on the deadline.
var (
	setEntryScript = redis.NewScript(`
local t = redis.call('TIME')
local now = t[1] * 1000 + math.floor(t[2] / 1000)
local ttl = tonumber(ARGV[2])
local sliding = tonumber(ARGV[3])
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'd', ARGV[1], 'a', string.format('%.0f', now + ttl), 's', ARGV[3])
if sliding > 0 and sliding < ttl then
	ttl = sliding
end
redis.call('PEXPIRE', KEYS[1], ttl)
return 1
`)

	getEntryScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'd', 'a', 's')
if not v[1] then
	return false
end
local sliding = tonumber(v[3])
if sliding and sliding > 0 then
	local t = redis.call('TIME')
	local now = t[1] * 1000 + math.floor(t[2] / 1000)
	local left = tonumber(v[2]) - now
	if left <= 0 then
		redis.call('DEL', KEYS[1])
		return false
	end
	if sliding < left then
		left = sliding
	end
	redis.call('PEXPIRE', KEYS[1], left)
end
return v[1]
`)
)

// RedisCache implements shared.Cache on Redis. Reads and their expiry bump
// run as one script, so a slide never races a concurrent Set.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache creates a cache over an existing client
func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

// Get returns the value for key, sliding its expiry up to the deadline
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := getEntryScript.Run(ctx, c.client, []string{c.keyPrefix + key}).Text()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return []byte(data), true, nil
}

// Set stores value with its deadline and sliding window
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, exp shared.Expiry) error {
	err := setEntryScript.Run(ctx, c.client, []string{c.keyPrefix + key},
		value, exp.TTL.Milliseconds(), exp.Sliding.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Invalidate deletes keys in one command
func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.keyPrefix + k
	}
	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Ensure RedisCache implements Cache
var _ shared.Cache = (*RedisCache)(nil)
