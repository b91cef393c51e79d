package credentials

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codemode/toolgateway/internal/model"
)

// RedisCache is the read-through credential cache (§5, supplied per
// SPEC_FULL's Credential cache addition). Keys are namespaced under
// "cred:" and carry a TTL so a credential that's rotated out-of-band
// without an explicit Invalidate still expires eventually.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(key string) (model.CredentialRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		return model.CredentialRecord{}, false
	}
	var rec model.CredentialRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.CredentialRecord{}, false
	}
	return rec, true
}

func (c *RedisCache) Set(key string, rec model.CredentialRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, redisKey(key), raw, c.ttl).Err()
}

// Invalidate drops every cached entry for sourceKey across every scope.
// Redis SCAN is used rather than KEYS to avoid blocking the server on a
// large keyspace.
func (c *RedisCache) Invalidate(sourceKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	iter := c.client.Scan(ctx, 0, redisKey(sourceKey)+"|*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		_ = c.client.Del(ctx, keys...).Err()
	}
}

func redisKey(key string) string {
	return "cred:" + key
}
