package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/threatlens/threatlens/pkg/threat"
)

// RedisCache shares verdicts across ThreatLens instances. Cache
// failures are treated as misses; Redis being down never blocks an
// analysis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (*threat.AnalysisResult, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var result threat.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (r *RedisCache) Set(ctx context.Context, key string, result *threat.AnalysisResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, key, data, r.ttl).Err()
}

// Close releases the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
