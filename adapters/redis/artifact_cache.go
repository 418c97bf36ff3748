package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"goglm/domain/core"
	"goglm/ports"
)

const (
	keyPrefix = "goglm:"
	scanCount = 100
)

// ArtifactCache is the shared second-level artifact cache kept in Redis
type ArtifactCache struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewArtifactCache connects to the Redis server at url and checks it answers
func NewArtifactCache(url string, ttl time.Duration) (*ArtifactCache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewArtifactCacheWithClient(client, ttl), nil
}

// NewArtifactCacheWithClient wraps an existing client. A zero ttl keeps entries until invalidated.
func NewArtifactCacheWithClient(client *goredis.Client, ttl time.Duration) *ArtifactCache {
	return &ArtifactCache{client: client, ttl: ttl}
}

var _ ports.ArtifactCache = (*ArtifactCache)(nil)

// Key builds the Redis key of one model artifact
func Key(modelID core.ModelID, artifact string) string {
	return keyPrefix + modelID.String() + ":" + artifact
}

// Get returns found=false on a miss
func (c *ArtifactCache) Get(ctx context.Context, modelID core.ModelID, artifact string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, Key(modelID, artifact)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (c *ArtifactCache) Set(ctx context.Context, modelID core.ModelID, artifact string, payload []byte) error {
	if err := c.client.Set(ctx, Key(modelID, artifact), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes one artifact; deleting a missing key is not an error
func (c *ArtifactCache) Delete(ctx context.Context, modelID core.ModelID, artifact string) error {
	if err := c.client.Del(ctx, Key(modelID, artifact)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Invalidate deletes every artifact of the model, scanning rather than blocking on KEYS
func (c *ArtifactCache) Invalidate(ctx context.Context, modelID core.ModelID) error {
	pattern := keyPrefix + modelID.String() + ":*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis delete: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close releases the connection pool
func (c *ArtifactCache) Close() error {
	return c.client.Close()
}
