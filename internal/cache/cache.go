// Package cache memoises computed artifacts per model so concurrent requests compute once.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"goglm/domain/core"
	"goglm/ports"
)

// Tiers reported to the observer on a hit
const (
	TierMemory = "memory"
	TierRemote = "remote"
)

// Observer receives cache and computation events
type Observer interface {
	CacheHit(artifact, tier string)
	CacheMiss(artifact string)
	ObserveCompute(artifact string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string, string)              {}
func (nopObserver) CacheMiss(string)                     {}
func (nopObserver) ObserveCompute(string, time.Duration) {}

// Options configure a Cache. Remote and Observer are optional.
type Options struct {
	Remote   ports.ArtifactCache
	Observer Observer
	Logger   zerolog.Logger
}

// Cache keeps artifacts in memory keyed by model id and artifact name, optionally backed by
// a remote ports.ArtifactCache holding JSON payloads.
type Cache struct {
	mu       sync.RWMutex
	items    map[core.ModelID]map[string]any
	group    singleflight.Group
	remote   ports.ArtifactCache
	observer Observer
	log      zerolog.Logger
}

// New creates an empty cache
func New(opts Options) *Cache {
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Cache{
		items:    make(map[core.ModelID]map[string]any),
		remote:   opts.Remote,
		observer: observer,
		log:      opts.Logger,
	}
}

func (c *Cache) lookup(modelID core.ModelID, artifact string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[modelID][artifact]
	return v, ok
}

func (c *Cache) store(modelID core.ModelID, artifact string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items[modelID] == nil {
		c.items[modelID] = make(map[string]any)
	}
	c.items[modelID][artifact] = v
}

// Len counts the artifacts held in memory for a model
func (c *Cache) Len(modelID core.ModelID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items[modelID])
}

// Invalidate drops every artifact of the model from memory and from the remote tier
func (c *Cache) Invalidate(ctx context.Context, modelID core.ModelID) error {
	c.mu.Lock()
	for artifact := range c.items[modelID] {
		c.group.Forget(flightKey(modelID, artifact))
	}
	delete(c.items, modelID)
	c.mu.Unlock()

	if c.remote != nil {
		if err := c.remote.Invalidate(ctx, modelID); err != nil {
			return fmt.Errorf("failed to invalidate remote artifacts for model %s: %w", modelID, err)
		}
	}
	c.log.Debug().Str("model_id", modelID.String()).Msg("artifact cache invalidated")
	return nil
}

func flightKey(modelID core.ModelID, artifact string) string {
	return modelID.String() + "\x00" + artifact
}

// GetOrCreate returns the cached artifact or computes it with create. Concurrent callers for
// the same key share one computation. Remote tier failures are logged and never fail the call.
func GetOrCreate[T any](ctx context.Context, c *Cache, modelID core.ModelID, artifact string, create func(context.Context) (T, error)) (T, error) {
	if v, ok := c.lookup(modelID, artifact); ok {
		if typed, ok := v.(T); ok {
			c.observer.CacheHit(artifact, TierMemory)
			return typed, nil
		}
	}

	v, err, _ := c.group.Do(flightKey(modelID, artifact), func() (any, error) {
		if v, ok := c.lookup(modelID, artifact); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
		if typed, ok := fetchRemote[T](ctx, c, modelID, artifact); ok {
			c.observer.CacheHit(artifact, TierRemote)
			c.store(modelID, artifact, typed)
			return typed, nil
		}

		c.observer.CacheMiss(artifact)
		start := time.Now()
		created, err := create(ctx)
		if err != nil {
			return nil, err
		}
		c.observer.ObserveCompute(artifact, time.Since(start))
		c.store(modelID, artifact, created)
		pushRemote(ctx, c, modelID, artifact, created)
		return created, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}

func fetchRemote[T any](ctx context.Context, c *Cache, modelID core.ModelID, artifact string) (T, bool) {
	var out T
	if c.remote == nil {
		return out, false
	}
	payload, ok, err := c.remote.Get(ctx, modelID, artifact)
	if err != nil {
		c.log.Warn().Err(err).Str("model_id", modelID.String()).Str("artifact", artifact).Msg("remote artifact read failed")
		return out, false
	}
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		c.log.Warn().Err(err).Str("model_id", modelID.String()).Str("artifact", artifact).Msg("remote artifact undecodable, recomputing")
		if err := c.remote.Delete(ctx, modelID, artifact); err != nil {
			c.log.Warn().Err(err).Str("artifact", artifact).Msg("remote artifact delete failed")
		}
		return out, false
	}
	return out, true
}

func pushRemote(ctx context.Context, c *Cache, modelID core.ModelID, artifact string, v any) {
	if c.remote == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		c.log.Warn().Err(err).Str("artifact", artifact).Msg("artifact not encodable for remote cache")
		return
	}
	if err := c.remote.Set(ctx, modelID, artifact, payload); err != nil {
		c.log.Warn().Err(err).Str("model_id", modelID.String()).Str("artifact", artifact).Msg("remote artifact write failed")
	}
}
