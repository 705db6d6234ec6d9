package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	cache "github.com/patrickmn/go-cache"

	"shardgate/internal/logging"
)

// CachedEngine memoizes Embed results in process memory. Build it once and
// share it; the underlying engine is only called on a miss.
type CachedEngine struct {
	inner EmbeddingEngine
	cache *cache.Cache
}

// NewCachedEngine wraps inner with a TTL cache.
func NewCachedEngine(inner EmbeddingEngine, ttl time.Duration) *CachedEngine {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedEngine{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedEngine) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.inner.Name() + ":" + hex.EncodeToString(sum[:])
}

// Embed returns the cached vector for text or computes and stores it.
func (c *CachedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if cached, found := c.cache.Get(k); found {
		logging.EmbeddingDebug("embedding cache hit (%s)", c.inner.Name())
		return cached.([]float32), nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(k, vec, cache.DefaultExpiration)
	return vec, nil
}

// EmbedBatch serves hits from the cache and sends only misses to the engine.
func (c *CachedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if cached, found := c.cache.Get(c.key(text)); found {
			out[i] = cached.([]float32)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("engine returned %d embeddings for %d texts", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Set(c.key(texts[i]), vecs[j], cache.DefaultExpiration)
	}
	return out, nil
}

// HealthCheck forwards to the wrapped engine when it supports health checks.
func (c *CachedEngine) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Dimensions returns the wrapped engine's dimensionality.
func (c *CachedEngine) Dimensions() int { return c.inner.Dimensions() }

// Name returns the wrapped engine's name.
func (c *CachedEngine) Name() string { return c.inner.Name() }

// Len returns the number of cached vectors.
func (c *CachedEngine) Len() int { return c.cache.ItemCount() }
