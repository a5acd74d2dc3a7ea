package cache

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// CachedEmbedder is a caching decorator around an embedding provider.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
type CachedEmbedder struct {
	inner domain.Embedder
	cache *EmbeddingCache
}

// NewCachedEmbedder creates the decorator.
func NewCachedEmbedder(inner domain.Embedder, cache *EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache}
}

// Embed returns a cached embedding or calls the inner embedder and caches
// the result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if vec, ok := c.cache.Get(ctx, text); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.cache.Set(ctx, text, result.Embedding)
	return result, nil
}
