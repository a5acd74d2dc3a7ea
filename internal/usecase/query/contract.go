package query

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/ratelimit"
	"github.com/kailas-cloud/ragdex/internal/search"
)

// Embedder vectorizes the query text (typically the cache-decorated provider).
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Searcher ranks a named collection's documents against a query embedding.
type Searcher interface {
	Search(ctx context.Context, collection string, query []float32, opts search.Options) ([]domain.SearchResult, error)
}

// Generator produces a completion from an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (domain.GenerationResult, error)
}

// RateLimiter bounds request admission per client key.
type RateLimiter interface {
	Check(ctx context.Context, key string) ratelimit.Result
}
