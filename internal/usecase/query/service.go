// Package query orchestrates a retrieval-augmented query: rate limiting,
// query embedding, similarity search, and optionally a generation call
// guarded by the resilience layer.
package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/resilience"
	"github.com/kailas-cloud/ragdex/internal/search"
)

// Request is a single query.
type Request struct {
	// Collection names the collection to search.
	Collection string
	// ClientKey identifies the caller for rate limiting.
	ClientKey string
	// Query is the natural-language question.
	Query string
	// TopK bounds the number of retrieved documents (0 = default).
	TopK int
	// Filter restricts retrieval to documents whose metadata matches.
	Filter map[string]any
	// Generate asks for a completion over the retrieved context.
	Generate bool
}

// Response carries the ranked results and, when generation was requested,
// the backend's answer with its metadata passed through untouched.
type Response struct {
	Results  []domain.SearchResult `json:"results"`
	Answer   string                `json:"answer,omitempty"`
	Metadata map[string]any        `json:"metadata,omitempty"`
}

// Service runs retrieval-augmented queries.
type Service struct {
	embed     Embedder
	searcher  Searcher
	generator Generator
	limiter   RateLimiter

	queue   *resilience.RequestQueue
	breaker *resilience.CircuitBreaker
	retry   resilience.Retry

	logger *zap.Logger
}

// New creates a query service. generator may be nil, which disables the
// generation step; limiter may be nil, which disables rate limiting.
func New(
	embed Embedder,
	searcher Searcher,
	generator Generator,
	limiter RateLimiter,
	queue *resilience.RequestQueue,
	breaker *resilience.CircuitBreaker,
	retry resilience.Retry,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embed:     embed,
		searcher:  searcher,
		generator: generator,
		limiter:   limiter,
		queue:     queue,
		breaker:   breaker,
		retry:     retry,
		logger:    logger,
	}
}

// Query answers a request. The rate limit is checked before any work; a
// rejected request returns domain.ErrRateLimited with the window reset time.
func (s *Service) Query(ctx context.Context, req Request) (Response, error) {
	if req.Query == "" {
		return Response{}, fmt.Errorf("query text is required")
	}
	if s.limiter != nil {
		if res := s.limiter.Check(ctx, req.ClientKey); !res.Allowed {
			return Response{}, &domain.RateLimitedError{ResetTime: res.ResetTime}
		}
	}

	emb, err := s.embed.Embed(ctx, req.Query)
	if err != nil {
		return Response{}, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.searcher.Search(ctx, req.Collection, emb.Embedding, search.Options{
		TopK:   req.TopK,
		Filter: req.Filter,
	})
	if err != nil {
		return Response{}, fmt.Errorf("search: %w", err)
	}

	resp := Response{Results: results}
	if !req.Generate || s.generator == nil {
		return resp, nil
	}

	gen, err := s.generate(ctx, buildPrompt(req.Query, results))
	if err != nil {
		return Response{}, fmt.Errorf("generate: %w", err)
	}
	resp.Answer = gen.Response
	resp.Metadata = gen.Metadata
	return resp, nil
}

// generate runs the generation call through the resilience chain: the
// request queue bounds concurrency, the retry strategy wraps the breaker so
// an open circuit is never retried through.
func (s *Service) generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	done := s.queue.Enqueue(ctx, func(ctx context.Context) (any, error) {
		var out domain.GenerationResult
		err := s.retry.Do(ctx, func(ctx context.Context) error {
			return s.breaker.Execute(ctx, func(ctx context.Context) error {
				result, err := s.generator.Generate(ctx, prompt)
				if err != nil {
					return err
				}
				out = result
				return nil
			}, nil)
		})
		return out, err
	})

	select {
	case res := <-done:
		if res.Err != nil {
			return domain.GenerationResult{}, res.Err
		}
		return res.Value.(domain.GenerationResult), nil
	case <-ctx.Done():
		return domain.GenerationResult{}, ctx.Err()
	}
}

// buildPrompt assembles the retrieved documents and the question into a
// single prompt for the generation backend.
func buildPrompt(question string, results []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below.\n\nContext:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Text)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
