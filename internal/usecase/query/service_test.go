package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/ratelimit"
	"github.com/kailas-cloud/ragdex/internal/resilience"
	"github.com/kailas-cloud/ragdex/internal/search"
)

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type mockSearcher struct {
	gotCollection string
	gotOpts       search.Options
	results       []domain.SearchResult
	err           error
}

func (m *mockSearcher) Search(_ context.Context, collection string, _ []float32, opts search.Options) ([]domain.SearchResult, error) {
	m.gotCollection = collection
	m.gotOpts = opts
	return m.results, m.err
}

type mockGenerator struct {
	calls      int
	gotPrompt  string
	failsFirst int
	err        error
}

func (m *mockGenerator) Generate(_ context.Context, prompt string) (domain.GenerationResult, error) {
	m.calls++
	m.gotPrompt = prompt
	if m.err != nil {
		return domain.GenerationResult{}, m.err
	}
	if m.calls <= m.failsFirst {
		return domain.GenerationResult{}, errors.New("backend hiccup")
	}
	return domain.GenerationResult{
		Response: "the answer",
		Metadata: map[string]any{"model": "test"},
	}, nil
}

type mockLimiter struct {
	gotKey string
	result ratelimit.Result
}

func (m *mockLimiter) Check(_ context.Context, key string) ratelimit.Result {
	m.gotKey = key
	return m.result
}

func newService(embed Embedder, searcher Searcher, gen Generator, limiter RateLimiter) *Service {
	return New(
		embed, searcher, gen, limiter,
		resilience.NewRequestQueue(2, zap.NewNop()),
		resilience.NewCircuitBreaker(resilience.BreakerConfig{
			ErrorThresholdPct: 50,
			ResetTimeout:      time.Minute,
			CallTimeout:       time.Second,
			MinCalls:          5,
		}, zap.NewNop()),
		resilience.Retry{BaseDelay: time.Millisecond, MaxRetries: 2},
		zap.NewNop(),
	)
}

func TestQuery_RetrievalOnly(t *testing.T) {
	searcher := &mockSearcher{results: []domain.SearchResult{
		{ID: "a", Text: "doc a", Similarity: 0.9},
	}}
	gen := &mockGenerator{}
	svc := newService(&mockEmbedder{}, searcher, gen, nil)

	resp, err := svc.Query(context.Background(), Request{Collection: "articles", Query: "q", TopK: 3})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "a" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
	if resp.Answer != "" {
		t.Error("no answer expected without Generate")
	}
	if gen.calls != 0 {
		t.Error("generator must not be called without Generate")
	}
	if searcher.gotOpts.TopK != 3 {
		t.Errorf("TopK = %d, want 3", searcher.gotOpts.TopK)
	}
	if searcher.gotCollection != "articles" {
		t.Errorf("collection = %q, want articles", searcher.gotCollection)
	}
}

func TestQuery_GenerationUsesRetrievedContext(t *testing.T) {
	searcher := &mockSearcher{results: []domain.SearchResult{
		{ID: "a", Text: "alpha context"},
		{ID: "b", Text: "beta context"},
	}}
	gen := &mockGenerator{}
	svc := newService(&mockEmbedder{}, searcher, gen, nil)

	resp, err := svc.Query(context.Background(), Request{Query: "what?", Generate: true})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if resp.Answer != "the answer" {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if resp.Metadata["model"] != "test" {
		t.Error("generation metadata must be passed through")
	}
	if !strings.Contains(gen.gotPrompt, "alpha context") || !strings.Contains(gen.gotPrompt, "beta context") {
		t.Errorf("prompt missing retrieved context: %q", gen.gotPrompt)
	}
	if !strings.Contains(gen.gotPrompt, "what?") {
		t.Errorf("prompt missing the question: %q", gen.gotPrompt)
	}
}

func TestQuery_RateLimitedBeforeAnyWork(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)
	limiter := &mockLimiter{result: ratelimit.Result{Allowed: false, ResetTime: reset}}
	searcher := &mockSearcher{}
	svc := newService(&mockEmbedder{err: errors.New("must not be reached")}, searcher, &mockGenerator{}, limiter)

	_, err := svc.Query(context.Background(), Request{ClientKey: "c1", Query: "q"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	var rle *domain.RateLimitedError
	if !errors.As(err, &rle) || !rle.ResetTime.Equal(reset) {
		t.Error("error must carry the window reset time")
	}
	if limiter.gotKey != "c1" {
		t.Errorf("limiter keyed by %q, want c1", limiter.gotKey)
	}
}

func TestQuery_GenerationRetriesTransientFailure(t *testing.T) {
	gen := &mockGenerator{failsFirst: 2}
	svc := newService(&mockEmbedder{}, &mockSearcher{}, gen, nil)

	resp, err := svc.Query(context.Background(), Request{Query: "q", Generate: true})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if resp.Answer != "the answer" {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if gen.calls != 3 {
		t.Errorf("generator called %d times, want 3", gen.calls)
	}
}

func TestQuery_GenerationFailureSurfaces(t *testing.T) {
	gen := &mockGenerator{err: errors.New("permanently down")}
	svc := newService(&mockEmbedder{}, &mockSearcher{}, gen, nil)

	_, err := svc.Query(context.Background(), Request{Query: "q", Generate: true})
	if err == nil {
		t.Fatal("expected error")
	}
	// initial attempt + MaxRetries
	if gen.calls != 3 {
		t.Errorf("generator called %d times, want 3", gen.calls)
	}
}

func TestQuery_EmptyQueryRejected(t *testing.T) {
	svc := newService(&mockEmbedder{}, &mockSearcher{}, &mockGenerator{}, nil)
	if _, err := svc.Query(context.Background(), Request{}); err == nil {
		t.Fatal("empty query must be rejected")
	}
}
