// Package search ranks documents against a query embedding. It picks one of
// three execution strategies behind a single result contract: a sequential
// bounded-heap scan, a parallel-batched scan for large document sets, and an
// optional approximate graph index with transparent fallback to exact search.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/search/ann"
	"github.com/kailas-cloud/ragdex/internal/vectormath"
)

// DefaultTopK is used when the caller does not specify a result size.
const DefaultTopK = 10

// Options control a single search call.
type Options struct {
	// TopK is the maximum number of results (DefaultTopK when <= 0).
	TopK int
	// Filter is a metadata equality/null-check predicate applied before
	// scoring; filtered-out documents never enter the top-K computation.
	Filter map[string]any
}

// Engine executes similarity searches over in-memory document sets.
type Engine struct {
	parallelThreshold int
	batchSize         int
	logger            *zap.Logger
}

// NewEngine creates a search engine. Document sets larger than
// parallelThreshold are scanned in batches of batchSize.
func NewEngine(parallelThreshold, batchSize int, logger *zap.Logger) *Engine {
	if parallelThreshold <= 0 {
		parallelThreshold = 1000
	}
	if batchSize <= 0 {
		batchSize = 250
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		parallelThreshold: parallelThreshold,
		batchSize:         batchSize,
		logger:            logger,
	}
}

// Search ranks docs against query and returns at most
// min(TopK, |docs after filter|) results, sorted by similarity descending
// with ties broken by insertion order. The ordering is identical regardless
// of the strategy chosen.
func (e *Engine) Search(
	ctx context.Context, query []float32, docs []domain.Document, opts Options,
) ([]domain.SearchResult, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	if len(docs) > e.parallelThreshold {
		start := time.Now()
		res, err := e.searchParallel(ctx, query, docs, topK, opts.Filter)
		if err != nil {
			return nil, err
		}
		metrics.SearchDuration.WithLabelValues("parallel").Observe(time.Since(start).Seconds())
		return res, nil
	}

	start := time.Now()
	scoredDocs, err := scanSequential(query, docs, 0, topK, opts.Filter)
	if err != nil {
		return nil, err
	}
	metrics.SearchDuration.WithLabelValues("sequential").Observe(time.Since(start).Seconds())
	return materialize(docs, scoredDocs), nil
}

// SearchWithIndex tries the approximate index first and falls back to an
// exact scan when the index is nil, stale relative to the document set,
// dimensionally incompatible with the query, or a metadata filter is
// present (the graph cannot evaluate predicates). The fallback is
// transparent: callers observe only latency and, on the approximate path,
// a bounded recall loss.
func (e *Engine) SearchWithIndex(
	ctx context.Context, idx *ann.Index, query []float32, docs []domain.Document, opts Options,
) ([]domain.SearchResult, error) {
	if e.canUseIndex(idx, query, docs, opts) {
		start := time.Now()
		res, err := e.searchApprox(idx, query, docs, opts)
		if err == nil {
			metrics.SearchDuration.WithLabelValues("ann").Observe(time.Since(start).Seconds())
			return res, nil
		}
		e.logger.Warn("Approximate index failed, falling back to exact search", zap.Error(err))
	}
	return e.Search(ctx, query, docs, opts)
}

func (e *Engine) canUseIndex(idx *ann.Index, query []float32, docs []domain.Document, opts Options) bool {
	if idx == nil || len(opts.Filter) > 0 {
		return false
	}
	if idx.Len() != len(docs) || idx.Dim() != len(query) {
		return false
	}
	return true
}

func (e *Engine) searchApprox(
	idx *ann.Index, query []float32, docs []domain.Document, opts Options,
) ([]domain.SearchResult, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	matches, err := idx.Search(query, topK)
	if err != nil {
		return nil, fmt.Errorf("ann search: %w", err)
	}

	pos := make(map[string]int, len(docs))
	for i := range docs {
		pos[docs[i].ID] = i
	}

	cands := make([]scored, 0, len(matches))
	for _, m := range matches {
		i, ok := pos[m.ID]
		if !ok {
			return nil, fmt.Errorf("ann returned unknown document id %q", m.ID)
		}
		cands = append(cands, scored{idx: i, sim: m.Similarity})
	}
	sortCandidates(cands)
	return materialize(docs, cands), nil
}

// scanSequential runs the bounded-heap pass over a document slice, treating
// slice element i as insertion index base+i. O(n log K).
func scanSequential(
	query []float32, docs []domain.Document, base, topK int, filter map[string]any,
) ([]scored, error) {
	qnorm := vectormath.Norm(query)
	h := newTopKHeap(topK)
	for i := range docs {
		if shouldSkipDocument(&docs[i], filter) {
			continue
		}
		sim, err := vectormath.CosineSimilarity(query, docs[i].Embedding, qnorm)
		if err != nil {
			return nil, fmt.Errorf("score document %q: %w", docs[i].ID, err)
		}
		h.offer(scored{idx: base + i, sim: sim})
	}
	return h.drain(), nil
}

// searchParallel partitions docs into batches, runs the sequential heap
// algorithm per batch, then merges the per-batch top-K lists. The merge
// yields a ranking identical to a single sequential pass over the whole set.
func (e *Engine) searchParallel(
	ctx context.Context, query []float32, docs []domain.Document, topK int, filter map[string]any,
) ([]domain.SearchResult, error) {
	numBatches := (len(docs) + e.batchSize - 1) / e.batchSize
	perBatch := make([][]scored, numBatches)

	g, _ := errgroup.WithContext(ctx)
	for b := 0; b < numBatches; b++ {
		lo := b * e.batchSize
		hi := lo + e.batchSize
		if hi > len(docs) {
			hi = len(docs)
		}
		g.Go(func() error {
			res, err := scanSequential(query, docs[lo:hi], lo, topK, filter)
			if err != nil {
				return err
			}
			perBatch[b] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []scored
	for _, batch := range perBatch {
		merged = append(merged, batch...)
	}
	sortCandidates(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return materialize(docs, merged), nil
}

// sortCandidates orders by similarity descending, ties by insertion order.
func sortCandidates(cands []scored) {
	sort.Slice(cands, func(i, j int) bool {
		return cands[j].worseThan(cands[i])
	})
}

func materialize(docs []domain.Document, cands []scored) []domain.SearchResult {
	out := make([]domain.SearchResult, len(cands))
	for i, c := range cands {
		d := &docs[c.idx]
		out[i] = domain.SearchResult{
			ID:         d.ID,
			Text:       d.Text,
			Metadata:   d.Metadata,
			Distance:   1 - c.sim,
			Similarity: c.sim,
		}
	}
	return out
}
