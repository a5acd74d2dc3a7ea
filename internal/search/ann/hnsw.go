// Package ann provides an approximate nearest-neighbor index over cosine
// similarity: a hierarchical navigable small-world graph, incrementally
// updated as documents are added. Search trades a bounded recall loss for
// sub-linear query time; callers fall back to an exact scan when the index
// is unavailable or stale.
package ann

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Match is a single result from an approximate search.
type Match struct {
	ID         string
	Similarity float64
}

// Config holds graph construction and search parameters.
type Config struct {
	// M is the maximum number of bidirectional links per node above level 0.
	// Level 0 allows 2*M.
	M int
	// EFConstruct is the beam width during insertion.
	EFConstruct int
	// EFSearch is the beam width during queries; effective width is
	// max(EFSearch, k).
	EFSearch int
	// Seed makes level assignment deterministic for tests. 0 uses a fixed seed.
	Seed int64
}

type node struct {
	id    string
	vec   []float32
	norm  float64 // euclidean norm, precomputed at insert
	links [][]int // neighbor node indexes per level
}

// Index is a navigable small-world proximity graph. Safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	m        int
	efCons   int
	efSearch int
	ml       float64
	dim      int
	nodes    []node
	entry    int
	maxLevel int
	rng      *rand.Rand
}

// New creates an empty index.
func New(cfg Config) *Index {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EFConstruct <= 0 {
		cfg.EFConstruct = 200
	}
	if cfg.EFSearch <= 0 {
		cfg.EFSearch = 64
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &Index{
		m:        cfg.M,
		efCons:   cfg.EFConstruct,
		efSearch: cfg.EFSearch,
		ml:       1 / math.Log(float64(cfg.M)),
		entry:    -1,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}

// Dim returns the vector dimensionality, or 0 when empty.
func (ix *Index) Dim() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Add inserts a vector. The first insert fixes the dimensionality;
// later mismatches fail with domain.ErrDimensionMismatch.
func (ix *Index) Add(id string, vec []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(ix.nodes) == 0 {
		ix.dim = len(vec)
	} else if len(vec) != ix.dim {
		return domain.NewDimensionMismatch(ix.dim, len(vec))
	}

	level := ix.randomLevel()
	n := node{
		id:    id,
		vec:   vec,
		norm:  euclidean(vec),
		links: make([][]int, level+1),
	}
	idx := len(ix.nodes)
	ix.nodes = append(ix.nodes, n)

	if ix.entry < 0 {
		ix.entry = idx
		ix.maxLevel = level
		return nil
	}

	ep := ix.entry
	// Greedy descent through the upper layers.
	for lc := ix.maxLevel; lc > level; lc-- {
		ep = ix.greedyStep(vec, n.norm, ep, lc)
	}

	// Beam search and linking from min(level, maxLevel) down to 0.
	top := level
	if top > ix.maxLevel {
		top = ix.maxLevel
	}
	eps := []int{ep}
	for lc := top; lc >= 0; lc-- {
		cands := ix.searchLayer(vec, n.norm, eps, ix.efCons, lc)
		neighbors := ix.selectNeighbors(cands, ix.maxConns(lc))
		ix.nodes[idx].links[lc] = neighbors
		for _, nb := range neighbors {
			ix.nodes[nb].links[lc] = append(ix.nodes[nb].links[lc], idx)
			if limit := ix.maxConns(lc); len(ix.nodes[nb].links[lc]) > limit {
				ix.pruneLinks(nb, lc, limit)
			}
		}
		eps = cands
	}

	if level > ix.maxLevel {
		ix.maxLevel = level
		ix.entry = idx
	}
	return nil
}

// Search returns up to k approximate nearest neighbors by cosine similarity,
// best first. Fails with domain.ErrDimensionMismatch when the query
// dimensionality differs from the indexed vectors.
func (ix *Index) Search(query []float32, k int) ([]Match, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.nodes) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, domain.NewDimensionMismatch(ix.dim, len(query))
	}

	qnorm := euclidean(query)
	ep := ix.entry
	for lc := ix.maxLevel; lc > 0; lc-- {
		ep = ix.greedyStep(query, qnorm, ep, lc)
	}

	ef := ix.efSearch
	if ef < k {
		ef = k
	}
	cands := ix.searchLayer(query, qnorm, []int{ep}, ef, 0)

	sort.Slice(cands, func(i, j int) bool {
		si := ix.sim(query, qnorm, cands[i])
		sj := ix.sim(query, qnorm, cands[j])
		if si != sj {
			return si > sj
		}
		return cands[i] < cands[j]
	})
	if len(cands) > k {
		cands = cands[:k]
	}

	out := make([]Match, len(cands))
	for i, c := range cands {
		out[i] = Match{ID: ix.nodes[c].id, Similarity: ix.sim(query, qnorm, c)}
	}
	return out, nil
}

func (ix *Index) randomLevel() int {
	return int(-math.Log(ix.rng.Float64()) * ix.ml)
}

func (ix *Index) maxConns(level int) int {
	if level == 0 {
		return 2 * ix.m
	}
	return ix.m
}

// greedyStep walks to the most similar neighbor at the given layer until no
// neighbor improves on the current node.
func (ix *Index) greedyStep(query []float32, qnorm float64, ep, level int) int {
	cur := ep
	curSim := ix.sim(query, qnorm, cur)
	for {
		improved := false
		for _, nb := range ix.linksAt(cur, level) {
			if s := ix.sim(query, qnorm, nb); s > curSim {
				cur, curSim = nb, s
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer is a beam search of width ef over one layer, returning up to
// ef candidate node indexes (unordered).
func (ix *Index) searchLayer(query []float32, qnorm float64, eps []int, ef, level int) []int {
	visited := make(map[int]bool, ef*4)
	cand := &simHeap{max: true}    // best candidate first
	result := &simHeap{max: false} // worst result first, for eviction

	for _, ep := range eps {
		if visited[ep] {
			continue
		}
		visited[ep] = true
		s := ix.sim(query, qnorm, ep)
		heap.Push(cand, simEntry{idx: ep, sim: s})
		heap.Push(result, simEntry{idx: ep, sim: s})
	}

	for cand.Len() > 0 {
		c := heap.Pop(cand).(simEntry)
		if result.Len() >= ef && c.sim < result.peek().sim {
			break
		}
		for _, nb := range ix.linksAt(c.idx, level) {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			s := ix.sim(query, qnorm, nb)
			if result.Len() < ef || s > result.peek().sim {
				heap.Push(cand, simEntry{idx: nb, sim: s})
				heap.Push(result, simEntry{idx: nb, sim: s})
				if result.Len() > ef {
					heap.Pop(result)
				}
			}
		}
	}

	out := make([]int, result.Len())
	for i := range out {
		out[i] = result.entries[i].idx
	}
	return out
}

// selectNeighbors keeps the m most similar candidates to the new node.
func (ix *Index) selectNeighbors(cands []int, m int) []int {
	if len(cands) <= m {
		return append([]int(nil), cands...)
	}
	last := len(ix.nodes) - 1
	vec, norm := ix.nodes[last].vec, ix.nodes[last].norm
	sorted := append([]int(nil), cands...)
	sort.Slice(sorted, func(i, j int) bool {
		return ix.sim(vec, norm, sorted[i]) > ix.sim(vec, norm, sorted[j])
	})
	return sorted[:m]
}

// pruneLinks trims a node's neighbor list to its most similar max entries.
func (ix *Index) pruneLinks(n, level, max int) {
	vec, norm := ix.nodes[n].vec, ix.nodes[n].norm
	links := ix.nodes[n].links[level]
	sort.Slice(links, func(i, j int) bool {
		return ix.sim(vec, norm, links[i]) > ix.sim(vec, norm, links[j])
	})
	ix.nodes[n].links[level] = links[:max]
}

func (ix *Index) linksAt(n, level int) []int {
	if level >= len(ix.nodes[n].links) {
		return nil
	}
	return ix.nodes[n].links[level]
}

// sim is the cosine similarity between query and node i. Node norms are
// cached at insert; the query norm is computed once per operation.
func (ix *Index) sim(query []float32, qnorm float64, i int) float64 {
	n := &ix.nodes[i]
	if qnorm == 0 || n.norm == 0 {
		return 0
	}
	var dot float64
	for j := range query {
		dot += float64(query[j]) * float64(n.vec[j])
	}
	return dot / (qnorm * n.norm)
}

func euclidean(v []float32) float64 {
	var sum float64
	for _, x := range v {
		f := float64(x)
		sum += f * f
	}
	return math.Sqrt(sum)
}

// simEntry and simHeap implement the candidate/result priority queues.
type simEntry struct {
	idx int
	sim float64
}

type simHeap struct {
	entries []simEntry
	max     bool
}

func (h *simHeap) Len() int { return len(h.entries) }
func (h *simHeap) Less(i, j int) bool {
	if h.max {
		return h.entries[i].sim > h.entries[j].sim
	}
	return h.entries[i].sim < h.entries[j].sim
}
func (h *simHeap) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }
func (h *simHeap) Push(x any)    { h.entries = append(h.entries, x.(simEntry)) }
func (h *simHeap) Pop() any {
	old := h.entries
	n := len(old)
	x := old[n-1]
	h.entries = old[:n-1]
	return x
}
func (h *simHeap) peek() simEntry { return h.entries[0] }
