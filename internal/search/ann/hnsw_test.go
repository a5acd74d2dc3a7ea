package ann

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

func randomVec(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func TestIndex_EmptySearch(t *testing.T) {
	ix := New(Config{})
	got, err := ix.Search([]float32{1, 2}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil result on empty index, got %v", got)
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ix := New(Config{})
	if err := ix.Add("a", []float32{1, 2, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ix.Add("b", []float32{1, 2}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("Add: expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := ix.Search([]float32{1}, 1); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("Search: expected ErrDimensionMismatch, got %v", err)
	}
}

func TestIndex_ExactMatchIsTop(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	ix := New(Config{M: 8, EFConstruct: 100, EFSearch: 50})

	vecs := make([][]float32, 100)
	for i := range vecs {
		vecs[i] = randomVec(rng, 16)
		if err := ix.Add(fmt.Sprintf("v%d", i), vecs[i]); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	// Querying with a stored vector must return that vector first.
	got, err := ix.Search(vecs[37], 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "v37" {
		t.Errorf("expected v37 as top match, got %+v", got)
	}
}

func TestIndex_RecallAgainstBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	ix := New(Config{M: 16, EFConstruct: 200, EFSearch: 100})

	const n, dim, k = 500, 8, 10
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = randomVec(rng, dim)
		if err := ix.Add(fmt.Sprintf("v%d", i), vecs[i]); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	query := randomVec(rng, dim)

	// Brute-force top-k ids.
	type pair struct {
		id  string
		sim float64
	}
	exact := make([]pair, n)
	qn := euclidean(query)
	for i, v := range vecs {
		var dot float64
		for j := range query {
			dot += float64(query[j]) * float64(v[j])
		}
		exact[i] = pair{id: fmt.Sprintf("v%d", i), sim: dot / (qn * euclidean(v))}
	}
	for i := 0; i < k; i++ {
		best := i
		for j := i + 1; j < n; j++ {
			if exact[j].sim > exact[best].sim {
				best = j
			}
		}
		exact[i], exact[best] = exact[best], exact[i]
	}
	want := make(map[string]bool, k)
	for i := 0; i < k; i++ {
		want[exact[i].id] = true
	}

	got, err := ix.Search(query, k)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hits := 0
	for _, m := range got {
		if want[m.ID] {
			hits++
		}
	}
	// The graph is approximate; require reasonable recall, not exactness.
	if hits < k*7/10 {
		t.Errorf("recall too low: %d/%d", hits, k)
	}
}

func TestIndex_ResultsSortedDescending(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	ix := New(Config{M: 8})
	for i := 0; i < 60; i++ {
		if err := ix.Add(fmt.Sprintf("v%d", i), randomVec(rng, 6)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	got, err := ix.Search(randomVec(rng, 6), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Similarity > got[i-1].Similarity {
			t.Errorf("not sorted at %d: %v > %v", i, got[i].Similarity, got[i-1].Similarity)
		}
	}
}
