package search

import (
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

func TestShouldSkipDocument(t *testing.T) {
	doc := &domain.Document{
		ID: "d1",
		Metadata: map[string]any{
			"source":  "wiki",
			"page":    float64(3), // JSON-decoded number
			"deleted": nil,
		},
	}

	tests := []struct {
		name   string
		filter map[string]any
		skip   bool
	}{
		{"nil filter", nil, false},
		{"empty filter", map[string]any{}, false},
		{"matching string", map[string]any{"source": "wiki"}, false},
		{"mismatching string", map[string]any{"source": "pdf"}, true},
		{"absent key", map[string]any{"author": "x"}, true},
		{"int filter matches json float", map[string]any{"page": 3}, false},
		{"numeric mismatch", map[string]any{"page": 4}, true},
		{"null check matches explicit null", map[string]any{"deleted": nil}, false},
		{"null check against value", map[string]any{"source": nil}, true},
		{"multiple keys all match", map[string]any{"source": "wiki", "page": 3}, false},
		{"multiple keys one mismatch", map[string]any{"source": "wiki", "page": 9}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldSkipDocument(doc, tc.filter); got != tc.skip {
				t.Errorf("shouldSkipDocument = %v, want %v", got, tc.skip)
			}
		})
	}
}

func TestTopKHeap_EvictsWorst(t *testing.T) {
	h := newTopKHeap(2)
	h.offer(scored{idx: 0, sim: 0.5})
	h.offer(scored{idx: 1, sim: 0.9})
	h.offer(scored{idx: 2, sim: 0.7})

	got := h.drain()
	if len(got) != 2 {
		t.Fatalf("expected 2 retained, got %d", len(got))
	}
	if got[0].idx != 1 || got[1].idx != 2 {
		t.Errorf("unexpected retained set: %+v", got)
	}
}

func TestTopKHeap_TieKeepsEarliest(t *testing.T) {
	h := newTopKHeap(1)
	h.offer(scored{idx: 0, sim: 0.5})
	h.offer(scored{idx: 1, sim: 0.5})

	got := h.drain()
	if got[0].idx != 0 {
		t.Errorf("expected earliest index retained on tie, got %d", got[0].idx)
	}
}
