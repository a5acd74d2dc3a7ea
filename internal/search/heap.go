package search

import "container/heap"

// scored is a candidate document with its similarity to the query.
// idx is the document's position in the original slice, used for stable
// tie-breaking: equal similarities rank by insertion order.
type scored struct {
	idx int
	sim float64
}

// worseThan reports whether s ranks below other in the final ordering
// (lower similarity, or equal similarity but later insertion).
func (s scored) worseThan(other scored) bool {
	if s.sim != other.sim {
		return s.sim < other.sim
	}
	return s.idx > other.idx
}

// topKHeap is a bounded min-heap of the best k candidates seen so far.
// The root is the worst retained candidate, so a new candidate enters in
// O(log k) by displacing the root when it ranks higher.
type topKHeap struct {
	items []scored
	k     int
}

func newTopKHeap(k int) *topKHeap {
	return &topKHeap{items: make([]scored, 0, k), k: k}
}

func (h *topKHeap) Len() int            { return len(h.items) }
func (h *topKHeap) Less(i, j int) bool  { return h.items[i].worseThan(h.items[j]) }
func (h *topKHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topKHeap) Push(x any)          { h.items = append(h.items, x.(scored)) }
func (h *topKHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// offer inserts the candidate if the heap has room or the candidate beats
// the current minimum.
func (h *topKHeap) offer(c scored) {
	if len(h.items) < h.k {
		heap.Push(h, c)
		return
	}
	if h.items[0].worseThan(c) {
		h.items[0] = c
		heap.Fix(h, 0)
	}
}

// drain returns the retained candidates sorted best-first and empties the heap.
func (h *topKHeap) drain() []scored {
	out := make([]scored, len(h.items))
	for i := len(h.items) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(scored)
	}
	return out
}
