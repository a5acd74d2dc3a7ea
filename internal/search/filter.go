package search

import (
	"reflect"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// shouldSkipDocument reports whether doc fails the metadata filter.
// A document is skipped when any filter key is absent from its metadata or
// the metadata value does not equal the filter value. A nil filter value is
// a null check: it matches only an explicit null metadata value.
// A nil or empty filter skips nothing.
func shouldSkipDocument(doc *domain.Document, filter map[string]any) bool {
	if len(filter) == 0 {
		return false
	}
	for key, want := range filter {
		got, ok := doc.Metadata[key]
		if !ok {
			return true
		}
		if !valuesEqual(got, want) {
			return true
		}
	}
	return false
}

// valuesEqual compares metadata values with numeric normalization so that
// an int filter matches a float64 decoded from JSON.
func valuesEqual(got, want any) bool {
	if got == nil || want == nil {
		return got == nil && want == nil
	}
	gf, gok := toFloat(got)
	wf, wok := toFloat(want)
	if gok && wok {
		return gf == wf
	}
	if gok != wok {
		return false
	}
	return reflect.DeepEqual(got, want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
