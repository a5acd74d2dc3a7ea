package ingest

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Embedder vectorizes document text (typically the cache-decorated provider).
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// DocumentWriter appends documents to a named collection, creating it on
// first write.
type DocumentWriter interface {
	AddDocuments(ctx context.Context, collection string, items []domain.Document) ([]string, error)
}
