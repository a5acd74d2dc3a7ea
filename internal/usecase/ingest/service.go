// Package ingest embeds document texts and writes them to the vector store.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Item is one document to ingest. ID is optional; Embedding is computed.
type Item struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Receipt reports the outcome of an ingestion batch.
type Receipt struct {
	IDs         []string
	TotalTokens int
}

// Service handles document ingestion.
type Service struct {
	embed  Embedder
	writer DocumentWriter
	logger *zap.Logger
}

// New creates an ingestion service.
func New(embed Embedder, writer DocumentWriter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{embed: embed, writer: writer, logger: logger}
}

// Ingest embeds each item's text and appends the batch to the collection.
// The batch is all-or-nothing: an embedding failure aborts before any write.
func (s *Service) Ingest(ctx context.Context, collection string, items []Item) (Receipt, error) {
	if len(items) == 0 {
		return Receipt{}, nil
	}

	docs := make([]domain.Document, len(items))
	totalTokens := 0
	for i, item := range items {
		if item.Text == "" {
			return Receipt{}, fmt.Errorf("item %d: text is required", i)
		}
		result, err := s.embed.Embed(ctx, item.Text)
		if err != nil {
			return Receipt{}, fmt.Errorf("embed item %d: %w", i, err)
		}
		totalTokens += result.TotalTokens
		docs[i] = domain.Document{
			ID:        item.ID,
			Text:      item.Text,
			Embedding: result.Embedding,
			Metadata:  item.Metadata,
		}
	}

	ids, err := s.writer.AddDocuments(ctx, collection, docs)
	if err != nil {
		return Receipt{}, fmt.Errorf("add documents: %w", err)
	}

	s.logger.Info("Documents ingested",
		zap.String("collection", collection),
		zap.Int("count", len(ids)),
		zap.Int("embedding_tokens", totalTokens),
	)
	return Receipt{IDs: ids, TotalTokens: totalTokens}, nil
}
