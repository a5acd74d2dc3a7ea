package domain

// Document is a stored text chunk with its embedding and arbitrary metadata.
// Metadata values are JSON scalars or nested JSON structures.
type Document struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchResult is a ranked match for a query embedding.
// Similarity is cosine similarity in [-1, 1]; Distance is 1 - Similarity.
type SearchResult struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Distance   float64        `json:"distance"`
	Similarity float64        `json:"similarity"`
}

// CollectionInfo describes a collection's current state.
type CollectionInfo struct {
	CollectionName string `json:"collection_name"`
	DocumentCount  int    `json:"document_count"`
}
