// Package store holds a named, persisted collection of documents with
// embeddings and serves similarity searches over it. Writes rewrite the
// whole collection file, which keeps recovery trivial: the file is always
// a complete snapshot.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/search"
	"github.com/kailas-cloud/ragdex/internal/search/ann"
)

// ANNConfig enables the approximate index for a collection.
type ANNConfig struct {
	Enabled      bool
	MinDocuments int // build the index only past this size
	Graph        ann.Config
}

// Store is a single collection: a name-addressed, insertion-ordered document
// sequence with a fixed embedding dimensionality. Single writer per
// collection; reads take a snapshot under RLock (copy-on-write on mutation).
type Store struct {
	name    string
	persist Persistence
	engine  *search.Engine
	annCfg  ANNConfig
	logger  *zap.Logger

	mu          sync.RWMutex
	docs        []domain.Document
	dim         int
	index       *ann.Index
	initialized bool
}

// New creates a collection store. Call Initialize before use.
func New(name string, persist Persistence, engine *search.Engine, annCfg ANNConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		name:    name,
		persist: persist,
		engine:  engine,
		annCfg:  annCfg,
		logger:  logger,
	}
}

// Initialize loads existing collection state from storage if present, else
// starts empty. Idempotent: repeated calls are no-ops.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	exists, err := s.persist.Exists(s.file())
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %w", domain.ErrStoreUnavailable, s.name, err)
	}
	if exists {
		data, err := s.persist.Read(s.file())
		if err != nil {
			return fmt.Errorf("%w: load collection %s: %w", domain.ErrStoreUnavailable, s.name, err)
		}
		var docs []domain.Document
		if err := json.Unmarshal(data, &docs); err != nil {
			return fmt.Errorf("parse collection %s: %w", s.name, err)
		}
		s.docs = docs
		if len(docs) > 0 {
			s.dim = len(docs[0].Embedding)
		}
		s.rebuildIndexLocked()
		s.logger.Info("Loaded collection",
			zap.String("collection", s.name),
			zap.Int("documents", len(docs)),
			zap.Int("dimensions", s.dim),
		)
	}

	s.initialized = true
	return nil
}

// AddDocuments appends documents and persists the whole collection.
// Documents without an ID get a generated one; the returned slice holds the
// effective IDs in input order. The first document ever added fixes the
// collection's dimensionality; mismatching embeddings are rejected with
// domain.ErrDimensionMismatch before any state changes.
func (s *Store) AddDocuments(ctx context.Context, items []domain.Document) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 {
		dim = len(items[0].Embedding)
	}
	ids := make([]string, len(items))
	for i := range items {
		if len(items[i].Embedding) != dim {
			return nil, fmt.Errorf("document %d: %w",
				i, domain.NewDimensionMismatch(dim, len(items[i].Embedding)))
		}
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		ids[i] = items[i].ID
	}

	// Copy-on-write: persist the new snapshot first, swap in memory only on
	// success so readers never see documents that were not durably written.
	next := make([]domain.Document, 0, len(s.docs)+len(items))
	next = append(next, s.docs...)
	next = append(next, items...)

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode collection %s: %w", s.name, err)
	}
	if err := s.persist.Write(s.file(), data); err != nil {
		return nil, fmt.Errorf("%w: persist collection %s: %w", domain.ErrStoreUnavailable, s.name, err)
	}

	s.docs = next
	s.dim = dim
	s.updateIndexLocked(items)

	s.logger.Debug("Documents added",
		zap.String("collection", s.name),
		zap.Int("added", len(items)),
		zap.Int("total", len(s.docs)),
	)
	return ids, nil
}

// Search ranks the collection's documents against the query embedding.
func (s *Store) Search(ctx context.Context, query []float32, opts search.Options) ([]domain.SearchResult, error) {
	s.mu.RLock()
	docs := s.docs
	idx := s.index
	s.mu.RUnlock()

	return s.engine.SearchWithIndex(ctx, idx, query, docs, opts)
}

// Info returns the collection name and document count.
func (s *Store) Info() domain.CollectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CollectionInfo{
		CollectionName: s.name,
		DocumentCount:  len(s.docs),
	}
}

// DeleteCollection clears in-memory state and removes backing storage.
// Idempotent on a non-existent collection.
func (s *Store) DeleteCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist.Remove(s.file()); err != nil {
		return fmt.Errorf("%w: delete collection %s: %w", domain.ErrStoreUnavailable, s.name, err)
	}
	s.docs = nil
	s.dim = 0
	s.index = nil
	return nil
}

// updateIndexLocked keeps the approximate index in step with the document
// list. The index is built once the collection is large enough to benefit,
// then updated incrementally. Index failures only disable the approximate
// path; exact search is unaffected.
func (s *Store) updateIndexLocked(added []domain.Document) {
	if !s.annCfg.Enabled {
		return
	}
	if s.index == nil {
		if len(s.docs) >= s.annCfg.MinDocuments {
			s.rebuildIndexLocked()
		}
		return
	}
	for i := range added {
		if err := s.index.Add(added[i].ID, added[i].Embedding); err != nil {
			s.logger.Warn("Approximate index update failed, disabling index",
				zap.String("collection", s.name), zap.Error(err))
			s.index = nil
			return
		}
	}
}

func (s *Store) rebuildIndexLocked() {
	if !s.annCfg.Enabled || len(s.docs) < s.annCfg.MinDocuments {
		return
	}
	idx := ann.New(s.annCfg.Graph)
	for i := range s.docs {
		if err := idx.Add(s.docs[i].ID, s.docs[i].Embedding); err != nil {
			s.logger.Warn("Approximate index build failed, using exact search",
				zap.String("collection", s.name), zap.Error(err))
			s.index = nil
			return
		}
	}
	s.index = idx
}

func (s *Store) file() string {
	return s.name + ".json"
}
