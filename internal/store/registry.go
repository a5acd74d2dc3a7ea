package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/search"
)

// Registry resolves collection names to initialized stores. Collections are
// created implicitly on first write; all stores share one persistence layer
// and one search engine.
type Registry struct {
	persist Persistence
	engine  *search.Engine
	annCfg  ANNConfig
	logger  *zap.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates a collection registry.
func NewRegistry(persist Persistence, engine *search.Engine, annCfg ANNConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		persist: persist,
		engine:  engine,
		annCfg:  annCfg,
		logger:  logger,
		stores:  map[string]*Store{},
	}
}

// Collection returns the store for name, loading or creating it on first use.
func (r *Registry) Collection(ctx context.Context, name string) (*Store, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[name]; ok {
		return s, nil
	}
	s := New(name, r.persist, r.engine, r.annCfg, r.logger)
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	r.stores[name] = s
	return s, nil
}

// AddDocuments appends documents to the named collection, creating it if it
// does not exist yet.
func (r *Registry) AddDocuments(ctx context.Context, name string, items []domain.Document) ([]string, error) {
	s, err := r.Collection(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.AddDocuments(ctx, items)
}

// Search ranks the named collection's documents against the query embedding.
// An unknown collection is domain.ErrNotFound.
func (r *Registry) Search(ctx context.Context, name string, query []float32, opts search.Options) ([]domain.SearchResult, error) {
	s, err := r.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, query, opts)
}

// Info returns metadata for the named collection, or domain.ErrNotFound.
func (r *Registry) Info(ctx context.Context, name string) (domain.CollectionInfo, error) {
	s, err := r.lookup(ctx, name)
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	return s.Info(), nil
}

// Delete removes the named collection and its backing storage. Deleting an
// unknown collection is domain.ErrNotFound.
func (r *Registry) Delete(ctx context.Context, name string) error {
	s, err := r.lookup(ctx, name)
	if err != nil {
		return err
	}
	if err := s.DeleteCollection(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.stores, name)
	r.mu.Unlock()
	return nil
}

// lookup resolves an existing collection: cached, or present in storage.
func (r *Registry) lookup(ctx context.Context, name string) (*Store, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	s, cached := r.stores[name]
	r.mu.Unlock()
	if cached {
		return s, nil
	}

	exists, err := r.persist.Exists(name + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: check collection %s: %w", domain.ErrStoreUnavailable, name, err)
	}
	if !exists {
		return nil, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	return r.Collection(ctx, name)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return fmt.Errorf("invalid collection name %q: only letters, digits, - and _ are allowed", name)
		}
	}
	return nil
}
