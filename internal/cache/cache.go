// Package cache implements the two-tier embedding cache: a remote tier on
// the shared key-value store and a bounded process-local fallback tier.
// The cache is a performance optimization, never a correctness dependency:
// every remote failure degrades to the local tier and is logged, not
// propagated.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

const keyPrefix = "ragdex:emb_cache:"

// Stats reports the cache's current shape.
type Stats struct {
	RemoteEnabled bool `json:"remote_enabled"`
	FallbackSize  int  `json:"fallback_size"`
}

type localEntry struct {
	value      []float32
	insertedAt time.Time
}

// EmbeddingCache caches embeddings keyed by a content hash of the text.
// The local tier evicts FIFO by insertion age: access does not refresh age.
type EmbeddingCache struct {
	remote    db.KVStore // nil disables the remote tier
	remoteTTL time.Duration
	maxLocal  int
	logger    *zap.Logger
	clock     func() time.Time

	mu      sync.Mutex
	entries map[string]localEntry
	order   []string // insertion order, oldest first
}

// New creates an embedding cache. remote may be nil for local-only operation.
// remoteTTL of 0 stores remote entries without expiry.
func New(remote db.KVStore, maxLocal int, remoteTTL time.Duration, logger *zap.Logger) *EmbeddingCache {
	if maxLocal <= 0 {
		maxLocal = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingCache{
		remote:    remote,
		remoteTTL: remoteTTL,
		maxLocal:  maxLocal,
		logger:    logger,
		clock:     time.Now,
		entries:   make(map[string]localEntry),
	}
}

// Get returns the cached embedding for text, checking the remote tier first
// and the local fallback on remote miss or failure. Absence is not cached.
func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool) {
	key := cacheKey(text)

	if c.remote != nil {
		if vec, ok := c.getRemote(ctx, key); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues("remote", "hit").Inc()
			return vec, true
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("remote", "miss").Inc()
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("local", "hit").Inc()
		return entry.value, true
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("local", "miss").Inc()
	return nil, false
}

// Set stores the embedding in the remote tier when available and always in
// the local fallback, so a later remote outage does not lose recently seen
// embeddings. The oldest local entry is evicted at capacity.
func (c *EmbeddingCache) Set(ctx context.Context, text string, embedding []float32) {
	key := cacheKey(text)

	if c.remote != nil {
		data := vectorToBytes(embedding)
		var err error
		if c.remoteTTL > 0 {
			err = c.remote.SetWithTTL(ctx, key, data, c.remoteTTL)
		} else {
			err = c.remote.Set(ctx, key, data)
		}
		if err != nil {
			c.logger.Warn("Failed to cache embedding remotely", zap.String("key", key), zap.Error(err))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		// Overwrite keeps the original age: FIFO, not LRU.
		entry.value = embedding
		c.entries[key] = entry
		return
	}
	if len(c.entries) >= c.maxLocal {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = localEntry{value: embedding, insertedAt: c.clock()}
	c.order = append(c.order, key)
}

// Stats reports tier availability and local size.
func (c *EmbeddingCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		RemoteEnabled: c.remote != nil,
		FallbackSize:  len(c.entries),
	}
}

func (c *EmbeddingCache) getRemote(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

// cacheKey is a stable, collision-resistant content hash of the text.
func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return keyPrefix + hex.EncodeToString(h[:])
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
