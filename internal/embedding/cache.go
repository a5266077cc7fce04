package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"

	"go.uber.org/zap"
)

// Model is an embedder that can name its model.
type Model interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Cache persists vectors by content hash and model.
type Cache interface {
	Get(ctx context.Context, contentHash, model string) ([]float32, error)
	Put(ctx context.Context, contentHash, model string, vec []float32) error
}

// CachedEmbedder wraps an embedding model with content-hash caching.
type CachedEmbedder struct {
	client Model
	cache  Cache
	logger *zap.Logger
}

func NewCachedEmbedder(client Model, cache Cache, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{client: client, cache: cache, logger: logger}
}

// Embed returns the embedding for text, using the cache when available.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := ContentHash(text)

	vec, err := e.cache.Get(ctx, hash, e.client.Model())
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if vec != nil {
		return vec, nil
	}

	vec, err = e.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Put(ctx, hash, e.client.Model(), vec); err != nil {
		e.logger.Warn("embedding cache write failed", zap.Error(err))
	}
	return vec, nil
}

// ContentHash computes a SHA-256 hash of text content.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
