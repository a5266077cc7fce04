package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iammorganparry/clive/apps/learnbot/internal/vector"
)

// VectorCacheStore caches embeddings by content hash and model in SQLite.
type VectorCacheStore struct {
	db *DB
}

func NewVectorCacheStore(db *DB) *VectorCacheStore {
	return &VectorCacheStore{db: db}
}

// Get returns a cached vector, or nil if not found.
func (s *VectorCacheStore) Get(ctx context.Context, contentHash, model string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT vector FROM vector_cache WHERE content_hash = ? AND model = ?
	`, contentHash, model).Scan(&blob)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector cache: %w", err)
	}
	return vector.BytesToFloat32(blob), nil
}

// Put upserts a cache entry.
func (s *VectorCacheStore) Put(ctx context.Context, contentHash, model string, vec []float32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vector_cache (content_hash, model, vector, dimension, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_hash, model) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`, contentHash, model, vector.Float32ToBytes(vec), len(vec), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put vector cache: %w", err)
	}
	return nil
}
