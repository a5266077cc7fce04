package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClientEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2}}})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "nomic-embed-text")
	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestOllamaClientEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	_, err := NewOllamaClient(srv.URL, "m").Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "", 0, 0)
	assert.Error(t, err)

	c, err := NewOpenAIClient("sk-test", "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", c.Model())
}

type countingModel struct {
	calls int
	err   error
}

func (m *countingModel) Embed(context.Context, string) ([]float32, error) {
	m.calls++
	return []float32{1, 2, 3}, m.err
}

func (m *countingModel) Model() string { return "test-model" }

type memCache struct {
	mu sync.Mutex
	m  map[string][]float32
}

func (c *memCache) Get(_ context.Context, hash, model string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[model+hash], nil
}

func (c *memCache) Put(_ context.Context, hash, model string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[model+hash] = vec
	return nil
}

func TestCachedEmbedder(t *testing.T) {
	model := &countingModel{}
	e := NewCachedEmbedder(model, &memCache{m: map[string][]float32{}}, nil)

	for i := 0; i < 3; i++ {
		vec, err := e.Embed(context.Background(), "same text")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3}, vec)
	}
	assert.Equal(t, 1, model.calls)

	failing := NewCachedEmbedder(&countingModel{err: errors.New("down")}, &memCache{m: map[string][]float32{}}, nil)
	_, err := failing.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash("a"), ContentHash("a"))
	assert.NotEqual(t, ContentHash("a"), ContentHash("b"))
	assert.Len(t, ContentHash("a"), 64)
}
