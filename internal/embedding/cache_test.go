package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	getErr  error
	setErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]float32{}}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = vec
	return nil
}

func TestCacheKey(t *testing.T) {
	k1 := CacheKey("text-embedding-3-small", "hello")
	k2 := CacheKey("text-embedding-3-small", "hello")
	k3 := CacheKey("other-model", "hello")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.True(t, len(k1) > len("emb:text-embedding-3-small:"))
	assert.Contains(t, k1, "emb:text-embedding-3-small:")
}

func TestCachedEmbedder_HitSkipsUpstream(t *testing.T) {
	fake := &fakeOpenAI{}
	cache := newMemoryCache()
	ce := NewCachedEmbedder(newTestEmbedder(t, fake, Options{}), cache, nil)

	first, err := ce.Embed(context.Background(), "hello")
	require.NoError(t, err)
	second, err := ce.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestCachedEmbedder_CacheFailuresIgnored(t *testing.T) {
	fake := &fakeOpenAI{}
	cache := newMemoryCache()
	cache.getErr = errors.New("connection refused")
	cache.setErr = errors.New("connection refused")
	ce := NewCachedEmbedder(newTestEmbedder(t, fake, Options{}), cache, nil)

	vec, err := ce.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
}

func TestCachedEmbedder_UpstreamFailureNotMasked(t *testing.T) {
	fake := &fakeOpenAI{status: 500}
	cache := newMemoryCache()
	ce := NewCachedEmbedder(newTestEmbedder(t, fake, Options{}), cache, nil)

	_, err := ce.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Empty(t, cache.entries)
}
