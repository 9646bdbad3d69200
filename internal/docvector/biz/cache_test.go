package biz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docvector/internal/model"
	"github.com/kart-io/docvector/pkg/cache"
)

func newTestSearchCache(enabled bool) (*SearchCache, *cache.MemoryStore) {
	mem := cache.NewMemoryStore()
	return NewSearchCache(mem, &SearchCacheConfig{Enabled: enabled, TTL: time.Minute, KeyPrefix: "t:"}), mem
}

func TestSearchCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestSearchCache(true)

	req := &SearchRequest{Query: "refund"}
	key := c.Key(orgA, req, 5, 0.7)
	assert.Nil(t, c.Get(ctx, key))

	resp := &SearchResponse{
		Results:      []*model.SearchResult{{ChunkID: "c1", DocumentID: "d1", SimilarityScore: 0.91}},
		TotalResults: 1,
	}
	c.Set(ctx, key, resp)

	got := c.Get(ctx, key)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.TotalResults)
	assert.Equal(t, "c1", got.Results[0].ChunkID)
	assert.InDelta(t, 0.91, got.Results[0].SimilarityScore, 1e-9)
}

func TestSearchCacheKey(t *testing.T) {
	c, _ := newTestSearchCache(true)
	req := &SearchRequest{Query: "refund"}

	base := c.Key(orgA, req, 5, 0.7)
	assert.Equal(t, base, c.Key(orgA, &SearchRequest{Query: "refund"}, 5, 0.7))
	assert.NotEqual(t, base, c.Key(OrganizationContext{OrganizationID: "org-b"}, req, 5, 0.7))
	assert.NotEqual(t, base, c.Key(orgA, req, 6, 0.7))
	assert.NotEqual(t, base, c.Key(orgA, req, 5, 0.8))
	assert.NotEqual(t, base, c.Key(orgA, &SearchRequest{Query: "refund", ProductID: "p"}, 5, 0.7))
	assert.Contains(t, base, "t:")
}

func TestSearchCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestSearchCache(true)

	c.Set(ctx, c.Key(orgA, &SearchRequest{Query: "a"}, 5, 0.7), &SearchResponse{Results: []*model.SearchResult{}})
	c.Set(ctx, c.Key(orgA, &SearchRequest{Query: "b"}, 5, 0.7), &SearchResponse{Results: []*model.SearchResult{}})
	require.NoError(t, mem.Set(ctx, "other:key", []byte("x"), 0))

	c.Invalidate(ctx)
	assert.Equal(t, 1, mem.Len(), "只删除检索缓存前缀下的键")
}

func TestSearchCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestSearchCache(true)

	key := c.Key(orgA, &SearchRequest{Query: "a"}, 5, 0.7)
	require.NoError(t, mem.Set(ctx, key, []byte("{not json"), 0))

	assert.Nil(t, c.Get(ctx, key))
	_, err := mem.Get(ctx, key)
	assert.ErrorIs(t, err, cache.ErrMiss, "损坏的缓存应被删除")
}

func TestSearchCacheDisabled(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestSearchCache(false)

	key := c.Key(orgA, &SearchRequest{Query: "a"}, 5, 0.7)
	c.Set(ctx, key, &SearchResponse{})
	assert.Zero(t, mem.Len())
	assert.Nil(t, c.Get(ctx, key))

	var none *SearchCache
	assert.Empty(t, none.Key(orgA, &SearchRequest{Query: "a"}, 5, 0.7))
	assert.Nil(t, none.Get(ctx, "k"))
	none.Set(ctx, "k", &SearchResponse{})
	none.Invalidate(ctx)
}
