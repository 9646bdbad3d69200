package biz

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docvector/internal/pkg/textutil"
	"github.com/kart-io/docvector/pkg/cache"
	"github.com/kart-io/docvector/pkg/utils/json"
)

// SearchCacheConfig 检索结果缓存配置。
type SearchCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀，失效时按前缀整体删除。
	KeyPrefix string
}

// SearchCache 检索结果缓存。
// 读写失败只记录日志，检索照常进行。
type SearchCache struct {
	store  cache.Store
	config *SearchCacheConfig
}

// NewSearchCache 创建检索结果缓存。
func NewSearchCache(store cache.Store, config *SearchCacheConfig) *SearchCache {
	if config == nil {
		config = &SearchCacheConfig{
			TTL:       10 * time.Minute,
			KeyPrefix: "docvector:search:",
		}
	}
	return &SearchCache{store: store, config: config}
}

func (c *SearchCache) enabled() bool {
	return c != nil && c.config.Enabled && c.store != nil
}

// Key 计算检索请求的缓存键。
func (c *SearchCache) Key(org OrganizationContext, req *SearchRequest, k int, threshold float64) string {
	if c == nil {
		return ""
	}
	return c.config.KeyPrefix + textutil.HashKey(
		org.OrganizationID,
		req.ProductID,
		req.DocumentType,
		strconv.Itoa(k),
		strconv.FormatFloat(threshold, 'g', -1, 64),
		req.Query,
	)
}

// Get 读取缓存，未命中返回 nil。
func (c *SearchCache) Get(ctx context.Context, key string) *SearchResponse {
	if !c.enabled() {
		return nil
	}

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logger.Warnw("Failed to read search cache", "key", key, "error", err.Error())
		}
		return nil
	}

	var resp SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logger.Warnw("Failed to decode cached search result", "key", key, "error", err.Error())
		// 删除损坏的缓存
		_ = c.store.Delete(ctx, key)
		return nil
	}
	return &resp
}

// Set 写入缓存。
func (c *SearchCache) Set(ctx context.Context, key string, resp *SearchResponse) {
	if !c.enabled() {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		logger.Warnw("Failed to encode search result for caching", "error", err.Error())
		return
	}
	if err := c.store.Set(ctx, key, data, c.config.TTL); err != nil {
		logger.Warnw("Failed to write search cache", "key", key, "error", err.Error())
	}
}

// Invalidate 删除全部检索缓存。
func (c *SearchCache) Invalidate(ctx context.Context) {
	if !c.enabled() {
		return
	}

	n, err := c.store.DeletePrefix(ctx, c.config.KeyPrefix)
	if err != nil {
		logger.Warnw("Failed to invalidate search cache", "prefix", c.config.KeyPrefix, "error", err.Error())
		return
	}
	if n > 0 {
		logger.Debugw("Search cache invalidated", "keys", n)
	}
}
