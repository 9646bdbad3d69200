// Package cache provides cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docvector/pkg/options"
	redisopts "github.com/kart-io/docvector/pkg/options/redis"
)

var _ options.IOptions = (*Options)(nil)

// Options 缓存配置。
type Options struct {
	// Enabled 是否启用检索结果缓存。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Backend 缓存后端: redis 或 memory。
	Backend string `json:"backend" mapstructure:"backend"`

	// TTL 缓存过期时间。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix 缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// EmbeddingCache 是否缓存向量生成结果。
	EmbeddingCache bool `json:"embedding-cache" mapstructure:"embedding-cache"`

	// EmbeddingTTL 向量缓存过期时间。
	EmbeddingTTL time.Duration `json:"embedding-ttl" mapstructure:"embedding-ttl"`

	// Redis Redis 连接配置。
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewOptions 创建默认缓存配置。
func NewOptions() *Options {
	return &Options{
		Enabled:        false,
		Backend:        "redis",
		TTL:            10 * time.Minute,
		KeyPrefix:      "docvector:search:",
		EmbeddingCache: false,
		EmbeddingTTL:   24 * time.Hour,
		Redis:          redisopts.NewOptions(),
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "cache."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Enable the Redis search result cache.")
	fs.StringVar(&o.Backend, p+"backend", o.Backend, "Cache backend (redis, memory).")
	fs.DurationVar(&o.TTL, p+"ttl", o.TTL, "Search result cache TTL.")
	fs.StringVar(&o.KeyPrefix, p+"key-prefix", o.KeyPrefix, "Search result cache key prefix.")
	fs.BoolVar(&o.EmbeddingCache, p+"embedding-cache", o.EmbeddingCache, "Cache embedding vectors in Redis.")
	fs.DurationVar(&o.EmbeddingTTL, p+"embedding-ttl", o.EmbeddingTTL, "Embedding cache TTL.")

	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	o.Redis.AddFlags(fs, append(prefixes, "cache")...)
}

// InUse reports whether any cache feature is enabled.
func (o *Options) InUse() bool {
	return o != nil && (o.Enabled || o.EmbeddingCache)
}

// RedisRequired reports whether any cache feature needs a Redis connection.
func (o *Options) RedisRequired() bool {
	return o.InUse() && o.Backend == "redis"
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Backend != "redis" && o.Backend != "memory" {
		errs = append(errs, fmt.Errorf("cache.backend must be redis or memory, got %q", o.Backend))
	}
	if o.Enabled && o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
	}
	if o.EmbeddingCache && o.EmbeddingTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.embedding-ttl must be positive"))
	}
	if o.RedisRequired() && o.Redis != nil {
		errs = append(errs, o.Redis.Validate()...)
	}
	return errs
}

// Complete completes the cache options with defaults.
func (o *Options) Complete() error {
	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	return o.Redis.Complete()
}
