// Package llm 抽象文档向量化使用的 Embedding 供应商。
//
// 供应商在 init 中按名称注册，服务启动时根据 embedding.provider 选择：
//
//	import _ "github.com/kart-io/docvector/pkg/llm/openai"
//
//	p, err := llm.NewEmbeddingProvider("openai", opts.ToConfigMap(dim))
package llm

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// EmbeddingProvider 把文本转换为定长向量。
type EmbeddingProvider interface {
	// Embed 批量生成向量，结果与输入一一对应。
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedSingle 生成单条向量，检索时向量化查询语句使用。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	// Name 返回注册名，用于日志、熔断器和缓存命名空间。
	Name() string
}

// EmbeddingProviderFactory 由配置 map 创建供应商。
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]EmbeddingProviderFactory{}
)

// RegisterEmbeddingProvider 注册供应商工厂，同名覆盖。
func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// NewEmbeddingProvider 按注册名创建供应商。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q, registered: %v", name, ListProviders())
	}
	return factory(config)
}

// ListProviders 返回已注册的供应商名称，按字母序。
func ListProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return slices.Sorted(maps.Keys(factories))
}

// EmbedOne 通过 Embed 生成单条向量，供应商实现 EmbedSingle 时复用。
func EmbedOne(ctx context.Context, p EmbeddingProvider, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%s: empty embedding returned", p.Name())
	}
	return vecs[0], nil
}
