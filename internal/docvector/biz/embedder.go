package biz

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"golang.org/x/time/rate"

	"github.com/kart-io/docvector/internal/pkg/textutil"
	"github.com/kart-io/docvector/pkg/errors"
	"github.com/kart-io/docvector/pkg/infra/pool"
	"github.com/kart-io/docvector/pkg/llm"
)

// EmbedderConfig 向量生成器配置。
type EmbedderConfig struct {
	// Dimension 期望的向量维度。
	Dimension int
	// Concurrency 同时进行的向量请求数。
	Concurrency int
	// Delay 相邻两次请求的最小间隔，0 表示不限速。
	Delay time.Duration
}

// EmbeddingOutcome 单个分块的向量结果，Vector 与 Err 互斥。
type EmbeddingOutcome struct {
	Vector []float32
	Err    error
}

// Embedder 通过有界协程池逐块生成向量。
type Embedder struct {
	provider llm.EmbeddingProvider
	pool     *pool.Pool
	limiter  *rate.Limiter
	dim      int
}

// NewEmbedder 创建向量生成器。
func NewEmbedder(provider llm.EmbeddingProvider, cfg EmbedderConfig) (*Embedder, error) {
	if cfg.Dimension <= 0 {
		return nil, errors.ErrInvalidConfiguration.WithMessagef("embedding dimension must be positive, got %d", cfg.Dimension)
	}

	p, err := pool.NewPool("embedding", pool.EmbeddingPoolConfig(cfg.Concurrency))
	if err != nil {
		return nil, errors.ErrInvalidConfiguration.WithCause(err)
	}

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	return &Embedder{
		provider: provider,
		pool:     p,
		limiter:  rate.NewLimiter(limit, 1),
		dim:      cfg.Dimension,
	}, nil
}

// Dimension 返回向量维度。
func (e *Embedder) Dimension() int {
	return e.dim
}

// PoolStats 返回向量协程池统计信息。
func (e *Embedder) PoolStats() pool.Stats {
	return e.pool.Stats()
}

// Close 释放协程池。
func (e *Embedder) Close() {
	e.pool.Release()
}

// EmbedChunks 为每个分块生成向量，结果顺序与输入一致。
// 单个分块失败不会中断其它分块。
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []RawChunk) []EmbeddingOutcome {
	outcomes := make([]EmbeddingOutcome, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = EmbeddingOutcome{Err: errors.ErrEmbeddingFailed.WithMessagef("embedding provider panicked: %v", r)}
				}
			}()
			vec, err := e.embed(ctx, chunk.Content)
			if err != nil {
				outcomes[i] = EmbeddingOutcome{Err: errors.ErrEmbeddingFailed.WithCause(err)}
				return
			}
			outcomes[i] = EmbeddingOutcome{Vector: vec}
		}
		onCancel := func(err error) {
			defer wg.Done()
			outcomes[i] = EmbeddingOutcome{Err: errors.ErrEmbeddingFailed.WithCause(err)}
		}

		// 池满时阻塞，形成背压
		if err := e.pool.SubmitWithContext(ctx, task, onCancel); err != nil {
			outcomes[i] = EmbeddingOutcome{Err: errors.ErrEmbeddingFailed.WithCause(err)}
			wg.Done()
		}
	}
	wg.Wait()

	for i, o := range outcomes {
		if o.Err != nil {
			logger.Warnw("Failed to embed chunk",
				"chunk_index", chunks[i].Index,
				"provider", e.provider.Name(),
				"error", o.Err.Error(),
			)
		}
	}
	return outcomes
}

// EmbedQuery 为检索文本生成向量。
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, errors.ErrEmbeddingUnavailable.WithCause(err)
	}
	return vec, nil
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	vec, err := e.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := textutil.ValidateVector(vec, e.dim); err != nil {
		return nil, err
	}
	return textutil.Normalize(vec)
}
