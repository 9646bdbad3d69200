package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kart-io/docvector/pkg/llm"
	"github.com/kart-io/docvector/pkg/utils/httpclient"
)

// EmbeddingProvider 为向量模型供应商加上限流重试与熔断。
// 传输层 5xx 由 httpclient 重试，这里只处理 429/408 与网络超时。
type EmbeddingProvider struct {
	provider llm.EmbeddingProvider
	retry    *RetryConfig
	cb       *CircuitBreaker
}

var _ llm.EmbeddingProvider = (*EmbeddingProvider)(nil)

// NewEmbeddingProvider 包装 provider，nil 配置使用默认值。
func NewEmbeddingProvider(provider llm.EmbeddingProvider, retry *RetryConfig, breaker *BreakerConfig) *EmbeddingProvider {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	if breaker == nil {
		breaker = DefaultBreakerConfig(provider.Name())
	}
	return &EmbeddingProvider{
		provider: provider,
		retry:    retry,
		cb:       NewCircuitBreaker(breaker),
	}
}

// Embed 为多个文本生成向量嵌入。
func (p *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := Retry(ctx, p.retry, func() error {
		return p.cb.Execute(func() error {
			var err error
			out, err = p.provider.Embed(ctx, texts)
			return err
		})
	})
	return out, err
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := Retry(ctx, p.retry, func() error {
		return p.cb.Execute(func() error {
			var err error
			out, err = p.provider.EmbedSingle(ctx, text)
			return err
		})
	})
	return out, err
}

// Name 返回被包装供应商的名称。
func (p *EmbeddingProvider) Name() string {
	return p.provider.Name()
}

// Breaker 返回熔断器（用于健康检查与统计）。
func (p *EmbeddingProvider) Breaker() *CircuitBreaker {
	return p.cb
}

// IsRetryableError 判断错误是否值得在本层重试。
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusRequestTimeout
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsUpstreamFailure 判断错误是否说明上游不健康。
// 调用方取消与 4xx（429 除外）不计入熔断。
func IsUpstreamFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}
