// Package ollama 对接本地部署的 Ollama /api/embed 接口，无需密钥，适合离线环境。
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/docvector/pkg/llm"
	"github.com/kart-io/docvector/pkg/utils/httpclient"
	"github.com/kart-io/docvector/pkg/utils/json"
)

// ProviderName 是 embedding.provider 的取值。
const ProviderName = "ollama"

func init() {
	llm.RegisterEmbeddingProvider(ProviderName, NewProvider)
}

// Config Ollama 供应商配置。
type Config struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	EmbedModel string        `json:"embed_model" mapstructure:"embed_model"`
	Dimensions int           `json:"dimensions" mapstructure:"dimensions"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultConfig 返回本机默认配置。本地模型首次加载较慢，超时放宽到 2 分钟。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:11434",
		EmbedModel: "nomic-embed-text",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Provider 调用 Ollama 生成向量。
type Provider struct {
	config *Config
	client *httpclient.Client
}

var _ llm.EmbeddingProvider = (*Provider)(nil)

// NewProvider 是注册到 llm 的工厂函数。
func NewProvider(configMap map[string]any) (llm.EmbeddingProvider, error) {
	cfg := DefaultConfig()
	m := llm.ConfigMap(configMap)
	m.String("base_url", &cfg.BaseURL)
	m.String("embed_model", &cfg.EmbedModel)
	m.PositiveInt("dimensions", &cfg.Dimensions)
	m.Duration("timeout", &cfg.Timeout)
	m.NonNegativeInt("max_retries", &cfg.MaxRetries)
	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string { return ProviderName }

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed 一次请求向量化整批文本。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{
		Model:      p.config.EmbedModel,
		Input:      texts,
		Dimensions: p.config.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp embedResponse
	if err := p.client.DoJSON(req, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if n := len(resp.Embeddings); n != len(texts) {
		return nil, fmt.Errorf("ollama embed: 期望 %d 个向量, 实际返回 %d 个", len(texts), n)
	}
	return resp.Embeddings, nil
}

// EmbedSingle 向量化单条文本。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return llm.EmbedOne(ctx, p, text)
}
