// Package openai 对接 OpenAI /embeddings 接口，base_url 指向兼容服务
// （Azure OpenAI、LocalAI、vLLM）时同样可用。text-embedding-3 系列支持
// 通过 dimensions 截断向量，与 vector.embedding-dim 保持一致即可。
//
//	import _ "github.com/kart-io/docvector/pkg/llm/openai"
//
//	provider, err := llm.NewEmbeddingProvider("openai", map[string]any{
//	    "api_key":     "your-api-key",
//	    "embed_model": "text-embedding-3-small",
//	    "dimensions":  512,
//	})
//	vec, err := provider.EmbedSingle(ctx, "文本")
package openai

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
const ProviderName = "openai"

func init() {
	llm.RegisterEmbeddingProvider(ProviderName, NewProvider)
}

// Config OpenAI 供应商配置。Dimensions 为 0 时使用模型默认维度。
type Config struct {
	BaseURL      string        `json:"base_url" mapstructure:"base_url"`
	APIKey       string        `json:"-" mapstructure:"api_key"`
	EmbedModel   string        `json:"embed_model" mapstructure:"embed_model"`
	Dimensions   int           `json:"dimensions" mapstructure:"dimensions"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries   int           `json:"max_retries" mapstructure:"max_retries"`
	Organization string        `json:"organization" mapstructure:"organization"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		EmbedModel: "text-embedding-3-small",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
	}
}

// Provider 调用 OpenAI 兼容接口生成向量。
type Provider struct {
	config *Config
	client *httpclient.Client
}

var _ llm.EmbeddingProvider = (*Provider)(nil)

// NewProvider 是注册到 llm 的工厂函数，缺少 api_key 时返回错误。
func NewProvider(configMap map[string]any) (llm.EmbeddingProvider, error) {
	cfg := DefaultConfig()
	m := llm.ConfigMap(configMap)
	m.String("base_url", &cfg.BaseURL)
	m.String("api_key", &cfg.APIKey)
	m.String("embed_model", &cfg.EmbedModel)
	m.PositiveInt("dimensions", &cfg.Dimensions)
	m.Duration("timeout", &cfg.Timeout)
	m.NonNegativeInt("max_retries", &cfg.MaxRetries)
	m.String("organization", &cfg.Organization)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key 是必需的")
	}
	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 OpenAI 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

// Config 返回供应商配置。
func (p *Provider) Config() Config {
	return *p.config
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{
		Model:          p.config.EmbedModel,
		Input:          texts,
		Dimensions:     p.config.Dimensions,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	p.setHeaders(req)

	var embedResp embeddingResponse
	if err := p.client.DoJSON(req, &embedResp); err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	// 响应的 data 不保证与输入同序
	embeddings := make([][]float32, len(texts))
	for _, d := range embedResp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("openai embeddings: 缺少第 %d 个输入的向量", i)
		}
	}
	return embeddings, nil
}

// EmbedSingle 向量化单条文本。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return llm.EmbedOne(ctx, p, text)
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	if p.config.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.config.Organization)
	}
}
