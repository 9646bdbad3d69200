// Package llm provides embedding provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docvector/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions 定义向量模型供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（openai, ollama）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥（OpenAI 需要）。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Timeout 单次请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`

	// BreakerThreshold 连续失败多少次后熔断。
	BreakerThreshold int `json:"breaker-threshold" mapstructure:"breaker-threshold"`

	// BreakerCooldown 熔断后多久允许探测。
	BreakerCooldown time.Duration `json:"breaker-cooldown" mapstructure:"breaker-cooldown"`
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
func NewEmbeddingOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:   "openai",
		BaseURL:    "https://api.openai.com/v1",
		Model:      "text-embedding-3-small",
		Timeout:    30 * time.Second,
		MaxRetries: 3,

		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
// dimensions 为 0 时不向供应商请求特定维度。
func (o *ProviderOptions) ToConfigMap(dimensions int) map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
		"dimensions":   dimensions,
	}
}

// AddFlags adds flags for the embedding provider to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "embedding."
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Embedding provider (openai, ollama).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "Embedding API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Embedding API key (prefer EMBEDDING_API_KEY env var).")
	fs.StringVar(&o.Model, p+"model", o.Model, "Embedding model name.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Embedding request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Embedding maximum number of retries.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "Embedding provider organization ID (optional).")
	fs.IntVar(&o.BreakerThreshold, p+"breaker-threshold", o.BreakerThreshold, "Consecutive upstream failures before the circuit opens.")
	fs.DurationVar(&o.BreakerCooldown, p+"breaker-cooldown", o.BreakerCooldown, "How long the circuit stays open before probing.")
}

// Validate validates the embedding provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("embedding.provider is required"))
	}
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("embedding.base-url is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("embedding.model is required"))
	}
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("embedding.api-key is required for openai provider"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("embedding.timeout must be positive"))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("embedding.max-retries must not be negative"))
	}
	if o.BreakerThreshold <= 0 {
		errs = append(errs, fmt.Errorf("embedding.breaker-threshold must be positive"))
	}
	if o.BreakerCooldown <= 0 {
		errs = append(errs, fmt.Errorf("embedding.breaker-cooldown must be positive"))
	}
	return errs
}

// Complete fills the API key from EMBEDDING_API_KEY or OPENAI_API_KEY.
// For the ollama provider untouched OpenAI defaults are swapped for local ones.
func (o *ProviderOptions) Complete() error {
	if o.Provider == "ollama" {
		defaults := NewEmbeddingOptions()
		if o.BaseURL == defaults.BaseURL {
			o.BaseURL = "http://localhost:11434"
		}
		if o.Model == defaults.Model {
			o.Model = "nomic-embed-text"
		}
	}
	if o.APIKey == "" {
		o.APIKey = os.Getenv("EMBEDDING_API_KEY")
	}
	if o.APIKey == "" && o.Provider == "openai" {
		o.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return nil
}
