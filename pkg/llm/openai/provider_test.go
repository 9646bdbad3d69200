package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kart-io/docvector/pkg/llm"
	"github.com/kart-io/docvector/pkg/utils/httpclient"
	"github.com/kart-io/docvector/pkg/utils/json"
)

const testAPIKey = "test-key"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("BaseURL 不匹配: %s", cfg.BaseURL)
	}
	if cfg.EmbedModel != "text-embedding-3-small" {
		t.Errorf("EmbedModel 不匹配: %s", cfg.EmbedModel)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries 不匹配: %d", cfg.MaxRetries)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		config    map[string]any
		wantError bool
	}{
		{name: "有效配置", config: map[string]any{"api_key": testAPIKey}},
		{
			name: "自定义配置",
			config: map[string]any{
				"api_key":      testAPIKey,
				"base_url":     "https://example.com/v1/",
				"embed_model":  "text-embedding-3-large",
				"dimensions":   256,
				"timeout":      5 * time.Second,
				"organization": "org-123",
			},
		},
		{name: "缺少 api_key", config: map[string]any{}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config)
			if tt.wantError {
				if err == nil {
					t.Error("期望返回错误")
				}
				return
			}
			if err != nil {
				t.Fatalf("意外错误: %v", err)
			}
			if provider.Name() != ProviderName {
				t.Errorf("名称不匹配: %s", provider.Name())
			}
		})
	}

	p, _ := NewProvider(tests[1].config)
	cfg := p.(*Provider).Config()
	if cfg.BaseURL != "https://example.com/v1" || cfg.Dimensions != 256 {
		t.Errorf("配置解析不匹配: %+v", cfg)
	}
}

func TestRegistered(t *testing.T) {
	if _, err := llm.NewEmbeddingProvider(ProviderName, map[string]any{"api_key": testAPIKey}); err != nil {
		t.Fatalf("openai 应已注册: %v", err)
	}
}

func TestEmbed(t *testing.T) {
	var got embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("路径不匹配: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer "+testAPIKey {
			t.Errorf("认证头不匹配: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("OpenAI-Organization") != "org-1" {
			t.Errorf("组织头不匹配: %s", r.Header.Get("OpenAI-Organization"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		// 故意乱序返回
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0.4,0.5]},
			{"object":"embedding","index":0,"embedding":[0.1,0.2]}
		],"model":"m"}`))
	}))
	defer server.Close()

	p := NewProviderWithConfig(&Config{
		BaseURL:      server.URL,
		APIKey:       testAPIKey,
		EmbedModel:   "m",
		Dimensions:   2,
		Timeout:      time.Second,
		Organization: "org-1",
	})

	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if vecs[0][0] != 0.1 || vecs[1][0] != 0.4 {
		t.Errorf("结果未按 index 排序: %v", vecs)
	}
	if got.Model != "m" || got.Dimensions != 2 || len(got.Input) != 2 {
		t.Errorf("请求体不匹配: %+v", got)
	}

	single, err := p.EmbedSingle(context.Background(), "a")
	if err != nil || len(single) != 2 {
		t.Errorf("单条生成不匹配: %v, %v", single, err)
	}
}

func TestEmbedMissingIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1]}]}`))
	}))
	defer server.Close()

	p := NewProviderWithConfig(&Config{BaseURL: server.URL, APIKey: testAPIKey, Timeout: time.Second})
	if _, err := p.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("缺少向量时应返回错误")
	}
}

func TestEmbedUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	p := NewProviderWithConfig(&Config{BaseURL: server.URL, APIKey: testAPIKey, Timeout: time.Second})
	_, err := p.EmbedSingle(context.Background(), "a")
	var se *httpclient.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Errorf("期望 401 StatusError, 实际 %v", err)
	}
}
