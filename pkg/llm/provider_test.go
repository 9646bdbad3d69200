package llm

import (
	"context"
	"testing"
	"time"
)

// mockProvider 模拟供应商实现，用于测试。
type mockProvider struct {
	name  string
	calls int
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = []float32{float32(len(text)), 0.2, 0.3}
	}
	return result, nil
}

func (m *mockProvider) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	m.calls++
	return []float32{float32(len(text)), 0.2, 0.3}, nil
}

func TestRegisterAndNewEmbeddingProvider(t *testing.T) {
	RegisterEmbeddingProvider("test-provider", func(config map[string]any) (EmbeddingProvider, error) {
		name := "test-provider"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &mockProvider{name: name}, nil
	})

	provider, err := NewEmbeddingProvider("test-provider", map[string]any{"name": "custom-name"})
	if err != nil {
		t.Fatalf("创建供应商失败: %v", err)
	}
	if provider.Name() != "custom-name" {
		t.Errorf("名称不匹配: 期望 custom-name, 实际 %s", provider.Name())
	}

	found := false
	for _, n := range ListProviders() {
		if n == "test-provider" {
			found = true
		}
	}
	if !found {
		t.Error("ListProviders 应包含 test-provider")
	}
}

func TestNewEmbeddingProviderUnknown(t *testing.T) {
	if _, err := NewEmbeddingProvider("unknown-provider", nil); err == nil {
		t.Error("未知供应商应返回错误")
	}
}

func TestConfigMap(t *testing.T) {
	var (
		s       = "default"
		dim     = 768
		retries = 3
		timeout = time.Minute
	)
	m := ConfigMap{
		"embed_model": "",
		"dimensions":  0,
		"max_retries": 0,
		"timeout":     "30s",
	}
	m.String("embed_model", &s)
	m.PositiveInt("dimensions", &dim)
	m.NonNegativeInt("max_retries", &retries)
	m.Duration("timeout", &timeout)

	if s != "default" || dim != 768 {
		t.Errorf("零值不应覆盖默认值: %s %d", s, dim)
	}
	if retries != 0 {
		t.Errorf("max_retries 允许为 0, 实际 %d", retries)
	}
	if timeout != time.Minute {
		t.Errorf("类型不符时应保留原值: %v", timeout)
	}
}

func TestEmbedOne(t *testing.T) {
	p := &mockProvider{name: "mock"}
	vec, err := EmbedOne(context.Background(), p, "abcd")
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if vec[0] != 4 || p.calls != 1 {
		t.Errorf("结果不匹配: %v, calls=%d", vec, p.calls)
	}
}
