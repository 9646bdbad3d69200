package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreBasic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("期望 ErrMiss, 实际 %v", err)
	}

	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("读取不匹配: %q, %v", got, err)
	}

	got[0] = 'x'
	again, _ := s.Get(ctx, "k")
	if string(again) != "v" {
		t.Error("返回值不应共享内部存储")
	}

	_ = s.Delete(ctx, "k")
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Error("删除后应未命中")
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_ = s.Set(ctx, "k", []byte("v"), time.Minute)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("未过期时应命中: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Error("过期后应未命中")
	}
	if s.Len() != 0 {
		t.Errorf("过期条目不应计数: %d", s.Len())
	}
}

func TestMemoryStoreDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "search:a", []byte("1"), 0)
	_ = s.Set(ctx, "search:b", []byte("2"), 0)
	_ = s.Set(ctx, "emb:c", []byte("3"), 0)

	n, err := s.DeletePrefix(ctx, "search:")
	if err != nil || n != 2 {
		t.Fatalf("前缀删除数量不匹配: %d, %v", n, err)
	}
	if s.Len() != 1 {
		t.Errorf("剩余条目不匹配: %d", s.Len())
	}
}

func TestMemoryStoreConcurrency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			_ = s.Set(ctx, key, []byte(key), time.Minute)
			_, _ = s.Get(ctx, key)
			_, _ = s.DeletePrefix(ctx, "none:")
		}(i)
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Errorf("并发写入数量不匹配: %d", s.Len())
	}
}
