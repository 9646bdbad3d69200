package biz

import (
	"context"
	stderrors "errors"
	"hash/fnv"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kart-io/docvector/internal/docvector/metrics"
	"github.com/kart-io/docvector/internal/docvector/store"
	"github.com/kart-io/docvector/internal/docvector/store/storetest"
	"github.com/kart-io/docvector/internal/model"
	"github.com/kart-io/docvector/internal/pkg/textutil"
	"github.com/kart-io/docvector/pkg/cache"
)

const testDim = 8

var errUpstream = stderrors.New("upstream embedding error")

// fakeProvider 可控的向量供应商：固定映射优先，否则按文本哈希生成。
type fakeProvider struct {
	mu     sync.Mutex
	dim    int
	calls  int
	fixed  map[string][]float32
	failOn func(text string) bool
	panics func(text string) bool
	delay  time.Duration
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{dim: testDim, fixed: map[string][]float32{}}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.calls++
	delay, failOn, panics := p.delay, p.failOn, p.panics
	vec, fixed := p.fixed[text]
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failOn != nil && failOn(text) {
		return nil, errUpstream
	}
	if panics != nil && panics(text) {
		panic("fake provider crashed on " + text)
	}
	if fixed {
		return append([]float32(nil), vec...), nil
	}
	return hashVector(text, p.dim), nil
}

func (p *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.EmbedSingle(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *fakeProvider) set(text string, vec []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fixed[text] = vec
}

func (p *fakeProvider) setFailOn(fn func(text string) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOn = fn
}

func (p *fakeProvider) setPanicOn(fn func(text string) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panics = fn
}

func (p *fakeProvider) setDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

func hashVector(text string, dim int) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32((seed>>uint(i%24))%17) + 1
	}
	return vec
}

// axis 返回第 i 维为 1 的单位向量。
func axis(i int) []float32 {
	vec := make([]float32, testDim)
	vec[i] = 1
	return vec
}

// cosineChunks 在 SQLite 上用 Go 计算余弦相似度，替代 pgvector 的 <=> 查询。
type cosineChunks struct {
	store.ChunkStore
	db *gorm.DB
}

func (c cosineChunks) Search(ctx context.Context, q store.SearchQuery) ([]*model.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chunks []*model.Chunk
	if err := c.db.WithContext(ctx).Where("embedding IS NOT NULL").Find(&chunks).Error; err != nil {
		return nil, err
	}
	var docs []*model.Document
	if err := c.db.WithContext(ctx).Find(&docs).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	results := []*model.SearchResult{}
	for _, chunk := range chunks {
		doc := byID[chunk.DocumentID]
		switch {
		case doc == nil:
			continue
		case q.OrganizationID != "" && doc.OrganizationID != q.OrganizationID:
			continue
		case q.ProductID != "" && doc.ProductID != q.ProductID:
			continue
		case q.DocumentType != "" && doc.DocumentType != q.DocumentType:
			continue
		}

		score := textutil.CosineSimilarity(q.Vector, chunk.Embedding.Slice())
		if score < q.Threshold {
			continue
		}
		results = append(results, &model.SearchResult{
			ChunkID:          chunk.ID,
			DocumentID:       chunk.DocumentID,
			ChunkIndex:       chunk.ChunkIndex,
			Content:          chunk.Content,
			Metadata:         chunk.Metadata.Data(),
			SimilarityScore:  score,
			DocumentTitle:    doc.Title,
			DocumentFilename: doc.Filename,
			OrganizationID:   doc.OrganizationID,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})
	if q.K > 0 && len(results) > q.K {
		results = results[:q.K]
	}
	return results, nil
}

type cosineFactory struct {
	store.Factory
	chunks store.ChunkStore
}

func (f cosineFactory) Chunks() store.ChunkStore { return f.chunks }

type testEnv struct {
	svc      *VectorService
	factory  store.Factory
	provider *fakeProvider
	cache    *cache.MemoryStore
	metrics  *metrics.VectorMetrics
}

func defaultTestConfig() *ServiceConfig {
	return &ServiceConfig{
		Chunk:          ChunkOptions{ChunkSize: 80, ChunkOverlap: 10, PreserveParagraphs: true},
		OnChunkFailure: "skip",
		TopK:           5,
		MaxTopK:        50,
		ScoreThreshold: 0.7,
		SearchTimeout:  2 * time.Second,
	}
}

func newTestEnv(t *testing.T, mutate func(*ServiceConfig)) *testEnv {
	t.Helper()

	base, db := storetest.NewFactory(t)
	factory := cosineFactory{Factory: base, chunks: cosineChunks{ChunkStore: base.Chunks(), db: db}}

	provider := newFakeProvider()
	embedder, err := NewEmbedder(provider, EmbedderConfig{Dimension: testDim, Concurrency: 2})
	require.NoError(t, err)
	t.Cleanup(embedder.Close)

	cfg := defaultTestConfig()
	if mutate != nil {
		mutate(cfg)
	}

	mem := cache.NewMemoryStore()
	searchCache := NewSearchCache(mem, &SearchCacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: "test:search:"})
	m := metrics.New()

	svc := NewVectorService(factory, embedder, NewEstimateCounter(), searchCache, nil, cfg).WithMetrics(m)
	return &testEnv{svc: svc, factory: factory, provider: provider, cache: mem, metrics: m}
}

func (e *testEnv) createDocument(t *testing.T, org string) *model.Document {
	t.Helper()
	doc, err := e.svc.CreateDocument(context.Background(), OrganizationContext{OrganizationID: org}, &CreateDocumentRequest{
		Title:        "退款政策",
		Filename:     "refund.md",
		ProductID:    "prod-1",
		DocumentType: "policy",
	})
	require.NoError(t, err)
	return doc
}

func ptr[T any](v T) *T { return &v }
