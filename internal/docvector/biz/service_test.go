package biz

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docvector/internal/model"
	"github.com/kart-io/docvector/pkg/errors"
)

var orgA = OrganizationContext{OrganizationID: "org-a"}

func paragraphs(n int) []string {
	out := make([]string, n)
	for i := range out {
		// 每段 50 字符，chunk_size=80 时各自成块
		out[i] = strings.Repeat(string(rune('a'+i)), 50)
	}
	return out
}

func TestProcessDocumentTwoParagraphs(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doc := env.createDocument(t, "org-a")

	text := strings.Join(paragraphs(2), "\n\n")
	result, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, text, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalChunks, "两段各 50 字符应得到 2 个分块")
	assert.Equal(t, 2, result.StoredChunks)
	assert.Equal(t, 2, result.EmbeddedChunks)
	assert.Zero(t, result.FailedChunks)
	assert.Positive(t, result.TotalTokens)
	for i, c := range result.Chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, OutcomeOK, c.Outcome)
		assert.NotEmpty(t, c.ChunkID)
	}

	got, err := env.svc.GetDocument(ctx, orgA, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusCompleted, got.Status)
	assert.Equal(t, 2, got.ChunkCount)
	assert.NotNil(t, got.ProcessedAt)

	chunks, err := env.svc.ListChunks(ctx, orgA, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex, "分块序号应连续")
		assert.True(t, c.Embedded())
	}

	snap := env.metrics.Snapshot().Processing
	assert.Equal(t, uint64(1), snap.DocumentsProcessed)
	assert.Equal(t, uint64(2), snap.ChunksStored)
}

func TestProcessDocumentIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doc := env.createDocument(t, "org-a")
	text := strings.Join(paragraphs(3), "\n\n")

	first, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, text, nil)
	require.NoError(t, err)
	second, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, text, nil)
	require.NoError(t, err)

	assert.Equal(t, first.TotalChunks, second.TotalChunks)

	chunks, err := env.svc.ListChunks(ctx, orgA, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, first.TotalChunks, "重复处理应覆盖而不是追加")
	for i, c := range chunks {
		assert.Equal(t, second.Chunks[i].Content, c.Content)
		assert.Equal(t, second.Chunks[i].ChunkID, c.ID)
	}
}

func TestProcessDocumentSkipPolicy(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doc := env.createDocument(t, "org-a")

	env.provider.setFailOn(func(text string) bool { return strings.HasPrefix(text, "bbb") })
	text := strings.Join(paragraphs(3), "\n\n")

	result, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, text, &ProcessOptions{ChunkOverlap: ptr(0)})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.TotalChunks)
	assert.Equal(t, 3, result.StoredChunks, "向量失败的分块仍应写入")
	assert.Equal(t, 2, result.EmbeddedChunks)
	assert.Equal(t, 1, result.FailedChunks)
	assert.Equal(t, OutcomeEmbeddingError, result.Chunks[1].Outcome)
	assert.NotEmpty(t, result.Chunks[1].Error)

	chunks, err := env.svc.ListChunks(ctx, orgA, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.True(t, chunks[0].Embedded())
	assert.False(t, chunks[1].Embedded(), "失败分块的向量应为 NULL")
	assert.True(t, chunks[2].Embedded())
}

func TestProcessDocumentProviderPanic(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doc := env.createDocument(t, "org-a")

	env.provider.setPanicOn(func(text string) bool { return strings.HasPrefix(text, "bbb") })
	text := strings.Join(paragraphs(3), "\n\n")

	result, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, text, &ProcessOptions{ChunkOverlap: ptr(0)})
	require.NoError(t, err)

	assert.Equal(t, 2, result.EmbeddedChunks)
	assert.Equal(t, 1, result.FailedChunks)
	assert.Equal(t, OutcomeEmbeddingError, result.Chunks[1].Outcome)
	assert.NotEmpty(t, result.Chunks[1].Error)
}

func TestProcessDocumentAbortPolicy(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doc := env.createDocument(t, "org-a")
	noOverlap := &ProcessOptions{ChunkOverlap: ptr(0)}

	good := strings.Join(paragraphs(2), "\n\n")
	_, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, good, noOverlap)
	require.NoError(t, err)

	env.provider.setFailOn(func(text string) bool { return strings.HasPrefix(text, "ccc") })
	bad := strings.Join(paragraphs(3), "\n\n")
	result, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, bad, &ProcessOptions{
		ChunkOverlap:   ptr(0),
		OnChunkFailure: "abort",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEmbeddingFailed)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Len(t, result.Chunks, 3, "失败时仍返回每个分块的结果")

	chunks, err := env.svc.ListChunks(ctx, orgA, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2, "abort 策略下原分块集合保持不变")
	assert.Equal(t, strings.Repeat("a", 50), chunks[0].Content)

	got, err := env.svc.GetDocument(ctx, orgA, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.Equal(t, uint64(1), env.metrics.Snapshot().Processing.DocumentsFailed)
}

func TestProcessDocumentValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doc := env.createDocument(t, "org-a")

	t.Run("空文本", func(t *testing.T) {
		_, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, "  \n\n ", nil)
		assert.ErrorIs(t, err, errors.ErrEmptyDocument)

		got, err := env.svc.GetDocument(ctx, orgA, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DocumentStatusUploaded, got.Status, "参数错误不应改变文档状态")
	})

	t.Run("块大小为零", func(t *testing.T) {
		_, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, "text", &ProcessOptions{ChunkSize: ptr(0)})
		assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)
	})

	t.Run("负重叠", func(t *testing.T) {
		_, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, "text", &ProcessOptions{ChunkOverlap: ptr(-1)})
		assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)
	})

	t.Run("重叠不小于块大小", func(t *testing.T) {
		_, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, "text", &ProcessOptions{ChunkSize: ptr(10), ChunkOverlap: ptr(10)})
		assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)
	})

	t.Run("未知失败策略", func(t *testing.T) {
		_, err := env.svc.ProcessDocumentForVector(ctx, orgA, doc.ID, "text", &ProcessOptions{OnChunkFailure: "retry"})
		assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)
	})

	t.Run("文档不存在", func(t *testing.T) {
		_, err := env.svc.ProcessDocumentForVector(ctx, orgA, "missing", "text", nil)
		assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
	})

	t.Run("其它组织不可见", func(t *testing.T) {
		_, err := env.svc.ProcessDocumentForVector(ctx, OrganizationContext{OrganizationID: "org-b"}, doc.ID, "text", nil)
		assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
	})
}

// seedSearchable 写入两个分块：a 段向量为 e0，b 段向量为 e1。
func seedSearchable(t *testing.T, env *testEnv, org string) *model.Document {
	t.Helper()
	p := paragraphs(2)
	env.provider.set(p[0], axis(0))
	env.provider.set(p[1], axis(1))

	doc := env.createDocument(t, org)
	_, err := env.svc.ProcessDocumentForVector(context.Background(), OrganizationContext{OrganizationID: org}, doc.ID,
		strings.Join(p, "\n\n"), &ProcessOptions{ChunkOverlap: ptr(0)})
	require.NoError(t, err)
	return doc
}

func TestSearchSimilarChunks(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doc := seedSearchable(t, env, "org-a")
	env.provider.set("what is a", axis(0))

	t.Run("默认阈值", func(t *testing.T) {
		resp, err := env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "what is a"})
		require.NoError(t, err)
		require.Equal(t, 1, resp.TotalResults)
		r := resp.Results[0]
		assert.Equal(t, doc.ID, r.DocumentID)
		assert.Equal(t, 0, r.ChunkIndex)
		assert.Equal(t, "退款政策", r.DocumentTitle)
		assert.Equal(t, "refund.md", r.DocumentFilename)
		assert.Equal(t, "org-a", r.OrganizationID)
		assert.InDelta(t, 1.0, r.SimilarityScore, 1e-6)
	})

	t.Run("阈值包含边界", func(t *testing.T) {
		resp, err := env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "what is a", Threshold: ptr(1.0)})
		require.NoError(t, err)
		assert.Equal(t, 1, resp.TotalResults)
	})

	t.Run("略高于得分的阈值排除该分块", func(t *testing.T) {
		tilted := make([]float32, testDim)
		tilted[0], tilted[1] = 1, 1
		env.provider.set("tilted", tilted)

		all, err := env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "tilted", Threshold: ptr(-1.0)})
		require.NoError(t, err)
		require.NotEmpty(t, all.Results)
		top := all.Results[0].SimilarityScore
		require.Less(t, top, 1.0)

		at, err := env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "tilted", Threshold: ptr(top)})
		require.NoError(t, err)
		assert.NotZero(t, at.TotalResults, "得分等于阈值时应包含")

		above, err := env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "tilted", Threshold: ptr(math.Nextafter(top, 2))})
		require.NoError(t, err)
		assert.Zero(t, above.TotalResults, "阈值高出一个 epsilon 时应排除")
	})

	t.Run("结果按相似度降序", func(t *testing.T) {
		resp, err := env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "what is a", Threshold: ptr(-1.0)})
		require.NoError(t, err)
		require.Equal(t, 2, resp.TotalResults)
		for i := 1; i < len(resp.Results); i++ {
			assert.GreaterOrEqual(t, resp.Results[i-1].SimilarityScore, resp.Results[i].SimilarityScore)
		}
		for _, r := range resp.Results {
			assert.GreaterOrEqual(t, r.SimilarityScore, -1.0)
		}
	})

	t.Run("K 限制结果数", func(t *testing.T) {
		resp, err := env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "what is a", K: 1, Threshold: ptr(-1.0)})
		require.NoError(t, err)
		assert.Equal(t, 1, resp.TotalResults)
	})

	t.Run("过滤条件", func(t *testing.T) {
		resp, err := env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "what is a", Threshold: ptr(-1.0), DocumentType: "faq"})
		require.NoError(t, err)
		assert.Zero(t, resp.TotalResults)
	})
}

func TestSearchNoResultsIsNotAnError(t *testing.T) {
	env := newTestEnv(t, nil)
	seedSearchable(t, env, "org-a")
	env.provider.set("foo", axis(2))

	resp, err := env.svc.SearchSimilarChunks(context.Background(), orgA, &SearchRequest{Query: "foo", K: 5, Threshold: ptr(0.9)})
	require.NoError(t, err)
	require.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.TotalResults)
	assert.Equal(t, uint64(1), env.metrics.Snapshot().Search.Empty)
}

func TestSearchOrganizationScope(t *testing.T) {
	env := newTestEnv(t, nil)
	seedSearchable(t, env, "org-b")
	env.provider.set("what is a", axis(0))

	resp, err := env.svc.SearchSimilarChunks(context.Background(), orgA, &SearchRequest{Query: "what is a"})
	require.NoError(t, err)
	assert.Zero(t, resp.TotalResults, "不应返回其它组织的分块")
}

func TestSearchValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "   "})
	assert.ErrorIs(t, err, errors.ErrEmptyQuery)

	_, err = env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "q", Threshold: ptr(1.5)})
	assert.ErrorIs(t, err, errors.ErrInvalidParam)

	assert.Zero(t, env.provider.Calls(), "参数错误时不应请求向量服务")
}

func TestSearchEmbeddingUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.provider.setFailOn(func(string) bool { return true })

	_, err := env.svc.SearchSimilarChunks(context.Background(), orgA, &SearchRequest{Query: "anything"})
	assert.ErrorIs(t, err, errors.ErrEmbeddingUnavailable)
	assert.Equal(t, uint64(1), env.metrics.Snapshot().Search.Errors)
}

func TestSearchTimeout(t *testing.T) {
	env := newTestEnv(t, func(cfg *ServiceConfig) { cfg.SearchTimeout = 20 * time.Millisecond })
	env.provider.setDelay(500 * time.Millisecond)

	_, err := env.svc.SearchSimilarChunks(context.Background(), orgA, &SearchRequest{Query: "slow"})
	assert.ErrorIs(t, err, errors.ErrSearchTimeout)
	assert.Equal(t, uint64(1), env.metrics.Snapshot().Search.Timeouts)
}

func TestSearchCacheInvalidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	seedSearchable(t, env, "org-a")
	env.provider.set("what is a", axis(0))

	_, err := env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "what is a"})
	require.NoError(t, err)
	calls := env.provider.Calls()

	resp, err := env.svc.SearchSimilarChunks(ctx, orgA, &SearchRequest{Query: "what is a"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalResults)
	assert.Equal(t, calls, env.provider.Calls(), "命中缓存时不应请求向量服务")
	assert.Equal(t, uint64(1), env.metrics.Snapshot().Search.CacheHits)
	assert.Equal(t, 1, env.cache.Len())

	// 处理新文档后缓存整体失效
	other := env.createDocument(t, "org-a")
	_, err = env.svc.ProcessDocumentForVector(ctx, orgA, other.ID, "new content", nil)
	require.NoError(t, err)
	assert.Zero(t, env.cache.Len())
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doc := seedSearchable(t, env, "org-a")

	err := env.svc.DeleteDocument(ctx, OrganizationContext{OrganizationID: "org-b"}, doc.ID)
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)

	require.NoError(t, env.svc.DeleteDocument(ctx, orgA, doc.ID))

	_, err = env.svc.GetDocument(ctx, orgA, doc.ID)
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
	n, err := env.factory.Chunks().CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "删除文档应同时删除分块")
}

func TestCreateAndListDocuments(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.CreateDocument(ctx, OrganizationContext{}, &CreateDocumentRequest{Title: "t", Filename: "f"})
	assert.ErrorIs(t, err, errors.ErrOrganizationRequired)

	for i := 0; i < 3; i++ {
		env.createDocument(t, "org-a")
	}
	env.createDocument(t, "org-b")

	list, err := env.svc.ListDocuments(ctx, orgA, &ListDocumentsRequest{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), list.Total)
	assert.Len(t, list.Items, 2)

	list, err = env.svc.ListDocuments(ctx, orgA, &ListDocumentsRequest{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)

	all, err := env.svc.ListDocuments(ctx, OrganizationContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Total)
	assert.Equal(t, defaultPageSize, all.PageSize)

	stats, err := env.svc.Stats(ctx, orgA)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Documents)
	assert.Nil(t, stats.Breaker)
	assert.Equal(t, 2, stats.EmbeddingPool.Capacity)
}
