package biz

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/kart-io/docvector/internal/docvector/metrics"
	"github.com/kart-io/docvector/internal/docvector/store"
	"github.com/kart-io/docvector/internal/model"
	"github.com/kart-io/docvector/internal/pkg/textutil"
	"github.com/kart-io/docvector/pkg/errors"
	"github.com/kart-io/docvector/pkg/infra/tracing"
	"github.com/kart-io/docvector/pkg/llm/resilience"
	options "github.com/kart-io/docvector/pkg/options/vector"
)

const tracerName = "docvector/biz"

// errorMessageLimit 写入 documents.error_message 的最大字符数。
const errorMessageLimit = 1000

// 分页默认值
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service 定义文档向量化服务接口。
type Service interface {
	// CreateDocument 登记文档元数据。
	CreateDocument(ctx context.Context, org OrganizationContext, req *CreateDocumentRequest) (*model.Document, error)
	// GetDocument 获取组织可见的文档。
	GetDocument(ctx context.Context, org OrganizationContext, id string) (*model.Document, error)
	// ListDocuments 分页列出组织可见的文档。
	ListDocuments(ctx context.Context, org OrganizationContext, req *ListDocumentsRequest) (*DocumentList, error)
	// DeleteDocument 删除文档及其全部分块。
	DeleteDocument(ctx context.Context, org OrganizationContext, id string) error
	// ListChunks 按序号列出文档分块。
	ListChunks(ctx context.Context, org OrganizationContext, id string) ([]*model.Chunk, error)
	// ProcessDocumentForVector 分块、生成向量并替换文档的分块集合。
	ProcessDocumentForVector(ctx context.Context, org OrganizationContext, id, text string, opts *ProcessOptions) (*ProcessResult, error)
	// SearchSimilarChunks 按余弦相似度检索分块。
	SearchSimilarChunks(ctx context.Context, org OrganizationContext, req *SearchRequest) (*SearchResponse, error)
	// Stats 返回运行统计。
	Stats(ctx context.Context, org OrganizationContext) (*Stats, error)
}

// BreakerReporter 报告上游熔断器状态。
type BreakerReporter interface {
	Stats() resilience.BreakerStats
}

// ServiceConfig 服务默认参数。
type ServiceConfig struct {
	Chunk          ChunkOptions
	OnChunkFailure string
	TopK           int
	MaxTopK        int
	ScoreThreshold float64
	SearchTimeout  time.Duration
}

// ServiceConfigFromOptions 由 vector 配置组构造服务参数。
func ServiceConfigFromOptions(o *options.Options) *ServiceConfig {
	return &ServiceConfig{
		Chunk: ChunkOptions{
			ChunkSize:                o.ChunkSize,
			ChunkOverlap:             o.ChunkOverlap,
			PreserveParagraphs:       o.PreserveParagraphs,
			SplitOversizedParagraphs: o.SplitOversizedParagraphs,
		},
		OnChunkFailure: o.OnChunkFailure,
		TopK:           o.TopK,
		MaxTopK:        o.MaxTopK,
		ScoreThreshold: o.ScoreThreshold,
		SearchTimeout:  o.SearchTimeout,
	}
}

// VectorService 组合分块、向量生成和存储，提供完整的向量化服务。
type VectorService struct {
	factory  store.Factory
	embedder *Embedder
	tokens   *TokenCounter
	cache    *SearchCache
	breaker  BreakerReporter
	config   *ServiceConfig
	metrics  *metrics.VectorMetrics
}

var _ Service = (*VectorService)(nil)

// NewVectorService 创建向量化服务实例。cache 与 breaker 可为 nil。
func NewVectorService(
	factory store.Factory,
	embedder *Embedder,
	tokens *TokenCounter,
	cache *SearchCache,
	breaker BreakerReporter,
	config *ServiceConfig,
) *VectorService {
	if tokens == nil {
		tokens = NewEstimateCounter()
	}
	return &VectorService{
		factory:  factory,
		embedder: embedder,
		tokens:   tokens,
		cache:    cache,
		breaker:  breaker,
		config:   config,
		metrics:  metrics.GetVectorMetrics(),
	}
}

// WithMetrics 替换指标收集器，用于测试隔离。
func (s *VectorService) WithMetrics(m *metrics.VectorMetrics) *VectorService {
	s.metrics = m
	return s
}

// CreateDocument 登记文档元数据。
func (s *VectorService) CreateDocument(ctx context.Context, org OrganizationContext, req *CreateDocumentRequest) (*model.Document, error) {
	if err := org.Require(); err != nil {
		return nil, err
	}

	doc := &model.Document{
		OrganizationID: org.OrganizationID,
		ProductID:      req.ProductID,
		Title:          strings.TrimSpace(req.Title),
		Filename:       strings.TrimSpace(req.Filename),
		DocumentType:   req.DocumentType,
		MimeType:       req.MimeType,
		StoragePath:    req.StoragePath,
		Size:           req.Size,
		Status:         model.DocumentStatusUploaded,
	}
	if err := s.factory.Documents().Create(ctx, doc); err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	logger.Infow("Document created",
		"document_id", doc.ID,
		"organization_id", doc.OrganizationID,
		"filename", doc.Filename,
	)
	return doc, nil
}

// GetDocument 获取组织可见的文档。
func (s *VectorService) GetDocument(ctx context.Context, org OrganizationContext, id string) (*model.Document, error) {
	return s.loadDocument(ctx, org, id)
}

func (s *VectorService) loadDocument(ctx context.Context, org OrganizationContext, id string) (*model.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.ErrDocumentNotFound
	}

	doc, err := s.factory.Documents().Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.ErrDocumentNotFound.WithMessagef("document %s not found", id)
		}
		return nil, errors.ErrDatabase.WithCause(err)
	}
	if !doc.VisibleTo(org.OrganizationID) {
		return nil, errors.ErrDocumentNotFound.WithMessagef("document %s not found", id)
	}
	return doc, nil
}

// ListDocuments 分页列出组织可见的文档。
func (s *VectorService) ListDocuments(ctx context.Context, org OrganizationContext, req *ListDocumentsRequest) (*DocumentList, error) {
	if req == nil {
		req = &ListDocumentsRequest{}
	}
	page := max(req.Page, 1)
	size := req.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	total, docs, err := s.factory.Documents().List(ctx, store.ListOptions{
		OrganizationID: org.OrganizationID,
		ProductID:      req.ProductID,
		DocumentType:   req.DocumentType,
		Status:         req.Status,
		Offset:         (page - 1) * size,
		Limit:          size,
	})
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	if docs == nil {
		docs = []*model.Document{}
	}

	return &DocumentList{Items: docs, Total: total, Page: page, PageSize: size}, nil
}

// DeleteDocument 删除文档及其全部分块。
func (s *VectorService) DeleteDocument(ctx context.Context, org OrganizationContext, id string) error {
	if _, err := s.loadDocument(ctx, org, id); err != nil {
		return err
	}

	if err := s.factory.Documents().Delete(ctx, id); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return errors.ErrDocumentNotFound.WithMessagef("document %s not found", id)
		}
		return errors.ErrStorageFailure.WithCause(err)
	}
	s.cache.Invalidate(ctx)

	logger.Infow("Document deleted", "document_id", id, "organization_id", org.OrganizationID)
	return nil
}

// ListChunks 按序号列出文档分块。
func (s *VectorService) ListChunks(ctx context.Context, org OrganizationContext, id string) ([]*model.Chunk, error) {
	if _, err := s.loadDocument(ctx, org, id); err != nil {
		return nil, err
	}

	chunks, err := s.factory.Chunks().ListByDocument(ctx, id)
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	if chunks == nil {
		chunks = []*model.Chunk{}
	}
	return chunks, nil
}

// resolve 合并请求覆盖项与服务默认值。
func (s *VectorService) resolve(opts *ProcessOptions) (ChunkOptions, string, error) {
	chunkOpts := s.config.Chunk
	policy := s.config.OnChunkFailure

	if opts != nil {
		if opts.ChunkSize != nil {
			chunkOpts.ChunkSize = *opts.ChunkSize
		}
		if opts.ChunkOverlap != nil {
			chunkOpts.ChunkOverlap = *opts.ChunkOverlap
		}
		if opts.PreserveParagraphs != nil {
			chunkOpts.PreserveParagraphs = *opts.PreserveParagraphs
		}
		if opts.SplitOversizedParagraphs != nil {
			chunkOpts.SplitOversizedParagraphs = *opts.SplitOversizedParagraphs
		}
		if opts.OnChunkFailure != "" {
			policy = opts.OnChunkFailure
		}
	}

	if err := chunkOpts.Validate(); err != nil {
		return chunkOpts, policy, err
	}
	if policy != options.FailurePolicySkip && policy != options.FailurePolicyAbort {
		return chunkOpts, policy, errors.ErrInvalidConfiguration.WithMessagef("on_chunk_failure must be %q or %q, got %q",
			options.FailurePolicySkip, options.FailurePolicyAbort, policy)
	}
	return chunkOpts, policy, nil
}

// ProcessDocumentForVector 分块、生成向量并替换文档的分块集合。
// 返回的 ProcessResult 在失败时同样包含每个分块的结果。
func (s *VectorService) ProcessDocumentForVector(
	ctx context.Context,
	org OrganizationContext,
	id, text string,
	opts *ProcessOptions,
) (*ProcessResult, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "ProcessDocumentForVector")
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		attribute.String(tracing.DocumentID, id),
		attribute.String(tracing.OrganizationID, org.OrganizationID),
	)

	// 1. 校验参数
	chunkOpts, policy, err := s.resolve(opts)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		tracing.RecordError(ctx, errors.ErrEmptyDocument)
		return nil, errors.ErrEmptyDocument
	}

	// 2. 加载文档并标记为处理中
	doc, err := s.loadDocument(ctx, org, id)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	result := &ProcessResult{DocumentID: doc.ID, Chunks: []ChunkOutcome{}}
	if err := s.factory.Documents().UpdateStatus(ctx, doc.ID, store.StatusUpdate{Status: model.DocumentStatusProcessing}); err != nil {
		return result, s.fail(ctx, doc, result, start, errors.ErrStorageFailure.WithCause(err))
	}

	// 3. 分块、计数并生成向量
	raw, err := Chunk(text, chunkOpts)
	if err != nil {
		return result, s.fail(ctx, doc, result, start, err)
	}
	for i := range raw {
		raw[i].Metadata.TokenCount = s.tokens.Count(raw[i].Content)
		result.TotalTokens += raw[i].Metadata.TokenCount
	}
	result.TotalChunks = len(raw)

	embedded := s.embedder.EmbedChunks(ctx, raw)
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.collectOutcomes(result, raw, embedded)
		return result, s.fail(ctx, doc, result, start, errors.ErrCatastrophicFailure.WithCause(ctxErr))
	}
	s.collectOutcomes(result, raw, embedded)

	// 4. abort 策略下任一分块失败则不触碰已存储的分块
	if policy == options.FailurePolicyAbort && result.FailedChunks > 0 {
		return result, s.fail(ctx, doc, result, start, errors.ErrEmbeddingFailed.WithMessagef(
			"%d of %d chunks failed to embed", result.FailedChunks, result.TotalChunks))
	}

	// 5. 事务内替换分块
	chunks := make([]*model.Chunk, len(raw))
	for i, rc := range raw {
		c := &model.Chunk{
			DocumentID: doc.ID,
			ChunkIndex: rc.Index,
			Content:    rc.Content,
			TokenCount: rc.Metadata.TokenCount,
		}
		c.Metadata = datatypes.NewJSONType(rc.Metadata)
		c.SetVector(embedded[i].Vector)
		chunks[i] = c
	}

	replaced, err := s.factory.Chunks().ReplaceChunks(ctx, doc.ID, chunks, store.ReplaceOptions{
		TolerateFailures: policy == options.FailurePolicySkip,
	})
	if err != nil {
		s.markStorageFailed(result, err)
		return result, s.fail(ctx, doc, result, start, err)
	}
	s.applyReplace(result, replaced)

	// 6. 标记完成
	now := time.Now()
	stored := len(replaced.Stored)
	if err := s.factory.Documents().UpdateStatus(ctx, doc.ID, store.StatusUpdate{
		Status:      model.DocumentStatusCompleted,
		ChunkCount:  &stored,
		ProcessedAt: &now,
	}); err != nil {
		return result, s.fail(ctx, doc, result, start, errors.ErrStorageFailure.WithCause(err))
	}
	s.cache.Invalidate(ctx)

	result.Success = true
	s.metrics.RecordProcessing(metrics.ProcessRecord{
		Stored:   result.StoredChunks,
		Embedded: result.EmbeddedChunks,
		Failed:   result.FailedChunks,
		Tokens:   result.TotalTokens,
		Duration: time.Since(start),
	})

	logger.Infow("Document vectorized",
		"document_id", doc.ID,
		"organization_id", doc.OrganizationID,
		"total_chunks", result.TotalChunks,
		"stored_chunks", result.StoredChunks,
		"embedded_chunks", result.EmbeddedChunks,
		"failed_chunks", result.FailedChunks,
		"total_tokens", result.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// collectOutcomes 根据向量结果填充分块结果。
func (s *VectorService) collectOutcomes(result *ProcessResult, raw []RawChunk, embedded []EmbeddingOutcome) {
	result.Chunks = make([]ChunkOutcome, len(raw))
	result.EmbeddedChunks, result.FailedChunks = 0, 0

	for i, rc := range raw {
		o := ChunkOutcome{
			Index:      rc.Index,
			Content:    rc.Content,
			Metadata:   rc.Metadata,
			TokenCount: rc.Metadata.TokenCount,
			Outcome:    OutcomeOK,
		}
		if err := embedded[i].Err; err != nil {
			o.Outcome = OutcomeEmbeddingError
			o.Error = err.Error()
			result.FailedChunks++
		} else {
			result.EmbeddedChunks++
		}
		result.Chunks[i] = o
	}
}

// applyReplace 将写入结果映射回分块结果。Failed 以输入位置为键。
func (s *VectorService) applyReplace(result *ProcessResult, replaced *store.ReplaceResult) {
	next := 0
	for i := range result.Chunks {
		o := &result.Chunks[i]
		if err, failed := replaced.Failed[i]; failed {
			if o.Outcome == OutcomeOK {
				result.EmbeddedChunks--
				result.FailedChunks++
			}
			o.Outcome = OutcomeStorageError
			o.Error = err.Error()
			continue
		}
		if next < len(replaced.Stored) {
			o.ChunkID = replaced.Stored[next].ID
			next++
		}
	}
	result.StoredChunks = len(replaced.Stored)

	for i, err := range replaced.Failed {
		logger.Warnw("Failed to store chunk",
			"document_id", result.DocumentID,
			"chunk_index", i,
			"error", err.Error(),
		)
	}
}

// markStorageFailed 整体写入失败时，将所有成功生成向量的分块标记为存储失败。
func (s *VectorService) markStorageFailed(result *ProcessResult, err error) {
	for i := range result.Chunks {
		o := &result.Chunks[i]
		if o.Outcome != OutcomeOK {
			continue
		}
		o.Outcome = OutcomeStorageError
		o.Error = err.Error()
		result.EmbeddedChunks--
		result.FailedChunks++
	}
	result.StoredChunks = 0
}

// fail 将文档标记为失败并返回最终错误。
// 非 Errno 错误统一视为 ErrCatastrophicFailure。
func (s *VectorService) fail(ctx context.Context, doc *model.Document, result *ProcessResult, start time.Time, err error) error {
	var errno *errors.Errno
	if !stderrors.As(err, &errno) {
		err = errors.ErrCatastrophicFailure.WithCause(err)
	}

	result.Success = false
	result.Error = err.Error()
	tracing.RecordError(ctx, err)

	// 请求取消后仍需写入失败状态
	statusCtx := context.WithoutCancel(ctx)
	if uerr := s.factory.Documents().UpdateStatus(statusCtx, doc.ID, store.StatusUpdate{
		Status:       model.DocumentStatusFailed,
		ErrorMessage: textutil.TruncateString(err.Error(), errorMessageLimit),
	}); uerr != nil {
		logger.Errorw("Failed to mark document failed",
			"document_id", doc.ID,
			"error", uerr.Error(),
		)
	}

	s.metrics.RecordProcessing(metrics.ProcessRecord{
		Stored:   result.StoredChunks,
		Embedded: result.EmbeddedChunks,
		Failed:   result.FailedChunks,
		Tokens:   result.TotalTokens,
		Duration: time.Since(start),
		Err:      err,
	})

	logger.Errorw("Document vectorization failed",
		"document_id", doc.ID,
		"organization_id", doc.OrganizationID,
		"total_chunks", result.TotalChunks,
		"failed_chunks", result.FailedChunks,
		"error", err.Error(),
	)
	return err
}

// SearchSimilarChunks 按余弦相似度检索分块，阈值包含边界。
func (s *VectorService) SearchSimilarChunks(ctx context.Context, org OrganizationContext, req *SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "SearchSimilarChunks")
	defer span.End()
	tracing.AddSpanAttributes(ctx, attribute.String(tracing.OrganizationID, org.OrganizationID))

	resp, cacheHit, err := s.search(ctx, org, req)
	timeout := errors.IsCode(err, errors.ErrSearchTimeout.Code)
	results := 0
	if resp != nil {
		results = resp.TotalResults
	}
	s.metrics.RecordSearch(time.Since(start), results, cacheHit, timeout, err)

	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	tracing.AddSpanAttributes(ctx,
		attribute.Int("docvector.search.results", results),
		attribute.Bool("docvector.search.cache_hit", cacheHit),
	)
	return resp, nil
}

func (s *VectorService) search(ctx context.Context, org OrganizationContext, req *SearchRequest) (*SearchResponse, bool, error) {
	// 1. 校验参数
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, false, errors.ErrEmptyQuery
	}
	k := req.K
	if k <= 0 {
		k = s.config.TopK
	}
	if s.config.MaxTopK > 0 {
		k = min(k, s.config.MaxTopK)
	}
	threshold := s.config.ScoreThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if threshold < -1 || threshold > 1 {
		return nil, false, errors.ErrInvalidParam.WithMessagef("threshold must be between -1 and 1, got %g", threshold)
	}

	// 2. 查询缓存
	key := s.cache.Key(org, req, k, threshold)
	if cached := s.cache.Get(ctx, key); cached != nil {
		return cached, true, nil
	}

	searchCtx := ctx
	if s.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.config.SearchTimeout)
		defer cancel()
	}

	// 3. 生成查询向量，失败时整体失败
	vec, err := s.embedder.EmbedQuery(searchCtx, req.Query)
	if err != nil {
		if stderrors.Is(searchCtx.Err(), context.DeadlineExceeded) {
			return nil, false, errors.ErrSearchTimeout.WithCause(err)
		}
		return nil, false, err
	}

	// 4. 单条 SQL 完成排序与过滤
	rows, err := s.factory.Chunks().Search(searchCtx, store.SearchQuery{
		Vector:         vec,
		K:              k,
		Threshold:      threshold,
		OrganizationID: org.OrganizationID,
		ProductID:      req.ProductID,
		DocumentType:   req.DocumentType,
	})
	if err != nil {
		if stderrors.Is(searchCtx.Err(), context.DeadlineExceeded) {
			return nil, false, errors.ErrSearchTimeout.WithCause(err)
		}
		return nil, false, errors.ErrDatabase.WithCause(err)
	}
	if rows == nil {
		rows = []*model.SearchResult{}
	}

	resp := &SearchResponse{Results: rows, TotalResults: len(rows)}
	s.cache.Set(ctx, key, resp)
	return resp, false, nil
}

// Stats 返回运行统计。
func (s *VectorService) Stats(ctx context.Context, org OrganizationContext) (*Stats, error) {
	total, _, err := s.factory.Documents().List(ctx, store.ListOptions{OrganizationID: org.OrganizationID, Limit: 1})
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	stats := &Stats{
		Documents:     total,
		Metrics:       s.metrics.Snapshot(),
		EmbeddingPool: s.embedder.PoolStats(),
	}
	if s.breaker != nil {
		bs := s.breaker.Stats()
		stats.Breaker = &bs
	}
	return stats, nil
}
