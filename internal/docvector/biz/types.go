package biz

import (
	"github.com/kart-io/docvector/internal/docvector/metrics"
	"github.com/kart-io/docvector/internal/model"
	"github.com/kart-io/docvector/pkg/errors"
	"github.com/kart-io/docvector/pkg/infra/pool"
	"github.com/kart-io/docvector/pkg/llm/resilience"
)

// OrganizationContext 请求所属组织，在请求入口解析一次后逐层传递。
// 空 OrganizationID 表示不按组织过滤。
type OrganizationContext struct {
	OrganizationID string
}

// Scoped 报告是否按组织过滤。
func (o OrganizationContext) Scoped() bool {
	return o.OrganizationID != ""
}

// Require 要求必须携带组织标识。
func (o OrganizationContext) Require() error {
	if !o.Scoped() {
		return errors.ErrOrganizationRequired
	}
	return nil
}

// Chunk outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeEmbeddingError = "embedding_error"
	OutcomeStorageError   = "storage_error"
)

// ProcessOptions 单次处理的可选覆盖项，未设置的字段取服务默认值。
// 合并后的配置由 ProcessDocumentForVector 统一校验。
type ProcessOptions struct {
	ChunkSize                *int   `json:"chunk_size,omitempty"`
	ChunkOverlap             *int   `json:"chunk_overlap,omitempty"`
	PreserveParagraphs       *bool  `json:"preserve_paragraphs,omitempty"`
	SplitOversizedParagraphs *bool  `json:"split_oversized_paragraphs,omitempty"`
	OnChunkFailure           string `json:"on_chunk_failure,omitempty"`
}

// ChunkOutcome 单个分块的处理结果。
type ChunkOutcome struct {
	Index      int                 `json:"index"`
	ChunkID    string              `json:"chunk_id,omitempty"`
	Content    string              `json:"content"`
	Metadata   model.ChunkMetadata `json:"metadata"`
	TokenCount int                 `json:"token_count"`
	Outcome    string              `json:"outcome"`
	Error      string              `json:"error,omitempty"`
}

// ProcessResult 文档向量化结果。
type ProcessResult struct {
	Success        bool           `json:"success"`
	DocumentID     string         `json:"document_id"`
	Chunks         []ChunkOutcome `json:"chunks"`
	TotalChunks    int            `json:"total_chunks"`
	TotalTokens    int            `json:"total_tokens"`
	StoredChunks   int            `json:"stored_chunks"`
	EmbeddedChunks int            `json:"embedded_chunks"`
	FailedChunks   int            `json:"failed_chunks"`
	Error          string         `json:"error,omitempty"`
}

// SearchRequest 相似度检索请求。
type SearchRequest struct {
	Query        string   `json:"query"`
	K            int      `json:"k,omitempty"`
	Threshold    *float64 `json:"threshold,omitempty"`
	ProductID    string   `json:"product_id,omitempty"`
	DocumentType string   `json:"document_type,omitempty"`
}

// SearchResponse 相似度检索结果，按相似度降序。
type SearchResponse struct {
	Results      []*model.SearchResult `json:"results"`
	TotalResults int                   `json:"total_results"`
}

// CreateDocumentRequest 创建文档请求。
type CreateDocumentRequest struct {
	Title        string `json:"title" validate:"required,notblank,max=255"`
	Filename     string `json:"filename" validate:"required,notblank,max=255"`
	ProductID    string `json:"product_id" validate:"max=64"`
	DocumentType string `json:"document_type" validate:"max=64"`
	MimeType     string `json:"mime_type" validate:"max=128"`
	StoragePath  string `json:"storage_path" validate:"max=512"`
	Size         int64  `json:"size" validate:"gte=0"`
}

// ListDocumentsRequest 文档列表请求。
type ListDocumentsRequest struct {
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
	ProductID    string `form:"product_id"`
	DocumentType string `form:"document_type"`
	Status       string `form:"status"`
}

// DocumentList 分页文档列表。
type DocumentList struct {
	Items    []*model.Document `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// Stats 服务运行统计。
type Stats struct {
	Documents     int64                    `json:"documents"`
	Metrics       metrics.Snapshot         `json:"metrics"`
	EmbeddingPool pool.Stats               `json:"embedding_pool"`
	Breaker       *resilience.BreakerStats `json:"breaker,omitempty"`
}
