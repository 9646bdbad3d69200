package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Chunk types.
const (
	ChunkTypeParagraph = "paragraph"
	ChunkTypeCharacter = "character"
)

// ChunkMetadata describes where a chunk came from in the source text.
// Offsets are measured in runes.
type ChunkMetadata struct {
	ChunkType   string `json:"chunk_type"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Length      int    `json:"length"`
	TokenCount  int    `json:"token_count"`
}

// Chunk is a persisted segment of a document and its embedding.
// A nil Embedding is stored as NULL and never matches a search.
type Chunk struct {
	ID         string                            `json:"id" gorm:"primaryKey;type:varchar(36);comment:分块ID"`
	DocumentID string                            `json:"document_id" gorm:"type:varchar(36);not null;uniqueIndex:uk_chunk_document_index,priority:1;comment:所属文档"`
	ChunkIndex int                               `json:"chunk_index" gorm:"not null;uniqueIndex:uk_chunk_document_index,priority:2;comment:分块序号"`
	Content    string                            `json:"content" gorm:"type:text;not null;comment:分块内容"`
	Metadata   datatypes.JSONType[ChunkMetadata] `json:"metadata" gorm:"comment:分块元数据"`
	TokenCount int                               `json:"token_count" gorm:"default:0;comment:token数量"`
	Embedding  *pgvector.Vector                  `json:"-" gorm:"type:vector;comment:向量"`
	CreatedAt  time.Time                         `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Chunk.
func (Chunk) TableName() string {
	return "document_chunks"
}

// BeforeCreate assigns an ID.
func (c *Chunk) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Embedded reports whether the chunk carries a vector.
func (c *Chunk) Embedded() bool {
	return c.Embedding != nil
}

// SetVector stores vec as the chunk embedding; nil clears it.
func (c *Chunk) SetVector(vec []float32) {
	if vec == nil {
		c.Embedding = nil
		return
	}
	v := pgvector.NewVector(vec)
	c.Embedding = &v
}

// SearchResult is a chunk matched by a similarity query.
type SearchResult struct {
	ChunkID          string        `json:"chunk_id"`
	DocumentID       string        `json:"document_id"`
	ChunkIndex       int           `json:"chunk_index"`
	Content          string        `json:"content"`
	Metadata         ChunkMetadata `json:"metadata"`
	SimilarityScore  float64       `json:"similarity_score"`
	DocumentTitle    string        `json:"document_title"`
	DocumentFilename string        `json:"document_filename"`
	OrganizationID   string        `json:"organization_id"`
}
