// Package store persists documents and their vectorized chunks.
package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/docvector/internal/model"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// Factory defines the factory interface for creating stores.
type Factory interface {
	Documents() DocumentStore
	Chunks() ChunkStore
	Migrate(ctx context.Context, opts MigrateOptions) error
	Close() error
}

// DocumentStore defines the document storage interface.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, opts ListOptions) (int64, []*model.Document, error)
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error
	// Delete removes the document and all of its chunks in one transaction.
	Delete(ctx context.Context, id string) error
}

// ChunkStore defines the chunk storage interface.
type ChunkStore interface {
	// ReplaceChunks atomically swaps the chunk set of a document.
	ReplaceChunks(ctx context.Context, documentID string, chunks []*model.Chunk, opts ReplaceOptions) (*ReplaceResult, error)
	ListByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error)
	CountByDocument(ctx context.Context, documentID string) (int64, error)
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
	Search(ctx context.Context, q SearchQuery) ([]*model.SearchResult, error)
}

// ListOptions filters and paginates document listings.
type ListOptions struct {
	OrganizationID string
	ProductID      string
	DocumentType   string
	Status         string
	Offset         int
	Limit          int
}

// StatusUpdate carries the fields written by UpdateStatus.
// Nil pointers leave the column untouched.
type StatusUpdate struct {
	Status       string
	ErrorMessage string
	ChunkCount   *int
	ProcessedAt  *time.Time
}

// ReplaceOptions controls how insert failures are handled.
type ReplaceOptions struct {
	// TolerateFailures keeps the chunks that inserted successfully
	// instead of rolling back the whole replacement.
	TolerateFailures bool
}

// ReplaceResult reports the outcome of a committed replacement.
type ReplaceResult struct {
	// Stored is the new chunk set, indexed 0..len(Stored)-1.
	Stored []*model.Chunk
	// Failed maps the input position of each rejected chunk to its error.
	Failed map[int]error
}

// SearchQuery describes a similarity search.
type SearchQuery struct {
	Vector         []float32
	K              int
	Threshold      float64
	OrganizationID string
	ProductID      string
	DocumentType   string
}

// MigrateOptions controls schema migration.
type MigrateOptions struct {
	// Dimension pins the embedding column to vector(Dimension) on Postgres.
	Dimension int
	// CreateIndex creates an HNSW cosine index on the embedding column.
	CreateIndex bool
}
