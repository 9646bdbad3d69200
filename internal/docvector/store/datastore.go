package store

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"gorm.io/gorm"

	"github.com/kart-io/docvector/internal/model"
)

const dialectPostgres = "postgres"

// datastore implements the Factory interface on top of gorm.
type datastore struct {
	db *gorm.DB
}

var _ Factory = (*datastore)(nil)

// NewFactory returns a Factory backed by db.
// The caller keeps ownership of the connection.
func NewFactory(db *gorm.DB) Factory {
	return &datastore{db: db}
}

// Documents returns the document store.
func (ds *datastore) Documents() DocumentStore {
	return newDocuments(ds.db)
}

// Chunks returns the chunk store.
func (ds *datastore) Chunks() ChunkStore {
	return newChunks(ds.db)
}

// Migrate creates the schema. On Postgres it also installs the vector
// extension, pins the embedding dimension and optionally builds the HNSW index.
func (ds *datastore) Migrate(ctx context.Context, opts MigrateOptions) error {
	db := ds.db.WithContext(ctx)
	pg := isPostgres(db)

	if pg {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create vector extension: %w", err)
		}
	}

	if err := db.AutoMigrate(&model.Document{}, &model.Chunk{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if !pg {
		return nil
	}

	if opts.Dimension > 0 {
		sql := fmt.Sprintf("ALTER TABLE document_chunks ALTER COLUMN embedding TYPE vector(%d)", opts.Dimension)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("set embedding dimension: %w", err)
		}
	}
	if opts.CreateIndex {
		const sql = "CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks USING hnsw (embedding vector_cosine_ops)"
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("create hnsw index: %w", err)
		}
	}

	logger.Infow("Database schema migrated",
		"dimension", opts.Dimension,
		"hnsw_index", opts.CreateIndex,
	)
	return nil
}

// Close closes the factory. The gorm connection is owned by the caller.
func (ds *datastore) Close() error {
	return nil
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == dialectPostgres
}

// lockDocument serializes writers of one document for the rest of tx.
// Other dialects rely on their own transaction isolation.
func lockDocument(tx *gorm.DB, documentID string) error {
	if !isPostgres(tx) {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", documentID).Error
}
