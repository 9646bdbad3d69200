package store

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kart-io/docvector/internal/model"
	"github.com/kart-io/docvector/pkg/errors"
)

type chunks struct {
	db *gorm.DB
}

func newChunks(db *gorm.DB) *chunks {
	return &chunks{db}
}

// ReplaceChunks deletes the current chunks of documentID and inserts the new
// ones in a single transaction. Stored chunks are renumbered contiguously.
//
// With TolerateFailures each insert runs under its own savepoint and rejected
// chunks are reported in ReplaceResult.Failed. Without it the first insert
// error rolls everything back. Either way a failed delete or commit leaves the
// previous chunk set in place and returns ErrStorageFailure.
func (c *chunks) ReplaceChunks(ctx context.Context, documentID string, in []*model.Chunk, opts ReplaceOptions) (*ReplaceResult, error) {
	var result *ReplaceResult

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result = &ReplaceResult{Failed: make(map[int]error)}

		if err := lockDocument(tx, documentID); err != nil {
			return fmt.Errorf("lock document: %w", err)
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}

		for i, chunk := range in {
			chunk.DocumentID = documentID
			chunk.ChunkIndex = len(result.Stored)

			if !opts.TolerateFailures {
				if err := tx.Create(chunk).Error; err != nil {
					return fmt.Errorf("insert chunk %d: %w", i, err)
				}
				result.Stored = append(result.Stored, chunk)
				continue
			}

			if err := insertWithSavepoint(tx, fmt.Sprintf("chunk_%d", i), chunk); err != nil {
				if _, ok := err.(savepointError); ok {
					return err
				}
				result.Failed[i] = err
				chunk.ID = ""
				continue
			}
			result.Stored = append(result.Stored, chunk)
		}
		return nil
	})
	if err != nil {
		return nil, errors.ErrStorageFailure.WithCause(err)
	}
	return result, nil
}

// savepointError marks a failure of the savepoint machinery itself, which
// poisons the transaction.
type savepointError struct{ error }

func insertWithSavepoint(tx *gorm.DB, name string, chunk *model.Chunk) error {
	if err := tx.SavePoint(name).Error; err != nil {
		return savepointError{fmt.Errorf("savepoint %s: %w", name, err)}
	}
	if err := tx.Create(chunk).Error; err != nil {
		if rbErr := tx.RollbackTo(name).Error; rbErr != nil {
			return savepointError{fmt.Errorf("rollback to %s: %w", name, rbErr)}
		}
		return err
	}
	if err := tx.Exec("RELEASE SAVEPOINT " + name).Error; err != nil {
		return savepointError{fmt.Errorf("release %s: %w", name, err)}
	}
	return nil
}

// ListByDocument returns the chunks of a document in index order.
func (c *chunks) ListByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error) {
	var out []*model.Chunk
	err := c.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index").
		Find(&out).Error
	return out, err
}

// CountByDocument counts the chunks of a document.
func (c *chunks) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&model.Chunk{}).Where("document_id = ?", documentID).Count(&count).Error
	return count, err
}

// DeleteByDocument deletes the chunks of a document and returns how many were removed.
func (c *chunks) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	res := c.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{})
	return res.RowsAffected, res.Error
}

type searchRow struct {
	ID              string
	DocumentID      string
	ChunkIndex      int
	Content         string
	Metadata        datatypes.JSONType[model.ChunkMetadata]
	Title           string
	Filename        string
	OrganizationID  string
	SimilarityScore float64
}

// Search ranks embedded chunks by cosine similarity in a single query.
// Scores are 1 - cosine distance and the threshold is inclusive.
func (c *chunks) Search(ctx context.Context, q SearchQuery) ([]*model.SearchResult, error) {
	var rows []searchRow
	if err := searchStatement(c.db.WithContext(ctx), q).Scan(&rows).Error; err != nil {
		return nil, err
	}

	results := make([]*model.SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, &model.SearchResult{
			ChunkID:          r.ID,
			DocumentID:       r.DocumentID,
			ChunkIndex:       r.ChunkIndex,
			Content:          r.Content,
			Metadata:         r.Metadata.Data(),
			SimilarityScore:  r.SimilarityScore,
			DocumentTitle:    r.Title,
			DocumentFilename: r.Filename,
			OrganizationID:   r.OrganizationID,
		})
	}
	return results, nil
}

const similarityExpr = "1 - (c.embedding <=> ?)"

func searchStatement(db *gorm.DB, q SearchQuery) *gorm.DB {
	vec := pgvector.NewVector(q.Vector)

	tx := db.Table("document_chunks AS c").
		Select("c.id, c.document_id, c.chunk_index, c.content, c.metadata, "+
			"d.title, d.filename, d.organization_id, "+
			similarityExpr+" AS similarity_score", vec).
		Joins("JOIN documents d ON d.id = c.document_id").
		Where("c.embedding IS NOT NULL").
		Where(similarityExpr+" >= ?", vec, q.Threshold)

	if q.OrganizationID != "" {
		tx = tx.Where("d.organization_id = ?", q.OrganizationID)
	}
	if q.ProductID != "" {
		tx = tx.Where("d.product_id = ?", q.ProductID)
	}
	if q.DocumentType != "" {
		tx = tx.Where("d.document_type = ?", q.DocumentType)
	}

	return tx.Order("similarity_score DESC").Limit(q.K)
}
