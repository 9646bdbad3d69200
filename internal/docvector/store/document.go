package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/docvector/internal/model"
)

type documents struct {
	db *gorm.DB
}

func newDocuments(db *gorm.DB) *documents {
	return &documents{db}
}

// Create creates a new document.
func (d *documents) Create(ctx context.Context, doc *model.Document) error {
	return d.db.WithContext(ctx).Create(doc).Error
}

// Get retrieves a document by ID.
func (d *documents) Get(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// List lists documents, newest first.
func (d *documents) List(ctx context.Context, opts ListOptions) (int64, []*model.Document, error) {
	var count int64
	var docs []*model.Document

	query := d.db.WithContext(ctx).Model(&model.Document{})
	if opts.OrganizationID != "" {
		query = query.Where("organization_id = ?", opts.OrganizationID)
	}
	if opts.ProductID != "" {
		query = query.Where("product_id = ?", opts.ProductID)
	}
	if opts.DocumentType != "" {
		query = query.Where("document_type = ?", opts.DocumentType)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	if err := query.Count(&count).Error; err != nil {
		return 0, nil, err
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if err := query.Offset(opts.Offset).Order("created_at DESC, id").Find(&docs).Error; err != nil {
		return 0, nil, err
	}

	return count, docs, nil
}

// UpdateStatus updates the processing fields of a document.
func (d *documents) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	fields := map[string]any{
		"status":        update.Status,
		"error_message": update.ErrorMessage,
		"updated_at":    time.Now().UTC(),
	}
	if update.ChunkCount != nil {
		fields["chunk_count"] = *update.ChunkCount
	}
	if update.ProcessedAt != nil {
		fields["processed_at"] = *update.ProcessedAt
	}

	res := d.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete deletes a document and its chunks.
func (d *documents) Delete(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDocument(tx, id); err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
