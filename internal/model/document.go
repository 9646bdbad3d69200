// Package model provides data models for the docvector service.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document processing statuses.
const (
	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

// Document is the metadata record of an uploaded document.
// The text itself is never stored on the document; only its chunks are.
type Document struct {
	ID             string     `json:"id" gorm:"primaryKey;type:varchar(36);comment:文档ID"`
	OrganizationID string     `json:"organization_id" gorm:"type:varchar(64);not null;index:idx_documents_org;comment:所属组织"`
	ProductID      string     `json:"product_id,omitempty" gorm:"type:varchar(64);index:idx_documents_product;comment:所属产品"`
	Title          string     `json:"title" gorm:"type:varchar(255);not null;comment:标题"`
	Filename       string     `json:"filename" gorm:"type:varchar(255);comment:原始文件名"`
	DocumentType   string     `json:"document_type,omitempty" gorm:"type:varchar(64);index:idx_documents_type;comment:文档类型"`
	MimeType       string     `json:"mime_type,omitempty" gorm:"type:varchar(128);comment:MIME类型"`
	StoragePath    string     `json:"storage_path,omitempty" gorm:"type:varchar(512);comment:存储路径"`
	Size           int64      `json:"size" gorm:"default:0;comment:文件大小"`
	Status         string     `json:"status" gorm:"type:varchar(32);not null;default:uploaded;index:idx_documents_status;comment:处理状态"`
	ErrorMessage   string     `json:"error_message,omitempty" gorm:"type:text;comment:失败原因"`
	ChunkCount     int        `json:"chunk_count" gorm:"default:0;comment:分块数量"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty" gorm:"comment:最近处理完成时间"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Document.
func (Document) TableName() string {
	return "documents"
}

// BeforeCreate assigns an ID and the initial status.
func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DocumentStatusUploaded
	}
	return nil
}

// VisibleTo reports whether the document belongs to orgID.
// An empty orgID sees every document.
func (d *Document) VisibleTo(orgID string) bool {
	return orgID == "" || d.OrganizationID == orgID
}
