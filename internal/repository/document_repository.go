package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ragdesk/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListByOwnerID(ownerID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Where("owner_id = ?", ownerID).Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) ListAll(offset, limit int) ([]model.Document, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var total int64
	if err := r.db.Model(&model.Document{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count documents failed: %w", err)
	}
	var list []model.Document
	if err := r.db.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, fmt.Errorf("list all documents failed: %w", err)
	}
	return list, total, nil
}

// ListByIDs returns the documents keyed by id. Rows of other owners are
// never included.
func (r *DocumentRepository) ListByIDs(ownerID uint, ids []uint) (map[uint]model.Document, error) {
	out := make(map[uint]model.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []model.Document
	if err := r.db.Where("owner_id = ? AND id IN ?", ownerID, ids).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents by ids failed: %w", err)
	}
	for _, d := range list {
		out[d.ID] = d
	}
	return out, nil
}

func (r *DocumentRepository) GetByIDAndOwnerID(id, ownerID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ? AND owner_id = ?", id, ownerID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(id uint, status model.DocumentStatus, processingError string, chunkCount int) error {
	err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           status,
		"processing_error": processingError,
		"chunk_count":      chunkCount,
	}).Error
	if err != nil {
		return fmt.Errorf("update document status failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteByIDAndOwnerID(id, ownerID uint) error {
	if err := r.db.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) CountByStatus() (map[model.DocumentStatus]int64, error) {
	var rows []struct {
		Status model.DocumentStatus
		N      int64
	}
	if err := r.db.Model(&model.Document{}).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count documents by status failed: %w", err)
	}
	out := make(map[model.DocumentStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
