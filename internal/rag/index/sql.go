package index

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ragdesk/internal/model"
	"ragdesk/internal/rag"
)

const sqlScanBatch = 500

// SQL keeps vectors as JSON in the embeddings table and scores the owner's
// rows in process. It works on any gorm dialect, so it backs MySQL and SQLite
// deployments. The owner filter is part of the query, so rows of other owners
// are never read.
type SQL struct {
	db  *gorm.DB
	dim int
}

func NewSQL(db *gorm.DB, dim int) *SQL {
	return &SQL{db: db, dim: dim}
}

func (s *SQL) Migrate() error {
	if err := s.db.AutoMigrate(&model.Embedding{}); err != nil {
		return fmt.Errorf("migrate embeddings failed: %w", err)
	}
	return nil
}

func (s *SQL) Upsert(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]model.Embedding, len(entries))
	for i, e := range entries {
		if len(e.Vector) != s.dim {
			return fmt.Errorf("vector for chunk %d has dimension %d, want %d", e.ChunkID, len(e.Vector), s.dim)
		}
		rows[i] = model.Embedding{
			ChunkID:     e.ChunkID,
			DocumentID:  e.DocumentID,
			OwnerID:     e.OwnerID,
			Degraded:    rag.IsZero(e.Vector),
			ContentType: ContentTypeChunk,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		rows[i].SetValues(e.Vector)
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chunk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document_id", "owner_id", "degraded", "content_type", "dimension", "vector", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return unavailable(fmt.Errorf("upsert embeddings failed: %w", err))
	}
	return nil
}

func (s *SQL) Search(ctx context.Context, query []float32, ownerID uint, k int) ([]Candidate, error) {
	ok, err := checkQuery(query, ownerID, k)
	if !ok {
		return nil, err
	}

	var (
		rows []model.Embedding
		top  []ranked
	)
	result := s.db.WithContext(ctx).
		Select("id", "chunk_id", "document_id", "vector").
		Where("owner_id = ? AND degraded = ?", ownerID, false).
		FindInBatches(&rows, sqlScanBatch, func(tx *gorm.DB, batch int) error {
			for i := range rows {
				v := rows[i].Values()
				if len(v) != len(query) {
					continue
				}
				top = append(top, ranked{
					Candidate: Candidate{
						ChunkID:    rows[i].ChunkID,
						DocumentID: rows[i].DocumentID,
						Similarity: rag.Cosine(query, v),
					},
					seq: uint64(rows[i].ChunkID),
				})
			}
			top = topK(top, k)
			return nil
		})
	if result.Error != nil {
		return nil, unavailable(fmt.Errorf("scan embeddings failed: %w", result.Error))
	}
	return candidates(top), nil
}

func (s *SQL) DeleteDocument(ctx context.Context, ownerID, documentID uint) error {
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND document_id = ?", ownerID, documentID).
		Delete(&model.Embedding{}).Error
	if err != nil {
		return unavailable(fmt.Errorf("delete embeddings failed: %w", err))
	}
	return nil
}
