package index

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ragdesk/internal/rag"
)

const pgTable = "chunk_vectors"

type pgRow struct {
	ChunkID     uint             `gorm:"primaryKey;autoIncrement:false"`
	DocumentID  uint             `gorm:"not null"`
	OwnerID     uint             `gorm:"not null"`
	ContentType string           `gorm:"size:32;not null"`
	Degraded    bool             `gorm:"not null"`
	Embedding   *pgvector.Vector `gorm:"type:vector"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (pgRow) TableName() string { return pgTable }

// PGVector delegates nearest-neighbour search to PostgreSQL with the pgvector
// extension. The owner filter and the ordering both run in the database.
type PGVector struct {
	db  *gorm.DB
	dim int
}

func NewPGVector(db *gorm.DB, dim int) *PGVector {
	return &PGVector{db: db, dim: dim}
}

// Migrate creates the extension, the vector table sized to the configured
// dimension and an HNSW cosine index.
func (p *PGVector) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			chunk_id BIGINT PRIMARY KEY,
			document_id BIGINT NOT NULL,
			owner_id BIGINT NOT NULL,
			content_type VARCHAR(32) NOT NULL DEFAULT '%s',
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, pgTable, ContentTypeChunk, p.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_owner ON %[1]s (owner_id)`, pgTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_document ON %[1]s (document_id)`, pgTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_embedding ON %[1]s USING hnsw (embedding vector_cosine_ops)`, pgTable),
	}
	db := p.db.WithContext(ctx)
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate %s failed: %w", pgTable, err)
		}
	}
	return nil
}

func (p *PGVector) Upsert(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]pgRow, len(entries))
	for i, e := range entries {
		if len(e.Vector) != p.dim {
			return fmt.Errorf("vector for chunk %d has dimension %d, want %d", e.ChunkID, len(e.Vector), p.dim)
		}
		rows[i] = pgRow{
			ChunkID:     e.ChunkID,
			DocumentID:  e.DocumentID,
			OwnerID:     e.OwnerID,
			ContentType: ContentTypeChunk,
			Degraded:    rag.IsZero(e.Vector),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		// the zero vector has no cosine distance in pgvector; keep it NULL
		if !rows[i].Degraded {
			v := pgvector.NewVector(e.Vector)
			rows[i].Embedding = &v
		}
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chunk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document_id", "owner_id", "content_type", "degraded", "embedding", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return unavailable(fmt.Errorf("upsert %s failed: %w", pgTable, err))
	}
	return nil
}

func (p *PGVector) Search(ctx context.Context, query []float32, ownerID uint, k int) ([]Candidate, error) {
	ok, err := checkQuery(query, ownerID, k)
	if !ok {
		return nil, err
	}
	vec := pgvector.NewVector(query)

	var rows []Candidate
	err = p.db.WithContext(ctx).
		Table(pgTable).
		Select("chunk_id, document_id, 1 - (embedding <=> ?) AS similarity", vec).
		Where("owner_id = ? AND degraded = ? AND embedding IS NOT NULL", ownerID, false).
		Clauses(clause.OrderBy{
			Expression: clause.Expr{SQL: "embedding <=> ?, chunk_id", Vars: []interface{}{vec}, WithoutParentheses: true},
		}).
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable(fmt.Errorf("search %s failed: %w", pgTable, err))
	}
	return rows, nil
}

func (p *PGVector) DeleteDocument(ctx context.Context, ownerID, documentID uint) error {
	err := p.db.WithContext(ctx).
		Where("owner_id = ? AND document_id = ?", ownerID, documentID).
		Delete(&pgRow{}).Error
	if err != nil {
		return unavailable(fmt.Errorf("delete from %s failed: %w", pgTable, err))
	}
	return nil
}
