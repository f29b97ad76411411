package model

import "time"

// Chunk is one retrieval unit of a document. Index is unique within the
// document and rows are never updated after processing.
type Chunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID uint      `gorm:"not null;uniqueIndex:idx_chunks_document_index,priority:1" json:"document_id"`
	OwnerID    uint      `gorm:"not null;index" json:"owner_id"`
	Index      int       `gorm:"column:chunk_index;not null;uniqueIndex:idx_chunks_document_index,priority:2" json:"index"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Locator    string    `gorm:"size:128" json:"locator,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
