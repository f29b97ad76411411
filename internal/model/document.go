package model

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	OwnerID         uint           `gorm:"not null;index" json:"owner_id"`
	Name            string         `gorm:"size:256;not null" json:"name"`
	ContentType     string         `gorm:"size:128;not null" json:"content_type"`
	Size            int64          `gorm:"not null" json:"size"`
	BlobKey         string         `gorm:"size:512;not null" json:"-"`
	Status          DocumentStatus `gorm:"size:16;not null;index" json:"status"`
	ProcessingError string         `gorm:"type:text" json:"processing_error,omitempty"`
	ChunkCount      int            `gorm:"not null" json:"chunk_count"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
