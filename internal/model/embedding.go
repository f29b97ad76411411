package model

import (
	"encoding/json"
	"time"
)

// Embedding is the vector of one chunk, stored as a JSON array of float32 for
// datastores without a native vector type. Degraded marks the zero-vector
// fallback, which is kept for the one-vector-per-chunk invariant but excluded
// from search.
type Embedding struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChunkID     uint      `gorm:"not null;uniqueIndex" json:"chunk_id"`
	DocumentID  uint      `gorm:"not null;index" json:"document_id"`
	OwnerID     uint      `gorm:"not null;index:idx_embeddings_owner_degraded,priority:1" json:"owner_id"`
	Degraded    bool      `gorm:"not null;index:idx_embeddings_owner_degraded,priority:2" json:"degraded"`
	ContentType string    `gorm:"size:32;not null" json:"content_type"`
	Dimension   int       `gorm:"not null" json:"dimension"`
	Vector      string    `gorm:"type:text" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Values returns the parsed vector; nil on parse error.
func (e *Embedding) Values() []float32 {
	if e.Vector == "" {
		return nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(e.Vector), &v); err != nil {
		return nil
	}
	return v
}

func (e *Embedding) SetValues(vec []float32) {
	e.Dimension = len(vec)
	if len(vec) == 0 {
		e.Vector = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	e.Vector = string(b)
}
