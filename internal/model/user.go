package model

import "time"

// User is an end user known by the identifier of the external auth provider.
// Records are created on first sight.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID string    `gorm:"size:128;not null;uniqueIndex" json:"external_id"`
	Name       string    `gorm:"size:128" json:"name"`
	Email      string    `gorm:"size:128;index" json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
