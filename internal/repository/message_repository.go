package repository

import (
	"fmt"

	"gorm.io/gorm"

	"ragdesk/internal/model"
)

const maxMessageList = 200

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// ListByUserID returns the oldest messages first.
func (r *MessageRepository) ListByUserID(userID uint, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > maxMessageList {
		limit = 100
	}
	var messages []model.Message
	if err := r.db.Where("user_id = ?", userID).Order("created_at ASC, id ASC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

// ListRecentByUserID returns the newest limit messages in chronological order.
// limit <= 0 returns the whole conversation.
func (r *MessageRepository) ListRecentByUserID(userID uint, limit int) ([]model.Message, error) {
	q := r.db.Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var messages []model.Message
	if err := q.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list recent messages failed: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) DeleteByUserID(userID uint) (int64, error) {
	res := r.db.Where("user_id = ?", userID).Delete(&model.Message{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete messages failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *MessageRepository) Count() (int64, error) {
	var n int64
	if err := r.db.Model(&model.Message{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count messages failed: %w", err)
	}
	return n, nil
}
