package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ragdesk/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByExternalID(externalID string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("external_id = ?", externalID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by external id failed: %w", err)
	}
	return &user, nil
}

// GetOrCreateByExternalID inserts the user on first sight and refreshes the
// profile fields afterwards. Concurrent first requests race on the unique
// index, so the insert ignores conflicts and the row is read back.
func (r *UserRepository) GetOrCreateByExternalID(externalID, name, email string) (*model.User, error) {
	user := model.User{ExternalID: externalID, Name: name, Email: email}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user failed: %w", err)
	}
	existing, err := r.GetByExternalID(externalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("user %q vanished after insert", externalID)
	}

	updates := map[string]interface{}{}
	if name != "" && name != existing.Name {
		updates["name"] = name
	}
	if email != "" && email != existing.Email {
		updates["email"] = email
	}
	if len(updates) > 0 {
		if err := r.db.Model(existing).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user profile failed: %w", err)
		}
	}
	return existing, nil
}

func (r *UserRepository) Count() (int64, error) {
	var n int64
	if err := r.db.Model(&model.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users failed: %w", err)
	}
	return n, nil
}
