package repository

import (
	"context"

	"polls-backend/models"

	"gorm.io/gorm"
)

// UserRepository stores accounts
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a repository on db
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user; a taken username yields ErrDuplicate
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	return translate(r.db.WithContext(ctx).Create(u).Error)
}

// ByID loads a user by primary key
func (r *UserRepository) ByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// ByUsername loads a user by username
func (r *UserRepository) ByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

