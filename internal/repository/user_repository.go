package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/models"
	"gorm.io/gorm"
)

// UserRepository handles the user columns owned by the realtime layer
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	// SetPresence records the online flag and last activity time
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
	// ResetPresence marks every user offline, used at startup since presence
	// does not survive a restart
	ResetPresence(ctx context.Context) (int64, error)
}

// userRepository implements UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetUser gets a user by ID
func (r *userRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// SetPresence updates is_online and last_active_at
func (r *userRepository) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	if userID == "" {
		return ErrInvalidInput
	}

	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online":      online,
			"last_active_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ResetPresence marks every online user offline
func (r *userRepository) ResetPresence(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("is_online = ?", true).
		Update("is_online", false)
	return result.RowsAffected, result.Error
}
