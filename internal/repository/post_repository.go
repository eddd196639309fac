package repository

import (
	"context"
	"errors"

	"github.com/Bhogyaan/threads/backend/internal/models"
	"gorm.io/gorm"
)

// PostState is the authoritative state of a post returned to resyncing clients
type PostState struct {
	Post     models.Post      `json:"post"`
	Comments []models.Comment `json:"comments"`
}

// PostRepository loads post state for resync requests
type PostRepository interface {
	GetPostState(ctx context.Context, postID string) (*PostState, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// GetPostState returns the post with its comments and replies in creation order.
// Banned posts are reported as not found.
func (r *postRepository) GetPostState(ctx context.Context, postID string) (*PostState, error) {
	if postID == "" {
		return nil, ErrInvalidInput
	}

	var state PostState
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_banned = ?", postID, false).
		First(&state.Post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&state.Comments).Error; err != nil {
		return nil, err
	}

	return &state, nil
}
