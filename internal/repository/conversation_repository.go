package repository

import (
	"context"
	"errors"

	"github.com/Bhogyaan/threads/backend/internal/models"
	"gorm.io/gorm"
)

// ConversationRepository reads conversation membership and updates message receipts
type ConversationRepository interface {
	// Participants returns the user ids of a conversation
	Participants(ctx context.Context, conversationID string) ([]string, error)
	// MarkMessagesSeen flags every unseen message sent by someone other than
	// viewerID as seen and returns the ids it changed
	MarkMessagesSeen(ctx context.Context, conversationID, viewerID string) ([]string, error)
	// MarkDelivered flags a message as delivered
	MarkDelivered(ctx context.Context, messageID string) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Participants returns the user ids of a conversation
func (r *conversationRepository) Participants(ctx context.Context, conversationID string) ([]string, error) {
	if conversationID == "" {
		return nil, ErrInvalidInput
	}

	var userIDs []string
	err := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Order("user_id").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, ErrNotFound
	}
	return userIDs, nil
}

// MarkMessagesSeen flags unseen messages as seen in a single transaction
func (r *conversationRepository) MarkMessagesSeen(ctx context.Context, conversationID, viewerID string) ([]string, error) {
	if conversationID == "" || viewerID == "" {
		return nil, ErrInvalidInput
	}

	var seen []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member int64
		if err := tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, viewerID).
			Count(&member).Error; err != nil {
			return err
		}
		if member == 0 {
			return ErrNotParticipant
		}

		if err := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND seen = ?", conversationID, viewerID, false).
			Order("created_at ASC").
			Pluck("id", &seen).Error; err != nil {
			return err
		}
		if len(seen) == 0 {
			return nil
		}

		if err := tx.Model(&models.Message{}).
			Where("id IN ?", seen).
			Update("seen", true).Error; err != nil {
			return err
		}

		return tx.Model(&models.Conversation{}).
			Where("id = ? AND last_message_sender_id <> ?", conversationID, viewerID).
			Update("last_message_seen", true).Error
	})
	if err != nil {
		return nil, err
	}
	return seen, nil
}

// MarkDelivered flags a message as delivered
func (r *conversationRepository) MarkDelivered(ctx context.Context, messageID string) error {
	if messageID == "" {
		return ErrInvalidInput
	}

	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("delivered", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err means the record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrPostNotFound) ||
		errors.Is(err, ErrUserNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
