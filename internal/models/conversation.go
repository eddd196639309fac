package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation is a direct-message thread between two or more users
type Conversation struct {
	ID           string                    `gorm:"primaryKey;type:uuid" json:"id"`
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`

	// Denormalised preview of the latest message
	LastMessageText     string `gorm:"type:text" json:"last_message_text"`
	LastMessageSenderID string `json:"last_message_sender_id"`
	LastMessageSeen     bool   `gorm:"default:false" json:"last_message_seen"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationParticipant links a user to a conversation
type ConversationParticipant struct {
	ConversationID string    `gorm:"primaryKey;type:uuid" json:"conversation_id"`
	UserID         string    `gorm:"primaryKey;type:uuid;index" json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Message is a single direct message
type Message struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ConversationID string `gorm:"not null;index" json:"conversation_id"`
	SenderID       string `gorm:"not null;index" json:"sender_id"`
	Text           string `gorm:"type:text" json:"text"`
	ImageURL       string `json:"image_url,omitempty"`
	Seen           bool   `gorm:"default:false;index" json:"seen"`
	Delivered      bool   `gorm:"default:false" json:"delivered"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	return nil
}
