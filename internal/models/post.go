package models

import (
	"time"

	"gorm.io/gorm"
)

// Post is a top-level feed post
type Post struct {
	ID       string      `gorm:"primaryKey;type:uuid" json:"id"`
	AuthorID string      `gorm:"not null;index" json:"author_id"`
	Author   User        `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Text     string      `gorm:"type:text" json:"text"`
	ImageURL string      `json:"image_url,omitempty"`
	Likes    StringArray `gorm:"type:text[]" json:"likes"`
	IsBanned bool        `gorm:"default:false" json:"is_banned"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Comment is a comment on a post. Replies are comments with a ParentID.
type Comment struct {
	ID       string      `gorm:"primaryKey;type:uuid" json:"id"`
	PostID   string      `gorm:"not null;index" json:"post_id"`
	ParentID *string     `gorm:"index" json:"parent_id,omitempty"`
	AuthorID string      `gorm:"not null;index" json:"author_id"`
	Text     string      `gorm:"type:text" json:"text"`
	Likes    StringArray `gorm:"type:text[]" json:"likes"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsReply reports whether the comment answers another comment
func (c *Comment) IsReply() bool {
	return c.ParentID != nil && *c.ParentID != ""
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}
