// Package notify defines the one-way event bus the CRUD layer uses to tell
// the realtime layer that a document changed. Every method is fire-and-forget:
// callers never learn whether anyone received the event.
package notify

import "github.com/Bhogyaan/threads/backend/internal/models"

// Notifier is implemented by the websocket relay in-process and by the
// event bus publishers across processes
type Notifier interface {
	// NewPost announces a post to the author's followers. A nil follower
	// list means everyone; an empty list means no one.
	NewPost(post models.Post, followerIDs []string)
	NewComment(postID string, comment models.Comment)
	NewReply(postID, commentID string, reply models.Comment)
	Like(event LikeEvent)
	Edit(event EditEvent)
	Delete(event DeleteEvent)
	PostBanned(postID string)
	PostUnbanned(postID string)
	NewMessage(event MessageEvent)
	MessagesSeen(event SeenEvent)
}

// TargetType names the kind of document an event refers to
type TargetType string

const (
	TargetPost    TargetType = "post"
	TargetComment TargetType = "comment"
	TargetReply   TargetType = "reply"
)

// Valid reports whether t is one of the known target types
func (t TargetType) Valid() bool {
	switch t {
	case TargetPost, TargetComment, TargetReply:
		return true
	}
	return false
}

// NewPostEvent carries a new post and its audience
type NewPostEvent struct {
	Post        models.Post `json:"post"`
	FollowerIDs []string    `json:"followerIds"`
}

// CommentEvent carries a new top-level comment
type CommentEvent struct {
	PostID  string         `json:"postId"`
	Comment models.Comment `json:"comment"`
}

// ReplyEvent carries a reply to a comment
type ReplyEvent struct {
	PostID    string         `json:"postId"`
	CommentID string         `json:"commentId"`
	Reply     models.Comment `json:"reply"`
}

// LikeEvent carries the full like list after a like or unlike
type LikeEvent struct {
	TargetType TargetType `json:"targetType"`
	TargetID   string     `json:"targetId"`
	PostID     string     `json:"postId"`
	UserID     string     `json:"userId"`
	Likes      []string   `json:"likes"`
}

// EditEvent carries an edited comment or reply
type EditEvent struct {
	TargetType TargetType     `json:"targetType"`
	PostID     string         `json:"postId"`
	Comment    models.Comment `json:"comment"`
}

// DeleteEvent identifies a deleted post, comment or reply
type DeleteEvent struct {
	TargetType TargetType `json:"targetType"`
	TargetID   string     `json:"targetId"`
	PostID     string     `json:"postId"`
	ParentID   string     `json:"parentId,omitempty"`
}

// ModerationEvent identifies a banned or unbanned post
type ModerationEvent struct {
	PostID string `json:"postId"`
}

// MessageEvent carries a direct message to its recipient
type MessageEvent struct {
	RecipientID string         `json:"recipientId"`
	Message     models.Message `json:"message"`
}

// SeenEvent reports messages marked seen. When NotifyUserID is empty every
// other participant of the conversation is told.
type SeenEvent struct {
	ConversationID string   `json:"conversationId"`
	SeenBy         string   `json:"seenBy"`
	MessageIDs     []string `json:"seenMessages"`
	NotifyUserID   string   `json:"notifyUserId,omitempty"`
}

// Nop discards every event; used when the realtime layer is disabled
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) NewPost(models.Post, []string)           {}
func (Nop) NewComment(string, models.Comment)       {}
func (Nop) NewReply(string, string, models.Comment) {}
func (Nop) Like(LikeEvent)                          {}
func (Nop) Edit(EditEvent)                          {}
func (Nop) Delete(DeleteEvent)                      {}
func (Nop) PostBanned(string)                       {}
func (Nop) PostUnbanned(string)                     {}
func (Nop) NewMessage(MessageEvent)                 {}
func (Nop) MessagesSeen(SeenEvent)                  {}

// Multi fans every event out to several notifiers in order
type Multi []Notifier

var _ Notifier = Multi(nil)

func (m Multi) NewPost(post models.Post, followerIDs []string) {
	for _, n := range m {
		n.NewPost(post, followerIDs)
	}
}

func (m Multi) NewComment(postID string, comment models.Comment) {
	for _, n := range m {
		n.NewComment(postID, comment)
	}
}

func (m Multi) NewReply(postID, commentID string, reply models.Comment) {
	for _, n := range m {
		n.NewReply(postID, commentID, reply)
	}
}

func (m Multi) Like(event LikeEvent) {
	for _, n := range m {
		n.Like(event)
	}
}

func (m Multi) Edit(event EditEvent) {
	for _, n := range m {
		n.Edit(event)
	}
}

func (m Multi) Delete(event DeleteEvent) {
	for _, n := range m {
		n.Delete(event)
	}
}

func (m Multi) PostBanned(postID string) {
	for _, n := range m {
		n.PostBanned(postID)
	}
}

func (m Multi) PostUnbanned(postID string) {
	for _, n := range m {
		n.PostUnbanned(postID)
	}
}

func (m Multi) NewMessage(event MessageEvent) {
	for _, n := range m {
		n.NewMessage(event)
	}
}

func (m Multi) MessagesSeen(event SeenEvent) {
	for _, n := range m {
		n.MessagesSeen(event)
	}
}
