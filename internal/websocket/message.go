package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/errors"
	"github.com/Bhogyaan/threads/backend/internal/models"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON implements custom marshaling (always output as RFC3339)
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Client to server signals
const (
	MessageTypeJoinPostRoom       = "joinPostRoom"
	MessageTypeLeavePostRoom      = "leavePostRoom"
	MessageTypeMarkMessagesAsSeen = "markMessagesAsSeen"
	MessageTypeResyncPost         = "resyncPost"
	MessageTypePing               = "ping"
	MessageTypeHeartbeat          = "heartbeat"
)

// Typing signals travel in both directions under the same names
const (
	MessageTypeTyping     = "typing"
	MessageTypeStopTyping = "stopTyping"
)

// Server to client events
const (
	MessageTypeSystem         = "system"
	MessageTypePong           = "pong"
	MessageTypeError          = "error"
	MessageTypeGetOnlineUsers = "getOnlineUsers"
	MessageTypePostState      = "postState"

	// Feed
	MessageTypeNewPost      = "newPost"
	MessageTypePostDeleted  = "postDeleted"
	MessageTypePostBanned   = "postBanned"
	MessageTypePostUnbanned = "postUnbanned"

	// Post rooms
	MessageTypeNewComment        = "newComment"
	MessageTypeNewReply          = "newReply"
	MessageTypeLikeUnlikePost    = "likeUnlikePost"
	MessageTypeLikeUnlikeComment = "likeUnlikeComment"
	MessageTypeLikeUnlikeReply   = "likeUnlikeReply"
	MessageTypeEditComment       = "editComment"
	MessageTypeEditReply         = "editReply"
	MessageTypeDeleteComment     = "deleteComment"
	MessageTypeDeleteReply       = "deleteReply"

	// Direct messages
	MessageTypeNewMessage       = "newMessage"
	MessageTypeMessageDelivered = "messageDelivered"
	MessageTypeMessagesSeen     = "messagesSeen"
)

// Message represents a WebSocket message
type Message struct {
	// Type identifies the message type for routing
	Type string `json:"type"`

	// Payload contains the message-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is a unique message identifier for acknowledgment
	ID string `json:"id,omitempty"`

	// ReplyTo references the original message ID for responses
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp when the message was created (accepts Unix ms or RFC3339)
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewReply creates a reply message to an original message
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	msg := NewMessage(msgType, payload)
	msg.ReplyTo = original.ID
	return msg
}

// NewErrorMessage creates an error event scoped to one connection
func NewErrorMessage(code errors.ErrorCode, message string) *Message {
	now := time.Now().UTC()
	return &Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:      string(code),
			Message:   message,
			Timestamp: now.UnixMilli(),
		},
		Timestamp: FlexibleTime{Time: now},
	}
}

// ParsePayload unmarshals the payload into a specific type
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}

	if raw, ok := m.Payload.(json.RawMessage); ok {
		return json.Unmarshal(raw, target)
	}

	// Re-marshal and unmarshal to properly type the payload
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// ErrorPayload represents an error message payload
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// PingPayload represents a ping message payload
type PingPayload struct {
	ClientTime int64 `json:"client_time,omitempty"`
}

// PongPayload represents a pong message payload
type PongPayload struct {
	Timestamp  int64 `json:"timestamp"`
	ClientTime int64 `json:"client_time,omitempty"`
	Latency    int64 `json:"latency_ms,omitempty"`
}

// SystemPayload represents system event payloads
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// RoomPayload is sent with joinPostRoom and leavePostRoom
type RoomPayload struct {
	Room string `json:"room"`
}

// ConversationPayload is sent with typing and stopTyping by the client
type ConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// MarkSeenPayload is sent with markMessagesAsSeen. UserID names the
// participant to notify; when empty every other participant is told.
type MarkSeenPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// ResyncPayload asks for the authoritative state of a post
type ResyncPayload struct {
	PostID string `json:"postId"`
}

// OnlineUsersPayload is the full presence list, never a diff
type OnlineUsersPayload struct {
	UserIDs []string `json:"userIds"`
}

// TypingPayload tells peers who is typing where
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// CommentPayload carries a new comment, or an edited comment or reply
type CommentPayload struct {
	PostID  string         `json:"postId"`
	Comment models.Comment `json:"comment"`
}

// ReplyPayload carries a new reply
type ReplyPayload struct {
	PostID    string         `json:"postId"`
	CommentID string         `json:"commentId"`
	Reply     models.Comment `json:"reply"`
}

// LikePayload carries the like list after a like or unlike
type LikePayload struct {
	PostID   string   `json:"postId"`
	TargetID string   `json:"targetId"`
	UserID   string   `json:"userId,omitempty"`
	Likes    []string `json:"likes"`
}

// DeletePayload identifies a removed comment or reply
type DeletePayload struct {
	PostID    string `json:"postId"`
	CommentID string `json:"commentId"`
	ParentID  string `json:"parentId,omitempty"`
}

// PostRefPayload identifies a post for deletion and moderation events
type PostRefPayload struct {
	PostID string `json:"postId"`
}

// MessageDeliveredPayload tells the sender the recipient got the message
type MessageDeliveredPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// MessagesSeenPayload tells a participant which messages were read
type MessagesSeenPayload struct {
	ConversationID string   `json:"conversationId"`
	SeenMessages   []string `json:"seenMessages"`
	SeenBy         string   `json:"seenBy"`
}
