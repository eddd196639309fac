// Package eventbus carries notify.Notifier calls between processes. CRUD
// processes publish envelopes on Redis, Kafka, Postgres NOTIFY or the
// internal HTTP endpoint; the realtime server consumes them and replays each
// one on its relay.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/Bhogyaan/threads/backend/internal/telemetry"
	"github.com/google/uuid"
)

// Event types carried in Envelope.Type
const (
	EventNewPost      = "newPost"
	EventNewComment   = "newComment"
	EventNewReply     = "newReply"
	EventLike         = "like"
	EventEdit         = "edit"
	EventDelete       = "delete"
	EventPostBanned   = "postBanned"
	EventPostUnbanned = "postUnbanned"
	EventNewMessage   = "newMessage"
	EventMessagesSeen = "messagesSeen"
)

// DefaultChannel is the Redis channel and Postgres NOTIFY channel name
const DefaultChannel = "realtime_events"

var (
	ErrUnknownEvent    = errors.New("unknown event type")
	ErrInvalidEnvelope = errors.New("invalid event envelope")
)

// Envelope is the wire format shared by every transport
type Envelope struct {
	ID        string            `json:"id"`
	Type      string            `json:"type" binding:"required"`
	Data      json.RawMessage   `json:"data"`
	Trace     map[string]string `json:"trace,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEnvelope wraps data and the trace context of ctx
func NewEnvelope(ctx context.Context, eventType string, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      raw,
		Trace:     telemetry.InjectMap(ctx),
		Timestamp: time.Now().UTC(),
	}, nil
}

// Decode parses an envelope received from a transport
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEnvelope)
	}
	return &env, nil
}

// Context restores the publisher's trace context on ctx
func (e *Envelope) Context(ctx context.Context) context.Context {
	return telemetry.ExtractMap(ctx, e.Trace)
}

// Dispatch decodes the envelope data and calls the matching Notifier method
func Dispatch(n notify.Notifier, env *Envelope) error {
	switch env.Type {
	case EventNewPost:
		var event notify.NewPostEvent
		if err := decodeData(env, &event); err != nil {
			return err
		}
		if event.Post.ID == "" {
			return missing(env, "post.id")
		}
		n.NewPost(event.Post, event.FollowerIDs)

	case EventNewComment:
		var event notify.CommentEvent
		if err := decodeData(env, &event); err != nil {
			return err
		}
		if event.PostID == "" {
			return missing(env, "postId")
		}
		n.NewComment(event.PostID, event.Comment)

	case EventNewReply:
		var event notify.ReplyEvent
		if err := decodeData(env, &event); err != nil {
			return err
		}
		if event.PostID == "" {
			return missing(env, "postId")
		}
		n.NewReply(event.PostID, event.CommentID, event.Reply)

	case EventLike:
		var event notify.LikeEvent
		if err := decodeData(env, &event); err != nil {
			return err
		}
		if !event.TargetType.Valid() {
			return missing(env, "targetType")
		}
		n.Like(event)

	case EventEdit:
		var event notify.EditEvent
		if err := decodeData(env, &event); err != nil {
			return err
		}
		if event.TargetType != notify.TargetComment && event.TargetType != notify.TargetReply {
			return missing(env, "targetType")
		}
		n.Edit(event)

	case EventDelete:
		var event notify.DeleteEvent
		if err := decodeData(env, &event); err != nil {
			return err
		}
		if !event.TargetType.Valid() {
			return missing(env, "targetType")
		}
		n.Delete(event)

	case EventPostBanned, EventPostUnbanned:
		var event notify.ModerationEvent
		if err := decodeData(env, &event); err != nil {
			return err
		}
		if event.PostID == "" {
			return missing(env, "postId")
		}
		if env.Type == EventPostBanned {
			n.PostBanned(event.PostID)
		} else {
			n.PostUnbanned(event.PostID)
		}

	case EventNewMessage:
		var event notify.MessageEvent
		if err := decodeData(env, &event); err != nil {
			return err
		}
		if event.RecipientID == "" {
			return missing(env, "recipientId")
		}
		n.NewMessage(event)

	case EventMessagesSeen:
		var event notify.SeenEvent
		if err := decodeData(env, &event); err != nil {
			return err
		}
		if event.ConversationID == "" {
			return missing(env, "conversationId")
		}
		n.MessagesSeen(event)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	return nil
}

func decodeData(env *Envelope, target interface{}) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrInvalidEnvelope, env.Type)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrInvalidEnvelope, env.Type, err)
	}
	return nil
}

func missing(env *Envelope, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrInvalidEnvelope, env.Type, field)
}
