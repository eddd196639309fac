package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/metrics"
	"github.com/Bhogyaan/threads/backend/internal/models"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/Bhogyaan/threads/backend/internal/telemetry"
	"go.uber.org/zap"
)

// Addressing scopes reported in metrics and spans
const (
	scopeDirect = "direct"
	scopeRoom   = "room"
	scopeGlobal = "global"
)

const relayStoreTimeout = 5 * time.Second

// DeliveryStore persists the delivered flag of a direct message
type DeliveryStore interface {
	MarkDelivered(ctx context.Context, messageID string) error
}

// Relay turns domain events into websocket events and addresses them to a
// user, a post room or everyone
type Relay struct {
	hub          *Hub
	participants ParticipantLookup
	deliveries   DeliveryStore
	events       *telemetry.RealtimeEvents
	wg           sync.WaitGroup
}

var _ notify.Notifier = (*Relay)(nil)

// NewRelay creates a relay. participants and deliveries may be nil.
func NewRelay(hub *Hub, participants ParticipantLookup, deliveries DeliveryStore) *Relay {
	return &Relay{
		hub:          hub,
		participants: participants,
		deliveries:   deliveries,
		events:       telemetry.GetRealtimeEvents(),
	}
}

// Wait blocks until background store calls and lookups finish
func (r *Relay) Wait() {
	r.wg.Wait()
}

// NewPost goes to each follower, or to everyone when followerIDs is nil
func (r *Relay) NewPost(post models.Post, followerIDs []string) {
	msg := NewMessage(MessageTypeNewPost, post)
	if followerIDs == nil {
		r.global(msg)
		return
	}
	for _, followerID := range followerIDs {
		r.direct(followerID, msg)
	}
}

// NewComment goes to the post room
func (r *Relay) NewComment(postID string, comment models.Comment) {
	r.room(postID, NewMessage(MessageTypeNewComment, CommentPayload{PostID: postID, Comment: comment}))
}

// NewReply goes to the post room
func (r *Relay) NewReply(postID, commentID string, reply models.Comment) {
	r.room(postID, NewMessage(MessageTypeNewReply, ReplyPayload{
		PostID:    postID,
		CommentID: commentID,
		Reply:     reply,
	}))
}

// Like sends the new like list to the post room
func (r *Relay) Like(event notify.LikeEvent) {
	var msgType string
	switch event.TargetType {
	case notify.TargetPost:
		msgType = MessageTypeLikeUnlikePost
	case notify.TargetComment:
		msgType = MessageTypeLikeUnlikeComment
	case notify.TargetReply:
		msgType = MessageTypeLikeUnlikeReply
	default:
		r.dropInvalid("like", event.TargetType, event.PostID)
		return
	}

	likes := event.Likes
	if likes == nil {
		likes = []string{}
	}
	targetID := event.TargetID
	if targetID == "" && event.TargetType == notify.TargetPost {
		targetID = event.PostID
	}

	r.room(event.PostID, NewMessage(msgType, LikePayload{
		PostID:   event.PostID,
		TargetID: targetID,
		UserID:   event.UserID,
		Likes:    likes,
	}))
}

// Edit sends an edited comment or reply to the post room
func (r *Relay) Edit(event notify.EditEvent) {
	var msgType string
	switch event.TargetType {
	case notify.TargetComment:
		msgType = MessageTypeEditComment
	case notify.TargetReply:
		msgType = MessageTypeEditReply
	default:
		r.dropInvalid("edit", event.TargetType, event.PostID)
		return
	}

	r.room(event.PostID, NewMessage(msgType, CommentPayload{PostID: event.PostID, Comment: event.Comment}))
}

// Delete announces a removed post to everyone and a removed comment or
// reply to the post room
func (r *Relay) Delete(event notify.DeleteEvent) {
	switch event.TargetType {
	case notify.TargetPost:
		postID := event.PostID
		if postID == "" {
			postID = event.TargetID
		}
		r.global(NewMessage(MessageTypePostDeleted, PostRefPayload{PostID: postID}))
	case notify.TargetComment:
		r.room(event.PostID, NewMessage(MessageTypeDeleteComment, DeletePayload{
			PostID:    event.PostID,
			CommentID: event.TargetID,
		}))
	case notify.TargetReply:
		r.room(event.PostID, NewMessage(MessageTypeDeleteReply, DeletePayload{
			PostID:    event.PostID,
			CommentID: event.TargetID,
			ParentID:  event.ParentID,
		}))
	default:
		r.dropInvalid("delete", event.TargetType, event.PostID)
	}
}

// PostBanned tells everyone a post was hidden by a moderator
func (r *Relay) PostBanned(postID string) {
	r.global(NewMessage(MessageTypePostBanned, PostRefPayload{PostID: postID}))
}

// PostUnbanned tells everyone a post is visible again
func (r *Relay) PostUnbanned(postID string) {
	r.global(NewMessage(MessageTypePostUnbanned, PostRefPayload{PostID: postID}))
}

// NewMessage delivers a direct message in the background. When the recipient
// is online the delivered flag is persisted and the sender gets
// messageDelivered.
func (r *Relay) NewMessage(event notify.MessageEvent) {
	metrics.RecordRelayEvent(MessageTypeNewMessage, scopeDirect)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, span := r.events.TraceRelay(context.Background(), MessageTypeNewMessage, scopeDirect)
		defer span.End()

		waitCtx, cancel := context.WithTimeout(ctx, relayStoreTimeout)
		delivered := r.hub.SendToUserWait(waitCtx, event.RecipientID, NewMessage(MessageTypeNewMessage, event.Message))
		cancel()

		if !delivered {
			logger.Log.Debug("Direct message recipient offline",
				logger.WithUserID(event.RecipientID),
				logger.WithConversationID(event.Message.ConversationID))
			return
		}

		if r.deliveries != nil && event.Message.ID != "" {
			storeCtx, cancel := context.WithTimeout(context.Background(), relayStoreTimeout)
			err := r.deliveries.MarkDelivered(storeCtx, event.Message.ID)
			cancel()
			if err != nil {
				logger.Log.Warn("Failed to persist delivered flag",
					zap.String("message_id", event.Message.ID),
					logger.WithConversationID(event.Message.ConversationID),
					zap.Error(err))
			}
		}

		if event.Message.SenderID == "" {
			return
		}
		r.hub.SendToUser(event.Message.SenderID, NewMessage(MessageTypeMessageDelivered, MessageDeliveredPayload{
			ConversationID: event.Message.ConversationID,
			MessageID:      event.Message.ID,
		}))
		metrics.RecordRelayEvent(MessageTypeMessageDelivered, scopeDirect)
	}()
}

// MessagesSeen tells NotifyUserID, or every other participant when it is
// empty, which messages SeenBy has read
func (r *Relay) MessagesSeen(event notify.SeenEvent) {
	seen := event.MessageIDs
	if seen == nil {
		seen = []string{}
	}
	msg := NewMessage(MessageTypeMessagesSeen, MessagesSeenPayload{
		ConversationID: event.ConversationID,
		SeenMessages:   seen,
		SeenBy:         event.SeenBy,
	})

	if r.participants == nil {
		if event.NotifyUserID != "" {
			r.direct(event.NotifyUserID, msg)
		}
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), participantLookupTimeout)
		defer cancel()

		participants, err := r.participants.Participants(ctx, event.ConversationID)
		if err != nil {
			logger.Log.Warn("Failed to resolve participants for seen receipt",
				logger.WithConversationID(event.ConversationID),
				zap.Error(err))
			return
		}

		// a named recipient outside the conversation falls back to the participants
		if event.NotifyUserID != "" && event.NotifyUserID != event.SeenBy && contains(participants, event.NotifyUserID) {
			r.direct(event.NotifyUserID, msg)
			return
		}
		for _, participant := range participants {
			if participant != event.SeenBy {
				r.direct(participant, msg)
			}
		}
	}()
}

func (r *Relay) direct(userID string, msg *Message) {
	_, span := r.events.TraceRelay(context.Background(), msg.Type, scopeDirect)
	defer span.End()

	metrics.RecordRelayEvent(msg.Type, scopeDirect)
	r.hub.SendToUser(userID, msg)
}

func (r *Relay) room(postID string, msg *Message) {
	room := PostRoom(postID)
	if err := ValidateRoom(room); err != nil {
		logger.Log.Warn("Dropping room event for invalid post id",
			logger.WithPostID(postID),
			logger.WithEventType(msg.Type),
			zap.Error(err))
		return
	}

	_, span := r.events.TraceRelay(context.Background(), msg.Type, scopeRoom)
	defer span.End()

	metrics.RecordRelayEvent(msg.Type, scopeRoom)
	r.hub.BroadcastToRoom(room, msg)
}

func (r *Relay) global(msg *Message) {
	_, span := r.events.TraceRelay(context.Background(), msg.Type, scopeGlobal)
	defer span.End()

	metrics.RecordRelayEvent(msg.Type, scopeGlobal)
	r.hub.Broadcast(msg)
}

func (r *Relay) dropInvalid(event string, target notify.TargetType, postID string) {
	logger.Log.Warn("Dropping event with unknown target type",
		logger.WithEventType(event),
		zap.String("target_type", string(target)),
		logger.WithPostID(postID))
}
