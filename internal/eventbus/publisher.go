package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/metrics"
	"github.com/Bhogyaan/threads/backend/internal/models"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Transport moves encoded envelopes to another process. key groups events
// that must stay ordered (post id or conversation id).
type Transport interface {
	Name() string
	Publish(ctx context.Context, key string, payload []byte) error
}

// Publisher is a notify.Notifier that encodes every call as an Envelope and
// hands it to a transport. Failures are logged, never returned.
type Publisher struct {
	transport Transport
	timeout   time.Duration
}

var _ notify.Notifier = (*Publisher)(nil)

// NewPublisher creates a publisher over transport
func NewPublisher(transport Transport) *Publisher {
	return &Publisher{transport: transport, timeout: publishTimeout}
}

func (p *Publisher) NewPost(post models.Post, followerIDs []string) {
	p.publish(EventNewPost, post.ID, notify.NewPostEvent{Post: post, FollowerIDs: followerIDs})
}

func (p *Publisher) NewComment(postID string, comment models.Comment) {
	p.publish(EventNewComment, postID, notify.CommentEvent{PostID: postID, Comment: comment})
}

func (p *Publisher) NewReply(postID, commentID string, reply models.Comment) {
	p.publish(EventNewReply, postID, notify.ReplyEvent{PostID: postID, CommentID: commentID, Reply: reply})
}

func (p *Publisher) Like(event notify.LikeEvent) {
	p.publish(EventLike, event.PostID, event)
}

func (p *Publisher) Edit(event notify.EditEvent) {
	p.publish(EventEdit, event.PostID, event)
}

func (p *Publisher) Delete(event notify.DeleteEvent) {
	p.publish(EventDelete, event.PostID, event)
}

func (p *Publisher) PostBanned(postID string) {
	p.publish(EventPostBanned, postID, notify.ModerationEvent{PostID: postID})
}

func (p *Publisher) PostUnbanned(postID string) {
	p.publish(EventPostUnbanned, postID, notify.ModerationEvent{PostID: postID})
}

func (p *Publisher) NewMessage(event notify.MessageEvent) {
	p.publish(EventNewMessage, event.Message.ConversationID, event)
}

func (p *Publisher) MessagesSeen(event notify.SeenEvent) {
	p.publish(EventMessagesSeen, event.ConversationID, event)
}

func (p *Publisher) publish(eventType, key string, data interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	env, err := NewEnvelope(ctx, eventType, data)
	if err == nil {
		var payload []byte
		payload, err = json.Marshal(env)
		if err == nil {
			err = p.transport.Publish(ctx, key, payload)
		}
	}

	metrics.RecordBridgeEvent(p.transport.Name()+"_publish", err)
	if err != nil {
		logger.Log.Warn("Failed to publish realtime event",
			zap.String("transport", p.transport.Name()),
			logger.WithEventType(eventType),
			zap.Error(err))
	}
}
