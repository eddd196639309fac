package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/models"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
)

// replayPool is the seeded data fake events refer to
type replayPool struct {
	users         []models.User
	posts         []models.Post
	comments      []models.Comment
	conversations map[string][]string
	convIDs       []string
}

func (s *Seeder) loadPool(ctx context.Context) (*replayPool, error) {
	db := s.db.WithContext(ctx)
	pool := &replayPool{conversations: make(map[string][]string)}

	if err := db.Limit(500).Find(&pool.users).Error; err != nil {
		return nil, err
	}
	if err := db.Where("is_banned = ?", false).Limit(500).Find(&pool.posts).Error; err != nil {
		return nil, err
	}
	if err := db.Where("parent_id IS NULL").Limit(1000).Find(&pool.comments).Error; err != nil {
		return nil, err
	}

	var participants []models.ConversationParticipant
	if err := db.Limit(2000).Find(&participants).Error; err != nil {
		return nil, err
	}
	for _, p := range participants {
		if _, ok := pool.conversations[p.ConversationID]; !ok {
			pool.convIDs = append(pool.convIDs, p.ConversationID)
		}
		pool.conversations[p.ConversationID] = append(pool.conversations[p.ConversationID], p.UserID)
	}

	if len(pool.users) < 2 || len(pool.posts) == 0 {
		return nil, fmt.Errorf("not enough seed data to replay; run seed dev first")
	}
	return pool, nil
}

func (p *replayPool) user() models.User {
	return p.users[rand.Intn(len(p.users))]
}

func (p *replayPool) post() models.Post {
	return p.posts[rand.Intn(len(p.posts))]
}

// Replay emits count fake domain events through n, one every interval. The
// events reference seeded rows so connected clients see plausible traffic.
// Nothing is written to the database.
func (s *Seeder) Replay(ctx context.Context, n notify.Notifier, count int, interval time.Duration) (int, error) {
	pool, err := s.loadPool(ctx)
	if err != nil {
		return 0, err
	}

	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	for i := 0; i < count; i++ {
		if ticker != nil && i > 0 {
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return i, err
		}

		eventType := pool.emit(n)
		logger.Log.Debug("Replayed event", logger.WithEventType(eventType))
	}

	logger.Log.Info("Replay finished", zap.Int("events", count))
	return count, nil
}

// emit sends one random event and returns its type
func (p *replayPool) emit(n notify.Notifier) string {
	now := time.Now().UTC()

	switch roll := rand.Intn(10); {
	case roll < 3:
		post := p.post()
		comment := models.Comment{
			ID:        gofakeit.UUID(),
			PostID:    post.ID,
			AuthorID:  p.user().ID,
			Text:      gofakeit.HipsterSentence(),
			Likes:     models.StringArray{},
			CreatedAt: now,
		}
		n.NewComment(post.ID, comment)
		return "newComment"

	case roll < 4 && len(p.comments) > 0:
		parent := p.comments[rand.Intn(len(p.comments))]
		parentID := parent.ID
		reply := models.Comment{
			ID:        gofakeit.UUID(),
			PostID:    parent.PostID,
			ParentID:  &parentID,
			AuthorID:  p.user().ID,
			Text:      gofakeit.HipsterSentence(),
			Likes:     models.StringArray{},
			CreatedAt: now,
		}
		n.NewReply(parent.PostID, parent.ID, reply)
		return "newReply"

	case roll < 6:
		post := p.post()
		liker := p.user().ID
		likes := append([]string{}, post.Likes...)
		if !post.Likes.Contains(liker) {
			likes = append(likes, liker)
		}
		n.Like(notify.LikeEvent{TargetType: notify.TargetPost, TargetID: post.ID, PostID: post.ID, UserID: liker, Likes: likes})
		return "like"

	case roll < 8 && len(p.convIDs) > 0:
		convID := p.convIDs[rand.Intn(len(p.convIDs))]
		members := p.conversations[convID]
		if len(members) < 2 {
			break
		}
		sender, recipient := members[0], members[1]
		if rand.Intn(2) == 0 {
			sender, recipient = recipient, sender
		}
		n.NewMessage(notify.MessageEvent{
			RecipientID: recipient,
			Message: models.Message{
				ID:             gofakeit.UUID(),
				ConversationID: convID,
				SenderID:       sender,
				Text:           gofakeit.HipsterSentence(),
				CreatedAt:      now,
			},
		})
		return "newMessage"

	case roll < 9:
		author := p.user()
		followers := make([]string, 0, 5)
		for i := 0; i < 5; i++ {
			if u := p.user(); u.ID != author.ID {
				followers = append(followers, u.ID)
			}
		}
		n.NewPost(models.Post{
			ID:        gofakeit.UUID(),
			AuthorID:  author.ID,
			Text:      gofakeit.HipsterSentence(),
			Likes:     models.StringArray{},
			CreatedAt: now,
		}, followers)
		return "newPost"
	}

	post := p.post()
	n.Edit(notify.EditEvent{
		TargetType: notify.TargetComment,
		PostID:     post.ID,
		Comment: models.Comment{
			ID:       gofakeit.UUID(),
			PostID:   post.ID,
			AuthorID: p.user().ID,
			Text:     gofakeit.HipsterSentence(),
			Likes:    models.StringArray{},
		},
	})
	return "edit"
}
