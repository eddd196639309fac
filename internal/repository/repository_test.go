package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/database"
	"github.com/Bhogyaan/threads/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.MigrateSQLite(db))

	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

type RepositoryTestSuite struct {
	suite.Suite
	db            *gorm.DB
	users         UserRepository
	conversations ConversationRepository
	posts         PostRepository
	ctx           context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	s.db = setupTestDB(s.T())
	s.users = NewUserRepository(s.db)
	s.conversations = NewConversationRepository(s.db)
	s.posts = NewPostRepository(s.db)
	s.ctx = context.Background()
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

func (s *RepositoryTestSuite) createUser(username string) *models.User {
	user := &models.User{Username: username, DisplayName: username}
	s.Require().NoError(s.db.Create(user).Error)
	return user
}

func (s *RepositoryTestSuite) createConversation(lastSender string, userIDs ...string) *models.Conversation {
	conv := &models.Conversation{LastMessageSenderID: lastSender}
	s.Require().NoError(s.db.Create(conv).Error)
	for _, id := range userIDs {
		s.Require().NoError(s.db.Create(&models.ConversationParticipant{
			ConversationID: conv.ID,
			UserID:         id,
		}).Error)
	}
	return conv
}

func (s *RepositoryTestSuite) createMessage(convID, senderID string, seen bool, at time.Time) *models.Message {
	msg := &models.Message{ConversationID: convID, SenderID: senderID, Text: "hi", Seen: seen, CreatedAt: at}
	s.Require().NoError(s.db.Create(msg).Error)
	return msg
}

// =============================================================================
// UserRepository
// =============================================================================

func (s *RepositoryTestSuite) TestSetPresence() {
	user := s.createUser("alice")
	now := time.Now().UTC().Truncate(time.Second)

	s.Require().NoError(s.users.SetPresence(s.ctx, user.ID, true, now))

	got, err := s.users.GetUser(s.ctx, user.ID)
	s.Require().NoError(err)
	s.True(got.IsOnline)
	s.Require().NotNil(got.LastActiveAt)
	s.WithinDuration(now, *got.LastActiveAt, time.Second)

	s.Require().NoError(s.users.SetPresence(s.ctx, user.ID, false, now.Add(time.Minute)))
	got, err = s.users.GetUser(s.ctx, user.ID)
	s.Require().NoError(err)
	s.False(got.IsOnline)
}

func (s *RepositoryTestSuite) TestSetPresenceUnknownUser() {
	err := s.users.SetPresence(s.ctx, "missing", true, time.Now())
	s.ErrorIs(err, ErrUserNotFound)

	err = s.users.SetPresence(s.ctx, "", true, time.Now())
	s.ErrorIs(err, ErrInvalidInput)
}

func (s *RepositoryTestSuite) TestGetUserNotFound() {
	_, err := s.users.GetUser(s.ctx, "missing")
	s.ErrorIs(err, ErrUserNotFound)
	s.True(IsNotFound(err))
}

func (s *RepositoryTestSuite) TestResetPresence() {
	a := s.createUser("alice")
	b := s.createUser("bob")
	s.createUser("carol")
	s.Require().NoError(s.users.SetPresence(s.ctx, a.ID, true, time.Now()))
	s.Require().NoError(s.users.SetPresence(s.ctx, b.ID, true, time.Now()))

	n, err := s.users.ResetPresence(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	var online int64
	s.Require().NoError(s.db.Model(&models.User{}).Where("is_online = ?", true).Count(&online).Error)
	s.Zero(online)
}

// =============================================================================
// ConversationRepository
// =============================================================================

func (s *RepositoryTestSuite) TestParticipants() {
	conv := s.createConversation("u1", "u2", "u1", "u3")

	ids, err := s.conversations.Participants(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Equal([]string{"u1", "u2", "u3"}, ids)
}

func (s *RepositoryTestSuite) TestParticipantsUnknownConversation() {
	_, err := s.conversations.Participants(s.ctx, "missing")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.conversations.Participants(s.ctx, "")
	s.ErrorIs(err, ErrInvalidInput)
}

func (s *RepositoryTestSuite) TestMarkMessagesSeen() {
	conv := s.createConversation("u2", "u1", "u2")
	base := time.Now().UTC().Add(-time.Hour)

	first := s.createMessage(conv.ID, "u2", false, base)
	second := s.createMessage(conv.ID, "u2", false, base.Add(time.Minute))
	own := s.createMessage(conv.ID, "u1", false, base.Add(2*time.Minute))
	s.createMessage(conv.ID, "u2", true, base.Add(3*time.Minute))

	ids, err := s.conversations.MarkMessagesSeen(s.ctx, conv.ID, "u1")
	s.Require().NoError(err)
	s.Equal([]string{first.ID, second.ID}, ids)

	// The viewer's own message is untouched
	var reloaded models.Message
	s.Require().NoError(s.db.First(&reloaded, "id = ?", own.ID).Error)
	s.False(reloaded.Seen)

	var updated models.Conversation
	s.Require().NoError(s.db.First(&updated, "id = ?", conv.ID).Error)
	s.True(updated.LastMessageSeen)

	// Second call finds nothing left to mark
	ids, err = s.conversations.MarkMessagesSeen(s.ctx, conv.ID, "u1")
	s.Require().NoError(err)
	s.Empty(ids)
}

func (s *RepositoryTestSuite) TestMarkMessagesSeenOwnLastMessage() {
	conv := s.createConversation("u1", "u1", "u2")
	s.createMessage(conv.ID, "u2", false, time.Now().UTC())

	_, err := s.conversations.MarkMessagesSeen(s.ctx, conv.ID, "u1")
	s.Require().NoError(err)

	var updated models.Conversation
	s.Require().NoError(s.db.First(&updated, "id = ?", conv.ID).Error)
	s.False(updated.LastMessageSeen, "the preview belongs to the viewer and stays unseen")
}

func (s *RepositoryTestSuite) TestMarkMessagesSeenNotParticipant() {
	conv := s.createConversation("u2", "u1", "u2")
	msg := s.createMessage(conv.ID, "u2", false, time.Now().UTC())

	_, err := s.conversations.MarkMessagesSeen(s.ctx, conv.ID, "intruder")
	s.ErrorIs(err, ErrNotParticipant)

	var reloaded models.Message
	s.Require().NoError(s.db.First(&reloaded, "id = ?", msg.ID).Error)
	s.False(reloaded.Seen)
}

func (s *RepositoryTestSuite) TestMarkDelivered() {
	conv := s.createConversation("u1", "u1", "u2")
	msg := s.createMessage(conv.ID, "u1", false, time.Now().UTC())

	s.Require().NoError(s.conversations.MarkDelivered(s.ctx, msg.ID))

	var reloaded models.Message
	s.Require().NoError(s.db.First(&reloaded, "id = ?", msg.ID).Error)
	s.True(reloaded.Delivered)

	s.ErrorIs(s.conversations.MarkDelivered(s.ctx, "missing"), ErrNotFound)
	s.ErrorIs(s.conversations.MarkDelivered(s.ctx, ""), ErrInvalidInput)
}

// =============================================================================
// PostRepository
// =============================================================================

func (s *RepositoryTestSuite) TestGetPostState() {
	author := s.createUser("alice")
	post := &models.Post{AuthorID: author.ID, Text: "hello", Likes: models.StringArray{"u2"}}
	s.Require().NoError(s.db.Omit("Author").Create(post).Error)

	base := time.Now().UTC().Add(-time.Hour)
	comment := &models.Comment{PostID: post.ID, AuthorID: "u2", Text: "first", CreatedAt: base}
	s.Require().NoError(s.db.Create(comment).Error)
	reply := &models.Comment{PostID: post.ID, ParentID: &comment.ID, AuthorID: "u3", Text: "reply", CreatedAt: base.Add(time.Minute)}
	s.Require().NoError(s.db.Create(reply).Error)

	state, err := s.posts.GetPostState(s.ctx, post.ID)
	s.Require().NoError(err)
	s.Equal(post.ID, state.Post.ID)
	s.Equal([]string{"u2"}, []string(state.Post.Likes))
	s.Require().Len(state.Comments, 2)
	s.Equal(comment.ID, state.Comments[0].ID)
	s.False(state.Comments[0].IsReply())
	s.True(state.Comments[1].IsReply())
}

func (s *RepositoryTestSuite) TestGetPostStateBannedOrMissing() {
	post := &models.Post{AuthorID: "u1", Text: "spam", IsBanned: true}
	s.Require().NoError(s.db.Omit("Author").Create(post).Error)

	_, err := s.posts.GetPostState(s.ctx, post.ID)
	s.ErrorIs(err, ErrPostNotFound)

	_, err = s.posts.GetPostState(s.ctx, "missing")
	s.ErrorIs(err, ErrPostNotFound)

	_, err = s.posts.GetPostState(s.ctx, "")
	s.ErrorIs(err, ErrInvalidInput)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(gorm.ErrRecordNotFound))
	assert.True(t, IsNotFound(ErrPostNotFound))
	assert.False(t, IsNotFound(ErrNotParticipant))
	assert.False(t, IsNotFound(nil))
}
