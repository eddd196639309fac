package seed

import (
	"context"
	"sync"
	"testing"

	"github.com/Bhogyaan/threads/backend/internal/database"
	"github.com/Bhogyaan/threads/backend/internal/models"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type SeederTestSuite struct {
	suite.Suite
	db     *gorm.DB
	seeder *Seeder
	ctx    context.Context
}

func (s *SeederTestSuite) SetupTest() {
	db, err := database.OpenSQLite(":memory:")
	s.Require().NoError(err)
	s.Require().NoError(database.MigrateSQLite(db))
	s.db = db
	s.seeder = NewSeeder(db)
	s.ctx = context.Background()
}

func (s *SeederTestSuite) TearDownTest() {
	_ = database.Close(s.db)
}

func TestSeederSuite(t *testing.T) {
	suite.Run(t, new(SeederTestSuite))
}

func (s *SeederTestSuite) count(model interface{}) int64 {
	var n int64
	s.Require().NoError(s.db.Model(model).Count(&n).Error)
	return n
}

func (s *SeederTestSuite) TestSeedTest() {
	summary, err := s.seeder.SeedTest(s.ctx)
	s.Require().NoError(err)

	s.Equal(len(TestUsernames), summary.Users)
	s.Equal(len(TestUsernames), summary.Posts)
	s.Equal(10, summary.Comments)
	s.Equal(1, summary.Conversations)
	s.Equal(4, summary.Messages)

	s.EqualValues(len(TestUsernames), s.count(&models.User{}))
	s.EqualValues(2, s.count(&models.ConversationParticipant{}))

	var unseen int64
	s.Require().NoError(s.db.Model(&models.Message{}).Where("seen = ?", false).Count(&unseen).Error)
	s.EqualValues(1, unseen)
}

func (s *SeederTestSuite) TestSeedTestIsIdempotentForUsers() {
	_, err := s.seeder.SeedTest(s.ctx)
	s.Require().NoError(err)

	summary, err := s.seeder.SeedTest(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, summary.Users)
	s.EqualValues(len(TestUsernames), s.count(&models.User{}))
}

func (s *SeederTestSuite) TestRepliesPointAtTopLevelComments() {
	_, err := s.seeder.SeedTest(s.ctx)
	s.Require().NoError(err)

	var replies []models.Comment
	s.Require().NoError(s.db.Where("parent_id IS NOT NULL").Find(&replies).Error)
	for _, reply := range replies {
		var parent models.Comment
		s.Require().NoError(s.db.First(&parent, "id = ?", *reply.ParentID).Error)
		s.Nil(parent.ParentID)
		s.Equal(reply.PostID, parent.PostID)
	}
}

func (s *SeederTestSuite) TestClean() {
	_, err := s.seeder.SeedTest(s.ctx)
	s.Require().NoError(err)

	s.Require().NoError(s.seeder.Clean(s.ctx))
	s.Zero(s.count(&models.User{}))
	s.Zero(s.count(&models.Message{}))
}

// countingNotifier tallies events by method
type countingNotifier struct {
	notify.Nop
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingNotifier) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
}

func (c *countingNotifier) NewPost(models.Post, []string)           { c.add("newPost") }
func (c *countingNotifier) NewComment(string, models.Comment)       { c.add("newComment") }
func (c *countingNotifier) NewReply(string, string, models.Comment) { c.add("newReply") }
func (c *countingNotifier) Like(notify.LikeEvent)                   { c.add("like") }
func (c *countingNotifier) Edit(notify.EditEvent)                   { c.add("edit") }
func (c *countingNotifier) NewMessage(notify.MessageEvent)          { c.add("newMessage") }

func (s *SeederTestSuite) TestReplay() {
	_, err := s.seeder.SeedTest(s.ctx)
	s.Require().NoError(err)

	n := &countingNotifier{counts: make(map[string]int)}
	sent, err := s.seeder.Replay(s.ctx, n, 50, 0)
	s.Require().NoError(err)
	s.Equal(50, sent)

	total := 0
	for _, c := range n.counts {
		total += c
	}
	s.Equal(50, total)
}

func (s *SeederTestSuite) TestReplayNeedsSeedData() {
	_, err := s.seeder.Replay(s.ctx, notify.Nop{}, 1, 0)
	s.Error(err)
}

func TestReplayStopsOnCancel(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.MigrateSQLite(db))
	defer database.Close(db)

	seeder := NewSeeder(db)
	_, err = seeder.SeedTest(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sent, err := seeder.Replay(ctx, notify.Nop{}, 10, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sent)
}
