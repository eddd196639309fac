package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/models"
	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// Summary counts what a seed run created
type Summary struct {
	Users         int
	Posts         int
	Comments      int
	Conversations int
	Messages      int
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	// Seed returns an error only for invalid sources
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// TestUsernames are the fixed accounts SeedTest creates
var TestUsernames = []string{"alice", "bob", "charlie", "diana", "eve"}

// SeedDev seeds the development database with realistic data
func (s *Seeder) SeedDev(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	db := s.db.WithContext(ctx)

	logger.Log.Info("Creating users...")
	users, err := s.seedUsers(db, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to seed users: %w", err)
	}
	summary.Users = len(users)

	logger.Log.Info("Creating posts...")
	posts, err := s.seedPosts(db, users, 150)
	if err != nil {
		return nil, fmt.Errorf("failed to seed posts: %w", err)
	}
	summary.Posts = len(posts)

	logger.Log.Info("Creating comments...")
	summary.Comments, err = s.seedComments(db, users, posts, 400)
	if err != nil {
		return nil, fmt.Errorf("failed to seed comments: %w", err)
	}

	logger.Log.Info("Creating conversations...")
	summary.Conversations, summary.Messages, err = s.seedConversations(db, users, 60, 12)
	if err != nil {
		return nil, fmt.Errorf("failed to seed conversations: %w", err)
	}

	return summary, nil
}

// SeedTest seeds the test database with the fixed accounts, one post each
// and a conversation between alice and bob
func (s *Seeder) SeedTest(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	db := s.db.WithContext(ctx)

	logger.Log.Info("Creating test users...")
	users := make([]models.User, 0, len(TestUsernames))
	for _, username := range TestUsernames {
		var user models.User
		err := db.Where("username = ?", username).First(&user).Error
		if err == nil {
			// User already exists
			users = append(users, user)
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("failed to look up %s: %w", username, err)
		}

		user = models.User{
			Username:    username,
			DisplayName: gofakeit.Name(),
			AvatarURL:   fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", username),
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create test user %s: %w", username, err)
		}
		users = append(users, user)
		summary.Users++
	}

	logger.Log.Info("Creating test posts...")
	posts := make([]models.Post, 0, len(users))
	for _, author := range users {
		post := models.Post{
			AuthorID: author.ID,
			Text:     gofakeit.HipsterSentence(),
			Likes:    models.StringArray{},
		}
		if err := db.Create(&post).Error; err != nil {
			return nil, fmt.Errorf("failed to create test post: %w", err)
		}
		posts = append(posts, post)
	}
	summary.Posts = len(posts)

	logger.Log.Info("Creating test comments...")
	var err error
	summary.Comments, err = s.seedComments(db, users, posts, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to seed comments: %w", err)
	}

	logger.Log.Info("Creating test conversation...")
	msgs, err := s.createConversation(db, []models.User{users[0], users[1]}, 4)
	if err != nil {
		return nil, fmt.Errorf("failed to seed conversation: %w", err)
	}
	summary.Conversations = 1
	summary.Messages = msgs

	return summary, nil
}

// Clean removes all seed data (use with caution!)
func (s *Seeder) Clean(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	// Delete in reverse order of dependencies
	for _, table := range []string{"messages", "conversation_participants", "conversations", "comments", "posts", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

// seedUsers creates users with realistic data
func (s *Seeder) seedUsers(db *gorm.DB, count int) ([]models.User, error) {
	users := make([]models.User, 0, count)

	for i := 0; i < count; i++ {
		username := gofakeit.Username()

		// Ensure unique username
		var existingUser models.User
		for db.Where("username = ?", username).First(&existingUser).Error != gorm.ErrRecordNotFound {
			username = fmt.Sprintf("%s%d", gofakeit.Username(), rand.Intn(1000))
		}

		user := models.User{
			Username:    username,
			DisplayName: gofakeit.Name(),
			AvatarURL:   fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", username),
			IsAdmin:     i == 0,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", username, err)
		}
		users = append(users, user)
	}

	logger.Log.Info("Created users", zap.Int("count", len(users)))
	return users, nil
}

// randomLikers picks up to max distinct user ids
func randomLikers(users []models.User, max int) models.StringArray {
	n := rand.Intn(max + 1)
	if n > len(users) {
		n = len(users)
	}
	likes := make(models.StringArray, 0, n)
	for _, i := range rand.Perm(len(users))[:n] {
		likes = append(likes, users[i].ID)
	}
	return likes
}

func (s *Seeder) seedPosts(db *gorm.DB, users []models.User, count int) ([]models.Post, error) {
	posts := make([]models.Post, 0, count)
	now := time.Now().UTC()

	for i := 0; i < count; i++ {
		author := users[rand.Intn(len(users))]
		created := now.Add(-time.Duration(rand.Intn(30*24)) * time.Hour)

		post := models.Post{
			AuthorID:  author.ID,
			Text:      gofakeit.HipsterSentence(),
			Likes:     randomLikers(users, 15),
			IsBanned:  rand.Float32() < 0.02,
			CreatedAt: created,
			UpdatedAt: created,
		}
		if rand.Float32() < 0.3 {
			post.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/600", gofakeit.Word())
		}

		if err := db.Create(&post).Error; err != nil {
			return nil, fmt.Errorf("failed to create post: %w", err)
		}
		posts = append(posts, post)
	}

	logger.Log.Info("Created posts", zap.Int("count", len(posts)))
	return posts, nil
}

// seedComments creates count comments; roughly a third answer an earlier
// comment on the same post
func (s *Seeder) seedComments(db *gorm.DB, users []models.User, posts []models.Post, count int) (int, error) {
	byPost := make(map[string][]string)

	for i := 0; i < count; i++ {
		post := posts[rand.Intn(len(posts))]
		comment := models.Comment{
			PostID:   post.ID,
			AuthorID: users[rand.Intn(len(users))].ID,
			Text:     gofakeit.HipsterSentence(),
			Likes:    randomLikers(users, 5),
		}

		if parents := byPost[post.ID]; len(parents) > 0 && rand.Float32() < 0.35 {
			parent := parents[rand.Intn(len(parents))]
			comment.ParentID = &parent
		}

		if err := db.Create(&comment).Error; err != nil {
			return i, fmt.Errorf("failed to create comment: %w", err)
		}
		if comment.ParentID == nil {
			byPost[post.ID] = append(byPost[post.ID], comment.ID)
		}
	}

	logger.Log.Info("Created comments", zap.Int("count", count))
	return count, nil
}

func (s *Seeder) seedConversations(db *gorm.DB, users []models.User, count, maxMessages int) (int, int, error) {
	if len(users) < 2 {
		return 0, 0, nil
	}

	seen := make(map[string]bool)
	created, messages := 0, 0
	for attempts := 0; created < count && attempts < count*5; attempts++ {
		a, b := users[rand.Intn(len(users))], users[rand.Intn(len(users))]
		if a.ID == b.ID {
			continue
		}
		pair := a.ID + ":" + b.ID
		if a.ID > b.ID {
			pair = b.ID + ":" + a.ID
		}
		if seen[pair] {
			continue
		}
		seen[pair] = true

		n, err := s.createConversation(db, []models.User{a, b}, rand.Intn(maxMessages)+1)
		if err != nil {
			return created, messages, err
		}
		created++
		messages += n
	}

	logger.Log.Info("Created conversations", zap.Int("count", created), zap.Int("messages", messages))
	return created, messages, nil
}

// createConversation writes a conversation with n alternating messages.
// Everything but the last message is already seen.
func (s *Seeder) createConversation(db *gorm.DB, members []models.User, n int) (int, error) {
	err := db.Transaction(func(tx *gorm.DB) error {
		conv := models.Conversation{}
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		for _, member := range members {
			participant := models.ConversationParticipant{ConversationID: conv.ID, UserID: member.ID}
			if err := tx.Create(&participant).Error; err != nil {
				return err
			}
		}

		at := time.Now().UTC().Add(-time.Duration(n) * time.Minute)
		var last models.Message
		for i := 0; i < n; i++ {
			last = models.Message{
				ConversationID: conv.ID,
				SenderID:       members[i%len(members)].ID,
				Text:           gofakeit.HipsterSentence(),
				Seen:           i < n-1,
				Delivered:      true,
				CreatedAt:      at.Add(time.Duration(i) * time.Minute),
			}
			if err := tx.Create(&last).Error; err != nil {
				return err
			}
		}

		return tx.Model(&conv).Updates(map[string]interface{}{
			"last_message_text":      last.Text,
			"last_message_sender_id": last.SenderID,
			"last_message_seen":      false,
		}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create conversation: %w", err)
	}
	return n, nil
}
