package database

import (
	"context"
	"fmt"
	"time"

	applogger "github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/models"
	"github.com/Bhogyaan/threads/backend/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open creates and configures the Postgres connection
func Open(dsn string, verbose bool) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Warn)
	if verbose {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Use(telemetry.GORMTracingPlugin()); err != nil {
		return nil, fmt.Errorf("failed to register tracing plugin: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	applogger.Log.Info("Database connected")
	return db, nil
}

// OpenSQLite opens an SQLite database, used by tests with ":memory:"
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across queries
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// Migrate runs auto-migration for the tables the realtime layer touches
func Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	err := db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		createIndexes(db)
	}

	applogger.Log.Info("Database migrations completed")
	return nil
}

// createIndexes creates performance indexes
func createIndexes(db *gorm.DB) {
	indexes := []string{
		// Unseen-message scans in markMessagesAsSeen
		"CREATE INDEX IF NOT EXISTS idx_messages_conversation_unseen ON messages (conversation_id, sender_id) WHERE seen = false",
		// Resync loads a post's comments in order
		"CREATE INDEX IF NOT EXISTS idx_comments_post_created ON comments (post_id, created_at ASC)",
		"CREATE INDEX IF NOT EXISTS idx_conversation_participants_user ON conversation_participants (user_id)",
	}

	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			applogger.Log.Warn("Failed to create index", zap.String("statement", stmt), zap.Error(err))
		}
	}
}

// Health checks database connectivity
func Health(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
