package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/cache"
	"github.com/Bhogyaan/threads/backend/internal/config"
	"github.com/Bhogyaan/threads/backend/internal/database"
	"github.com/Bhogyaan/threads/backend/internal/eventbus"
	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/Bhogyaan/threads/backend/internal/seed"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), ""); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Close() }()
	if envErr != nil {
		logger.Log.Warn(".env file not found, using system environment variables")
	}

	// Parse command
	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "dev":
		err = seedDev(ctx)
	case "test":
		err = seedTest(ctx)
	case "clean":
		err = cleanSeed(ctx)
	case "replay":
		err = replay(ctx, os.Args[2:])
	default:
		fmt.Println("Usage: seed [dev|test|clean|replay [count] [interval]]")
		fmt.Println("  dev    - Seed development database with realistic data")
		fmt.Println("  test   - Seed test database with minimal data")
		fmt.Println("  clean  - Remove all seed data (use with caution)")
		fmt.Println("  replay - Publish fake realtime events about seeded rows")
		os.Exit(1)
	}
	if err != nil {
		logger.Log.Error("❌ Seed command failed", zap.String("command", command), zap.Error(err))
		_ = logger.Close()
		os.Exit(1)
	}
}

func connect() (*gorm.DB, error) {
	db, err := database.Open(config.LoadDatabase().DSN(), false)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	logger.Log.Info("✅ Database connected")
	return db, nil
}

func logSummary(msg string, s *seed.Summary) {
	logger.Log.Info(msg,
		zap.Int("users", s.Users),
		zap.Int("posts", s.Posts),
		zap.Int("comments", s.Comments),
		zap.Int("conversations", s.Conversations),
		zap.Int("messages", s.Messages))
}

func seedDev(ctx context.Context) error {
	logger.Log.Info("🌱 Seeding development database...")
	db, err := connect()
	if err != nil {
		return err
	}
	defer database.Close(db)

	summary, err := seed.NewSeeder(db).SeedDev(ctx)
	if err != nil {
		return err
	}
	logSummary("✅ Development database seeded successfully!", summary)
	return nil
}

func seedTest(ctx context.Context) error {
	logger.Log.Info("🧪 Seeding test database...")
	db, err := connect()
	if err != nil {
		return err
	}
	defer database.Close(db)

	summary, err := seed.NewSeeder(db).SeedTest(ctx)
	if err != nil {
		return err
	}
	logSummary("✅ Test database seeded successfully!", summary)
	return nil
}

func cleanSeed(ctx context.Context) error {
	logger.Log.Info("🧹 Cleaning seed data...")
	db, err := connect()
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := seed.NewSeeder(db).Clean(ctx); err != nil {
		return err
	}
	logger.Log.Info("✅ Seed data cleaned successfully!")
	return nil
}

// replayTarget publishes to REALTIME_URL when set, otherwise on the Redis bus
func replayTarget() (notify.Notifier, func(), error) {
	if url := os.Getenv("REALTIME_URL"); url != "" {
		logger.Log.Info("Replaying over HTTP", zap.String("url", url))
		return eventbus.NewHTTPPublisher(url, os.Getenv("INTERNAL_API_TOKEN")), func() {}, nil
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		client, err := cache.NewRedisClient(host, os.Getenv("REDIS_PORT"), os.Getenv("REDIS_PASSWORD"))
		if err != nil {
			return nil, nil, err
		}
		channel := os.Getenv("EVENT_BUS_CHANNEL")
		if channel == "" {
			channel = eventbus.DefaultChannel
		}
		logger.Log.Info("Replaying over Redis", zap.String("channel", channel))
		return eventbus.NewRedisPublisher(client, channel), func() { _ = client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("set REALTIME_URL or REDIS_HOST to replay events")
}

func replay(ctx context.Context, args []string) error {
	count, interval := 100, 250*time.Millisecond
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		count = n
	}
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", args[1], err)
		}
		interval = d
	}

	target, closeFn, err := replayTarget()
	if err != nil {
		return err
	}
	defer closeFn()

	db, err := connect()
	if err != nil {
		return err
	}
	defer database.Close(db)

	sent, err := seed.NewSeeder(db).Replay(ctx, target, count, interval)
	logger.Log.Info("📡 Replay done", zap.Int("sent", sent))
	return err
}
