package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/auth"
	"github.com/Bhogyaan/threads/backend/internal/cache"
	"github.com/Bhogyaan/threads/backend/internal/config"
	"github.com/Bhogyaan/threads/backend/internal/database"
	"github.com/Bhogyaan/threads/backend/internal/eventbus"
	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/middleware"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/Bhogyaan/threads/backend/internal/repository"
	"github.com/Bhogyaan/threads/backend/internal/telemetry"
	"github.com/Bhogyaan/threads/backend/internal/websocket"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// logger is not up yet
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Close() }()

	if envErr != nil {
		logger.Log.Debug(".env file not found, using system environment variables")
	}
	logger.Log.Info("=== Threads realtime server starting ===",
		zap.String("environment", cfg.Environment),
		zap.Strings("event_bus", cfg.EventBus.Drivers))

	tp, err := telemetry.InitTracer(telemetry.ConfigFrom(cfg))
	if err != nil {
		logger.Log.Warn("Tracing disabled", zap.Error(err))
	}

	db, err := database.Open(cfg.Database.DSN(), !cfg.IsProduction())
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Failed to run migrations", zap.Error(err))
	}

	users := repository.NewUserRepository(db)
	conversations := repository.NewConversationRepository(db)
	posts := repository.NewPostRepository(db)

	// nobody is connected to a fresh process
	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if n, err := users.ResetPresence(startCtx); err != nil {
		logger.Log.Warn("Failed to reset presence", zap.Error(err))
	} else if n > 0 {
		logger.Log.Info("Reset stale presence", zap.Int64("users", n))
	}

	sinks := []websocket.PresenceSink{users}
	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewFromConfig(cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		mirror := cache.NewPresenceMirror(redisClient)
		if err := mirror.Reset(startCtx); err != nil {
			logger.Log.Warn("Failed to reset presence mirror", zap.Error(err))
		}
		sinks = append(sinks, mirror)
	}
	startCancel()

	hub := websocket.NewHub(websocket.HubConfig{
		RateLimit: websocket.RateLimitConfig{
			MaxMessagesPerSecond: cfg.Realtime.MaxMessagesPerSecond,
			BurstSize:            cfg.Realtime.BurstSize,
		},
		Typing: websocket.TypingConfig{
			Debounce:    cfg.Realtime.TypingDebounce,
			IdleTimeout: cfg.Realtime.TypingIdleTimeout,
		},
		Participants:  conversations,
		PresenceSinks: sinks,
	})
	go hub.Run()

	relay := websocket.NewRelay(hub, conversations, conversations)
	wsHandler := websocket.NewHandler(hub, relay, websocket.HandlerConfig{
		Verifier:       auth.NewService(cfg.JWTSecret),
		Conversations:  conversations,
		Posts:          posts,
		AllowedOrigins: cfg.CORSOrigins,
	})
	wsHandler.RegisterDefaultHandlers()

	bridgeCtx, stopBridges := context.WithCancel(context.Background())
	bridges := startBridges(bridgeCtx, cfg, redisClient, relay)

	r := newRouter(bridgeCtx, cfg, db, redisClient, wsHandler, relay)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Realtime server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// stop feeding the relay before the hub goes away
	stopBridges()
	bridges.Wait()

	if err := wsHandler.Shutdown(ctx); err != nil {
		logger.Log.Warn("WebSocket shutdown warning", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := telemetry.Shutdown(ctx, tp); err != nil {
		logger.Log.Warn("Tracer shutdown warning", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := database.Close(db); err != nil {
		logger.Log.Warn("Database close warning", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

// startBridges runs one goroutine per configured event bus source
func startBridges(ctx context.Context, cfg *config.Config, redisClient *cache.RedisClient, relay notify.Notifier) *sync.WaitGroup {
	var sources []eventbus.Source
	if cfg.EventBus.Has(config.DriverRedis) {
		sources = append(sources, eventbus.NewRedisSubscriber(redisClient, cfg.EventBus.Channel, relay))
	}
	if cfg.EventBus.Has(config.DriverKafka) {
		sources = append(sources, eventbus.NewKafkaConsumer(
			cfg.EventBus.KafkaBrokers, cfg.EventBus.KafkaTopic, cfg.EventBus.KafkaGroupID, relay))
	}
	if cfg.EventBus.Has(config.DriverPostgres) {
		sources = append(sources, eventbus.NewPGListener(cfg.Database.DSN(), cfg.EventBus.Channel, relay))
	}

	var wg sync.WaitGroup
	for _, source := range sources {
		wg.Add(1)
		go func(source eventbus.Source) {
			defer wg.Done()
			logger.Log.Info("Event bus source started", zap.String("source", source.Name()))
			if err := source.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.Error("Event bus source stopped", zap.String("source", source.Name()), zap.Error(err))
			}
		}(source)
	}
	return &wg
}

func newRouter(ctx context.Context, cfg *config.Config, db *gorm.DB, redisClient *cache.RedisClient, wsHandler *websocket.Handler, relay notify.Notifier) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.TracingMiddleware(telemetry.ServiceName))
	r.Use(middleware.CorrelationMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization",
		middleware.CorrelationIDHeader, middleware.InternalTokenHeader}
	r.Use(cors.New(corsConfig))

	// compression breaks the upgrade handshake
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/api/v1/ws"})))

	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "ok"
		if err := database.Health(c.Request.Context(), db); err != nil {
			status = http.StatusServiceUnavailable
			dbStatus = err.Error()
		}
		redisStatus := "disabled"
		if redisClient != nil {
			redisStatus = "ok"
			if err := redisClient.Ping(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				redisStatus = err.Error()
			}
		}
		c.JSON(status, gin.H{
			"status":      http.StatusText(status),
			"database":    dbStatus,
			"redis":       redisStatus,
			"connections": wsHandler.GetHub().ConnectionCount(),
			"timestamp":   time.Now().UTC(),
			"service":     telemetry.ServiceName,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	upgradeLimit := middleware.NewRateLimit(ctx, redisClient, "ws_upgrade", middleware.UpgradeRateLimitConfig())
	apiLimit := middleware.NewRateLimit(ctx, redisClient, "ws_api", middleware.DefaultRateLimitConfig())
	ingestLimit := middleware.NewRateLimit(ctx, redisClient, "ingest", middleware.IngestRateLimitConfig())

	r.GET("/ws", upgradeLimit, wsHandler.HandleWebSocket)

	api := r.Group("/api/v1")
	{
		ws := api.Group("/ws")
		{
			// auth via query param ?token=... or Authorization header
			ws.GET("", upgradeLimit, wsHandler.HandleWebSocket)
			ws.GET("/connect", upgradeLimit, wsHandler.HandleWebSocket)

			ws.GET("/online", apiLimit, wsHandler.HandleOnlineUsers)
			ws.POST("/online", apiLimit, wsHandler.HandleOnlineStatus)
			ws.GET("/metrics", apiLimit, wsHandler.HandleMetrics)
		}
	}

	r.POST(eventbus.IngestPath,
		middleware.RequireInternalToken(cfg.InternalAPIToken),
		ingestLimit,
		eventbus.NewHTTPIngest(relay).Handle)

	return r
}
