// Package config loads the realtime server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Event bus drivers accepted in EVENT_BUS_DRIVERS
const (
	DriverRedis    = "redis"
	DriverKafka    = "kafka"
	DriverPostgres = "postgres"
)

// Config holds every setting the server binaries need
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	LogFile     string

	JWTSecret        []byte
	InternalAPIToken string
	CORSOrigins      []string

	Database DatabaseConfig
	Redis    RedisConfig
	EventBus EventBusConfig
	Realtime RealtimeConfig
	Tracing  TracingConfig
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns DATABASE_URL when set, otherwise a key/value DSN built from the parts
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Name, d.SSLMode)
	if d.Password != "" {
		dsn += " password=" + d.Password
	}
	return dsn
}

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// Enabled reports whether a Redis host was configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// EventBusConfig selects which cross-process event sources feed the relay
type EventBusConfig struct {
	Drivers      []string
	Channel      string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

// Has reports whether a driver is enabled
func (e EventBusConfig) Has(driver string) bool {
	for _, d := range e.Drivers {
		if d == driver {
			return true
		}
	}
	return false
}

// RealtimeConfig tunes the websocket layer
type RealtimeConfig struct {
	TypingDebounce       time.Duration
	TypingIdleTimeout    time.Duration
	MaxMessagesPerSecond int
	BurstSize            int
}

// TracingConfig holds OpenTelemetry exporter settings
type TracingConfig struct {
	Enabled      bool
	Endpoint     string
	SamplingRate float64
}

// Load reads the configuration from the environment.
// JWT_SECRET is required; everything else has a development default.
func Load() (*Config, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	debounce, err := durationEnv("TYPING_DEBOUNCE", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	idle, err := durationEnv("TYPING_IDLE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	if idle <= debounce {
		return nil, fmt.Errorf("TYPING_IDLE_TIMEOUT (%s) must be longer than TYPING_DEBOUNCE (%s)", idle, debounce)
	}

	maxPerSecond, err := intEnv("WS_MAX_MESSAGES_PER_SECOND", 10)
	if err != nil {
		return nil, err
	}
	burst, err := intEnv("WS_BURST", 20)
	if err != nil {
		return nil, err
	}

	sampling, err := floatEnv("OTEL_SAMPLING_RATE", 1.0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:             getEnvOrDefault("PORT", "8787"),
		Environment:      getEnvOrDefault("ENVIRONMENT", "development"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:          getEnvOrDefault("LOG_FILE", "server.log"),
		JWTSecret:        []byte(secret),
		InternalAPIToken: os.Getenv("INTERNAL_API_TOKEN"),
		CORSOrigins:      splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		Database:         LoadDatabase(),
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		EventBus: EventBusConfig{
			Drivers:      splitList(os.Getenv("EVENT_BUS_DRIVERS")),
			Channel:      getEnvOrDefault("EVENT_BUS_CHANNEL", "realtime_events"),
			KafkaBrokers: splitList(getEnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
			KafkaTopic:   getEnvOrDefault("KAFKA_TOPIC", "realtime-events"),
			KafkaGroupID: getEnvOrDefault("KAFKA_GROUP_ID", "realtime-relay"),
		},
		Realtime: RealtimeConfig{
			TypingDebounce:       debounce,
			TypingIdleTimeout:    idle,
			MaxMessagesPerSecond: maxPerSecond,
			BurstSize:            burst,
		},
		Tracing: TracingConfig{
			Enabled:      os.Getenv("OTEL_ENABLED") == "true",
			Endpoint:     getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			SamplingRate: sampling,
		},
	}

	for _, d := range cfg.EventBus.Drivers {
		switch d {
		case DriverRedis, DriverKafka, DriverPostgres:
		default:
			return nil, fmt.Errorf("unknown event bus driver %q", d)
		}
	}
	if cfg.EventBus.Has(DriverRedis) && !cfg.Redis.Enabled() {
		return nil, fmt.Errorf("event bus driver %q requires REDIS_HOST", DriverRedis)
	}

	return cfg, nil
}

// LoadDatabase reads only the database settings, for tools that need no
// JWT secret
func LoadDatabase() DatabaseConfig {
	return DatabaseConfig{
		URL:      os.Getenv("DATABASE_URL"),
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASSWORD"),
		Name:     getEnvOrDefault("DB_NAME", "threads"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
}

// IsProduction reports whether ENVIRONMENT=production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
