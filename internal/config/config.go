// Package config loads process settings from an optional .env file and the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/MagnunAVF/shortener-core/internal/logger"
)

type Config struct {
	Port      string
	AppDomain string

	DBDriver     string
	DBURL        string
	GormLogLevel string

	CacheBackend  string
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ClickSink          string
	RabbitMQURL        string
	ClickQueue         string
	NATSURL            string
	NATSStream         string
	NATSSubject        string
	ClickBatchSize     int
	ClickFlushInterval time.Duration
	ClickBufferSize    int

	SweepInterval time.Duration
	SweepGrace    time.Duration

	CodeLength        int
	CodeMaxAttempts   int
	NodeID            int64
	BackgroundTimeout time.Duration

	Log logger.Config
}

// Load reads .env (if present) and then the environment.
func Load(service string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		slog.Warn(".env file not found, relying on env vars", "err", err)
	}
	return FromEnv(service)
}

// FromEnv builds a Config from the environment only.
func FromEnv(service string) (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Port:      portFor(service),
		AppDomain: strings.TrimRight(getenv("APP_DOMAIN", "http://localhost:8080"), "/"),

		DBDriver:     strings.ToLower(getenv("DB_DRIVER", "postgres")),
		DBURL:        os.Getenv("DB_URL"),
		GormLogLevel: getenv("GORM_LOG_LEVEL", "warn"),

		CacheBackend:  strings.ToLower(getenv("CACHE_BACKEND", "redis")),
		CacheTTL:      p.duration("CACHE_TTL", 24*time.Hour),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.int("REDIS_DB", 0),

		ClickSink:          strings.ToLower(getenv("CLICK_SINK", "buffered")),
		RabbitMQURL:        os.Getenv("RABBITMQ_URL"),
		ClickQueue:         getenv("CLICK_QUEUE_NAME", "click_events"),
		NATSURL:            getenv("NATS_URL", "nats://localhost:4222"),
		NATSStream:         getenv("NATS_STREAM", "CLICKS"),
		NATSSubject:        getenv("NATS_SUBJECT", "clicks.recorded"),
		ClickBatchSize:     p.int("CLICK_BATCH_SIZE", 100),
		ClickFlushInterval: p.duration("CLICK_FLUSH_INTERVAL", 2*time.Second),
		ClickBufferSize:    p.int("CLICK_BUFFER_SIZE", 10000),

		SweepInterval: p.duration("SWEEP_INTERVAL", 24*time.Hour),
		SweepGrace:    p.duration("SWEEP_GRACE", 7*24*time.Hour),

		CodeLength:        p.int("CODE_LENGTH", 7),
		CodeMaxAttempts:   p.int("CODE_MAX_ATTEMPTS", 10),
		NodeID:            int64(p.int("NODE_ID", 1)),
		BackgroundTimeout: p.duration("BACKGROUND_TIMEOUT", 5*time.Second),

		Log: logger.ConfigFromEnv(service),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	switch c.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory or redis, got %q", c.CacheBackend)
	}
	switch c.ClickSink {
	case "buffered":
	case "amqp":
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when CLICK_SINK=amqp")
		}
	case "nats":
	default:
		return fmt.Errorf("CLICK_SINK must be buffered, amqp or nats, got %q", c.ClickSink)
	}
	if c.ClickBatchSize <= 0 {
		return fmt.Errorf("CLICK_BATCH_SIZE must be positive")
	}
	return nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// parser keeps the first malformed value it sees.
type parser struct {
	err error
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	if err != nil {
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	if err != nil {
		return def
	}
	return d
}

// portFor reads <SERVICE>_PORT, so api-service listens on API_SERVICE_PORT.
func portFor(service string) string {
	if service == "api-service" || service == "" {
		return getenv("API_SERVICE_PORT", ":8080")
	}
	return getenv(strings.ToUpper(strings.ReplaceAll(service, "-", "_"))+"_PORT", ":9090")
}
