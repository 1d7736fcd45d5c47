// Package config provides configuration for the cache and ephemeral-state
// layer: typed sections with defaults, a layered loader (defaults, YAML
// file, environment variables), struct-tag validation, and a file watcher
// for hot-reloading tunable settings.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config holds all configuration for the cache layer and its workers.
type Config struct {
	Environment Environment `yaml:"environment" validate:"required,oneof=development staging production"`

	Server   Server   `yaml:"server"`
	Redis    Redis    `yaml:"redis"`
	DynamoDB DynamoDB `yaml:"dynamodb"`
	Cache    Cache    `yaml:"cache"`
	Buffer   Buffer   `yaml:"buffer"`
	Expiry   Expiry   `yaml:"expiry"`
	Warmer   Warmer   `yaml:"warmer"`
	Metrics  Metrics  `yaml:"metrics"`
	Workers  Workers  `yaml:"workers"`
	Logging  Logging  `yaml:"logging"`
	Tracing  Tracing  `yaml:"tracing"`

	// LoadedFrom records the sources the configuration was assembled from.
	LoadedFrom []string `yaml:"-"`
}

// Server configures the ops HTTP endpoint (health, metrics, cache stats).
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Redis configures the backing key-value store client.
type Redis struct {
	Host         string        `yaml:"host" validate:"required"`
	Port         int           `yaml:"port" validate:"gte=1,lte=65535"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	PoolSize     int           `yaml:"pool_size" validate:"gte=1"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// OpTimeout bounds every store call issued by the cache layer.
	// A timed-out call degrades to a miss.
	OpTimeout time.Duration `yaml:"op_timeout"`
}

// Addr returns the host:port address for the Redis client.
func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DynamoDB configures the durable-store adapter used by the write-behind
// buffer and the expiry scheduler.
type DynamoDB struct {
	Region        string        `yaml:"region" validate:"required"`
	ProductsTable string        `yaml:"products_table" validate:"required"`
	OffersTable   string        `yaml:"offers_table" validate:"required"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries" validate:"gte=0"`
}

// Cache holds TTL tiers and serialization tuning. These settings are
// hot-reloadable through the config watcher.
type Cache struct {
	DefaultTTL  time.Duration `yaml:"default_ttl"`
	FeedTTL     time.Duration `yaml:"feed_ttl"`
	SearchTTL   time.Duration `yaml:"search_ttl"`
	TrendingTTL time.Duration `yaml:"trending_ttl"`
	ProductTTL  time.Duration `yaml:"product_ttl"`
	PresenceTTL time.Duration `yaml:"presence_ttl"`
	TypingTTL   time.Duration `yaml:"typing_ttl"`
	// CompressionThreshold is the serialized size in bytes above which
	// values are transparently compressed.
	CompressionThreshold int `yaml:"compression_threshold" validate:"gte=0"`
}

// Buffer configures the write-behind view counter buffer.
type Buffer struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Expiry configures the offer expiry scheduler.
type Expiry struct {
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	ReminderWindow time.Duration `yaml:"reminder_window"`
	// OrphanCleanupEvery runs the reconciliation pass every Nth sweep.
	OrphanCleanupEvery int `yaml:"orphan_cleanup_every" validate:"gte=1"`
}

// Warmer configures proactive cache warming.
type Warmer struct {
	Interval  time.Duration `yaml:"interval"`
	FeedPages int           `yaml:"feed_pages" validate:"gte=1"`
	PageSize  int           `yaml:"page_size" validate:"gte=1"`
}

// Metrics configures the in-process cache metrics collector.
type Metrics struct {
	Namespace string `yaml:"namespace"`
	// RetentionWindow bounds how long raw samples are kept.
	RetentionWindow time.Duration `yaml:"retention_window"`
	// PercentileWindow is the number of recent samples used for
	// percentile computation.
	PercentileWindow int `yaml:"percentile_window" validate:"gte=100"`
}

// Workers configures the bounded background task pool used for
// revalidation and prefetch dispatch.
type Workers struct {
	PoolSize  int `yaml:"pool_size" validate:"gte=1"`
	QueueSize int `yaml:"queue_size" validate:"gte=1"`
}

// Logging configures zap.
type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Tracing configures OpenTelemetry export.
type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// Validate checks the configuration using struct tags plus cross-field
// rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Redis.OpTimeout <= 0 {
		return fmt.Errorf("redis.op_timeout must be positive")
	}
	if c.Cache.TypingTTL >= c.Cache.PresenceTTL {
		return fmt.Errorf("cache.typing_ttl must be shorter than cache.presence_ttl")
	}
	if c.Buffer.FlushInterval <= 0 || c.Expiry.SweepInterval <= 0 {
		return fmt.Errorf("buffer.flush_interval and expiry.sweep_interval must be positive")
	}
	if c.Environment == Production && c.Redis.Password == "" {
		return fmt.Errorf("redis.password is required in production")
	}
	return nil
}

// Default returns the configuration defaults. The loader overlays file and
// environment values on top of these.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            9090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: Redis{
			Host:         "localhost",
			Port:         6379,
			DB:           0,
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			OpTimeout:    2 * time.Second,
		},
		DynamoDB: DynamoDB{
			Region:        "me-central-1",
			ProductsTable: "jiran-products",
			OffersTable:   "jiran-offers",
			Timeout:       10 * time.Second,
			MaxRetries:    3,
		},
		Cache: Cache{
			DefaultTTL:           15 * time.Minute,
			FeedTTL:              5 * time.Minute,
			SearchTTL:            10 * time.Minute,
			TrendingTTL:          30 * time.Minute,
			ProductTTL:           15 * time.Minute,
			PresenceTTL:          5 * time.Minute,
			TypingTTL:            3 * time.Second,
			CompressionThreshold: 1024,
		},
		Buffer: Buffer{
			FlushInterval: 5 * time.Second,
		},
		Expiry: Expiry{
			SweepInterval:      60 * time.Second,
			ReminderWindow:     30 * time.Minute,
			OrphanCleanupEvery: 10,
		},
		Warmer: Warmer{
			Interval:  24 * time.Hour,
			FeedPages: 3,
			PageSize:  20,
		},
		Metrics: Metrics{
			Namespace:        "jiran",
			RetentionWindow:  24 * time.Hour,
			PercentileWindow: 10000,
		},
		Workers: Workers{
			PoolSize:  8,
			QueueSize: 256,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Tracing: Tracing{
			Enabled:     false,
			ServiceName: "jiran-cache",
			Endpoint:    "localhost:4317",
			SampleRate:  0.1,
		},
	}
}
