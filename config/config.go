// Package config loads service configuration from .env and the environment
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string         `mapstructure:"env"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`

	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Retention RetentionConfig `mapstructure:"retention"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	SMS       SMSConfig       `mapstructure:"sms"`
	Viber     ViberConfig     `mapstructure:"viber"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port"`
	UploadDir   string `mapstructure:"upload_dir"`
	IngestToken string `mapstructure:"ingest_token"` // shared secret of the capture pipeline
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
}

type NATSConfig struct {
	Embedded       bool   `mapstructure:"embedded"`
	Port           int    `mapstructure:"port"`
	URL            string `mapstructure:"url"`
	CaptureSubject string `mapstructure:"capture_subject"`
	QueueGroup     string `mapstructure:"queue_group"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type LifecycleConfig struct {
	GracePeriod    time.Duration `mapstructure:"grace_period"`
	PresenceWindow time.Duration `mapstructure:"presence_window"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepBatch     int           `mapstructure:"sweep_batch"`
	MinConfidence  float64       `mapstructure:"min_confidence"`
}

type RetryConfig struct {
	Interval   time.Duration   `mapstructure:"interval"`
	MaxRetries int             `mapstructure:"max_retries"`
	Backoff    []time.Duration `mapstructure:"backoff"`
	BatchSize  int             `mapstructure:"batch_size"`
}

type RetentionConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Window    time.Duration `mapstructure:"window"`
	BatchSize int           `mapstructure:"batch_size"`
}

type DispatchConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	CountryCode string        `mapstructure:"country_code"`
}

type SMSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	SenderName string `mapstructure:"sender_name"`
}

type ViberConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Sender  string `mapstructure:"sender"`
}

// IsProduction reports whether ENV=production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env (if present) and the environment into a Config.
// Keys map to env vars by upper-casing and replacing dots, e.g. retry.max_retries -> RETRY_MAX_RETRIES.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keep the historical names working
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("env", "ENV")

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if len(c.Retry.Backoff) == 0 {
		return fmt.Errorf("retry.backoff must list at least one delay")
	}
	if c.Lifecycle.GracePeriod <= 0 || c.Lifecycle.SweepInterval <= 0 {
		return fmt.Errorf("lifecycle timings must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", "3001")
	v.SetDefault("server.upload_dir", "./data/uploads")
	v.SetDefault("server.ingest_token", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.slow_threshold", 500*time.Millisecond)

	// Port 4233 matches the central NATS port used by the edge nodes
	v.SetDefault("nats.embedded", true)
	v.SetDefault("nats.port", 4233)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.capture_subject", "captures.>")
	v.SetDefault("nats.queue_group", "parking-core")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "parking.violations")

	v.SetDefault("jwt.secret", "default-dev-secret-change-me")
	v.SetDefault("jwt.expiration", 24*time.Hour)

	v.SetDefault("log.level", "info")

	v.SetDefault("lifecycle.grace_period", 30*time.Minute)
	v.SetDefault("lifecycle.presence_window", 15*time.Minute)
	v.SetDefault("lifecycle.sweep_interval", 15*time.Second)
	v.SetDefault("lifecycle.sweep_batch", 200)
	v.SetDefault("lifecycle.min_confidence", 0.5)

	v.SetDefault("retry.interval", 5*time.Minute)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.backoff", []time.Duration{5 * time.Minute, 15 * time.Minute, 30 * time.Minute})
	v.SetDefault("retry.batch_size", 100)

	v.SetDefault("retention.interval", 6*time.Hour)
	v.SetDefault("retention.window", 24*time.Hour)
	v.SetDefault("retention.batch_size", 500)

	v.SetDefault("dispatch.timeout", 10*time.Second)
	v.SetDefault("dispatch.country_code", "63")

	v.SetDefault("sms.enabled", false)
	v.SetDefault("sms.url", "https://api.semaphore.co/api/v4/messages")
	v.SetDefault("sms.api_key", "")
	v.SetDefault("sms.sender_name", "PARKWATCH")

	v.SetDefault("viber.enabled", false)
	v.SetDefault("viber.url", "https://chatapi.viber.com/pa/send_message")
	v.SetDefault("viber.token", "")
	v.SetDefault("viber.sender", "ParkWatch")
}
