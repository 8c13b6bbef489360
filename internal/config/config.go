package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig
	Backend   ServiceConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Sessions  SessionConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
	Logging   LoggingConfig
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// ServiceConfig holds configuration for the stockwatch backend
type ServiceConfig struct {
	URL     string
	Timeout time.Duration
}

// RedisConfig holds Redis connection and catalog cache configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Cache    CacheConfig
}

// CacheConfig holds the indicator catalog cache configuration
type CacheConfig struct {
	Enabled   bool
	TTL       time.Duration
	PrefixKey string
}

// KafkaConfig holds Kafka specific configuration
type KafkaConfig struct {
	Brokers      string
	ClientID     string
	DefaultTopic string
	// Topics overrides the topic per event, keyed by the event name without
	// its "alert." prefix
	Topics       map[string]string
	MaxRetries   uint64
	RetryBackoff time.Duration

	// PublishTimeout bounds the delivery of one event, retries included
	PublishTimeout time.Duration
	QueueSize      int
}

// BrokerList returns the configured brokers, empty when events are disabled
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// EventTopics returns the topic overrides keyed by full event type
func (k KafkaConfig) EventTopics() map[string]string {
	out := make(map[string]string, len(k.Topics))
	for name, topic := range k.Topics {
		out["alert."+name] = topic
	}
	return out
}

// SessionConfig holds form session configuration
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	LoadTimeout   time.Duration
}

// RateLimitConfig holds submit rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// AuthConfig holds request authentication configuration. Without a JWT
// secret token claims are never trusted and sessions are keyed by token.
type AuthConfig struct {
	JWTSecret string
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LoadConfig loads the configuration from file and environment variables.
// A missing file is not an error; defaults and the environment still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Environment variables override, e.g. BACKEND_URL for backend.url
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Backend.URL == "" {
		return nil, errors.New("backend.url is required")
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.idleTimeout", "120s")
	v.SetDefault("server.shutdownTimeout", "10s")

	// Backend defaults
	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache.enabled", true)
	v.SetDefault("redis.cache.ttl", "1h")
	v.SetDefault("redis.cache.prefixKey", "alert-composer")

	// Kafka defaults
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.clientID", "alert-composer")
	v.SetDefault("kafka.defaultTopic", "alert-events")
	v.SetDefault("kafka.topics.rejected", "alert-rejections")
	v.SetDefault("kafka.maxRetries", 5)
	v.SetDefault("kafka.retryBackoff", "200ms")
	v.SetDefault("kafka.publishTimeout", "5s")
	v.SetDefault("kafka.queueSize", 256)

	// Session defaults
	v.SetDefault("sessions.ttl", "30m")
	v.SetDefault("sessions.sweepInterval", "1m")
	v.SetDefault("sessions.loadTimeout", "10s")

	// Rate limit defaults
	v.SetDefault("rateLimit.requestsPerMinute", 30)
	v.SetDefault("rateLimit.burstSize", 5)

	// Auth defaults
	v.SetDefault("auth.jwtSecret", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.maxSizeMB", 100)
	v.SetDefault("logging.maxBackups", 3)
	v.SetDefault("logging.maxAgeDays", 28)
}
