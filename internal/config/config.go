package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the platemate server.
type Config struct {
	Server    ServerConfig
	Dynamo    DynamoConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Token     TokenConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DynamoConfig holds DynamoDB configuration.
type DynamoConfig struct {
	Region            string `env:"DYNAMO_REGION" envDefault:"us-east-1"`
	Endpoint          string `env:"DYNAMO_ENDPOINT" envDefault:""`
	SessionsTable     string `env:"DYNAMO_SESSIONS_TABLE" envDefault:"sessions"`
	UserSessionsTable string `env:"DYNAMO_USER_SESSIONS_TABLE" envDefault:"user_sessions"`
	ItemsTable        string `env:"DYNAMO_ITEMS_TABLE" envDefault:"items"`
	CodeIndex         string `env:"DYNAMO_CODE_INDEX" envDefault:"code-index"`
}

// RedisConfig holds cache-tier configuration.
type RedisConfig struct {
	Host           string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port           int           `env:"REDIS_PORT" envDefault:"6379"`
	Password       string        `env:"REDIS_PASSWORD" envDefault:""`
	DB             int           `env:"REDIS_DB" envDefault:"0"`
	ClusterAddrs   []string      `env:"REDIS_CLUSTER_ADDRS" envSeparator:","`
	MinConns       int           `env:"REDIS_MIN_CONNS" envDefault:"2"`
	MaxConns       int           `env:"REDIS_MAX_CONNS" envDefault:"10"`
	AcquireTimeout time.Duration `env:"REDIS_ACQUIRE_TIMEOUT" envDefault:"5s"`
	IdleTimeout    time.Duration `env:"REDIS_IDLE_TIMEOUT" envDefault:"5m"`
	DialTimeout    time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	// Hex-encoded 32-byte key; empty disables the encryption envelope.
	EncryptionKey string `env:"REDIS_ENCRYPTION_KEY" envDefault:""`
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL           string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	SubjectPrefix string        `env:"NATS_SUBJECT_PREFIX" envDefault:"platemate"`
	MaxReconnects int           `env:"NATS_MAX_RECONNECTS" envDefault:"10"`
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`
}

// TokenConfig holds JWT verification configuration. The server only
// verifies tokens; issuing belongs to the identity service.
type TokenConfig struct {
	Issuer     string `env:"TOKEN_ISSUER" envDefault:""`
	Audience   string `env:"TOKEN_AUDIENCE" envDefault:""`
	SigningKey string `env:"TOKEN_SIGNING_KEY,required"`
}

// SessionConfig holds session domain limits.
type SessionConfig struct {
	MaxParticipants   int           `env:"SESSION_MAX_PARTICIPANTS" envDefault:"5"`
	MatchThreshold    int           `env:"SESSION_MATCH_THRESHOLD" envDefault:"2"`
	Duration          time.Duration `env:"SESSION_DURATION" envDefault:"2h"`
	MaxMessageLen     int           `env:"SESSION_MAX_MESSAGE_LEN" envDefault:"500"`
	MaxActiveSessions int           `env:"SESSION_MAX_ACTIVE" envDefault:"1"`
	AggregateTTL      time.Duration `env:"SESSION_CACHE_TTL" envDefault:"10m"`
	ListTTL           time.Duration `env:"SESSION_LIST_CACHE_TTL" envDefault:"5m"`
}

// RateLimitConfig holds per-user websocket action limits.
type RateLimitConfig struct {
	Limit  int64         `env:"RATE_LIMIT" envDefault:"30"`
	Window time.Duration `env:"RATE_WINDOW" envDefault:"1m"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "PLATEMATE_"}); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Address returns the HTTP server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Address returns the Redis address.
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
