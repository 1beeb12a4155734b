// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides the redis connection used by the claim store.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides asynq queue settings.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqEventsQueueName() string
	GetAsynqConcurrency() int
}

// RelayConfig provides settings for the deal event relay.
type RelayConfig interface {
	GetEventRelayInterval() time.Duration
	GetEventRelayBatchSize() int
}

// DealsConfig provides the tunables of the deal state engine.
type DealsConfig interface {
	GetDedupeWindowDays() int
	GetFollowUpHorizon() time.Duration
	GetMaxConflictRetries() int
	GetStageMapFile() string
}

// IdempotencyConfig selects and tunes the idempotency claim store.
type IdempotencyConfig interface {
	GetIdempotencyBackend() string
	GetStateChangeTTL() time.Duration
	GetViewedTTL() time.Duration
	GetIdempotencyCleanupInterval() time.Duration
}

// AWSConfig provides settings for the DynamoDB claim store.
type AWSConfig interface {
	GetAWSRegion() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetDynamoDBEndpoint() string
	GetDynamoDBIdempotencyTable() string
}

// MongoConfig provides settings for the MongoDB claim store.
type MongoConfig interface {
	GetMongoURI() string
	GetMongoDatabase() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                        string
	HTTPAddr                   string
	DatabaseURL                string
	MigrationsEnabled          bool
	RedisURL                   string
	RedisTLSInsecure           bool
	AsynqQueueName             string
	AsynqEventsQueueName       string
	AsynqConcurrency           int
	CORSAllowAll               bool
	CORSOrigins                []string
	IdempotencyBackend         string
	StateChangeTTL             time.Duration
	ViewedTTL                  time.Duration
	IdempotencyCleanupInterval time.Duration
	DedupeWindowDays           int
	FollowUpHorizon            time.Duration
	MaxConflictRetries         int
	StageMapFile               string
	EventRelayInterval         time.Duration
	EventRelayBatchSize        int
	AWSRegion                  string
	AWSAccessKeyID             string
	AWSSecretAccessKey         string
	DynamoDBEndpoint           string
	DynamoDBIdempotencyTable   string
	MongoURI                   string
	MongoDatabase              string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string       { return c.AsynqQueueName }
func (c *Config) GetAsynqEventsQueueName() string { return c.AsynqEventsQueueName }
func (c *Config) GetAsynqConcurrency() int        { return c.AsynqConcurrency }

// RelayConfig implementation
func (c *Config) GetEventRelayInterval() time.Duration { return c.EventRelayInterval }
func (c *Config) GetEventRelayBatchSize() int          { return c.EventRelayBatchSize }

// DealsConfig implementation
func (c *Config) GetDedupeWindowDays() int            { return c.DedupeWindowDays }
func (c *Config) GetFollowUpHorizon() time.Duration   { return c.FollowUpHorizon }
func (c *Config) GetMaxConflictRetries() int          { return c.MaxConflictRetries }
func (c *Config) GetStageMapFile() string             { return c.StageMapFile }

// IdempotencyConfig implementation
func (c *Config) GetIdempotencyBackend() string       { return c.IdempotencyBackend }
func (c *Config) GetStateChangeTTL() time.Duration    { return c.StateChangeTTL }
func (c *Config) GetViewedTTL() time.Duration         { return c.ViewedTTL }
func (c *Config) GetIdempotencyCleanupInterval() time.Duration {
	return c.IdempotencyCleanupInterval
}

// AWSConfig implementation
func (c *Config) GetAWSRegion() string                { return c.AWSRegion }
func (c *Config) GetAWSAccessKeyID() string           { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string       { return c.AWSSecretAccessKey }
func (c *Config) GetDynamoDBEndpoint() string         { return c.DynamoDBEndpoint }
func (c *Config) GetDynamoDBIdempotencyTable() string { return c.DynamoDBIdempotencyTable }

// MongoConfig implementation
func (c *Config) GetMongoURI() string      { return c.MongoURI }
func (c *Config) GetMongoDatabase() string { return c.MongoDatabase }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// Idempotency backends understood by Load.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendMongo    = "mongo"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                        getEnv("APP_ENV", "development"),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                getEnv("DATABASE_URL", ""),
		MigrationsEnabled:          !strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "false"),
		RedisURL:                   getEnv("REDIS_URL", ""),
		RedisTLSInsecure:           strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:             getEnv("ASYNQ_QUEUE", "deals"),
		AsynqEventsQueueName:       getEnv("ASYNQ_EVENTS_QUEUE", "deals.events"),
		AsynqConcurrency:           int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
		CORSAllowAll:               corsAllowAll,
		CORSOrigins:                corsOrigins,
		IdempotencyBackend:         strings.ToLower(getEnv("IDEMPOTENCY_BACKEND", BackendRedis)),
		StateChangeTTL:             mustDuration(getEnv("IDEMPOTENCY_TTL_STATE", "24h")),
		ViewedTTL:                  mustDuration(getEnv("IDEMPOTENCY_TTL_VIEWED", "1h")),
		IdempotencyCleanupInterval: mustDuration(getEnv("IDEMPOTENCY_CLEANUP_INTERVAL", "168h")),
		DedupeWindowDays:           int(mustInt64(getEnv("DEALS_DEDUPE_WINDOW_DAYS", "30"))),
		FollowUpHorizon:            mustDuration(getEnv("DEALS_FOLLOW_UP_HORIZON", "24h")),
		MaxConflictRetries:         int(mustInt64(getEnv("DEALS_MAX_CONFLICT_RETRIES", "3"))),
		StageMapFile:               getEnv("DEALS_STAGE_MAP_FILE", ""),
		EventRelayInterval:         mustDuration(getEnv("EVENT_RELAY_INTERVAL", "2s")),
		EventRelayBatchSize:        int(mustInt64(getEnv("EVENT_RELAY_BATCH", "50"))),
		AWSRegion:                  getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:             getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:         getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoDBEndpoint:           getEnv("DYNAMODB_ENDPOINT", ""),
		DynamoDBIdempotencyTable:   getEnv("IDEMPOTENCY_DYNAMODB_TABLE", "deal_idempotency_keys"),
		MongoURI:                   getEnv("MONGODB_URI", ""),
		MongoDatabase:              getEnv("MONGODB_DATABASE", "deals"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	switch c.IdempotencyBackend {
	case BackendRedis, BackendPostgres, BackendDynamoDB:
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when IDEMPOTENCY_BACKEND is mongo")
		}
	default:
		return fmt.Errorf("unknown IDEMPOTENCY_BACKEND %q", c.IdempotencyBackend)
	}
	if c.StateChangeTTL <= 0 || c.ViewedTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL_STATE and IDEMPOTENCY_TTL_VIEWED must be positive durations")
	}
	if c.DedupeWindowDays <= 0 {
		return fmt.Errorf("DEALS_DEDUPE_WINDOW_DAYS must be positive")
	}
	if c.FollowUpHorizon <= 0 {
		return fmt.Errorf("DEALS_FOLLOW_UP_HORIZON must be a positive duration")
	}
	if c.MaxConflictRetries < 1 {
		return fmt.Errorf("DEALS_MAX_CONFLICT_RETRIES must be at least 1")
	}
	if c.AsynqEventsQueueName == c.AsynqQueueName {
		return fmt.Errorf("ASYNQ_EVENTS_QUEUE must differ from ASYNQ_QUEUE")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
