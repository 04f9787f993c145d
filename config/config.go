package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"tagindex/internal/domain"
)

// Backend names accepted in TAGINDEX_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// RedisConfig holds the Redis backend settings.
type RedisConfig struct {
	Nodes        []string
	ItemPrefix   string
	TagPrefix    string
	KnownTagsKey string
	// SharedNamespace stores item and tag sets under unprefixed keys.
	SharedNamespace bool
}

// PostgresConfig holds the Postgres backend settings.
type PostgresConfig struct {
	DBUrl       string
	AutoMigrate bool
}

// DynamoDBConfig holds the DynamoDB backend settings.
type DynamoDBConfig struct {
	Table              string
	Region             string
	Endpoint           string
	AccessKeyID        string
	SecretAccessKey    string
	InsecureSkipVerify bool
}

// Config holds all configuration for the tag index
type Config struct {
	Environment string
	LogLevel    string
	Backend     string
	// Retention is 0 when TAG_RETENTION is unset, leaving the backend default in place.
	Retention domain.RetentionPolicy
	Redis     RedisConfig
	Postgres  PostgresConfig
	DynamoDB  DynamoDBConfig
}

// Load loads configuration from environment variables
// It attempts to load from .env file if not in production
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// In production the environment is authoritative and .env may be absent.
	if env != "production" {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found or couldn't be loaded: %v", err)
		}
	}

	return FromEnv(env, os.Getenv)
}

// FromEnv builds a Config from getenv. Backend-specific fields are not
// validated here; each backend checks its own settings when started.
func FromEnv(env string, getenv func(string) string) (*Config, error) {
	retention, err := domain.ParseRetentionPolicy(getenv("TAG_RETENTION"))
	if err != nil {
		return nil, err
	}
	autoMigrate, err := parseBool(getenv("DATABASE_AUTO_MIGRATE"))
	if err != nil {
		return nil, fmt.Errorf("%w: DATABASE_AUTO_MIGRATE: %v", domain.ErrInvalidConfig, err)
	}
	shared, err := parseBool(getenv("REDIS_SHARED_NAMESPACE"))
	if err != nil {
		return nil, fmt.Errorf("%w: REDIS_SHARED_NAMESPACE: %v", domain.ErrInvalidConfig, err)
	}
	insecure, err := parseBool(getenv("DYNAMODB_INSECURE_SKIP_VERIFY"))
	if err != nil {
		return nil, fmt.Errorf("%w: DYNAMODB_INSECURE_SKIP_VERIFY: %v", domain.ErrInvalidConfig, err)
	}

	cfg := &Config{
		Environment: env,
		LogLevel:    getenv("LOG_LEVEL"),
		Backend:     strings.ToLower(strings.TrimSpace(getenv("TAGINDEX_BACKEND"))),
		Retention:   retention,
		Redis: RedisConfig{
			Nodes:           splitList(getenv("REDIS_NODES")),
			ItemPrefix:      getenv("REDIS_ITEM_PREFIX"),
			TagPrefix:       getenv("REDIS_TAG_PREFIX"),
			KnownTagsKey:    getenv("REDIS_KNOWN_TAGS_KEY"),
			SharedNamespace: shared,
		},
		Postgres: PostgresConfig{
			DBUrl:       getenv("DATABASE_URL"),
			AutoMigrate: autoMigrate,
		},
		DynamoDB: DynamoDBConfig{
			Table:              getenv("DYNAMODB_TABLE"),
			Region:             getenv("AWS_REGION"),
			Endpoint:           getenv("DYNAMODB_ENDPOINT"),
			AccessKeyID:        getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey:    getenv("AWS_SECRET_ACCESS_KEY"),
			InsecureSkipVerify: insecure,
		},
	}

	// Set defaults
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if cfg.Redis.SharedNamespace {
		cfg.Redis.ItemPrefix, cfg.Redis.TagPrefix = "", ""
	} else {
		if cfg.Redis.ItemPrefix == "" {
			cfg.Redis.ItemPrefix = "item:"
		}
		if cfg.Redis.TagPrefix == "" {
			cfg.Redis.TagPrefix = "tag:"
		}
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
