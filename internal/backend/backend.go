// Package backend selects the relation store implementation named by the configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"tagindex/config"
	"tagindex/internal/adapters/awsclient"
	"tagindex/internal/domain"
	"tagindex/internal/repository/dynamodb"
	"tagindex/internal/repository/memory"
	"tagindex/internal/repository/postgres"
	"tagindex/internal/repository/redis"
)

// New returns the store for cfg.Backend. The store is not started.
func New(cfg *config.Config, logger *slog.Logger) (domain.RelationStore, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewRelationStore(memory.WithRetention(cfg.Retention)), nil
	case config.BackendRedis:
		rc := redis.DefaultConfig(cfg.Redis.Nodes...)
		if cfg.Redis.ItemPrefix != "" {
			rc.ItemPrefix = cfg.Redis.ItemPrefix
		}
		if cfg.Redis.TagPrefix != "" {
			rc.TagPrefix = cfg.Redis.TagPrefix
		}
		if cfg.Redis.SharedNamespace {
			rc.ItemPrefix, rc.TagPrefix = "", ""
		}
		if cfg.Redis.KnownTagsKey != "" {
			rc.KnownTagsKey = cfg.Redis.KnownTagsKey
		}
		if cfg.Retention != 0 {
			rc.Retention = cfg.Retention
		}
		return redis.NewRelationStore(rc, logger), nil
	case config.BackendPostgres:
		return postgres.NewRelationStore(postgres.Config{
			DSN:         cfg.Postgres.DBUrl,
			Retention:   cfg.Retention,
			AutoMigrate: cfg.Postgres.AutoMigrate,
		}), nil
	case config.BackendDynamoDB:
		dc := cfg.DynamoDB
		newClient := func(ctx context.Context) (dynamodb.Client, error) {
			return awsclient.NewDynamoDBClient(ctx, awsclient.DynamoDBConfig{
				Region:             dc.Region,
				Endpoint:           dc.Endpoint,
				AccessKeyID:        dc.AccessKeyID,
				SecretAccessKey:    dc.SecretAccessKey,
				InsecureSkipVerify: dc.InsecureSkipVerify,
			}, logger)
		}
		return dynamodb.NewRelationStore(dynamodb.Config{
			Table:     dc.Table,
			Retention: cfg.Retention,
		}, newClient), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", domain.ErrInvalidConfig, cfg.Backend)
	}
}
