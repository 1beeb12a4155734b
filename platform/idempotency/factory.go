package idempotency

import (
	"context"
	"fmt"

	"handlit_backend/platform/config"
)

// BackendConfig is everything Open needs to build any claim store.
type BackendConfig interface {
	config.IdempotencyConfig
	config.RedisConfig
	config.AWSConfig
	config.MongoConfig
}

// Store is an opened claim store. Cleaner is non-nil only for backends that
// need expired keys swept by a job; Close releases backend connections.
type Store struct {
	Claimer Claimer
	Cleaner *PostgresClaimer
	Close   func(ctx context.Context) error
}

// Open builds the claim store selected by IDEMPOTENCY_BACKEND. db is used by
// the postgres backend.
func Open(ctx context.Context, cfg BackendConfig, db Querier) (*Store, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.GetIdempotencyBackend() {
	case config.BackendRedis, "":
		client, err := NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return &Store{
			Claimer: NewRedisClaimer(client),
			Close:   func(context.Context) error { return client.Close() },
		}, nil

	case config.BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres claim store needs a database pool")
		}
		pg := NewPostgresClaimer(db)
		return &Store{Claimer: pg, Cleaner: pg, Close: noop}, nil

	case config.BackendDynamoDB:
		client, err := NewDynamoDBClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Store{
			Claimer: NewDynamoDBClaimer(client, cfg.GetDynamoDBIdempotencyTable()),
			Close:   noop,
		}, nil

	case config.BackendMongo:
		claimer, client, err := NewMongoClaimer(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Store{Claimer: claimer, Close: client.Disconnect}, nil

	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.GetIdempotencyBackend())
	}
}
