package idempotency

import (
	"context"
	"fmt"
	"time"

	"handlit_backend/platform/config"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const mongoKeysCollection = "idempotency_keys"

// mongoCollection is the subset of *mongo.Collection used by MongoClaimer.
type mongoCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error)
}

type mongoKeyDoc struct {
	Key       string    `bson:"_id"`
	CreatedAt time.Time `bson:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

// MongoClaimer claims keys by inserting a document whose _id is the key.
type MongoClaimer struct {
	coll mongoCollection
	now  func() time.Time
}

// NewMongoClaimer connects, ensures the TTL index and returns the claimer
// together with the client so the caller can disconnect it.
func NewMongoClaimer(ctx context.Context, cfg config.MongoConfig) (*MongoClaimer, *mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.GetMongoURI()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}

	coll := client.Database(cfg.GetMongoDatabase()).Collection(mongoKeysCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ensure idempotency ttl index: %w", err)
	}

	return newMongoClaimer(coll), client, nil
}

func newMongoClaimer(coll mongoCollection) *MongoClaimer {
	return &MongoClaimer{coll: coll, now: time.Now}
}

// Claim implements Claimer.
func (c *MongoClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("claim %q: ttl must be positive", key)
	}
	now := c.now().UTC()
	doc := mongoKeyDoc{Key: key, CreatedAt: now, ExpiresAt: now.Add(ttl)}

	_, err := c.coll.InsertOne(ctx, doc)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("mongo claim %q: %w", key, err)
	}

	// The TTL monitor runs about once a minute; take over a stale document.
	res, err := c.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: key}, {Key: "expiresAt", Value: bson.D{{Key: "$lte", Value: now}}}},
		doc,
	)
	if err != nil {
		return false, fmt.Errorf("mongo reclaim %q: %w", key, err)
	}
	return res.MatchedCount == 1, nil
}

var _ Claimer = (*MongoClaimer)(nil)
