package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"handlit_backend/platform/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PutItemAPI is the subset of *dynamodb.Client used by DynamoDBClaimer.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoKeyItem is stored per claim. Table requirements:
//   - PK: key (string)
//   - TTL attribute: expires_at (epoch seconds)
type dynamoKeyItem struct {
	Key       string `dynamodbav:"key"`
	CreatedAt string `dynamodbav:"created_at"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// DynamoDBClaimer claims keys with a conditional PutItem.
type DynamoDBClaimer struct {
	ddb       PutItemAPI
	tableName string
	now       func() time.Time
}

// NewDynamoDBClaimer creates a claimer writing to tableName.
func NewDynamoDBClaimer(ddb PutItemAPI, tableName string) *DynamoDBClaimer {
	return &DynamoDBClaimer{ddb: ddb, tableName: tableName, now: time.Now}
}

// NewDynamoDBClient creates a DynamoDB client. Static credentials and a
// custom endpoint are optional and meant for local DynamoDB.
func NewDynamoDBClient(ctx context.Context, cfg config.AWSConfig) (*dynamodb.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.GetAWSRegion()),
	}
	if cfg.GetAWSAccessKeyID() != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.GetAWSAccessKeyID(), cfg.GetAWSSecretAccessKey(), ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.GetDynamoDBEndpoint()
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Claim implements Claimer.
func (c *DynamoDBClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("claim %q: ttl must be positive", key)
	}
	now := c.now().UTC()
	av, err := attributevalue.MarshalMap(dynamoKeyItem{
		Key:       key,
		CreatedAt: now.Format(time.RFC3339Nano),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return false, err
	}

	// DynamoDB TTL deletion is lazy, so an expired row can still be present.
	_, err = c.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#key) OR #expires_at <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#key":        "key",
			"#expires_at": "expires_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("dynamodb claim %q: %w", key, err)
	}
	return true, nil
}

var _ Claimer = (*DynamoDBClaimer)(nil)
