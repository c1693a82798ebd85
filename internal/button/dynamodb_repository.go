package button

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the subset of *dynamodb.Client the repository uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoItem is the stored shape. Config is kept as a JSON string so the
// table never needs to know about the config schema.
type dynamoItem struct {
	Key       string `dynamodbav:"key"`
	Identity  string `dynamodbav:"identity"`
	Config    string `dynamodbav:"config"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// DynamoDBRepository implements Repository on a DynamoDB table whose
// partition key is the string attribute "key".
type DynamoDBRepository struct {
	client DynamoDBAPI
	table  string
	now    func() time.Time
}

// NewDynamoDBRepository wraps an existing client.
func NewDynamoDBRepository(client DynamoDBAPI, table string) *DynamoDBRepository {
	return &DynamoDBRepository{client: client, table: table, now: time.Now}
}

// DynamoDBOptions configures OpenDynamoDB.
type DynamoDBOptions struct {
	Table    string
	Region   string // empty uses the SDK's default chain
	Endpoint string // non-empty targets DynamoDB Local or a compatible service
}

// OpenDynamoDB loads the default AWS configuration and returns a
// repository for opts.Table.
func OpenDynamoDB(ctx context.Context, opts DynamoDBOptions) (*DynamoDBRepository, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewDynamoDBRepository(client, opts.Table), nil
}

// Get retrieves the config stored for identity at c.
func (r *DynamoDBRepository) Get(ctx context.Context, identity string, c Coordinate) (Config, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: Key(identity, c)},
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("getting button config: %w", err)
	}
	if len(out.Item) == 0 {
		return Config{}, ErrNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return Config{}, fmt.Errorf("unmarshalling button item: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(item.Config), &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding button config %s: %w", item.Key, err)
	}
	return cfg, nil
}

// Put stores cfg, replacing any previous item.
func (r *DynamoDBRepository) Put(ctx context.Context, identity string, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding button config: %w", err)
	}

	item, err := attributevalue.MarshalMap(dynamoItem{
		Key:       Key(identity, cfg.Coordinates),
		Identity:  identity,
		Config:    string(raw),
		UpdatedAt: r.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshalling button item: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("putting button config: %w", err)
	}
	return nil
}
