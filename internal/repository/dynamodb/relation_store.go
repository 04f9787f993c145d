package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"tagindex/internal/domain"
)

// Row layout. Each membership is stored twice, once under the item's
// partition and once under the tag's partition:
//
//	pk = "item#<item>", sk = "tag#<tag>"
//	pk = "tag#<tag>",   sk = "item#<item>"
//
// Under RetainEmpty a tag also owns the marker row pk = "tag#<tag>", sk = "#meta".
const (
	attrPK     = "pk"
	attrSK     = "sk"
	itemPrefix = "item#"
	tagPrefix  = "tag#"
	metaSK     = "#meta"
)

// Client is the subset of the DynamoDB API used by the relation store.
type Client interface {
	DescribeTable(ctx context.Context, params *ddb.DescribeTableInput, optFns ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error)
	TransactWriteItems(ctx context.Context, params *ddb.TransactWriteItemsInput, optFns ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error)
	Query(ctx context.Context, params *ddb.QueryInput, optFns ...func(*ddb.Options)) (*ddb.QueryOutput, error)
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
}

// Config holds the settings of the DynamoDB relation store.
type Config struct {
	Table string
	// Retention defaults to DeleteOnEmpty: a tag exists while its partition holds item rows.
	Retention domain.RetentionPolicy
}

// RelationStore keeps the relation in a single DynamoDB table, writing both
// views of a membership in one transaction.
type RelationStore struct {
	cfg Config

	// newClient is called by Start; client is set while started.
	newClient func(ctx context.Context) (Client, error)

	mu     sync.RWMutex
	client Client
}

// NewRelationStore returns a store that obtains its client from newClient at Start.
func NewRelationStore(cfg Config, newClient func(ctx context.Context) (Client, error)) *RelationStore {
	if cfg.Retention == 0 {
		cfg.Retention = domain.DeleteOnEmpty
	}
	return &RelationStore{cfg: cfg, newClient: newClient}
}

func (s *RelationStore) Retention() domain.RetentionPolicy { return s.cfg.Retention }

// Start builds the client and checks that the table is reachable.
func (s *RelationStore) Start(ctx context.Context) error {
	if s.cfg.Table == "" {
		return fmt.Errorf("%w: empty dynamodb table name", domain.ErrInvalidConfig)
	}
	if s.newClient == nil {
		return fmt.Errorf("%w: no dynamodb client factory", domain.ErrInvalidConfig)
	}
	c, err := s.newClient(ctx)
	if err != nil {
		return err
	}
	if _, err := c.DescribeTable(ctx, &ddb.DescribeTableInput{TableName: aws.String(s.cfg.Table)}); err != nil {
		return wrap("describe table", err)
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
	return nil
}

func (s *RelationStore) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
	return nil
}

func (s *RelationStore) conn() (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, domain.ErrNotStarted
	}
	return s.client, nil
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: pk},
		attrSK: &types.AttributeValueMemberS{Value: sk},
	}
}

func (s *RelationStore) TagItem(ctx context.Context, item, tag string) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	table := aws.String(s.cfg.Table)
	writes := []types.TransactWriteItem{
		{Put: &types.Put{TableName: table, Item: key(itemPrefix+item, tagPrefix+tag)}},
		{Put: &types.Put{TableName: table, Item: key(tagPrefix+tag, itemPrefix+item)}},
	}
	if s.cfg.Retention == domain.RetainEmpty {
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{TableName: table, Item: key(tagPrefix+tag, metaSK)},
		})
	}
	if _, err := c.TransactWriteItems(ctx, &ddb.TransactWriteItemsInput{TransactItems: writes}); err != nil {
		return wrap("tag item", err)
	}
	return nil
}

func (s *RelationStore) UntagItem(ctx context.Context, item, tag string) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	table := aws.String(s.cfg.Table)
	_, err = c.TransactWriteItems(ctx, &ddb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{TableName: table, Key: key(tagPrefix+tag, itemPrefix+item)}},
			{Delete: &types.Delete{TableName: table, Key: key(itemPrefix+item, tagPrefix+tag)}},
		},
	})
	if err != nil {
		return wrap("untag item", err)
	}
	return nil
}

// members pages through the partition pk, returning sort keys starting with
// prefix with the prefix stripped.
func (s *RelationStore) members(ctx context.Context, pk, prefix string, limit int32) ([]string, error) {
	c, err := s.conn()
	if err != nil {
		return nil, err
	}
	in := &ddb.QueryInput{
		TableName:              aws.String(s.cfg.Table),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: pk},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
		ConsistentRead: aws.Bool(true),
	}
	if limit > 0 {
		in.Limit = aws.Int32(limit)
	}

	out := []string{}
	for {
		resp, err := c.Query(ctx, in)
		if err != nil {
			return nil, wrap("query", err)
		}
		for _, row := range resp.Items {
			sk, ok := row[attrSK].(*types.AttributeValueMemberS)
			if !ok {
				return nil, fmt.Errorf("%w: malformed row in partition %s", domain.ErrBackend, pk)
			}
			out = append(out, strings.TrimPrefix(sk.Value, prefix))
		}
		if limit > 0 || len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		in.ExclusiveStartKey = resp.LastEvaluatedKey
	}
}

func (s *RelationStore) RetrieveTagsForItem(ctx context.Context, item string) ([]string, error) {
	return s.members(ctx, itemPrefix+item, tagPrefix, 0)
}

func (s *RelationStore) RetrieveItemsWithTag(ctx context.Context, tag string) ([]string, error) {
	return s.members(ctx, tagPrefix+tag, itemPrefix, 0)
}

// TagExists reads the marker row under RetainEmpty, otherwise probes the tag
// partition for a single item row.
func (s *RelationStore) TagExists(ctx context.Context, tag string) (bool, error) {
	if s.cfg.Retention != domain.RetainEmpty {
		items, err := s.members(ctx, tagPrefix+tag, itemPrefix, 1)
		if err != nil {
			return false, err
		}
		return len(items) > 0, nil
	}

	c, err := s.conn()
	if err != nil {
		return false, err
	}
	resp, err := c.GetItem(ctx, &ddb.GetItemInput{
		TableName:      aws.String(s.cfg.Table),
		Key:            key(tagPrefix+tag, metaSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, wrap("get marker", err)
	}
	return len(resp.Item) > 0, nil
}

func wrap(op string, err error) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		return fmt.Errorf("%w: %s: transaction canceled: %w", domain.ErrBackend, op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrBackend, op, err)
}
