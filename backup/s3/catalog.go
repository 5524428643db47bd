package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDBClient is the subset of the DynamoDB API used by Catalog.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrConcurrentModification is returned when another writer recorded the
// same version first.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// Entry is one recorded backup.
type Entry struct {
	Version   uint64
	Name      string
	Size      int64
	CreatedAt time.Time
}

// Catalog records uploaded backups in a DynamoDB table.
type Catalog struct {
	client   DDBClient
	table    string
	location string
	now      func() time.Time
}

// NewCatalog returns a catalog for the backups stored at location, which
// is used as the partition key (e.g. "s3://bucket/prefix").
func NewCatalog(client DDBClient, table, location string) *Catalog {
	return &Catalog{
		client:   client,
		table:    table,
		location: location,
		now:      time.Now,
	}
}

// Record stores name under the next version and returns that version.
func (c *Catalog) Record(ctx context.Context, name string, size int64) (uint64, error) {
	latest, ok, err := c.Latest(ctx)
	if err != nil {
		return 0, err
	}

	version := uint64(1)
	if ok {
		version = latest.Version + 1
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			"location":   &types.AttributeValueMemberS{Value: c.location},
			"version":    &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"name":       &types.AttributeValueMemberS{Value: name},
			"size":       &types.AttributeValueMemberN{Value: strconv.FormatInt(size, 10)},
			"created_at": &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, ErrConcurrentModification
		}
		return 0, fmt.Errorf("catalog: put version %d: %w", version, err)
	}

	return version, nil
}

// Latest returns the most recently recorded backup.
func (c *Catalog) Latest(ctx context.Context) (Entry, bool, error) {
	resp, err := c.client.Query(ctx, c.query(false, aws.Int32(1)))
	if err != nil {
		return Entry{}, false, fmt.Errorf("catalog: query: %w", err)
	}
	if len(resp.Items) == 0 {
		return Entry{}, false, nil
	}

	e, err := decodeEntry(resp.Items[0])
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// List returns every recorded backup in version order.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	paginator := dynamodb.NewQueryPaginator(c.client, c.query(true, nil))
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog: query: %w", err)
		}
		for _, item := range page.Items {
			e, err := decodeEntry(item)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (c *Catalog) query(ascending bool, limit *int32) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("#loc = :loc"),
		ExpressionAttributeNames: map[string]string{
			"#loc": "location",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":loc": &types.AttributeValueMemberS{Value: c.location},
		},
		ScanIndexForward: aws.Bool(ascending),
		Limit:            limit,
	}
}

func decodeEntry(item map[string]types.AttributeValue) (Entry, error) {
	var e Entry

	version, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return e, errors.New("catalog: invalid version attribute")
	}
	name, ok := item["name"].(*types.AttributeValueMemberS)
	if !ok {
		return e, errors.New("catalog: invalid name attribute")
	}

	var err error
	if e.Version, err = strconv.ParseUint(version.Value, 10, 64); err != nil {
		return e, fmt.Errorf("catalog: parse version: %w", err)
	}
	e.Name = name.Value

	if size, ok := item["size"].(*types.AttributeValueMemberN); ok {
		e.Size, _ = strconv.ParseInt(size.Value, 10, 64)
	}
	if ts, ok := item["created_at"].(*types.AttributeValueMemberS); ok {
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts.Value)
	}
	return e, nil
}
