package s3

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Empty(t *testing.T) {
	c := NewCatalog(newMockDDBClient(), "linkdb-backups", "s3://bucket/")

	_, ok, err := c.Latest(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCatalog_RecordAndList(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog(newMockDDBClient(), "linkdb-backups", "s3://bucket/")
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	for i, name := range []string{"a.zip", "b.zip", "c.zip"} {
		v, err := c.Record(ctx, name, int64(i+1))
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), v)
	}

	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a.zip", entries[0].Name)
	assert.Equal(t, "c.zip", entries[2].Name)
	assert.Equal(t, int64(3), entries[2].Size)
	assert.True(t, fixed.Equal(entries[0].CreatedAt))
}

func TestCatalog_ConcurrentModification(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()

	a := NewCatalog(ddb, "linkdb-backups", "s3://bucket/")
	_, err := a.Record(ctx, "a.zip", 1)
	require.NoError(t, err)

	// A second writer that read the same latest version loses the race.
	stale := &staleDDBClient{mockDDBClient: ddb}
	b := NewCatalog(stale, "linkdb-backups", "s3://bucket/")
	_, err = b.Record(ctx, "b.zip", 1)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestCatalog_SeparateLocations(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()

	a := NewCatalog(ddb, "t", "s3://bucket/a/")
	b := NewCatalog(ddb, "t", "s3://bucket/b/")

	_, err := a.Record(ctx, "x.zip", 1)
	require.NoError(t, err)
	v, err := b.Record(ctx, "y.zip", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestCatalog_QueryError(t *testing.T) {
	ddb := newMockDDBClient()
	ddb.err = errUnavailable

	_, err := NewCatalog(ddb, "t", "s3://bucket/").Record(context.Background(), "a.zip", 1)
	assert.ErrorIs(t, err, errUnavailable)
}

// staleDDBClient hides every item from Query.
type staleDDBClient struct {
	*mockDDBClient
}

func (s *staleDDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}
