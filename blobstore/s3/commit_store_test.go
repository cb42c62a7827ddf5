package s3

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memgo/blobstore"
)

func newTestCommitStore(ddb DDBClient) *CommitStore {
	inner := NewStore(new(MockS3Client), "bucket", "snapshots")
	return NewCommitStore(inner, ddb, "memgo-commits", "s3://bucket/snapshots")
}

func TestCommitStoreLatestEmpty(t *testing.T) {
	ddb := new(MockDDBClient)
	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil).Once()

	store := newTestCommitStore(ddb)
	_, err := store.Open(context.Background(), LatestKey)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestCommitStoreOpenLatest(t *testing.T) {
	ddb := new(MockDDBClient)
	ddb.On("Query", mock.Anything, mock.MatchedBy(func(input *dynamodb.QueryInput) bool {
		return *input.TableName == "memgo-commits" && !*input.ScanIndexForward
	})).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{{
			"base_uri":      &types.AttributeValueMemberS{Value: "s3://bucket/snapshots"},
			"version":       &types.AttributeValueMemberN{Value: "7"},
			"snapshot_path": &types.AttributeValueMemberS{Value: "machine-a/7.smg"},
		}},
	}, nil).Once()

	store := newTestCommitStore(ddb)
	blob, err := store.Open(context.Background(), LatestKey)
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, blob.Size())
	_, err = blob.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "machine-a/7.smg", string(buf))
}

func TestCommitStoreCommit(t *testing.T) {
	ddb := new(MockDDBClient)
	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{{
			"version":       &types.AttributeValueMemberN{Value: "3"},
			"snapshot_path": &types.AttributeValueMemberS{Value: "machine-a/3.smg"},
		}},
	}, nil).Once()
	ddb.On("PutItem", mock.Anything, mock.MatchedBy(func(input *dynamodb.PutItemInput) bool {
		version := input.Item["version"].(*types.AttributeValueMemberN).Value
		path := input.Item["snapshot_path"].(*types.AttributeValueMemberS).Value
		return version == "4" && path == "machine-a/4.smg" &&
			*input.ConditionExpression == "attribute_not_exists(version)"
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()

	store := newTestCommitStore(ddb)
	require.NoError(t, store.Put(context.Background(), LatestKey, []byte("machine-a/4.smg")))
	ddb.AssertExpectations(t)
}

func TestCommitStoreConcurrentCommit(t *testing.T) {
	ddb := new(MockDDBClient)
	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil).Once()
	ddb.On("PutItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{}).Once()

	store := newTestCommitStore(ddb)
	err := store.Put(context.Background(), LatestKey, []byte("machine-a/1.smg"))
	assert.ErrorIs(t, err, ErrConcurrentCommit)
}

func TestCommitStoreCreateLatestRejected(t *testing.T) {
	store := newTestCommitStore(new(MockDDBClient))
	_, err := store.Create(context.Background(), LatestKey)
	assert.Error(t, err)
}
