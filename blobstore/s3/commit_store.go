package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/memgo/blobstore"
)

// LatestKey is the virtual blob name that resolves to the most recently
// committed snapshot path.
const LatestKey = "LATEST"

// ErrConcurrentCommit is returned when another writer committed a snapshot
// between our read and our conditional write.
var ErrConcurrentCommit = errors.New("concurrent snapshot commit detected")

// DDBClient is the subset of the DynamoDB API the commit store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// CommitStore is an S3 blob store with a DynamoDB pointer for the latest
// snapshot. S3 has no compare-and-swap, so the pointer update goes through
// a DynamoDB conditional write; two simulators saving the same machine
// concurrently cannot silently overwrite each other's publication.
//
// Table schema:
//   - Partition key: base_uri (string), the s3://bucket/prefix of the store
//   - Sort key: version (number), monotonically increasing
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name memgo-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	inner     *Store
	ddb       DDBClient
	tableName string
	baseURI   string
}

// NewCommitStore creates an S3+DynamoDB commit store. baseURI should be the
// "s3://bucket/prefix" identity of the underlying store; it is the
// partition key, so distinct machines must use distinct URIs.
func NewCommitStore(inner *Store, ddb DDBClient, tableName, baseURI string) *CommitStore {
	return &CommitStore{
		inner:     inner,
		ddb:       ddb,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Open opens a blob. Opening LatestKey returns a virtual blob whose content
// is the path of the most recently committed snapshot.
func (s *CommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name == LatestKey {
		version, snapshotPath, err := s.latest(ctx)
		if err != nil {
			return nil, err
		}
		if version == 0 {
			return nil, blobstore.ErrNotFound
		}
		return &pointerBlob{content: []byte(snapshotPath)}, nil
	}
	return s.inner.Open(ctx, name)
}

// Put writes a blob. Writing LatestKey commits the given snapshot path as
// the new latest version via a conditional write.
func (s *CommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name == LatestKey {
		return s.commit(ctx, string(data))
	}
	return s.inner.Put(ctx, name, data)
}

// Create passes through to the S3 store. LatestKey cannot be streamed.
func (s *CommitStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if name == LatestKey {
		return nil, fmt.Errorf("%s must be written with Put", LatestKey)
	}
	return s.inner.Create(ctx, name)
}

// Delete removes a blob from S3. Commit history is never deleted.
func (s *CommitStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

// List lists blobs in the underlying S3 store.
func (s *CommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CommitStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query commit table: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("commit table: malformed version attribute")
	}
	pathAttr, ok := item["snapshot_path"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("commit table: malformed snapshot_path attribute")
	}

	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("commit table: parse version: %w", err)
	}
	return version, pathAttr.Value, nil
}

func (s *CommitStore) commit(ctx context.Context, snapshotPath string) error {
	current, _, err := s.latest(ctx)
	if err != nil {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":      &types.AttributeValueMemberS{Value: s.baseURI},
			"version":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", current+1)},
			"snapshot_path": &types.AttributeValueMemberS{Value: snapshotPath},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return ErrConcurrentCommit
		}
		return fmt.Errorf("commit snapshot version: %w", err)
	}
	return nil
}

// pointerBlob serves the LATEST pointer content from memory.
type pointerBlob struct {
	content []byte
}

func (b *pointerBlob) Close() error {
	return nil
}

func (b *pointerBlob) Size() int64 {
	return int64(len(b.content))
}

func (b *pointerBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *pointerBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= int64(len(b.content)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end := off + length
	if end > int64(len(b.content)) {
		end = int64(len(b.content))
	}
	return io.NopCloser(bytes.NewReader(b.content[off:end])), nil
}
