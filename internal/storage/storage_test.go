package storage

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func snapAt(id string, at time.Time, delivered int) domain.CampaignSnapshot {
	return domain.CampaignSnapshot{CampaignID: id, Delivered: delivered, Total: 10, TakenAt: at}
}

func TestLocalStorage(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocal(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Latest(ctx, "c1")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, s.SaveSnapshot(ctx, snapAt("c1", day.Add(time.Hour), 1)))
	require.NoError(t, s.SaveSnapshot(ctx, snapAt("c1", day.Add(5*time.Hour), 3)))

	latest, err := s.Latest(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Delivered)

	hist, err := s.History(ctx, "c1", day, day.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 1, hist[0].Delivered)

	assert.FileExists(t, filepath.Join(dir, "latest", "c1.json"))

	// A fresh store picks up the latest snapshot from disk.
	reopened, err := NewLocal(dir)
	require.NoError(t, err)
	latest, err = reopened.Latest(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Delivered)
}

func TestLocalArchiveDay(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocal(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, snapAt("c1", day.Add(time.Hour), 1)))
	require.NoError(t, s.SaveSnapshot(ctx, snapAt("c1", day.Add(20*time.Hour), 4)))
	require.NoError(t, s.SaveSnapshot(ctx, snapAt("c1", day.Add(26*time.Hour), 6)))
	require.NoError(t, s.SaveSnapshot(ctx, snapAt("c2", day.Add(-time.Hour), 2)))

	n, err := s.ArchiveDay(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(filepath.Join(dir, "archive", "2026-03-02", "c1.json"))
	require.NoError(t, err)
	var archived domain.CampaignSnapshot
	require.NoError(t, json.Unmarshal(data, &archived))
	assert.Equal(t, 4, archived.Delivered)

	hist, err := s.History(ctx, "c1", day, day.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 6, hist[0].Delivered)
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Type: "local"})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	_, err = New(context.Background(), config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)
}

type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[str(in.Item["PK"])+"|"+str(in.Item["SK"])] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[str(in.Key["PK"])+"|"+str(in.Key["SK"])]}, nil
}

// Query understands the two key conditions the store issues.
func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vals := in.ExpressionAttributeValues
	pk := str(vals[":pk"])
	from, to := str(vals[":from"]), str(vals[":to"])

	var keys []string
	for k := range f.items {
		parts := strings.SplitN(k, "|", 2)
		if parts[0] != pk {
			continue
		}
		if from != "" && (parts[1] < from || parts[1] > to) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}
	if in.Limit != nil && int(*in.Limit) < len(keys) {
		keys = keys[:*in.Limit]
	}
	out := &dynamodb.QueryOutput{}
	for _, k := range keys {
		out.Items = append(out.Items, f.items[k])
	}
	return out, nil
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func TestAWSStorage(t *testing.T) {
	db := newFakeDynamo()
	objects := &fakeS3{objects: make(map[string][]byte)}
	s := newAWSStorage(db, objects, "snapshots", "archive-bucket")
	ctx := context.Background()

	_, err := s.Latest(ctx, "c1")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, s.SaveSnapshot(ctx, snapAt("c1", day.Add(time.Hour), 1)))
	require.NoError(t, s.SaveSnapshot(ctx, snapAt("c1", day.Add(20*time.Hour), 4)))
	require.NoError(t, s.SaveSnapshot(ctx, snapAt("c1", day.Add(30*time.Hour), 7)))

	latest, err := s.Latest(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 7, latest.Delivered)

	hist, err := s.History(ctx, "c1", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 1, hist[0].Delivered)
	assert.Equal(t, 4, hist[1].Delivered)

	var item DynamoDBItem
	require.NoError(t, attributevalue.UnmarshalMap(db.items["CAMPAIGN#c1|2026-03-02T01:00:00Z"], &item))
	assert.Equal(t, day.Add(time.Hour+snapshotTTL).Unix(), item.TTL)

	n, err := s.ArchiveDay(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	body, ok := objects.objects["snapshots/2026/03/02/c1.json"]
	require.True(t, ok)
	var archived domain.CampaignSnapshot
	require.NoError(t, json.Unmarshal(body, &archived))
	assert.Equal(t, 4, archived.Delivered)
}
