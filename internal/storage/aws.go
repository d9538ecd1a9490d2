package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
)

const (
	sortKeyLayout = "2006-01-02T15:04:05Z"
	latestPK      = "CAMPAIGNS"
	snapshotTTL   = 90 * 24 * time.Hour
)

type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// AWSStorage keeps snapshots in DynamoDB and archives days to S3.
//
// Table layout: every snapshot is PK=CAMPAIGN#<id>, SK=<taken_at> with a
// 90-day TTL; the latest one is mirrored at PK=CAMPAIGNS, SK=<id>.
type AWSStorage struct {
	dynamoDB  dynamoAPI
	s3Client  s3API
	tableName string
	bucket    string
}

// DynamoDBItem represents an item stored in DynamoDB
type DynamoDBItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// NewAWSStorage creates a new AWS storage instance. Static keys take
// precedence over the profile; with neither the default credential chain
// is used.
func NewAWSStorage(ctx context.Context, cfg config.StorageConfig) (*AWSStorage, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	switch {
	case cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	case cfg.GetAWSProfile() != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.GetAWSProfile()))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newAWSStorage(dynamodb.NewFromConfig(awsCfg), s3.NewFromConfig(awsCfg), cfg.DynamoDBTable, cfg.S3Bucket), nil
}

func newAWSStorage(db dynamoAPI, s3c s3API, tableName, bucket string) *AWSStorage {
	return &AWSStorage{dynamoDB: db, s3Client: s3c, tableName: tableName, bucket: bucket}
}

func (s *AWSStorage) put(ctx context.Context, item DynamoDBItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	_, err = s.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

func (s *AWSStorage) SaveSnapshot(ctx context.Context, snap domain.CampaignSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	taken := snap.TakenAt.UTC()
	err = s.put(ctx, DynamoDBItem{
		PK:        "CAMPAIGN#" + snap.CampaignID,
		SK:        taken.Format(sortKeyLayout),
		Data:      string(data),
		Timestamp: taken.Format(time.RFC3339),
		TTL:       taken.Add(snapshotTTL).Unix(),
	})
	if err != nil {
		return err
	}
	return s.put(ctx, DynamoDBItem{
		PK:        latestPK,
		SK:        snap.CampaignID,
		Data:      string(data),
		Timestamp: taken.Format(time.RFC3339),
	})
}

func (s *AWSStorage) Latest(ctx context.Context, campaignID string) (domain.CampaignSnapshot, error) {
	out, err := s.dynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: latestPK},
			"SK": &types.AttributeValueMemberS{Value: campaignID},
		},
	})
	if err != nil {
		return domain.CampaignSnapshot{}, fmt.Errorf("getting latest snapshot: %w", err)
	}
	if len(out.Item) == 0 {
		return domain.CampaignSnapshot{}, ErrNoSnapshot
	}
	snaps, err := decodeItems([]map[string]types.AttributeValue{out.Item})
	if err != nil {
		return domain.CampaignSnapshot{}, err
	}
	return snaps[0], nil
}

func (s *AWSStorage) History(ctx context.Context, campaignID string, from, to time.Time) ([]domain.CampaignSnapshot, error) {
	return s.query(ctx, campaignID, from, to, 0, true)
}

func (s *AWSStorage) query(ctx context.Context, campaignID string, from, to time.Time, limit int32, ascending bool) ([]domain.CampaignSnapshot, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: "CAMPAIGN#" + campaignID},
			":from": &types.AttributeValueMemberS{Value: from.UTC().Format(sortKeyLayout)},
			":to":   &types.AttributeValueMemberS{Value: to.UTC().Format(sortKeyLayout)},
		},
		ScanIndexForward: aws.Bool(ascending),
	}
	if limit > 0 {
		in.Limit = aws.Int32(limit)
	}

	var out []domain.CampaignSnapshot
	for {
		res, err := s.dynamoDB.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("querying snapshots: %w", err)
		}
		snaps, err := decodeItems(res.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, snaps...)
		if len(res.LastEvaluatedKey) == 0 || (limit > 0 && len(out) >= int(limit)) {
			return out, nil
		}
		in.ExclusiveStartKey = res.LastEvaluatedKey
	}
}

func (s *AWSStorage) campaignIDs(ctx context.Context) ([]string, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: latestPK},
		},
	}
	var ids []string
	for {
		res, err := s.dynamoDB.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("listing campaigns: %w", err)
		}
		for _, av := range res.Items {
			var item DynamoDBItem
			if err := attributevalue.UnmarshalMap(av, &item); err != nil {
				return nil, fmt.Errorf("unmarshaling item: %w", err)
			}
			ids = append(ids, item.SK)
		}
		if len(res.LastEvaluatedKey) == 0 {
			return ids, nil
		}
		in.ExclusiveStartKey = res.LastEvaluatedKey
	}
}

func (s *AWSStorage) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Second)

	ids, err := s.campaignIDs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		snaps, err := s.query(ctx, id, start, end, 1, false)
		if err != nil {
			return n, err
		}
		if len(snaps) == 0 {
			continue
		}
		key := fmt.Sprintf("snapshots/%s/%s.json", start.Format("2006/01/02"), id)
		if err := s.SaveToS3(ctx, key, snaps[0]); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// SaveToS3 saves data to S3
func (s *AWSStorage) SaveToS3(ctx context.Context, key string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling data: %w", err)
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(jsonData),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting object to S3: %w", err)
	}
	return nil
}

func decodeItems(items []map[string]types.AttributeValue) ([]domain.CampaignSnapshot, error) {
	out := make([]domain.CampaignSnapshot, 0, len(items))
	for _, av := range items {
		var item DynamoDBItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshaling item: %w", err)
		}
		var snap domain.CampaignSnapshot
		if err := json.Unmarshal([]byte(item.Data), &snap); err != nil {
			return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, nil
}
