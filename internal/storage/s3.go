package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

const sessionPrefix = "sessions"

// S3ClientConfig holds configuration for S3Client
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// objectAPI is the subset of the S3 client used by the archive
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Client archives chat transcripts to S3-compatible storage (e.g., RustFS)
type S3Client struct {
	client objectAPI
	bucket string
	now    func() time.Time
}

// NewS3Client creates a new S3Client with the given configuration
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Client(client, cfg.Bucket), nil
}

func newS3Client(client objectAPI, bucket string) *S3Client {
	return &S3Client{client: client, bucket: bucket, now: time.Now}
}

// SessionKey returns the object key of a transcript archived at t
func SessionKey(sessionID string, t time.Time) string {
	t = t.UTC()
	return path.Join(sessionPrefix, t.Format("2006"), t.Format("01"), t.Format("02"),
		fmt.Sprintf("%s-%d.json", sessionID, t.Unix()))
}

// Archive stores the session transcript as JSON. Each call writes a new
// object, so a session archived twice keeps both snapshots.
func (c *S3Client) Archive(ctx context.Context, session *domain.ChatSession) error {
	body, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}

	key := SessionKey(session.ID, c.now())
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"session-id": session.ID,
			"user-id":    session.UserID,
			"messages":   fmt.Sprint(len(session.Messages)),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive session %s: %w", session.ID, err)
	}
	return nil
}

// Fetch reads an archived transcript back
func (c *S3Client) Fetch(ctx context.Context, key string) (*domain.ChatSession, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	var session domain.ChatSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}
