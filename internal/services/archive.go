package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"shakti-alert-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3PutObjectAPI is the part of *s3.Client used by the archiver
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client. Static credentials and a custom endpoint
// are optional; without them the default AWS credential chain is used.
func NewS3Client(ctx context.Context, region, endpoint, accessKey, secretKey string) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Archiver writes pruned alerts to S3, one JSON object per prune run
type S3Archiver struct {
	client S3PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archiver creates a new S3 archiver
func NewS3Archiver(client S3PutObjectAPI, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// Archive uploads alerts as a JSON array under <prefix>/<timestamp>.json
func (a *S3Archiver) Archive(ctx context.Context, alerts []models.Alert) error {
	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to encode alerts: %w", err)
	}

	key := path.Join(a.prefix, a.now().UTC().Format("20060102T150405.000Z")+".json")
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive %s: %w", key, err)
	}

	log.Info().
		Str("bucket", a.bucket).
		Str("key", key).
		Int("alerts", len(alerts)).
		Msg("Alerts archived")
	return nil
}
