// Package s3archive stores error log entries evicted from the migration state in an S3 bucket.
package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

// Config describes the bucket receiving archived entries
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
}

// IsEnabled reports whether archiving has a bucket to write to
func (c Config) IsEnabled() bool {
	return c.Bucket != ""
}

// putObjectAPI is the slice of the S3 client the archive needs
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive implements ports.ErrorArchive. Each call writes one object keyed prefix/YYYY/MM/DD/<uuid>.json.
type Archive struct {
	client putObjectAPI
	logger *zap.Logger
	now    func() time.Time
	bucket string
	prefix string
}

var _ ports.ErrorArchive = (*Archive)(nil)

// New builds an S3 client from cfg. Static credentials are used when given, otherwise the default AWS chain.
// A custom endpoint switches to path-style addressing for S3-compatible stores.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Archive, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("error archive bucket not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	logger.Info("Error archive initialized", zap.String("bucket", cfg.Bucket), zap.String("prefix", cfg.Prefix))
	return newArchive(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newArchive(client putObjectAPI, bucket, prefix string, logger *zap.Logger) *Archive {
	return &Archive{
		client: client,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		bucket: bucket,
		prefix: prefix,
	}
}

// Archive uploads entries as a JSON array
func (a *Archive) Archive(ctx context.Context, entries []domain.ErrorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal archived errors: %w", err)
	}

	key := a.objectKey(a.now())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload archived errors to s3://%s/%s: %w", a.bucket, key, err)
	}

	a.logger.Debug("Archived error log entries", zap.String("key", key), zap.Int("count", len(entries)))
	return nil
}

func (a *Archive) objectKey(at time.Time) string {
	return path.Join(a.prefix, at.Format("2006/01/02"), uuid.New().String()+".json")
}
