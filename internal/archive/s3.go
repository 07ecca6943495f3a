// Package archive ships scan snapshots to S3-compatible object storage
// (AWS S3 or Cloudflare R2) for offline analysis and disaster recovery.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/optionscout/internal/domain"
)

// Config holds the object-storage settings for the snapshot archiver.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint for R2 or MinIO; empty for AWS
	AccessKeyID     string
	SecretAccessKey string
	KeyPrefix       string // object key prefix, e.g. "scans"
	PathStyle       bool
}

// Uploader is the subset of the S3 transfer manager the archiver needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// SnapshotArchiver uploads serialized scan snapshots.
type SnapshotArchiver struct {
	uploader Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// New builds an archiver backed by the AWS transfer manager. Static
// credentials take precedence over the ambient credential chain.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*SnapshotArchiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &SnapshotArchiver{
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.KeyPrefix,
		log:      log.With().Str("component", "archive").Logger(),
	}, nil
}

// ArchiveSnapshot uploads one serialized snapshot. Object keys are laid
// out by date so lifecycle rules can expire old scans:
// <prefix>/2026/08/26/strict-20260826T143000Z.json
func (a *SnapshotArchiver) ArchiveSnapshot(ctx context.Context, mode domain.FilterMode, scannedAt time.Time, payload []byte) error {
	key := a.objectKey(mode, scannedAt)

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot %s: %w", key, err)
	}

	a.log.Info().
		Str("key", key).
		Int("bytes", len(payload)).
		Msg("Snapshot archived")
	return nil
}

func (a *SnapshotArchiver) objectKey(mode domain.FilterMode, scannedAt time.Time) string {
	ts := scannedAt.UTC()
	key := fmt.Sprintf("%s/%s-%s.json",
		ts.Format("2006/01/02"), mode, ts.Format("20060102T150405Z"))
	if a.prefix != "" {
		return a.prefix + "/" + key
	}
	return key
}
