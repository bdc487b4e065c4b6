// Package media provides MediaStore implementations for uploading
// inspection photos: S3 for production and a local filesystem spool
// for development and tests.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Store uploads media files to an S3 bucket. Object keys follow
// reports/{reportID}/{templateItemID}/{uuid}{ext} so per-item media
// stays grouped.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an S3-backed media store using the default AWS
// credential chain.
func NewS3Store(ctx context.Context, bucket, region string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

// NewS3StoreWithClient creates an S3 media store with an existing
// client, for callers that configure the SDK themselves.
func NewS3StoreWithClient(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// UploadMediaFile implements remote.MediaStore.
func (s *S3Store) UploadMediaFile(ctx context.Context, reportID, templateItemID, localPath, kind string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open media file %s: %w", localPath, err)
	}
	defer f.Close()

	key := objectKey(reportID, templateItemID, localPath)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3: %w", localPath, err)
	}

	return key, nil
}

// objectKey builds the storage key for one media file.
func objectKey(reportID, templateItemID, localPath string) string {
	ext := filepath.Ext(localPath)
	return fmt.Sprintf("reports/%s/%s/%s%s", reportID, templateItemID, uuid.New().String(), ext)
}
