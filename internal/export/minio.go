package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// MinioStorage keeps generated report artifacts and hands out public
// read URLs. The bucket is created on startup when missing.
type MinioStorage struct {
	client   *minio.Client
	bucket   string
	endpoint string
	secure   bool
	logger   *zap.Logger
}

func NewMinioStorage(ctx context.Context, endpoint, accessKey, secretKey, bucket string, secure bool, logger *zap.Logger) (*MinioStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	s := &MinioStorage{
		client:   client,
		bucket:   bucket,
		endpoint: endpoint,
		secure:   secure,
		logger:   logger,
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStorage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket check: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	s.logger.Info("report bucket created", zap.String("bucket", s.bucket))

	policy := fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [{
    "Action": ["s3:GetObject"],
    "Effect": "Allow",
    "Principal": {"AWS": ["*"]},
    "Resource": ["arn:aws:s3:::%s/*"]
  }]
}`, s.bucket)
	if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
		// Reports stay downloadable through direct delivery even when
		// the bucket cannot be made public.
		s.logger.Warn("setting public bucket policy failed", zap.Error(err))
	}
	return nil
}

// Upload stores one report and returns its object name.
func (s *MinioStorage) Upload(ctx context.Context, userID string, data []byte) (string, error) {
	object := fmt.Sprintf("reports/%s/DAMA_Report_%s_%s.xlsx",
		userID, userID, time.Now().Format("20060102_150405"))

	_, err := s.client.PutObject(ctx, s.bucket, object,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: xlsxContentType})
	if err != nil {
		return "", fmt.Errorf("put report: %w", err)
	}
	return object, nil
}

// URLFor builds the public download URL for an uploaded object.
func (s *MinioStorage) URLFor(object string) string {
	scheme := "http"
	if s.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, object)
}
