package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Storage implements ObjectStorage against an S3-compatible endpoint.
// Path-style addressing is forced so bucket names need no DNS entry, which
// is how MinIO runs locally.
type S3Storage struct {
	client   *s3.Client
	bucket   string
	endpoint string
}

// NewS3Storage builds the client from static credentials and an endpoint
// override, e.g. MINIO_ROOT_USER/MINIO_ROOT_PASSWORD against a local MinIO.
func NewS3Storage(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string) (*S3Storage, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &S3Storage{client: client, bucket: bucket, endpoint: strings.TrimRight(endpoint, "/")}, nil
}

// Upload stores the payload under folder with a random key and returns the
// key plus the public URL.
func (s *S3Storage) Upload(ctx context.Context, data []byte, folder string) (UploadResult, error) {
	key := fmt.Sprintf("%s/%s", strings.Trim(folder, "/"), uuid.NewString())
	contentType := http.DetectContentType(data)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("put object: %w", err)
	}
	return UploadResult{
		PublicID: key,
		URL:      fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key),
	}, nil
}

// Destroy deletes the remote object by key.
func (s *S3Storage) Destroy(ctx context.Context, publicID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
