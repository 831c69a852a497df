package minio

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"simulator-backend/internal/shared/storage/object"
)

// Options configures the MinIO connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Signer presigns GET URLs against a MinIO (or any S3-compatible) endpoint.
type Signer struct {
	client *minio.Client
	bucket string
}

// New builds a signer. Region is set explicitly so presigning never needs a
// bucket-location round trip.
func New(opts Options) (*Signer, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Signer{client: client, bucket: opts.Bucket}, nil
}

// SignedURL presigns a GET for key valid for ttl.
func (s *Signer) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	clean, err := object.CleanKey(key)
	if err != nil {
		return "", err
	}
	if bucket == "" {
		bucket = s.bucket
	}
	u, err := s.client.PresignedGetObject(ctx, bucket, clean, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("minio presign bucket=%s key=%s: %w", bucket, clean, err)
	}
	return u.String(), nil
}

var _ object.Signer = (*Signer)(nil)
