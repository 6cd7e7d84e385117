package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds the object storage connection settings.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string `json:"-"`
	UseSSL    bool
	Region    string
	Bucket    string
}

// NewMinIOClient creates an S3-compatible client.
func NewMinIOClient(cfg MinIOConfig) (*miniogo.Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// MinIOStore keeps one object per checkpoint key. The object body is the literal value.
type MinIOStore struct {
	client      *miniogo.Client
	bucket      string
	bucketReady bool
}

// NewMinIOStore creates a store in bucket. The bucket is created on first write.
func NewMinIOStore(client *miniogo.Client, bucket string) (*MinIOStore, error) {
	if bucket == "" {
		return nil, errors.New("checkpoint bucket is required")
	}
	return &MinIOStore{client: client, bucket: bucket}, nil
}

// Get implements Store.
func (s *MinIOStore) Get(ctx context.Context, key string) (string, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return s.readError(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return s.readError(key, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

func (s *MinIOStore) readError(key string, err error) (string, bool, error) {
	if isNotFound(err) {
		return "", false, nil
	}
	return "", false, fmt.Errorf("read checkpoint %s/%s: %w", s.bucket, key, err)
}

// Set implements Store.
func (s *MinIOStore) Set(ctx context.Context, key, value string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		strings.NewReader(value),
		int64(len(value)),
		miniogo.PutObjectOptions{ContentType: "text/plain"},
	)
	if err != nil {
		return fmt.Errorf("write checkpoint %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if makeErr := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); makeErr != nil {
			if !bucketAlreadyOwned(makeErr) {
				return fmt.Errorf("create bucket %s: %w", s.bucket, makeErr)
			}
		}
	}

	s.bucketReady = true
	return nil
}

func isNotFound(err error) bool {
	switch miniogo.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	default:
		return false
	}
}

func bucketAlreadyOwned(err error) bool {
	switch miniogo.ToErrorResponse(err).Code {
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return true
	default:
		return false
	}
}
