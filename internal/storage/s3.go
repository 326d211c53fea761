package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const presignExpiry = time.Hour

// S3Storage implements Storage for S3-compatible storage
// Works with AWS S3, MinIO, DigitalOcean Spaces, Cloudflare R2, etc.
type S3Storage struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	prefix        string // Key prefix, refs are stored under <prefix>/<ref>
	publicURL     string // Base URL when presigning fails
}

// S3Config holds configuration for S3 storage
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string // Optional: for S3-compatible services
	PathStyle bool
	Prefix    string
}

// NewS3Storage creates a new S3 storage instance
func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info("initializing S3 storage",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
	)

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	// Add static credentials if provided
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client with optional custom endpoint
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		}
	})

	publicURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	if cfg.Endpoint != "" {
		publicURL = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}

	storage := &S3Storage{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		prefix:        strings.Trim(cfg.Prefix, "/"),
		publicURL:     publicURL,
	}

	// Auto-create bucket if it doesn't exist
	if err := storage.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return storage, nil
}

// ensureBucket checks if bucket exists, creates it if not
func (s *S3Storage) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %q does not exist and could not be created: %w", s.bucket, err)
	}

	slog.Info("created S3 bucket", "bucket", s.bucket)
	return nil
}

func (s *S3Storage) key(ref string) (string, error) {
	ref = strings.TrimPrefix(ref, "/")
	if ref == "" || strings.Contains(ref, "..") {
		return "", fmt.Errorf("%w: %s", ErrInvalidRef, ref)
	}
	if s.prefix == "" {
		return ref, nil
	}
	return s.prefix + "/" + ref, nil
}

func (s *S3Storage) ref(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

// Save stores a file in S3
func (s *S3Storage) Save(ctx context.Context, ref string, file io.Reader) error {
	key, err := s.key(ref)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}

func (s *S3Storage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := s.key(ref)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read from S3: %w", err)
	}

	return out.Body, nil
}

// Delete removes a file from S3. DeleteObject succeeds for missing keys,
// so absence is detected with HeadObject first.
func (s *S3Storage) Delete(ctx context.Context, ref string) (bool, error) {
	exists, err := s.Exists(ctx, ref)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	key, _ := s.key(ref)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete from S3: %w", err)
	}

	return true, nil
}

func (s *S3Storage) DeleteBatch(ctx context.Context, refs []string) BatchResult {
	return deleteEach(ctx, refs, s.Delete)
}

func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := prefix
	if s.prefix != "" {
		keyPrefix = s.prefix + "/" + prefix
	}

	var refs []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			refs = append(refs, s.ref(aws.ToString(obj.Key)))
		}
	}

	return refs, nil
}

func (s *S3Storage) Exists(ctx context.Context, ref string) (bool, error) {
	key, err := s.key(ref)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat S3 object: %w", err)
	}

	return true, nil
}

// URL returns a presigned GET URL, falling back to the direct object URL
func (s *S3Storage) URL(ref string) string {
	key, err := s.key(ref)
	if err != nil {
		return ""
	}

	url, err := s.PresignedURL(key, presignExpiry)
	if err != nil {
		return fmt.Sprintf("%s/%s", s.publicURL, key)
	}
	return url
}

// PresignedURL generates a presigned URL for temporary access
func (s *S3Storage) PresignedURL(key string, expiry time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	presignedReq, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign URL: %w", err)
	}

	return presignedReq.URL, nil
}
