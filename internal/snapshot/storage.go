package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Scheme = "s3://"

// S3Config addresses an S3-compatible endpoint. Empty fields fall back to
// the default AWS configuration chain.
type S3Config struct {
	Region    string
	Endpoint  string // optional; set for MinIO and other S3-compatible servers
	PathStyle bool
}

// S3ConfigFromEnv reads PREP_S3_REGION, PREP_S3_ENDPOINT and
// PREP_S3_PATH_STYLE. Credentials come from the usual AWS variables.
func S3ConfigFromEnv() S3Config {
	return S3Config{
		Region:    os.Getenv("PREP_S3_REGION"),
		Endpoint:  os.Getenv("PREP_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("PREP_S3_PATH_STYLE"), "true"),
	}
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config, loadOpts ...func(*config.LoadOptions) error) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts = append([]func(*config.LoadOptions) error{config.WithRegion(region)}, loadOpts...)
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// Plain bodies keep S3-compatible servers without trailer support working.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	}), nil
}

// Storage moves export bytes to and from a location: a local path or
// s3://bucket/key.
type Storage struct {
	s3 func(ctx context.Context) (*s3.Client, error)
}

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithS3Client uses client for every s3:// location.
func WithS3Client(client *s3.Client) StorageOption {
	return func(s *Storage) {
		s.s3 = func(context.Context) (*s3.Client, error) { return client, nil }
	}
}

// NewStorage returns a Storage. Without WithS3Client an S3 client is
// built from the environment the first time an s3:// location is used.
func NewStorage(opts ...StorageOption) *Storage {
	s := &Storage{s3: func(ctx context.Context) (*s3.Client, error) {
		return NewS3Client(ctx, S3ConfigFromEnv())
	}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsS3 reports whether loc names an S3 object.
func IsS3(loc string) bool {
	return strings.HasPrefix(loc, s3Scheme)
}

func splitS3(loc string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(loc, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 location %q: want s3://bucket/key", loc)
	}
	return bucket, key, nil
}

// Write stores data at loc, replacing what is there.
func (s *Storage) Write(ctx context.Context, loc string, data []byte) error {
	if !IsS3(loc) {
		return writeFile(loc, data)
	}
	bucket, key, err := splitS3(loc)
	if err != nil {
		return err
	}
	client, err := s.s3(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", loc, err)
	}
	return nil
}

// Read returns the bytes stored at loc.
func (s *Storage) Read(ctx context.Context, loc string) ([]byte, error) {
	if !IsS3(loc) {
		data, err := os.ReadFile(loc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", loc, err)
		}
		return data, nil
	}
	bucket, key, err := splitS3(loc)
	if err != nil {
		return nil, err
	}
	client, err := s.s3(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", loc, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	return data, nil
}

// writeFile replaces path atomically: temp file in the same directory,
// then rename.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".prep-export-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
