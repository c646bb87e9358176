package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultObjectStorageRequestTimeout = 15 * time.Second

// ErrObjectStorageDisabled is returned by uploads when no bucket is configured.
var ErrObjectStorageDisabled = errors.New("object storage is not configured")

// ObjectStorage uploads and removes profile images.
type ObjectStorage interface {
	Enabled() bool
	Upload(ctx context.Context, key, contentType string, body []byte) (ObjectReference, error)
	// Delete removes the object behind a URL previously returned by Upload.
	// URLs this store did not produce are ignored.
	Delete(ctx context.Context, objectURL string) error
}

type noopObjectStorage struct{}

func (noopObjectStorage) Enabled() bool { return false }

func (noopObjectStorage) Upload(context.Context, string, string, []byte) (ObjectReference, error) {
	return ObjectReference{}, ErrObjectStorageDisabled
}

func (noopObjectStorage) Delete(context.Context, string) error { return nil }

// DisabledObjectStorage returns a store whose uploads always fail with
// ErrObjectStorageDisabled.
func DisabledObjectStorage() ObjectStorage { return noopObjectStorage{} }

func applyObjectStorageDefaults(cfg ObjectStorageConfig) ObjectStorageConfig {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultObjectStorageRequestTimeout
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	return cfg
}

// NewObjectStorage returns an S3-backed store, or a disabled store when no
// bucket is configured.
func NewObjectStorage(ctx context.Context, cfg ObjectStorageConfig) (ObjectStorage, error) {
	cfg = applyObjectStorageDefaults(cfg)
	if cfg.Bucket == "" {
		return noopObjectStorage{}, nil
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load object storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &s3ObjectStorage{cfg: cfg, client: client}, nil
}

type s3ObjectStorage struct {
	cfg    ObjectStorageConfig
	client *s3.Client
}

func (c *s3ObjectStorage) Enabled() bool { return true }

func (c *s3ObjectStorage) Upload(ctx context.Context, key, contentType string, body []byte) (ObjectReference, error) {
	finalKey := c.applyPrefix(key)
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(finalKey),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := c.client.PutObject(ctx, input); err != nil {
		return ObjectReference{}, fmt.Errorf("upload object %s: %w", finalKey, err)
	}
	return ObjectReference{Key: finalKey, URL: c.publicURL(finalKey)}, nil
}

func (c *s3ObjectStorage) Delete(ctx context.Context, objectURL string) error {
	key, ok := c.keyForURL(objectURL)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (c *s3ObjectStorage) applyPrefix(key string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	prefix := strings.Trim(strings.TrimSpace(c.cfg.Prefix), "/")
	if prefix == "" {
		return trimmed
	}
	if trimmed == "" {
		return prefix
	}
	if trimmed == prefix || strings.HasPrefix(trimmed, prefix+"/") {
		return trimmed
	}
	return prefix + "/" + trimmed
}

// publicURL falls back to a path-style endpoint URL when no public base is set.
func (c *s3ObjectStorage) publicURL(key string) string {
	base := strings.TrimRight(strings.TrimSpace(c.cfg.PublicEndpoint), "/")
	if base == "" {
		if c.cfg.Endpoint == "" {
			return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.cfg.Bucket, c.cfg.Region, key)
		}
		base = strings.TrimRight(c.cfg.Endpoint, "/") + "/" + c.cfg.Bucket
	}
	return base + "/" + strings.TrimLeft(key, "/")
}

func (c *s3ObjectStorage) keyForURL(objectURL string) (string, bool) {
	objectURL = strings.TrimSpace(objectURL)
	if objectURL == "" {
		return "", false
	}
	base := c.publicURL("")
	if !strings.HasPrefix(objectURL, base) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(objectURL, base))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}
