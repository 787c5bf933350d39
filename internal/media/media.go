// Package media hands out short-lived links to objects in the media bucket.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	ErrNotConfigured = errors.New("media storage is not configured")
	ErrInvalidKey    = errors.New("invalid media key")
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	LinkTTL   time.Duration
}

// Store presigns GET requests against one bucket. Presigning is local:
// the region is fixed so no bucket-location lookup is made.
type Store struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

// New returns a Store, or ErrNotConfigured when endpoint or bucket is
// missing.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 15 * time.Minute
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("media client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket, ttl: cfg.LinkTTL}, nil
}

// CleanKey validates an object key taken from a URL path.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.ContainsAny(key, "\\\x00") {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", ErrInvalidKey
		}
	}
	return path.Clean(key), nil
}

// URL presigns a GET for key.
func (s *Store) URL(ctx context.Context, key string) (*url.URL, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}
	return u, nil
}
