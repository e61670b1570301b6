package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/platebook/importer-backend/internal/logger"
)

// UploadResult describes one stored object.
type UploadResult struct {
	Key  string
	URL  string
	Size int64
	ETag string
}

// Store is the object-storage surface the image pipeline uses. Implementations
// must be safe for concurrent uploads; the pipeline uploads the five
// derivatives of one image in parallel.
type Store interface {
	UploadFile(ctx context.Context, localPath, key string) (*UploadResult, error)
	UploadBuffer(ctx context.Context, data []byte, key string) (*UploadResult, error)
	SignedURL(key string, ttl time.Duration) (string, error)
	PublicURL(key string) string
	Ping(ctx context.Context) error
}

type bucketStore struct {
	log       *logger.Logger
	client    *storage.Client
	bucket    string
	cdnDomain string
}

// NewBucketStore builds the GCS-backed store from the environment. Requires
// MEDIA_GCS_BUCKET_NAME; MEDIA_CDN_DOMAIN optionally fronts public URLs.
func NewBucketStore(ctx context.Context, log *logger.Logger) (Store, error) {
	bucket := strings.TrimSpace(os.Getenv("MEDIA_GCS_BUCKET_NAME"))
	if bucket == "" {
		return nil, fmt.Errorf("missing env var MEDIA_GCS_BUCKET_NAME")
	}
	cdnDomain := strings.TrimSpace(os.Getenv("MEDIA_CDN_DOMAIN"))

	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog := log.With("service", "BucketStore")
	serviceLog.Info("Object storage initialized", "bucket", bucket, "cdn_domain", cdnDomain)
	return &bucketStore{
		log:       serviceLog,
		client:    client,
		bucket:    bucket,
		cdnDomain: cdnDomain,
	}, nil
}

func (bs *bucketStore) UploadFile(ctx context.Context, localPath, key string) (*UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bs.upload(ctx, f, key)
}

func (bs *bucketStore) UploadBuffer(ctx context.Context, data []byte, key string) (*UploadResult, error) {
	return bs.upload(ctx, bytes.NewReader(data), key)
}

func (bs *bucketStore) upload(ctx context.Context, r io.Reader, key string) (*UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.client.Bucket(bs.bucket).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}
	res := &UploadResult{
		Key:  key,
		URL:  bs.PublicURL(key),
		Size: n,
		ETag: w.Attrs().Etag,
	}
	bs.log.Debug("Object uploaded", "key", key, "size", n)
	return res, nil
}

func (bs *bucketStore) SignedURL(key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return bs.client.Bucket(bs.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
}

func (bs *bucketStore) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if bs.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", bs.cdnDomain, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucket, key)
}

// Ping verifies the bucket is reachable and the credentials can see it.
func (bs *bucketStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := bs.client.Bucket(bs.bucket).Attrs(ctx)
	return err
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	default:
		return ""
	}
}
