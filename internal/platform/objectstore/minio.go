package objectstore

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

func EnsureBuckets(ctx context.Context, client *minio.Client, cfg Config) error {
	if err := ensureBucket(ctx, client, cfg.BucketDocuments, cfg.Region); err != nil {
		return fmt.Errorf("ensure documents bucket: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.BucketManifests, cfg.Region); err != nil {
		return fmt.Errorf("ensure manifests bucket: %w", err)
	}
	return nil
}

func CheckBuckets(ctx context.Context, client *minio.Client, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	documentsExist, err := client.BucketExists(ctx, cfg.BucketDocuments)
	if err != nil {
		return fmt.Errorf("documents bucket exists: %w", err)
	}
	if !documentsExist {
		return fmt.Errorf("documents bucket missing: %s", cfg.BucketDocuments)
	}

	manifestsExist, err := client.BucketExists(ctx, cfg.BucketManifests)
	if err != nil {
		return fmt.Errorf("manifests bucket exists: %w", err)
	}
	if !manifestsExist {
		return fmt.Errorf("manifests bucket missing: %s", cfg.BucketManifests)
	}
	return nil
}

// PutDocument uploads raw document bytes under a content-addressed key so
// repeated intake of identical bytes is a no-op overwrite rather than a
// growing set of copies.
func PutDocument(ctx context.Context, client *minio.Client, cfg Config, sha256Hex string, size int64, body io.Reader) (string, error) {
	key := fmt.Sprintf("sha256/%s", sha256Hex)
	_, err := client.PutObject(ctx, cfg.BucketDocuments, key, body, size, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("put document: %w", err)
	}
	return key, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
