package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/novapact/gcu-go/internal/platform/env"
)

type Config struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Region          string
	UseSSL          bool
	BucketDocuments string
	BucketManifests string
}

// ConfigFromEnv returns the zero Config and enabled=false when no
// endpoint is configured; intake treats that as "no object store", not
// an error, per the governance gate's upload-never-blocks-decisions rule.
func ConfigFromEnv() (Config, bool, error) {
	endpoint := env.String("MINIO_ENDPOINT", "")
	if strings.TrimSpace(endpoint) == "" {
		return Config{}, false, nil
	}

	useSSL, err := env.Bool("MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, false, err
	}
	cfg := Config{
		Endpoint:        endpoint,
		AccessKey:       env.String("MINIO_ACCESS_KEY", "gcu"),
		SecretKey:       env.String("MINIO_SECRET_KEY", "gcu-minio"),
		Region:          env.String("MINIO_REGION", "us-east-1"),
		UseSSL:          useSSL,
		BucketDocuments: env.String("MINIO_BUCKET_DOCUMENTS", "gcu-documents"),
		BucketManifests: env.String("MINIO_BUCKET_MANIFESTS", "gcu-manifests"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, true, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketDocuments) == "" {
		return errors.New("documents bucket is required")
	}
	if strings.TrimSpace(c.BucketManifests) == "" {
		return errors.New("manifests bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
