// Package intake implements Document Intake (C10): hashing,
// extension/size checks, and optional content-addressed object-store
// upload for a submitted document payload.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/novapact/gcu-go/internal/domain"
	"github.com/novapact/gcu-go/internal/platform/objectstore"
)

// Uploader is the narrow surface intake depends on for optional
// object-store upload; satisfied by MinIOUploader in production and a
// fake in tests.
type Uploader interface {
	PutDocument(ctx context.Context, sha256Hex string, size int64, body io.Reader) (string, error)
}

// MinIOUploader adapts a *minio.Client + Config to the Uploader
// interface expected by Run.
type MinIOUploader struct {
	Client *minio.Client
	Config objectstore.Config
}

func (u MinIOUploader) PutDocument(ctx context.Context, sha256Hex string, size int64, body io.Reader) (string, error) {
	return objectstore.PutDocument(ctx, u.Client, u.Config, sha256Hex, size, body)
}

// Run hashes the payload, records its extension and size, and — when
// uploader is non-nil — uploads it to the documents bucket under a
// content-addressed key. A failed upload is logged and swallowed: per
// spec §4.10, intake never blocks the governance decision on it.
func Run(ctx context.Context, logger *slog.Logger, uploader Uploader, filename string, body io.Reader) (domain.IntakeResult, error) {
	hasher := sha256.New()
	size, err := io.Copy(hasher, body)
	if err != nil {
		return domain.IntakeResult{}, fmt.Errorf("hash document: %w", err)
	}
	sum := hex.EncodeToString(hasher.Sum(nil))
	ext := extensionOf(filename)

	result := domain.IntakeResult{
		SHA256:    sum,
		SizeBytes: size,
		Extension: ext,
	}

	if uploader == nil {
		return result, nil
	}

	// The hash was computed by consuming body; callers that need the
	// upload must pass a re-readable body (e.g. bytes.Reader) since
	// intake cannot re-read an exhausted stream. Re-hashing here would
	// defeat the point of a single chunked pass, so Run expects
	// seekable input when an uploader is configured.
	seeker, ok := body.(io.Seeker)
	if !ok {
		logger.WarnContext(ctx, "document intake upload skipped: body not seekable", "sha256", sum)
		return result, nil
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		logger.WarnContext(ctx, "document intake upload skipped: seek failed", "sha256", sum, "error", err)
		return result, nil
	}

	key, err := uploader.PutDocument(ctx, sum, size, body)
	if err != nil {
		logger.WarnContext(ctx, "document intake upload failed", "sha256", sum, "error", err)
		return result, nil
	}
	result.ObjectKey = key
	return result, nil
}

func extensionOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx == -1 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}
