package imagestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/idverify/internal/logging"
)

// Input validation failures. These are 4xx-equivalent and never retried.
var (
	ErrUnsupportedFormat = errors.New("imagestore: unsupported image format")
	ErrTooLarge          = errors.New("imagestore: image exceeds size ceiling")
	ErrEmptyPayload      = errors.New("imagestore: empty payload")
)

// Accepted raster formats by decoded byte signature. The declared MIME type
// from the client is advisory only; the sniffed signature wins.
var acceptedFormats = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Ingestor validates captured image bytes and persists them under a
// collision-resistant reference.
type Ingestor struct {
	store    Store
	maxBytes int64
	logger   *zap.Logger
}

// NewIngestor constructs an Ingestor with the given size ceiling.
func NewIngestor(store Store, maxBytes int64, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		store:    store,
		maxBytes: maxBytes,
		logger:   logger.Named("imagestore"),
	}
}

// Ingest validates and persists image bytes, returning a stable reference.
func (in *Ingestor) Ingest(ctx context.Context, data []byte, declaredMimeType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}
	if in.maxBytes > 0 && int64(len(data)) > in.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), in.maxBytes)
	}

	detected := mimetype.Detect(data)
	ext, ok := acceptedFormats[detected.String()]
	if !ok {
		return "", fmt.Errorf("%w: sniffed %q, declared %q", ErrUnsupportedFormat, detected.String(), declaredMimeType)
	}

	ref := newRef(ext)
	if err := in.store.Put(ctx, ref, data); err != nil {
		wrapped := logging.NewOperationError("imagestore.put", ref, err)
		in.logger.Error("failed to persist image", zap.Error(wrapped), zap.Int("bytes", len(data)))
		return "", wrapped
	}

	in.logger.Debug("image ingested",
		zap.String("ref", ref),
		zap.String("format", detected.String()),
		zap.Int("bytes", len(data)))
	return ref, nil
}

// Fetch loads previously ingested bytes by reference.
func (in *Ingestor) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return in.store.Get(ctx, ref)
}

// newRef builds a timestamp-plus-random reference. The uuid suffix makes
// collisions with concurrent ingestion practically impossible.
func newRef(ext string) string {
	return fmt.Sprintf("%d-%s.%s", time.Now().UTC().UnixNano(), uuid.NewString()[:8], ext)
}
