package object

import (
	"context"
	"io"
)

// ObjectStore defines the contract for keeping durable copies of uploaded
// documents.
type ObjectStore interface {
	Save(ctx context.Context, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}
