package media

import (
	"context"
	"io"
)

// Store is the object storage boundary
// Callers hand over content and get back a stable public URL; everything
// about the storage mechanics stays behind this interface
type Store interface {
	Upload(ctx context.Context, key string, contentType string, body io.Reader) (url string, err error)
}
