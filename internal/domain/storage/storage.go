package storage

import (
	"context"
	"errors"
	"io"
)

var ErrUpstream = errors.New("storage: upload failed")

// Object is a stored blob addressable for deletion by PublicID and for
// serving by URL.
type Object struct {
	PublicID string
	URL      string
}

// ObjectStorage is the outbound port for the image/object collaborator.
type ObjectStorage interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (*Object, error)
	Delete(ctx context.Context, publicID string) error
}
