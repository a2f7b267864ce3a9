// Package localstore stores uploaded objects on the local filesystem and
// serves them from a public base URL.
package localstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tradeyard/tradeyard/internal/domain/storage"
)

type Store struct {
	dir     string
	baseURL string
}

func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *Store) Upload(ctx context.Context, name, contentType string, r io.Reader) (*storage.Object, error) {
	_ = ctx

	ext := filepath.Ext(name)
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	publicID := uuid.NewString() + ext

	f, err := os.Create(filepath.Join(s.dir, publicID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUpstream, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: %v", storage.ErrUpstream, err)
	}
	return &storage.Object{
		PublicID: publicID,
		URL:      s.baseURL + "/uploads/" + publicID,
	}, nil
}

func (s *Store) Delete(ctx context.Context, publicID string) error {
	_ = ctx

	// publicID is always a bare generated filename; refuse anything else.
	if publicID != filepath.Base(publicID) {
		return fmt.Errorf("invalid object id %q", publicID)
	}
	err := os.Remove(filepath.Join(s.dir, publicID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
