package blobstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LocalPrefix is the route under which the HTTP server exposes local blobs.
const LocalPrefix = "/blobs"

// LocalStore keeps blobs on disk. The server must serve Dir() under
// LocalPrefix for the returned URLs to resolve.
type LocalStore struct {
	dir       string
	publicURL string
	logger    *zap.Logger
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, publicURL string, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir %s: %w", dir, err)
	}
	if _, err := url.Parse(publicURL); err != nil {
		return nil, fmt.Errorf("parse public url: %w", err)
	}
	return &LocalStore{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger.Named("local_blob"),
	}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return nil, fmt.Errorf("invalid blob key %q", key)
	}

	path := filepath.Join(s.dir, key)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write blob %s: %w", key, err)
	}
	s.logger.Debug("stored blob", zap.String("key", key), zap.Int("bytes", len(data)))

	return &Object{
		Key:         key,
		URL:         s.publicURL + LocalPrefix + "/" + url.PathEscape(key),
		ContentType: contentType,
	}, nil
}
