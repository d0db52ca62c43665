// Package blobstore puts image bytes somewhere publicly fetchable.
package blobstore

import (
	"context"
	"errors"
)

// ErrMissingCredential is returned at request time when the store was
// configured without a write token.
var ErrMissingCredential = errors.New("blob store write credential is not configured")

// Object describes a stored blob.
type Object struct {
	Key         string
	URL         string
	ContentType string
}

// Store writes a blob with public read access and returns its URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error)
}
