package object

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrInvalidKey is returned for empty keys or keys escaping the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// Signer resolves an opaque storage path into a time-limited fetchable URL.
// An empty bucket selects the store's default bucket.
type Signer interface {
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Reader opens stored objects. Only stores that serve their own files implement it.
type Reader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// CleanKey trims whitespace and leading slashes and rejects traversal.
func CleanKey(key string) (string, error) {
	k := strings.TrimLeft(strings.TrimSpace(key), "/")
	if k == "" {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(k, "/") {
		if part == ".." {
			return "", ErrInvalidKey
		}
	}
	return k, nil
}
