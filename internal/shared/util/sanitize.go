package util

import (
	"errors"
	"strings"
)

// ErrInvalidPath is returned for storage paths that are empty or escape their root.
var ErrInvalidPath = errors.New("invalid storage path")

// SanitizeStoragePath trims a client-supplied object path and rejects
// traversal patterns, backslashes and absolute paths.
func SanitizeStoragePath(p string) (string, error) {
	s := strings.TrimSpace(p)
	if s == "" || strings.Contains(s, "..") || strings.Contains(s, "\\") {
		return "", ErrInvalidPath
	}
	s = strings.TrimLeft(s, "/")
	if s == "" || len(s) > 1024 {
		return "", ErrInvalidPath
	}
	return s, nil
}
