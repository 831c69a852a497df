package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"

	"simulator-backend/internal/shared/storage/object"
)

// FilesRoute is where the API serves locally stored objects.
const FilesRoute = "/api/v1/files"

// ErrInvalidSignature is returned when a file token is missing, expired or
// was issued for a different key.
var ErrInvalidSignature = errors.New("invalid file signature")

// Store keeps objects on the local filesystem and signs short-lived URLs
// that the API itself serves.
type Store struct {
	baseDir string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// New creates a local store rooted at baseDir. publicBaseURL is the externally
// reachable API origin used in signed URLs.
func New(baseDir, publicBaseURL string, secret []byte) *Store {
	return &Store{
		baseDir: baseDir,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}
}

type fileClaims struct {
	Bucket string `json:"bkt,omitempty"`
	jwt.StandardClaims
}

// SignedURL returns a URL under FilesRoute carrying an HS256 token bound to key.
func (s *Store) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := object.CleanKey(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(s.path(clean)); err != nil {
		return "", fmt.Errorf("stat %s: %w", clean, err)
	}

	claims := fileClaims{
		Bucket: bucket,
		StandardClaims: jwt.StandardClaims{
			Subject:   clean,
			ExpiresAt: s.now().Add(ttl).Unix(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign file token: %w", err)
	}

	escaped := make([]string, 0)
	for _, part := range strings.Split(clean, "/") {
		escaped = append(escaped, url.PathEscape(part))
	}
	return fmt.Sprintf("%s%s/%s?token=%s", s.baseURL, FilesRoute, strings.Join(escaped, "/"), url.QueryEscape(token)), nil
}

// Verify checks that token was issued by SignedURL for key and has not expired.
func (s *Store) Verify(key, token string) error {
	clean, err := object.CleanKey(key)
	if err != nil {
		return err
	}
	var claims fileClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject != clean {
		return ErrInvalidSignature
	}
	return nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := object.CleanKey(key)
	if err != nil {
		return nil, err
	}
	return os.Open(s.path(clean))
}

func (s *Store) path(clean string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(clean))
}

var (
	_ object.Signer = (*Store)(nil)
	_ object.Reader = (*Store)(nil)
)
