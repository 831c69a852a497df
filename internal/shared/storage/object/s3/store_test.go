package s3

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "rec/seg/a.png", want: "rec/seg/a.png"},
		{name: "simple prefix", prefix: "recordings", key: "rec/a.png", want: "recordings/rec/a.png"},
		{name: "prefix slashes", prefix: "/recordings/", key: "/rec/a.png", want: "recordings/rec/a.png"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func newTestSigner() *Signer {
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider("AKID", "SECRET", "")),
	}
	return NewWithClient(s3.NewFromConfig(cfg), "default-bucket", "screens")
}

func TestSignedURLPresignsGet(t *testing.T) {
	signer := newTestSigner()
	raw, err := signer.SignedURL(context.Background(), "", "rec-1/a.png", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if !strings.Contains(parsed.Host+parsed.Path, "default-bucket") {
		t.Fatalf("expected default bucket in %s", raw)
	}
	if !strings.HasSuffix(parsed.Path, "/screens/rec-1/a.png") {
		t.Fatalf("expected prefixed key in path, got %s", parsed.Path)
	}
	if got := parsed.Query().Get("X-Amz-Expires"); got != "3600" {
		t.Fatalf("expected X-Amz-Expires=3600, got %q", got)
	}
}

func TestSignedURLUsesExplicitBucket(t *testing.T) {
	signer := newTestSigner()
	raw, err := signer.SignedURL(context.Background(), "other-bucket", "a.png", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.Contains(raw, "other-bucket") {
		t.Fatalf("expected explicit bucket in %s", raw)
	}
}

func TestSignedURLRejectsEmptyKey(t *testing.T) {
	if _, err := newTestSigner().SignedURL(context.Background(), "", " ", time.Minute); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
