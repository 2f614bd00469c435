package service

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/threadline/threadline/configs"
)

func newTestR2(base string, client s3API) *R2Service {
	conf := cfg.Config{R2: cfg.R2{BucketName: "media", PublicBaseURL: base}}
	return &R2Service{config: conf, client: client}
}

func TestKeyForURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		url     string
		wantKey string
		wantOK  bool
	}{
		{name: "owned url", base: "https://media.example.com", url: "https://media.example.com/abc123.jpg", wantKey: "abc123.jpg", wantOK: true},
		{name: "trailing slash on base", base: "https://media.example.com/", url: "https://media.example.com/abc123.jpg", wantKey: "abc123.jpg", wantOK: true},
		{name: "query string stripped", base: "https://media.example.com", url: "https://media.example.com/abc123.mp4?t=9", wantKey: "abc123.mp4", wantOK: true},
		{name: "fragment stripped", base: "https://media.example.com", url: "https://media.example.com/abc123.jpg#top", wantKey: "abc123.jpg", wantOK: true},
		{name: "nested key", base: "https://media.example.com", url: "https://media.example.com/u/1/abc.png", wantKey: "u/1/abc.png", wantOK: true},
		{name: "foreign host", base: "https://media.example.com", url: "https://cdn.elsewhere.net/abc123.jpg", wantOK: false},
		{name: "prefix lookalike host", base: "https://media.example.com", url: "https://media.example.com.evil.net/x.jpg", wantOK: false},
		{name: "base url itself", base: "https://media.example.com", url: "https://media.example.com/", wantOK: false},
		{name: "empty base matches nothing", base: "", url: "https://media.example.com/abc123.jpg", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r2 := newTestR2(tt.base, nil)
			key, ok := r2.KeyForURL(tt.url)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
		})
	}
}

type failingS3 struct {
	fakeS3
	failKeys map[string]bool
}

func (f *failingS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.failKeys[*params.Key] {
		return nil, errors.New("access denied")
	}
	return f.fakeS3.DeleteObject(ctx, params, optFns...)
}

func TestDeleteMediaURLs(t *testing.T) {
	client := &failingS3{failKeys: map[string]bool{"broken.jpg": true}}
	r2 := newTestR2("https://media.example.com", client)

	// one owned, one foreign, one whose delete fails; no error escapes and the
	// remaining owned object is still removed
	r2.DeleteMediaURLs(context.Background(), []string{
		"https://media.example.com/broken.jpg",
		"https://cdn.elsewhere.net/foreign.jpg",
		"https://media.example.com/ok.jpg",
	})

	if len(client.deleted) != 1 || client.deleted[0] != "ok.jpg" {
		t.Errorf("deleted = %v, want [ok.jpg]", client.deleted)
	}
}
