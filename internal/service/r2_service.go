package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/threadline/threadline/configs"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type R2Service struct {
	config cfg.Config
	client s3API
}

func NewR2Service(cfg cfg.Config) *R2Service {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2.AccessKey, cfg.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		log.Fatal(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2.AccountID))
	})

	return &R2Service{config: cfg, client: client}
}

// Function to upload file to Cloudflare R2 Storage
func (r *R2Service) UploadToR2(ctx context.Context, key string, file []byte, filetype string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(filetype),
	}

	_, err := r.client.PutObject(ctx, input)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

func (r *R2Service) DeleteFromR2(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(r.config.R2.BucketName),
		Key:    aws.String(key),
	}

	_, err := r.client.DeleteObject(ctx, input)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

func (r *R2Service) PublicBaseURL() string {
	return strings.TrimSuffix(r.config.R2.PublicBaseURL, "/")
}

// KeyForURL maps a public media URL back to its bucket key. URLs outside the
// configured public base are foreign (externally hosted) and must not be
// deleted.
func (r *R2Service) KeyForURL(mediaURL string) (string, bool) {
	base := strings.TrimSuffix(r.config.R2.PublicBaseURL, "/")
	if base == "" || !strings.HasPrefix(mediaURL, base+"/") {
		return "", false
	}

	key := strings.TrimPrefix(mediaURL, base+"/")
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if key == "" {
		return "", false
	}

	return key, true
}

// DeleteMediaURLs removes the stored objects behind a thread's media. Failures
// are logged and never escalated; the thread is already terminal by the time
// this runs.
func (r *R2Service) DeleteMediaURLs(ctx context.Context, mediaURLs []string) {
	for _, mediaURL := range mediaURLs {
		key, ok := r.KeyForURL(mediaURL)
		if !ok {
			slog.Info("skipping foreign media url", "url", mediaURL)
			continue
		}

		if err := r.DeleteFromR2(ctx, key); err != nil {
			slog.Error("failed to delete media object", "key", key, "error", err.Error())
		}
	}
}
