package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"crystalgate/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
)

// ImageStore archives identified images.
type ImageStore interface {
	Archive(ctx context.Context, userID, identificationID string, image []byte, mimeType string) (string, error)
	PresignedURL(ctx context.Context, key string) (string, error)
}

// NewS3Client builds a path-style client for an S3 compatible endpoint.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		return nil, fmt.Errorf("load S3 config: %w", err)
	}
	return s3.NewFromConfig(s3Config, func(o *s3.Options) {
		if cfg.S3URL != "" {
			o.BaseEndpoint = aws.String(cfg.S3URL)
		}
		o.UsePathStyle = true
	}), nil
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}

type s3ImageStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3ImageStore(client *s3.Client, bucket string) ImageStore {
	return &s3ImageStore{client: client, presign: s3.NewPresignClient(client), bucket: bucket}
}

// ImageKey is the object key of an archived identification image.
func ImageKey(userID, identificationID string) string {
	return fmt.Sprintf("identifications/%s/%s", userID, identificationID)
}

func (s *s3ImageStore) Archive(ctx context.Context, userID, identificationID string, image []byte, mimeType string) (string, error) {
	key := ImageKey(userID, identificationID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(image),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

func (s *s3ImageStore) PresignedURL(ctx context.Context, key string) (string, error) {
	resp, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return resp.URL, nil
}
