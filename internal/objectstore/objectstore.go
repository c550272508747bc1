// Package objectstore uploads recorded audio to S3-compatible storage.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithy "github.com/aws/smithy-go"

	"github.com/sentinel-voice/core/internal/apperr"
	"github.com/sentinel-voice/core/internal/logging"
)

// Client uploads session recordings to a bucket.
type Client struct {
	s3     *s3.Client
	bucket string
	log    logging.Logger
}

// Options configures the underlying S3 client, supporting
// S3-compatible endpoints (MinIO) alongside AWS itself.
type Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// New builds a Client from static credentials and an optional custom
// endpoint.
func New(ctx context.Context, opts Options, log logging.Logger) (*Client, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, apperr.Config("objectstore.load_config", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{s3: client, bucket: opts.Bucket, log: log}, nil
}

// EnsureBucket creates the configured bucket if it does not already
// exist. Intended for local/dev bootstrapping; production buckets are
// provisioned out of band.
func (c *Client) EnsureBucket(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return apperr.Transient("objectstore.head_bucket", err)
	}

	if c.log != nil {
		c.log.Info("objectstore: creating bucket", "bucket", c.bucket)
	}
	_, err = c.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return apperr.Transient("objectstore.create_bucket", err)
	}
	return nil
}

// UploadBytes uploads data under key with the given content type,
// returning the s3:// URI.
func (c *Client) UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", apperr.Transient("objectstore.upload_bytes", err)
	}
	if c.log != nil {
		c.log.Info("objectstore: uploaded", "bytes", len(data), "key", key)
	}
	return fmt.Sprintf("s3://%s/%s", c.bucket, key), nil
}

// UploadFile streams a file from disk, used for the larger transcoded
// recordings the persistence worker spools before upload.
func (c *Client) UploadFile(ctx context.Context, filePath, key, contentType string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", apperr.Permanent("objectstore.upload_file.open", err)
	}
	defer f.Close()

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", apperr.Transient("objectstore.upload_file", err)
	}
	if c.log != nil {
		c.log.Info("objectstore: uploaded file", "path", filePath, "key", key)
	}
	return fmt.Sprintf("s3://%s/%s", c.bucket, key), nil
}

// RecordingKey builds the canonical recordings/{sessionID}.{ext} key
// layout.
func RecordingKey(sessionID, ext string) string {
	return fmt.Sprintf("recordings/%s.%s", sessionID, ext)
}
