// Package reports stores import diagnostics on the local filesystem or in an
// S3-compatible bucket.
package reports

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/plew99/cytokines-metaanalysis/internal/config"
	"github.com/plew99/cytokines-metaanalysis/ports"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FileSink writes reports into a directory, creating it on first use.
type FileSink struct {
	dir string
}

var _ ports.ReportSink = (*FileSink)(nil)

// NewFileSink creates a sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Put writes data to dir/name and returns the file path.
func (s *FileSink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports dir: %w", err)
	}
	p := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return p, nil
}

// ObjectPutter is the part of the S3 API the sink needs. *s3.Client
// satisfies it.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads reports to a single bucket under an optional prefix.
type S3Sink struct {
	client ObjectPutter
	bucket string
	prefix string
}

var _ ports.ReportSink = (*S3Sink)(nil)

// NewS3Sink creates a sink writing to bucket/prefix.
func NewS3Sink(client ObjectPutter, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

// Put uploads data and returns the s3:// URI of the object.
func (s *S3Sink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := path.Join(s.prefix, path.Base(name))
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload report %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// NewS3Client builds a client from the S3_* settings. Static credentials are
// used when both keys are set; otherwise the default AWS chain applies.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// New picks the S3 sink when a bucket is configured and the filesystem
// sink otherwise.
func New(ctx context.Context, cfg *config.Config) (ports.ReportSink, error) {
	if !cfg.UseS3Reports() {
		return NewFileSink(cfg.ReportsDir), nil
	}
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewS3Sink(client, cfg.ReportsS3Bucket, "reports"), nil
}
