// Package archive uploads finalized session artifacts to S3-compatible
// object storage.
//
// Keys follow a Hive-style layout so downstream analysis tools can partition
// by subject and day:
//
//	<prefix>/subject=<subject>/day=<YYYY-MM-DD>/session_id=<id>/<filename>
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/biotel-io/camsync/iox"
	"github.com/biotel-io/camsync/types"
)

// Config holds configuration for the S3 archive backend.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not subdomain).
	// Required by most S3-compatible providers (R2, MinIO, etc.).
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ObjectPutter is the subset of the S3 client the uploader needs.
// Satisfied by *s3.Client; stub implementations live in tests.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies finalized session artifacts into a bucket.
type Uploader struct {
	cfg    Config
	client ObjectPutter
}

// New creates an Uploader against real S3.
// Uses AWS SDK default credential chain (env vars, shared config, IAM role).
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Uploader{cfg: cfg, client: s3.NewFromConfig(awsCfg, s3Opts...)}, nil
}

// NewWithClient creates an Uploader with an injected client.
func NewWithClient(client ObjectPutter, cfg Config) *Uploader {
	return &Uploader{cfg: cfg, client: client}
}

// Key builds the object key for one session artifact file.
func (u *Uploader) Key(meta *types.SessionMeta, filename string) string {
	subject := meta.Subject
	if subject == "" {
		subject = "unspecified"
	}
	day := meta.StartedAt.UTC().Format("2006-01-02")

	key := path.Join(
		"subject="+subject,
		"day="+day,
		"session_id="+meta.SessionID,
		filename,
	)
	if u.cfg.Prefix != "" {
		key = path.Join(u.cfg.Prefix, key)
	}
	return key
}

// UploadSession uploads the session's video and timestamp index. Empty paths
// are skipped. Returns the keys written, in upload order.
func (u *Uploader) UploadSession(ctx context.Context, meta *types.SessionMeta, videoPath, timestampsPath string) ([]string, error) {
	var keys []string

	type artifact struct {
		path        string
		contentType string
	}
	artifacts := []artifact{
		{videoPath, "video/x-msvideo"},
		{timestampsPath, "text/csv"},
	}

	for _, a := range artifacts {
		if a.path == "" {
			continue
		}
		key := u.Key(meta, filepath.Base(a.path))
		if err := u.uploadFile(ctx, key, a.path, a.contentType); err != nil {
			return keys, fmt.Errorf("archive: upload %s: %w", key, err)
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// uploadFile streams one local file into the bucket.
func (u *Uploader) uploadFile(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(f)

	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	return err
}
