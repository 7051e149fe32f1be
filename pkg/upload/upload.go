// Package upload pushes finished parquet files to S3-compatible storage.
package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog/log"
)

// Config holds the target bucket settings. Credentials come from the
// standard AWS environment variables.
type Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// Uploader copies local files into a bucket.
type Uploader struct {
	cfg      Config
	uploader *s3manager.Uploader
}

// New creates an Uploader. A non-empty Endpoint switches to path-style
// addressing for S3-compatible stores like MinIO.
func New(cfg Config) (*Uploader, error) {
	awsCfg := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewEnvCredentials(),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &Uploader{cfg: cfg, uploader: s3manager.NewUploader(sess)}, nil
}

// File uploads a single local file under the configured prefix, keyed by
// its base name joined to key.
func (u *Uploader) File(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	fullKey := path.Join(u.cfg.Prefix, key)
	_, err = u.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(fullKey),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", u.cfg.Bucket, fullKey, err)
	}

	log.Debug().
		Str("file", localPath).
		Str("bucket", u.cfg.Bucket).
		Str("key", fullKey).
		Msg("Uploaded file")
	return nil
}

// Directory uploads every regular file under dir, preserving the
// directory layout relative to dir under keyPrefix.
func (u *Uploader) Directory(ctx context.Context, dir, keyPrefix string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		return u.File(ctx, p, path.Join(keyPrefix, filepath.ToSlash(rel)))
	})
}
