package output

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/conneroisu/pagewright/internal/config"
)

// PutObjectAPI is the part of the S3 client the writer uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads output to a bucket.
type S3 struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3 creates a writer for bucket using client. Keys are prefix joined
// with the file name.
func NewS3(client PutObjectAPI, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// NewS3FromConfig builds an S3 client from cfg. Static credentials are
// used when an access key is configured, otherwise the client relies on
// anonymous access.
func NewS3FromConfig(cfg config.S3Config) *S3 {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.Endpoint != "",
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "pagewright",
		}
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	return NewS3(s3.New(opts), cfg.Bucket, cfg.Prefix)
}

// Location returns the s3:// URL of the destination.
func (w *S3) Location() string {
	return "s3://" + path.Join(w.bucket, w.prefix)
}

// Prepare does nothing; objects are overwritten in place.
func (w *S3) Prepare(ctx context.Context) error {
	return nil
}

// WriteFile uploads f.
func (w *S3) WriteFile(ctx context.Context, f File) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(w.key(f.Name)),
		Body:        bytes.NewReader(f.Data),
		ContentType: aws.String(f.MimeType),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", f.Name, err)
	}
	return nil
}

func (w *S3) key(name string) string {
	if w.prefix == "" {
		return name
	}
	return path.Join(w.prefix, name)
}
