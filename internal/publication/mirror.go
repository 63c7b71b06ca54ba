package publication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Mirror copies publication directories to remote storage. name is the
// directory relative to the public root.
type Mirror interface {
	Sync(ctx context.Context, name, dir string) error
	Remove(ctx context.Context, name string) error
}

// S3Options locates the bucket of an S3Mirror.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// S3Mirror uploads artifacts to an S3 compatible bucket.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Mirror builds a path-style client for opts.
func NewS3Mirror(ctx context.Context, opts S3Options) (*S3Mirror, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		),
		awsconfig.WithRegion(opts.Region),
	}
	if opts.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolver(aws.EndpointResolverFunc(func(service, region string) (aws.Endpoint, error) {
			return aws.Endpoint{URL: opts.Endpoint}, nil
		})))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &S3Mirror{client: client, bucket: opts.Bucket, prefix: strings.Trim(opts.Prefix, "/")}, nil
}

func (m *S3Mirror) key(parts ...string) string {
	return path.Join(append([]string{m.prefix}, parts...)...)
}

// Sync uploads every file below dir under name/. Stale remote objects are
// removed first so that the mirror matches the local tree.
func (m *S3Mirror) Sync(ctx context.Context, name, dir string) error {
	if err := m.Remove(ctx, name); err != nil {
		return err
	}
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return m.put(ctx, m.key(name, filepath.ToSlash(rel)), data)
	})
}

func (m *S3Mirror) put(ctx context.Context, key string, data []byte) error {
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	upload := func() error {
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &m.bucket,
			Key:         &key,
			Body:        bytes.NewReader(data),
			ContentType: &contentType,
		})
		return err
	}

	err := upload()
	var apiError smithy.APIError
	if err != nil && errors.As(err, &apiError) && apiError.ErrorCode() == "NoSuchBucket" {
		if _, err := m.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &m.bucket}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.bucket, err)
		}
		err = upload()
	}
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Remove deletes every object under name/.
func (m *S3Mirror) Remove(ctx context.Context, name string) error {
	prefix := m.key(name) + "/"
	var token *string
	for {
		out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &m.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) && apiError.ErrorCode() == "NoSuchBucket" {
				return nil
			}
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &m.bucket, Key: obj.Key}); err != nil {
				return fmt.Errorf("delete %s: %w", aws.ToString(obj.Key), err)
			}
		}
		if out.NextContinuationToken == nil {
			return nil
		}
		token = out.NextContinuationToken
	}
}
