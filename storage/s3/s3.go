// Package s3 stores uploads in Amazon S3 or an S3-compatible service.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/storage"
)

func init() {
	storage.RegisterFactory(storage.ProviderS3, func(ctx context.Context, cfg storage.Config, _ *logger.Logger) (storage.Storage, error) {
		return NewStorage(ctx, cfg)
	})
}

// API is the subset of the S3 client used here.
type API interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, opts ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *awss3.GetObjectInput, opts ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *awss3.HeadObjectInput, opts ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, opts ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// Storage implements storage.Storage on a bucket, optionally under a key prefix.
type Storage struct {
	client API
	bucket string
	prefix string
}

// NewStorage builds an S3 client from cfg.
func NewStorage(ctx context.Context, cfg storage.Config) (*Storage, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})
	return New(client, cfg.Bucket, cfg.Prefix), nil
}

// New wraps an existing client.
func New(client API, bucket, prefix string) *Storage {
	return &Storage{client: client, bucket: bucket, prefix: prefix}
}

func (s *Storage) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return path.Join(s.prefix, k)
}

// Put uploads r. Seekable readers (multipart files) are sent with a known
// length; other readers are streamed, which the SDK only allows over TLS.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	in := &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
		Body:   r,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	size := int64(-1)
	if rs, ok := r.(io.ReadSeeker); ok {
		end, err := rs.Seek(0, io.SeekEnd)
		if err == nil {
			if _, err = rs.Seek(0, io.SeekStart); err == nil {
				size = end
				in.ContentLength = aws.Int64(size)
			}
		}
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return 0, fmt.Errorf("storage: s3 put: %w", err)
	}
	if size < 0 {
		obj, err := s.Stat(ctx, key)
		if err != nil {
			return 0, err
		}
		size = obj.Size
	}
	return size, nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, storage.Object, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return nil, storage.Object{}, translate("get", err)
	}
	obj := storage.Object{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		obj.LastModified = *out.LastModified
	}
	return out.Body, obj, nil
}

func (s *Storage) Stat(ctx context.Context, key string) (storage.Object, error) {
	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return storage.Object{}, translate("head", err)
	}
	obj := storage.Object{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		obj.LastModified = *out.LastModified
	}
	return obj, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		if errors.Is(translate("delete", err), storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("storage: s3 delete: %w", err)
	}
	return nil
}

// translate maps S3 missing-object errors to storage.ErrNotFound.
func translate(op string, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("storage: s3 %s: %w", op, err)
}

var _ storage.Storage = (*Storage)(nil)
