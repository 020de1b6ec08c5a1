package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// unknownSizePartSize keeps memory bounded when streaming bodies of unknown length
const unknownSizePartSize = 16 << 20

// Config options for the MinIO backend
type Config struct {
	Endpoint        string // host:port, no scheme
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	UseSSL          bool

	CreateBucketIfNotExist bool
}

// Backend is a MinIO implementation of the simplemedia.BlobStore interface
type Backend struct {
	client *minio.Client
	bucket string
}

// New connects to MinIO and optionally ensures the bucket exists
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	if config.CreateBucketIfNotExist {
		exists, err := client.BucketExists(ctx, config.Bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region}); err != nil {
				return nil, fmt.Errorf("create bucket: %w", err)
			}
		}
	}

	return &Backend{client: client, bucket: config.Bucket}, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

// GetObjectMeta stats the object
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simplemedia.ObjectMeta, error) {
	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, simplemedia.ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return &simplemedia.ObjectMeta{
		Key:       key,
		Size:      info.Size,
		MimeType:  info.ContentType,
		ETag:      info.ETag,
		UpdatedAt: info.LastModified,
	}, nil
}

// Upload streams reader to the bucket
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader, params simplemedia.UploadParams) error {
	opts := minio.PutObjectOptions{ContentType: params.MimeType}
	if params.Size < 0 {
		opts.PartSize = unknownSizePartSize
	}
	if _, err := b.client.PutObject(ctx, b.bucket, key, reader, params.Size, opts); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// GetDownloadURL generates a pre-signed GET URL
func (b *Backend) GetDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", "inline")
	u, err := b.client.PresignedGetObject(ctx, b.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

// Download returns the object. *minio.Object is seekable.
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, simplemedia.ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, simplemedia.ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

// Delete removes an object. MinIO reports success for absent keys.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return simplemedia.ErrObjectNotFound
		}
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Ping checks that the bucket exists
func (b *Backend) Ping(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", b.bucket)
	}
	return nil
}
