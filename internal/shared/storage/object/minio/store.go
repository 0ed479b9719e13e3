package minio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cloudvault-backend/internal/shared/storage/object"
)

const ownerMetadataKey = "Owner-Id"

// Store implements ObjectStore on a MinIO (or any S3-compatible) endpoint.
type Store struct {
	client *minio.Client
	bucket string
}

// Options configures the MinIO connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New connects to MinIO and makes sure the bucket exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket exists %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket %s: %w", opts.Bucket, err)
		}
	}
	return &Store{client: client, bucket: opts.Bucket}, nil
}

// Put uploads r under key.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, opts object.PutOptions) error {
	if err := object.CheckKey(key, opts.OwnerID); err != nil {
		return err
	}
	putOpts := minio.PutObjectOptions{ContentType: opts.ContentType}
	if opts.OwnerID != "" {
		putOpts.UserMetadata = map[string]string{ownerMetadataKey: opts.OwnerID}
	}
	if size < 0 {
		size = -1
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, putOpts)
	if err != nil {
		return fmt.Errorf("minio put object bucket=%s key=%s: %w", s.bucket, key, err)
	}
	return object.SizeMismatch(size, info.Size)
}

// Get opens the object. The stat call surfaces missing keys up front since
// GetObject is lazy.
func (s *Store) Get(ctx context.Context, key string) (*object.Object, error) {
	if err := object.CheckKey(key, ""); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapErr("get", s.bucket, key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, mapErr("stat", s.bucket, key, err)
	}
	return &object.Object{Body: obj, Size: info.Size, ContentType: info.ContentType}, nil
}

// Delete removes the object.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := object.CheckKey(key, ""); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapErr("remove", s.bucket, key, err)
	}
	return nil
}

func mapErr(op, bucket, key string, err error) error {
	if isNotFound(err) {
		return object.ErrNotFound
	}
	return fmt.Errorf("minio %s object bucket=%s key=%s: %w", op, bucket, key, err)
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return true
	default:
		return false
	}
}

var _ object.ObjectStore = (*Store)(nil)
