package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"cloudvault-backend/internal/shared/storage/object"
)

const ownerMetadataKey = "owner-id"

// Store implements ObjectStore on Google Cloud Storage.
type Store struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed store using application default credentials.
func New(ctx context.Context, bucket string) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Put streams r into a new object. A failed copy cancels the writer so no
// partial object is finalized.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, opts object.PutOptions) error {
	if err := object.CheckKey(key, opts.OwnerID); err != nil {
		return err
	}
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// DoesNotExist makes a reused key fail instead of overwriting.
	w := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
	w.ContentType = opts.ContentType
	if opts.OwnerID != "" {
		w.Metadata = map[string]string{ownerMetadataKey: opts.OwnerID}
	}

	written, err := io.Copy(w, r)
	if err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("gcs write bucket=%s key=%s: %w", s.bucket, key, err)
	}
	if err := object.SizeMismatch(size, written); err != nil {
		cancel()
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs finalize bucket=%s key=%s: %w", s.bucket, key, err)
	}
	return nil
}

// Get opens the object for reading.
func (s *Store) Get(ctx context.Context, key string) (*object.Object, error) {
	if err := object.CheckKey(key, ""); err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("gcs read bucket=%s key=%s: %w", s.bucket, key, err)
	}
	return &object.Object{Body: r, Size: r.Attrs.Size, ContentType: r.Attrs.ContentType}, nil
}

// Delete removes the object.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := object.CheckKey(key, ""); err != nil {
		return err
	}
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return object.ErrNotFound
		}
		return fmt.Errorf("gcs delete bucket=%s key=%s: %w", s.bucket, key, err)
	}
	return nil
}

var _ object.ObjectStore = (*Store)(nil)
