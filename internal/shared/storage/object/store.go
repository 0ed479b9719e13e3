package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"

	"cloudvault-backend/internal/shared/util"
)

var (
	// ErrNotFound is returned by Get and Delete when no object exists under the key.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys outside the owner's namespace or with traversal.
	ErrInvalidKey = errors.New("invalid storage key")
)

// PutOptions carries per-object attributes.
type PutOptions struct {
	ContentType string
	// OwnerID scopes the object to one user. The key must live under the
	// owner's namespace (see NewKey).
	OwnerID string
}

// Object is an open blob. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// ObjectStore is the blob capability: opaque put/get/delete by key.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh key in ownerID's namespace.
func NewKey(ownerID string) string {
	return path.Join(util.OwnerKeyPrefix(ownerID), strings.ToLower(ulid.Make().String()))
}

// CheckKey rejects keys that escape the store root or, when ownerID is set,
// that do not belong to ownerID.
func CheckKey(key, ownerID string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if ownerID != "" && !strings.HasPrefix(key, util.OwnerKeyPrefix(ownerID)+"/") {
		return fmt.Errorf("%w: key not in owner namespace", ErrInvalidKey)
	}
	return nil
}

// CountingReader counts bytes read through it.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}

// SizeMismatch reports a body whose length differs from the declared size.
func SizeMismatch(declared, written int64) error {
	if declared >= 0 && declared != written {
		return fmt.Errorf("size mismatch: declared %d, wrote %d", declared, written)
	}
	return nil
}
