package queue

import (
	"context"
	"errors"
	"fmt"

	"cloudvault-backend/internal/shared/metrics"
	"cloudvault-backend/internal/shared/storage/object"
	"cloudvault-backend/internal/shared/telemetry"
)

// BlobDeleter is the part of the object store the janitor needs.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// ReferenceChecker reports whether any FileRecord still points at a key.
type ReferenceChecker interface {
	StorageKeyReferenced(ctx context.Context, key string) (bool, error)
}

// Janitor deletes orphaned blobs reported on the queue.
type Janitor struct {
	Store BlobDeleter
	Refs  ReferenceChecker
}

// Process handles one orphan message. A blob that is already gone counts as
// done. A blob that turned out to be referenced is left alone.
func (j *Janitor) Process(ctx context.Context, msg Message) error {
	if j.Refs != nil {
		referenced, err := j.Refs.StorageKeyReferenced(ctx, msg.StorageKey)
		if err != nil {
			return fmt.Errorf("check references: %w", err)
		}
		if referenced {
			telemetry.Warn("janitor.blob_referenced", map[string]any{
				"storage_key": msg.StorageKey,
				"owner_id":    msg.OwnerID,
			})
			return nil
		}
	}

	err := j.Store.Delete(ctx, msg.StorageKey)
	switch {
	case err == nil:
		metrics.IncOrphan("deleted")
	case errors.Is(err, object.ErrNotFound):
		metrics.IncOrphan("already_gone")
	default:
		metrics.IncOrphan("failed")
		return fmt.Errorf("delete orphan %s: %w", msg.StorageKey, err)
	}
	telemetry.Info("janitor.blob_deleted", map[string]any{
		"storage_key": msg.StorageKey,
		"owner_id":    msg.OwnerID,
		"reason":      msg.Reason,
	})
	return nil
}
