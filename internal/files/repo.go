package files

import "context"

// Repo persists FileRecords.
type Repo interface {
	Create(ctx context.Context, rec FileRecord) error
	GetByID(ctx context.Context, id string) (FileRecord, error)
	List(ctx context.Context, filter ListFilter) ([]FileRecord, error)
	// Update applies p atomically and returns the stored result.
	Update(ctx context.Context, id string, p FilePatch) (FileRecord, error)
	Delete(ctx context.Context, id string) error
	// UsageBytes sums sizes of the owner's records that hold a blob,
	// including soft-deleted ones.
	UsageBytes(ctx context.Context, ownerID string) (int64, error)
	StorageKeyReferenced(ctx context.Context, key string) (bool, error)
}

// QuotaPolicy returns how many bytes an owner may store. A negative limit
// means unlimited.
type QuotaPolicy interface {
	QuotaBytes(ctx context.Context, ownerID string) (int64, error)
}
