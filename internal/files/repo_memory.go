package files

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]FileRecord
	keys map[string]string // storageKey -> id
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]FileRecord),
		keys: make(map[string]string),
	}
}

// Create stores a new record. Reusing an id or storage key is rejected.
func (r *MemoryRepo) Create(ctx context.Context, rec FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[rec.ID]; exists {
		return ErrInvalidInput
	}
	if rec.StorageKey != "" {
		if _, taken := r.keys[rec.StorageKey]; taken {
			return ErrInvalidInput
		}
		r.keys[rec.StorageKey] = rec.ID
	}
	r.data[rec.ID] = cloneRecord(rec)
	return nil
}

// GetByID returns a record by id.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return FileRecord{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[id]
	if !ok {
		return FileRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// List returns matching records newest first, honoring limit/offset.
func (r *MemoryRepo) List(ctx context.Context, f ListFilter) ([]FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]FileRecord, 0)
	for _, rec := range r.data {
		if rec.OwnerID != f.OwnerID {
			continue
		}
		if rec.IsDeleted && !f.IncludeDeleted {
			continue
		}
		if f.FavoritesOnly && !rec.IsFavorite {
			continue
		}
		if f.ParentID != nil && (rec.ParentID == nil || *rec.ParentID != *f.ParentID) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []FileRecord{}, nil
	}
	end := len(out)
	if f.Limit > 0 && offset+f.Limit < end {
		end = offset + f.Limit
	}
	return out[offset:end], nil
}

// Update applies the set fields of p under the repo lock.
func (r *MemoryRepo) Update(ctx context.Context, id string, p FilePatch) (FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return FileRecord{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[id]
	if !ok || (p.OnlyLive && cur.IsDeleted) {
		return FileRecord{}, ErrNotFound
	}
	if p.Name != nil {
		cur.Name = *p.Name
	}
	if p.IsDeleted != nil {
		cur.IsDeleted = *p.IsDeleted
	}
	if p.IsFavorite != nil {
		cur.IsFavorite = *p.IsFavorite
	}
	cur.UpdatedAt = p.UpdatedAt
	r.data[id] = cur
	return cloneRecord(cur), nil
}

// Delete removes a record.
func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.data, id)
	if rec.StorageKey != "" {
		delete(r.keys, rec.StorageKey)
	}
	return nil
}

// UsageBytes sums the owner's blob-backed records.
func (r *MemoryRepo) UsageBytes(ctx context.Context, ownerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, rec := range r.data {
		if rec.OwnerID == ownerID && rec.StorageKey != "" {
			total += rec.Size
		}
	}
	return total, nil
}

// StorageKeyReferenced reports whether any record holds key.
func (r *MemoryRepo) StorageKeyReferenced(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[key]
	return ok, nil
}

func cloneRecord(rec FileRecord) FileRecord {
	if rec.ParentID != nil {
		p := *rec.ParentID
		rec.ParentID = &p
	}
	return rec
}

var _ Repo = (*MemoryRepo)(nil)
