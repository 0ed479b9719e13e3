package billing

import (
	"context"
	"sync"

	"cloudvault-backend/internal/shared/keylock"
)

// MemoryRepo is an in-memory Repo serialized per user.
type MemoryRepo struct {
	locks *keylock.KeyedMutex
	mu    sync.RWMutex
	data  map[string]SubscriptionRecord
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		locks: keylock.New(),
		data:  make(map[string]SubscriptionRecord),
	}
}

// Get returns the user's record.
func (r *MemoryRepo) Get(ctx context.Context, userID string) (SubscriptionRecord, error) {
	if err := ctx.Err(); err != nil {
		return SubscriptionRecord{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[userID]
	if !ok {
		return SubscriptionRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Mutate implements Repo.
func (r *MemoryRepo) Mutate(ctx context.Context, userID string, fn MutateFunc) error {
	unlock := r.locks.Lock(userID)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	var cur *SubscriptionRecord
	if rec, ok := r.data[userID]; ok {
		c := cloneRecord(rec)
		cur = &c
	}
	r.mu.RUnlock()

	next, err := fn(cur)
	if err != nil || next == nil {
		return err
	}
	if next.UserID != userID {
		return ErrInvalidRecord
	}
	if err := next.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if next.ProviderSubscriptionID != "" {
		for id, other := range r.data {
			if id != userID && other.ProviderSubscriptionID == next.ProviderSubscriptionID {
				return ErrInvalidRecord
			}
		}
	}
	r.data[userID] = cloneRecord(*next)
	return nil
}

// UserBySubscriptionID finds the user holding a provider subscription id.
func (r *MemoryRepo) UserBySubscriptionID(ctx context.Context, subscriptionID string) (string, error) {
	return r.find(ctx, func(rec SubscriptionRecord) bool {
		return subscriptionID != "" && rec.ProviderSubscriptionID == subscriptionID
	})
}

// UserByCustomerID finds the user holding a provider customer id.
func (r *MemoryRepo) UserByCustomerID(ctx context.Context, customerID string) (string, error) {
	return r.find(ctx, func(rec SubscriptionRecord) bool {
		return customerID != "" && rec.ProviderCustomerID == customerID
	})
}

func (r *MemoryRepo) find(ctx context.Context, match func(SubscriptionRecord) bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, rec := range r.data {
		if match(rec) {
			return id, nil
		}
	}
	return "", ErrNotFound
}

var _ Repo = (*MemoryRepo)(nil)
