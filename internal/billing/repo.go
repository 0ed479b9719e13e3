package billing

import "context"

// MutateFunc receives the stored record (nil when the user has none) and
// returns the record to write, or nil to leave storage untouched.
type MutateFunc func(cur *SubscriptionRecord) (*SubscriptionRecord, error)

// Repo persists SubscriptionRecords keyed by user id.
type Repo interface {
	Get(ctx context.Context, userID string) (SubscriptionRecord, error)
	// Mutate runs fn as a critical section for userID: no other Mutate for
	// the same user interleaves between the read and the upsert.
	Mutate(ctx context.Context, userID string, fn MutateFunc) error
	UserBySubscriptionID(ctx context.Context, subscriptionID string) (string, error)
	UserByCustomerID(ctx context.Context, customerID string) (string, error)
}
