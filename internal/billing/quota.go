package billing

import (
	"context"
	"errors"
)

// QuotaPolicy maps a user's subscription to a storage allowance.
type QuotaPolicy struct {
	Repo Repo
}

// QuotaBytes returns the user's allowance. Users without a live
// subscription get the free allowance; past_due keeps the plan's.
func (q QuotaPolicy) QuotaBytes(ctx context.Context, userID string) (int64, error) {
	rec, err := q.Repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return FreeQuotaBytes, nil
		}
		return 0, err
	}
	switch rec.Status {
	case StatusActive, StatusTrialing, StatusPastDue:
		return QuotaFor(rec.PlanID), nil
	}
	return FreeQuotaBytes, nil
}
