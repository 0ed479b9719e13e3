package billing

import (
	"context"
	"fmt"
	"time"
)

// Override is an administrative change to a stored subscription. Nil
// fields are left alone.
type Override struct {
	PlanID            *PlanID
	Status            *Status
	CancelAtPeriodEnd *bool
	CurrentPeriodEnd  *time.Time
}

// Provision creates or replaces a subscription outside the provider flow,
// inside the same per-user critical section as Reconcile.
func (r *Reconciler) Provision(ctx context.Context, rec SubscriptionRecord) (SubscriptionRecord, error) {
	if rec.UserID == "" {
		return SubscriptionRecord{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if !rec.IsTrial {
		clearTrial(&rec)
	}
	if rec.Status == StatusCanceled {
		rec.CancelAtPeriodEnd = false
	}
	rec.UpdatedAt = r.clock()
	if err := rec.Validate(); err != nil {
		return SubscriptionRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	err := r.Repo.Mutate(ctx, rec.UserID, func(*SubscriptionRecord) (*SubscriptionRecord, error) {
		out := cloneRecord(rec)
		return &out, nil
	})
	if err != nil {
		return SubscriptionRecord{}, retryable("provision", err)
	}
	return rec, nil
}

// ApplyOverride changes selected fields of an existing subscription.
func (r *Reconciler) ApplyOverride(ctx context.Context, userID string, o Override) (SubscriptionRecord, error) {
	if o.PlanID != nil && !o.PlanID.Valid() {
		return SubscriptionRecord{}, fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, *o.PlanID)
	}
	if o.Status != nil && !o.Status.Valid() {
		return SubscriptionRecord{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *o.Status)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	var out SubscriptionRecord
	err := r.Repo.Mutate(ctx, userID, func(cur *SubscriptionRecord) (*SubscriptionRecord, error) {
		if cur == nil {
			return nil, ErrNotFound
		}
		next := cloneRecord(*cur)
		if o.PlanID != nil {
			next.PlanID = *o.PlanID
		}
		if o.Status != nil {
			next.Status = *o.Status
			if next.Status != StatusTrialing {
				clearTrial(&next)
			}
		}
		if o.CancelAtPeriodEnd != nil {
			next.CancelAtPeriodEnd = *o.CancelAtPeriodEnd
		}
		if o.CurrentPeriodEnd != nil {
			next.CurrentPeriodEnd = o.CurrentPeriodEnd.UTC()
		}
		if next.Status == StatusCanceled {
			next.CancelAtPeriodEnd = false
		}
		next.UpdatedAt = r.clock()
		out = next
		return &next, nil
	})
	if err != nil {
		return SubscriptionRecord{}, retryable("override", err)
	}
	return out, nil
}
