package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloudvault-backend/internal/shared/metrics"
	"cloudvault-backend/internal/shared/telemetry"
)

const defaultReconcileTimeout = 10 * time.Second

// Outcome describes what a reconcile did to the stored record.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeSkipped   Outcome = "skipped"
)

// Result is the outcome of one reconcile.
type Result struct {
	Outcome Outcome
	UserID  string
	Reason  string
	Record  *SubscriptionRecord
}

// Reconciler converges stored subscriptions to the provider's view. Every
// event is applied as a full snapshot and upserted by user id inside the
// repo's per-user critical section, so redelivery is harmless. Events are
// not ordered against each other: a stale snapshot delivered late wins.
type Reconciler struct {
	Repo    Repo
	Plans   *PlanPriceTable
	Timeout time.Duration

	now func() time.Time
}

// NewReconciler constructs a Reconciler.
func NewReconciler(repo Repo, plans *PlanPriceTable, timeout time.Duration) *Reconciler {
	return &Reconciler{Repo: repo, Plans: plans, Timeout: timeout}
}

func (r *Reconciler) clock() time.Time {
	if r.now != nil {
		return r.now().UTC()
	}
	return time.Now().UTC()
}

func (r *Reconciler) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return defaultReconcileTimeout
}

// Reconcile applies ev. It is safe to call again with the same event.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Result, error) {
	start := time.Now()
	res, err := r.reconcile(ctx, ev)
	metrics.ObserveReconcileSeconds(time.Since(start).Seconds())

	fields := map[string]any{
		"event_id":        ev.ID,
		"event_type":      string(ev.Type),
		"subscription_id": ev.SubscriptionID,
		"user_id":         res.UserID,
	}
	if err != nil {
		label := "failed"
		switch {
		case errors.Is(err, ErrRetryable):
			label = "retryable"
		case errors.Is(err, ErrUnresolvedUser):
			label = "unresolved_user"
		}
		metrics.IncReconcile(label)
		fields["err"] = err
		telemetry.Error("billing.reconcile_failed", fields)
		return res, err
	}

	metrics.IncReconcile(string(res.Outcome))
	fields["outcome"] = string(res.Outcome)
	if res.Reason != "" {
		fields["reason"] = res.Reason
	}
	if res.Record != nil {
		fields["status"] = string(res.Record.Status)
		fields["plan"] = string(res.Record.PlanID)
	}
	telemetry.Info("billing.reconciled", fields)
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, ev Event) (Result, error) {
	switch ev.Type {
	case EventCheckoutCompleted, EventSubscriptionCreated, EventSubscriptionUpdated,
		EventSubscriptionDeleted, EventInvoicePaid, EventInvoicePaymentFailed:
	default:
		return Result{Outcome: OutcomeSkipped, Reason: "unhandled event type"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	userID, err := r.resolveUser(ctx, ev)
	if err != nil {
		return Result{}, err
	}

	res := Result{UserID: userID}
	err = r.Repo.Mutate(ctx, userID, func(cur *SubscriptionRecord) (*SubscriptionRecord, error) {
		next, reason, err := r.apply(cur, userID, ev)
		if err != nil {
			return nil, err
		}
		if next == nil {
			res.Outcome = OutcomeIgnored
			res.Reason = reason
			res.Record = cur
			return nil, nil
		}
		if cur != nil && sameState(*cur, *next) {
			res.Outcome = OutcomeUnchanged
			res.Record = cur
			return nil, nil
		}
		next.UpdatedAt = r.clock()
		res.Outcome = OutcomeApplied
		res.Record = next
		return next, nil
	})
	if err != nil {
		return Result{UserID: userID}, retryable("reconcile", err)
	}
	return res, nil
}

// resolveUser prefers the checkout correlation, then the stored links.
func (r *Reconciler) resolveUser(ctx context.Context, ev Event) (string, error) {
	if ev.UserID != "" {
		return ev.UserID, nil
	}
	lookups := []struct {
		id   string
		find func(context.Context, string) (string, error)
	}{
		{ev.SubscriptionID, r.Repo.UserBySubscriptionID},
		{ev.CustomerID, r.Repo.UserByCustomerID},
	}
	for _, l := range lookups {
		if l.id == "" {
			continue
		}
		userID, err := l.find(ctx, l.id)
		if err == nil && userID != "" {
			return userID, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", retryable("resolve user", err)
		}
	}
	return "", fmt.Errorf("%w: event %s (%s)", ErrUnresolvedUser, ev.ID, ev.Type)
}

// apply computes the next record. A nil record with a reason means the
// event does not apply to what is stored.
func (r *Reconciler) apply(cur *SubscriptionRecord, userID string, ev Event) (*SubscriptionRecord, string, error) {
	switch ev.Type {
	case EventCheckoutCompleted, EventSubscriptionCreated, EventSubscriptionUpdated:
		return r.applySnapshot(cur, userID, ev)
	case EventSubscriptionDeleted:
		if reason := mismatch(cur, ev); reason != "" {
			return nil, reason, nil
		}
		next := cloneRecord(*cur)
		next.Status = StatusCanceled
		next.CancelAtPeriodEnd = false
		clearTrial(&next)
		return &next, "", nil
	case EventInvoicePaid:
		if reason := mismatch(cur, ev); reason != "" {
			return nil, reason, nil
		}
		if cur.Status == StatusCanceled {
			return nil, "subscription is canceled", nil
		}
		next := cloneRecord(*cur)
		if next.Status == StatusPastDue {
			next.Status = StatusActive
		}
		if !ev.PeriodEnd.IsZero() {
			next.CurrentPeriodStart = ev.PeriodStart
			next.CurrentPeriodEnd = ev.PeriodEnd
		}
		return &next, "", nil
	case EventInvoicePaymentFailed:
		if reason := mismatch(cur, ev); reason != "" {
			return nil, reason, nil
		}
		if cur.Status == StatusCanceled {
			return nil, "subscription is canceled", nil
		}
		next := cloneRecord(*cur)
		if next.Status == StatusActive || next.Status == StatusTrialing {
			next.Status = StatusPastDue
			clearTrial(&next)
		}
		return &next, "", nil
	}
	return nil, "unhandled event type", nil
}

func (r *Reconciler) applySnapshot(cur *SubscriptionRecord, userID string, ev Event) (*SubscriptionRecord, string, error) {
	snap := ev.Snapshot
	if snap == nil {
		return nil, "", fmt.Errorf("%w: %s carries no subscription", ErrInvalidEvent, ev.Type)
	}
	sameInstance := cur != nil && cur.ProviderSubscriptionID != "" && cur.ProviderSubscriptionID == ev.SubscriptionID
	if cur != nil && !sameInstance && ev.Type != EventCheckoutCompleted &&
		cur.Status != StatusCanceled && cur.ProviderSubscriptionID != "" && ev.SubscriptionID != "" {
		return nil, "event is for a different subscription than the live one", nil
	}

	status := MapProviderStatus(snap.ProviderStatus)
	if snap.ProviderStatus == "" && ev.Type == EventCheckoutCompleted {
		status = StatusActive
		if snap.TrialEnd != nil {
			status = StatusTrialing
		}
	}
	if sameInstance && cur.Status == StatusCanceled && status != StatusCanceled {
		return nil, "subscription is canceled", nil
	}

	plan, ok := r.Plans.PlanForPrice(snap.PriceID)
	switch {
	case ok:
	case snap.PlanHint.Valid():
		plan = snap.PlanHint
	case snap.PriceID == "" && sameInstance:
		plan = cur.PlanID
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownPrice, snap.PriceID)
	}

	next := SubscriptionRecord{
		UserID:                 userID,
		PlanID:                 plan,
		Status:                 status,
		CurrentPeriodStart:     snap.CurrentPeriodStart,
		CurrentPeriodEnd:       snap.CurrentPeriodEnd,
		CancelAtPeriodEnd:      snap.CancelAtPeriodEnd && status != StatusCanceled,
		ProviderSubscriptionID: ev.SubscriptionID,
		ProviderCustomerID:     ev.CustomerID,
	}
	if cur != nil {
		if next.ProviderSubscriptionID == "" {
			next.ProviderSubscriptionID = cur.ProviderSubscriptionID
			sameInstance = cur.ProviderSubscriptionID != ""
		}
		if next.ProviderCustomerID == "" {
			next.ProviderCustomerID = cur.ProviderCustomerID
		}
		if sameInstance {
			if next.CurrentPeriodStart.IsZero() {
				next.CurrentPeriodStart = cur.CurrentPeriodStart
			}
			if next.CurrentPeriodEnd.IsZero() {
				next.CurrentPeriodEnd = cur.CurrentPeriodEnd
			}
		}
	}

	if status == StatusTrialing && snap.TrialEnd != nil {
		end := *snap.TrialEnd
		var start time.Time
		switch {
		case snap.TrialStart != nil:
			start = *snap.TrialStart
		case sameInstance && cur.TrialStart != nil:
			start = *cur.TrialStart
		case !next.CurrentPeriodStart.IsZero():
			start = next.CurrentPeriodStart
		case !ev.Created.IsZero():
			start = ev.Created
		default:
			start = end
		}
		next.IsTrial = true
		next.TrialStart = &start
		next.TrialEnd = &end
	}
	return &next, "", nil
}

// mismatch explains why an event for an existing subscription instance does
// not apply to cur, or returns "".
func mismatch(cur *SubscriptionRecord, ev Event) string {
	switch {
	case cur == nil:
		return "no subscription on record"
	case ev.SubscriptionID == "":
		return "event is not tied to a subscription"
	case cur.ProviderSubscriptionID != ev.SubscriptionID:
		return "event is for a different subscription than the stored one"
	}
	return ""
}

func clearTrial(rec *SubscriptionRecord) {
	rec.IsTrial = false
	rec.TrialStart = nil
	rec.TrialEnd = nil
}
