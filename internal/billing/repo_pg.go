package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloudvault-backend/internal/shared/storage/db"
)

// PGRepo implements Repo on Postgres. Mutate holds a transaction-scoped
// advisory lock on the user id for the read and the upsert.
type PGRepo struct {
	DB *sql.DB
}

const subscriptionColumns = `user_id, plan_id, status, is_trial, current_period_start, current_period_end,
trial_start, trial_end, cancel_at_period_end, provider_subscription_id, provider_customer_id, updated_at`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get returns the user's record.
func (r *PGRepo) Get(ctx context.Context, userID string) (SubscriptionRecord, error) {
	return getSubscription(ctx, r.DB, userID, false)
}

// Mutate implements Repo.
func (r *PGRepo) Mutate(ctx context.Context, userID string, fn MutateFunc) error {
	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := db.LockKey(ctx, tx, "subscription:"+userID); err != nil {
			return err
		}

		var cur *SubscriptionRecord
		rec, err := getSubscription(ctx, tx, userID, true)
		switch {
		case err == nil:
			cur = &rec
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}

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
		return upsertSubscription(ctx, tx, *next)
	})
}

// UserBySubscriptionID finds the user holding a provider subscription id.
func (r *PGRepo) UserBySubscriptionID(ctx context.Context, subscriptionID string) (string, error) {
	return r.findUser(ctx, `SELECT user_id FROM subscriptions WHERE provider_subscription_id = $1`, subscriptionID)
}

// UserByCustomerID finds the most recently updated user holding a customer id.
func (r *PGRepo) UserByCustomerID(ctx context.Context, customerID string) (string, error) {
	return r.findUser(ctx, `SELECT user_id FROM subscriptions WHERE provider_customer_id = $1 ORDER BY updated_at DESC LIMIT 1`, customerID)
}

func (r *PGRepo) findUser(ctx context.Context, query, arg string) (string, error) {
	if arg == "" {
		return "", ErrNotFound
	}
	var userID string
	if err := r.DB.QueryRowContext(ctx, query, arg).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return userID, nil
}

func getSubscription(ctx context.Context, q queryRower, userID string, forUpdate bool) (SubscriptionRecord, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		rec                    SubscriptionRecord
		plan, status           string
		periodStart, periodEnd sql.NullTime
		trialStart, trialEnd   sql.NullTime
		subID, custID          sql.NullString
	)
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&rec.UserID,
		&plan,
		&status,
		&rec.IsTrial,
		&periodStart,
		&periodEnd,
		&trialStart,
		&trialEnd,
		&rec.CancelAtPeriodEnd,
		&subID,
		&custID,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SubscriptionRecord{}, ErrNotFound
		}
		return SubscriptionRecord{}, fmt.Errorf("select subscription: %w", err)
	}
	rec.PlanID = PlanID(plan)
	rec.Status = Status(status)
	if periodStart.Valid {
		rec.CurrentPeriodStart = periodStart.Time.UTC()
	}
	if periodEnd.Valid {
		rec.CurrentPeriodEnd = periodEnd.Time.UTC()
	}
	rec.TrialStart = timePtr(trialStart)
	rec.TrialEnd = timePtr(trialEnd)
	rec.ProviderSubscriptionID = subID.String
	rec.ProviderCustomerID = custID.String
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func upsertSubscription(ctx context.Context, tx *sql.Tx, rec SubscriptionRecord) error {
	const query = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (user_id) DO UPDATE SET
	plan_id = EXCLUDED.plan_id,
	status = EXCLUDED.status,
	is_trial = EXCLUDED.is_trial,
	current_period_start = EXCLUDED.current_period_start,
	current_period_end = EXCLUDED.current_period_end,
	trial_start = EXCLUDED.trial_start,
	trial_end = EXCLUDED.trial_end,
	cancel_at_period_end = EXCLUDED.cancel_at_period_end,
	provider_subscription_id = EXCLUDED.provider_subscription_id,
	provider_customer_id = EXCLUDED.provider_customer_id,
	updated_at = EXCLUDED.updated_at`

	_, err := tx.ExecContext(ctx, query,
		rec.UserID,
		string(rec.PlanID),
		string(rec.Status),
		rec.IsTrial,
		nullTime(rec.CurrentPeriodStart),
		nullTime(rec.CurrentPeriodEnd),
		nullTimePtr(rec.TrialStart),
		nullTimePtr(rec.TrialEnd),
		rec.CancelAtPeriodEnd,
		nullString(rec.ProviderSubscriptionID),
		nullString(rec.ProviderCustomerID),
		rec.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: provider subscription id already linked to another user", ErrInvalidRecord)
		}
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
