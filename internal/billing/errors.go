package billing

import (
	"context"
	"errors"
	"fmt"

	"cloudvault-backend/internal/shared/storage/db"
)

var (
	ErrNotFound         = errors.New("subscription not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidRecord    = errors.New("invalid subscription record")
	ErrInvalidEvent     = errors.New("invalid billing event")
	ErrUnknownPrice     = errors.New("price not in plan table")
	ErrUnresolvedUser   = errors.New("unresolved user")
	ErrSignatureInvalid = errors.New("invalid webhook signature")
	ErrNotConfigured    = errors.New("billing provider not configured")
	// ErrRetryable marks a transient failure. Webhook deliveries that hit it
	// must be answered with a 5xx so the provider redelivers.
	ErrRetryable = errors.New("retryable billing failure")
)

// retryable wraps transient store or provider failures with ErrRetryable.
func retryable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRetryable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || db.IsTransient(err) {
		return fmt.Errorf("%w: %s: %v", ErrRetryable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
