package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloudvault-backend/internal/shared/metrics"
	"cloudvault-backend/internal/shared/telemetry"
)

// Service is the billing surface used by the HTTP handler and admin CLI.
type Service struct {
	Repo       Repo
	Plans      *PlanPriceTable
	Provider   Provider
	Reconciler *Reconciler
	Events     EventLog
	// AppURL is where checkout and portal sessions send the user back.
	AppURL string
}

// StartCheckout opens a hosted checkout for plan/cycle, correlated to userID.
func (s *Service) StartCheckout(ctx context.Context, userID, email string, plan PlanID, cycle BillingCycle) (string, error) {
	if s.Provider == nil {
		return "", ErrNotConfigured
	}
	if userID == "" {
		return "", fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	price, err := s.Plans.PriceFor(plan, cycle)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.Reconciler.timeout())
	defer cancel()
	base := strings.TrimRight(s.AppURL, "/")
	url, err := s.Provider.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:     userID,
		Email:      email,
		PlanID:     plan,
		Cycle:      cycle,
		PriceID:    price,
		SuccessURL: base + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  base + "/billing/cancel",
	})
	if err != nil {
		return "", retryable("create checkout session", err)
	}
	return url, nil
}

// OpenPortal opens the provider's self-service portal for the user's customer.
func (s *Service) OpenPortal(ctx context.Context, userID, returnURL string) (string, error) {
	if s.Provider == nil {
		return "", ErrNotConfigured
	}
	rec, err := s.Repo.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if rec.ProviderCustomerID == "" {
		return "", ErrNotFound
	}
	if strings.TrimSpace(returnURL) == "" {
		returnURL = strings.TrimRight(s.AppURL, "/") + "/billing"
	}

	ctx, cancel := context.WithTimeout(ctx, s.Reconciler.timeout())
	defer cancel()
	url, err := s.Provider.CreatePortalSession(ctx, rec.ProviderCustomerID, returnURL)
	if err != nil {
		return "", retryable("create portal session", err)
	}
	return url, nil
}

// Subscription returns the user's record.
func (s *Service) Subscription(ctx context.Context, userID string) (SubscriptionRecord, error) {
	return s.Repo.Get(ctx, userID)
}

// HandleWebhook verifies and reconciles one delivery. A nil error means the
// event is fully applied (or deliberately not applicable) and may be acked.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (Event, Result, error) {
	if s.Provider == nil {
		return Event{}, Result{}, ErrNotConfigured
	}
	ev, err := s.Provider.VerifyAndParseEvent(ctx, payload, signature)
	if err != nil {
		label := "invalid"
		if errors.Is(err, ErrRetryable) {
			label = "retryable"
		}
		metrics.IncWebhookEvent("unknown", label)
		return Event{}, Result{}, err
	}

	res, err := s.Reconciler.Reconcile(ctx, ev)
	s.audit(ctx, ev, res, err)
	if err != nil {
		metrics.IncWebhookEvent(string(ev.Type), "error")
		return ev, res, err
	}
	metrics.IncWebhookEvent(string(ev.Type), string(res.Outcome))
	return ev, res, nil
}

func (s *Service) audit(ctx context.Context, ev Event, res Result, recErr error) {
	if s.Events == nil || ev.ID == "" {
		return
	}
	entry := EventLogEntry{
		EventID:   ev.ID,
		EventType: ev.ProviderType,
		UserID:    res.UserID,
		Outcome:   string(res.Outcome),
		LastSeen:  time.Now().UTC(),
	}
	if entry.EventType == "" {
		entry.EventType = string(ev.Type)
	}
	if recErr != nil {
		entry.Outcome = "error"
		entry.Error = recErr.Error()
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Events.Record(auditCtx, entry); err != nil {
		telemetry.Warn("billing.audit_failed", map[string]any{"event_id": ev.ID, "err": err})
	}
}
