// Package stripe adapts stripe-go to the billing.Provider capability.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"cloudvault-backend/internal/billing"
)

// Metadata keys written at checkout and read back from events.
const (
	metaUserID = "userId"
	metaPlanID = "planId"
)

// Client implements billing.Provider.
type Client struct {
	webhookSecret string

	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
	createPortalSession   func(params *stripelib.BillingPortalSessionParams) (*stripelib.BillingPortalSession, error)
	getSubscription       func(id string, params *stripelib.SubscriptionParams) (*stripelib.Subscription, error)
}

// New configures the stripe-go API key and returns a Client.
func New(apiKey, webhookSecret string) *Client {
	stripelib.Key = strings.TrimSpace(apiKey)
	return &Client{
		webhookSecret:         strings.TrimSpace(webhookSecret),
		createCheckoutSession: checkoutsession.New,
		createPortalSession:   portalsession.New,
		getSubscription:       subscription.Get,
	}
}

// CreateCheckoutSession opens a subscription-mode checkout. The user id is
// stored as client_reference_id and in both session and subscription
// metadata so every later event can be correlated.
func (c *Client) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (string, error) {
	params := &stripelib.CheckoutSessionParams{
		Mode:              stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		SuccessURL:        stripelib.String(req.SuccessURL),
		CancelURL:         stripelib.String(req.CancelURL),
		ClientReferenceID: stripelib.String(req.UserID),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(req.PriceID),
				Quantity: stripelib.Int64(1),
			},
		},
		SubscriptionData: &stripelib.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				metaUserID: req.UserID,
				metaPlanID: string(req.PlanID),
			},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripelib.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata(metaUserID, req.UserID)
	params.AddMetadata(metaPlanID, string(req.PlanID))

	sess, err := c.createCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("stripe checkout session: %w", err)
	}
	if sess == nil || sess.URL == "" {
		return "", errors.New("stripe checkout session: empty url")
	}
	return sess.URL, nil
}

// CreatePortalSession opens the billing portal for customerID.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripelib.BillingPortalSessionParams{
		Customer:  stripelib.String(customerID),
		ReturnURL: stripelib.String(returnURL),
	}
	params.Context = ctx

	sess, err := c.createPortalSession(params)
	if err != nil {
		return "", fmt.Errorf("stripe portal session: %w", err)
	}
	if sess == nil || sess.URL == "" {
		return "", errors.New("stripe portal session: empty url")
	}
	return sess.URL, nil
}

// VerifyAndParseEvent checks the Stripe-Signature header and normalizes the
// event. A completed checkout is expanded with the subscription it created
// so the reconciler always sees a full snapshot.
func (c *Client) VerifyAndParseEvent(ctx context.Context, payload []byte, signature string) (billing.Event, error) {
	if c.webhookSecret == "" {
		return billing.Event{}, billing.ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return billing.Event{}, fmt.Errorf("%w: %v", billing.ErrSignatureInvalid, err)
	}

	ev := billing.Event{
		ID:           event.ID,
		ProviderType: string(event.Type),
		Type:         billing.EventUnhandled,
	}
	if event.Created > 0 {
		ev.Created = time.Unix(event.Created, 0).UTC()
	}
	if event.Data == nil {
		return ev, nil
	}

	switch string(event.Type) {
	case "checkout.session.completed":
		return c.checkoutEvent(ctx, ev, event.Data.Raw)
	case "customer.subscription.created":
		ev.Type = billing.EventSubscriptionCreated
		return subscriptionEvent(ev, event.Data.Raw)
	case "customer.subscription.updated":
		ev.Type = billing.EventSubscriptionUpdated
		return subscriptionEvent(ev, event.Data.Raw)
	case "customer.subscription.deleted":
		ev.Type = billing.EventSubscriptionDeleted
		return subscriptionEvent(ev, event.Data.Raw)
	case "invoice.paid", "invoice.payment_succeeded":
		ev.Type = billing.EventInvoicePaid
		return invoiceEvent(ev, event.Data.Raw)
	case "invoice.payment_failed":
		ev.Type = billing.EventInvoicePaymentFailed
		return invoiceEvent(ev, event.Data.Raw)
	}
	return ev, nil
}

func (c *Client) checkoutEvent(ctx context.Context, ev billing.Event, raw json.RawMessage) (billing.Event, error) {
	var sess checkoutSessionObject
	if err := json.Unmarshal(raw, &sess); err != nil {
		return ev, fmt.Errorf("%w: decode checkout.session: %v", billing.ErrInvalidEvent, err)
	}
	if sess.Mode != "" && sess.Mode != string(stripelib.CheckoutSessionModeSubscription) {
		return ev, nil
	}

	ev.Type = billing.EventCheckoutCompleted
	ev.UserID = firstNonEmpty(sess.ClientReferenceID, sess.Metadata[metaUserID])
	ev.CustomerID = string(sess.Customer)
	ev.SubscriptionID = string(sess.Subscription)
	if ev.SubscriptionID == "" {
		return ev, fmt.Errorf("%w: checkout session %s has no subscription", billing.ErrInvalidEvent, sess.ID)
	}

	sub, err := c.fetchSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return ev, fmt.Errorf("%w: fetch subscription %s: %v", billing.ErrRetryable, ev.SubscriptionID, err)
	}
	snap := sub.snapshot()
	if !snap.PlanHint.Valid() {
		snap.PlanHint = billing.PlanID(sess.Metadata[metaPlanID])
	}
	ev.Snapshot = &snap
	if ev.CustomerID == "" {
		ev.CustomerID = string(sub.Customer)
	}
	return ev, nil
}

func (c *Client) fetchSubscription(ctx context.Context, id string) (subscriptionObject, error) {
	params := &stripelib.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.getSubscription(id, params)
	if err != nil {
		return subscriptionObject{}, err
	}
	if sub == nil {
		return subscriptionObject{}, errors.New("empty subscription")
	}

	var raw []byte
	if sub.LastResponse != nil && len(sub.LastResponse.RawJSON) > 0 {
		raw = sub.LastResponse.RawJSON
	} else if raw, err = json.Marshal(sub); err != nil {
		return subscriptionObject{}, err
	}
	var out subscriptionObject
	if err := json.Unmarshal(raw, &out); err != nil {
		return subscriptionObject{}, err
	}
	return out, nil
}

func subscriptionEvent(ev billing.Event, raw json.RawMessage) (billing.Event, error) {
	var sub subscriptionObject
	if err := json.Unmarshal(raw, &sub); err != nil {
		return ev, fmt.Errorf("%w: decode subscription: %v", billing.ErrInvalidEvent, err)
	}
	snap := sub.snapshot()
	ev.SubscriptionID = sub.ID
	ev.CustomerID = string(sub.Customer)
	ev.UserID = sub.Metadata[metaUserID]
	ev.Snapshot = &snap
	return ev, nil
}

func invoiceEvent(ev billing.Event, raw json.RawMessage) (billing.Event, error) {
	var inv invoiceObject
	if err := json.Unmarshal(raw, &inv); err != nil {
		return ev, fmt.Errorf("%w: decode invoice: %v", billing.ErrInvalidEvent, err)
	}
	ev.CustomerID = string(inv.Customer)
	ev.SubscriptionID = string(inv.Subscription)
	var meta map[string]string
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		if ev.SubscriptionID == "" {
			ev.SubscriptionID = string(inv.Parent.SubscriptionDetails.Subscription)
		}
		meta = inv.Parent.SubscriptionDetails.Metadata
	}
	if meta == nil && inv.SubscriptionDetails != nil {
		meta = inv.SubscriptionDetails.Metadata
	}
	ev.UserID = meta[metaUserID]
	for _, line := range inv.Lines.Data {
		if line.Period.End > 0 {
			ev.PeriodStart = unixTime(line.Period.Start)
			ev.PeriodEnd = unixTime(line.Period.End)
			break
		}
	}
	return ev, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

var _ billing.Provider = (*Client)(nil)
