package billing

import "context"

// CheckoutRequest is everything the provider needs to open a hosted checkout.
type CheckoutRequest struct {
	UserID     string
	Email      string
	PlanID     PlanID
	Cycle      BillingCycle
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// Provider is the billing provider capability.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	// VerifyAndParseEvent returns ErrSignatureInvalid when the payload was
	// not signed by the provider.
	VerifyAndParseEvent(ctx context.Context, payload []byte, signature string) (Event, error)
}
