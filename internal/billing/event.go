package billing

import "time"

// EventType is the normalized kind of a billing event.
type EventType string

const (
	EventCheckoutCompleted    EventType = "checkout_completed"
	EventSubscriptionCreated  EventType = "subscription_created"
	EventSubscriptionUpdated  EventType = "subscription_updated"
	EventSubscriptionDeleted  EventType = "subscription_deleted"
	EventInvoicePaid          EventType = "invoice_paid"
	EventInvoicePaymentFailed EventType = "invoice_payment_failed"
	EventUnhandled            EventType = "unhandled"
)

// Snapshot is the provider's full view of a subscription as carried by an
// event. Zero times mean the event did not carry the field.
type Snapshot struct {
	ProviderStatus     string
	PriceID            string
	PlanHint           PlanID
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
}

// Event is a verified, provider-neutral billing event.
type Event struct {
	ID           string
	Type         EventType
	ProviderType string
	Created      time.Time

	// UserID is the correlation set at checkout, when the payload carries it.
	UserID         string
	SubscriptionID string
	CustomerID     string

	// Snapshot is set for checkout and subscription events.
	Snapshot *Snapshot

	// Invoice events carry the billed period.
	PeriodStart time.Time
	PeriodEnd   time.Time
}
