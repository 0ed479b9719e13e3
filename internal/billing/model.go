package billing

import (
	"fmt"
	"time"
)

// PlanID names a storage tier.
type PlanID string

const (
	PlanBasic      PlanID = "basic"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

// Valid reports whether p is a known plan.
func (p PlanID) Valid() bool {
	switch p {
	case PlanBasic, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Status is the local subscription state.
type Status string

const (
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusIncomplete Status = "incomplete"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCanceled, StatusIncomplete:
		return true
	}
	return false
}

// BillingCycle selects which price is charged for a plan.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// SubscriptionRecord is one user's billing state. Zero period times mean
// unknown.
type SubscriptionRecord struct {
	UserID                 string     `json:"userId"`
	PlanID                 PlanID     `json:"planId"`
	Status                 Status     `json:"status"`
	IsTrial                bool       `json:"isTrial"`
	CurrentPeriodStart     time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd       time.Time  `json:"currentPeriodEnd"`
	TrialStart             *time.Time `json:"trialStart,omitempty"`
	TrialEnd               *time.Time `json:"trialEnd,omitempty"`
	CancelAtPeriodEnd      bool       `json:"cancelAtPeriodEnd"`
	ProviderSubscriptionID string     `json:"providerSubscriptionId,omitempty"`
	ProviderCustomerID     string     `json:"providerCustomerId,omitempty"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// Validate checks the record invariants.
func (r SubscriptionRecord) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidRecord)
	}
	if !r.PlanID.Valid() {
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidRecord, r.PlanID)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, r.Status)
	}
	hasTrial := r.TrialStart != nil && r.TrialEnd != nil
	if r.IsTrial != hasTrial || (!r.IsTrial && (r.TrialStart != nil || r.TrialEnd != nil)) {
		return fmt.Errorf("%w: trial fields must be set iff isTrial", ErrInvalidRecord)
	}
	if r.Status == StatusCanceled && r.CancelAtPeriodEnd {
		return fmt.Errorf("%w: canceled subscription cannot cancel at period end", ErrInvalidRecord)
	}
	return nil
}

// sameState compares everything but UpdatedAt.
func sameState(a, b SubscriptionRecord) bool {
	return a.UserID == b.UserID &&
		a.PlanID == b.PlanID &&
		a.Status == b.Status &&
		a.IsTrial == b.IsTrial &&
		a.CurrentPeriodStart.Equal(b.CurrentPeriodStart) &&
		a.CurrentPeriodEnd.Equal(b.CurrentPeriodEnd) &&
		sameTime(a.TrialStart, b.TrialStart) &&
		sameTime(a.TrialEnd, b.TrialEnd) &&
		a.CancelAtPeriodEnd == b.CancelAtPeriodEnd &&
		a.ProviderSubscriptionID == b.ProviderSubscriptionID &&
		a.ProviderCustomerID == b.ProviderCustomerID
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func cloneRecord(r SubscriptionRecord) SubscriptionRecord {
	if r.TrialStart != nil {
		t := *r.TrialStart
		r.TrialStart = &t
	}
	if r.TrialEnd != nil {
		t := *r.TrialEnd
		r.TrialEnd = &t
	}
	return r
}
