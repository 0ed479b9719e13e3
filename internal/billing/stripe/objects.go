package stripe

import (
	"encoding/json"

	"cloudvault-backend/internal/billing"
)

// expandableID decodes a Stripe expandable field that is either an id
// string or an expanded object.
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*e = ""
		return nil
	}
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*e = expandableID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type checkoutSessionObject struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          expandableID      `json:"customer"`
	Subscription      expandableID      `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

// subscriptionObject reads period fields from the subscription itself or,
// on newer API versions, from its first item.
type subscriptionObject struct {
	ID                 string       `json:"id"`
	Customer           expandableID `json:"customer"`
	Status             string       `json:"status"`
	CancelAtPeriodEnd  bool         `json:"cancel_at_period_end"`
	CurrentPeriodStart int64        `json:"current_period_start"`
	CurrentPeriodEnd   int64        `json:"current_period_end"`
	TrialStart         int64        `json:"trial_start"`
	TrialEnd           int64        `json:"trial_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

func (s subscriptionObject) snapshot() billing.Snapshot {
	snap := billing.Snapshot{
		ProviderStatus:     s.Status,
		PlanHint:           billing.PlanID(s.Metadata[metaPlanID]),
		CurrentPeriodStart: unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(s.CurrentPeriodEnd),
		TrialStart:         unixPtr(s.TrialStart),
		TrialEnd:           unixPtr(s.TrialEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
	for _, item := range s.Items.Data {
		if item.Price.ID == "" {
			continue
		}
		snap.PriceID = item.Price.ID
		if snap.CurrentPeriodEnd.IsZero() {
			snap.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
			snap.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
		break
	}
	return snap
}

type subscriptionDetails struct {
	Subscription expandableID      `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type invoiceObject struct {
	ID                  string               `json:"id"`
	Customer            expandableID         `json:"customer"`
	Subscription        expandableID         `json:"subscription"`
	SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	Parent              *struct {
		SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}
