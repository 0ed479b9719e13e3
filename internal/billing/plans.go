package billing

import (
	"fmt"
	"strings"

	"cloudvault-backend/internal/shared/config"
)

// PlanPriceTable maps plans and billing cycles to provider price ids, and
// price ids back to plans. It is built once and passed explicitly.
type PlanPriceTable struct {
	prices  map[PlanID]map[BillingCycle]string
	byPrice map[string]PlanID
}

// PlanPrice is one table entry.
type PlanPrice struct {
	Plan    PlanID
	Cycle   BillingCycle
	PriceID string
}

// NewPlanPriceTable builds a table. Empty price ids are skipped; a price id
// may not be shared between plans.
func NewPlanPriceTable(entries ...PlanPrice) (*PlanPriceTable, error) {
	t := &PlanPriceTable{
		prices:  make(map[PlanID]map[BillingCycle]string),
		byPrice: make(map[string]PlanID),
	}
	for _, e := range entries {
		price := strings.TrimSpace(e.PriceID)
		if price == "" {
			continue
		}
		if !e.Plan.Valid() {
			return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, e.Plan)
		}
		if e.Cycle != CycleMonthly && e.Cycle != CycleYearly {
			return nil, fmt.Errorf("%w: unknown billing cycle %q", ErrInvalidInput, e.Cycle)
		}
		if owner, ok := t.byPrice[price]; ok && owner != e.Plan {
			return nil, fmt.Errorf("%w: price %s used by %s and %s", ErrInvalidInput, price, owner, e.Plan)
		}
		if t.prices[e.Plan] == nil {
			t.prices[e.Plan] = make(map[BillingCycle]string)
		}
		t.prices[e.Plan][e.Cycle] = price
		t.byPrice[price] = e.Plan
	}
	return t, nil
}

// PlanPriceTableFromConfig builds the table from configured price ids.
func PlanPriceTableFromConfig(p config.PriceConfig) (*PlanPriceTable, error) {
	return NewPlanPriceTable(
		PlanPrice{PlanBasic, CycleMonthly, p.BasicMonthly},
		PlanPrice{PlanBasic, CycleYearly, p.BasicYearly},
		PlanPrice{PlanPro, CycleMonthly, p.ProMonthly},
		PlanPrice{PlanPro, CycleYearly, p.ProYearly},
		PlanPrice{PlanEnterprise, CycleMonthly, p.EnterpriseMonthly},
		PlanPrice{PlanEnterprise, CycleYearly, p.EnterpriseYearly},
	)
}

// PriceFor returns the price id charged for plan on cycle.
func (t *PlanPriceTable) PriceFor(plan PlanID, cycle BillingCycle) (string, error) {
	if t != nil {
		if price := t.prices[plan][cycle]; price != "" {
			return price, nil
		}
	}
	return "", fmt.Errorf("%w: no price for %s/%s", ErrInvalidInput, plan, cycle)
}

// PlanForPrice is the reverse lookup. The cycle does not affect the plan.
func (t *PlanPriceTable) PlanForPrice(priceID string) (PlanID, bool) {
	if t == nil {
		return "", false
	}
	plan, ok := t.byPrice[strings.TrimSpace(priceID)]
	return plan, ok
}

// ParsePlan validates a plan name from a request.
func ParsePlan(raw string) (PlanID, error) {
	p := PlanID(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, raw)
	}
	return p, nil
}

// ParseCycle validates a billing cycle. Empty means monthly.
func ParseCycle(raw string) (BillingCycle, error) {
	switch BillingCycle(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CycleMonthly:
		return CycleMonthly, nil
	case CycleYearly:
		return CycleYearly, nil
	}
	return "", fmt.Errorf("%w: unknown billing cycle %q", ErrInvalidInput, raw)
}

// MapProviderStatus maps a provider subscription status to a local one.
// Unknown states map to incomplete.
func MapProviderStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due", "unpaid", "paused":
		return StatusPastDue
	case "canceled", "incomplete_expired":
		return StatusCanceled
	default:
		return StatusIncomplete
	}
}

const gib int64 = 1 << 30

// Storage quotas per plan.
const (
	FreeQuotaBytes       = 1 * gib
	BasicQuotaBytes      = 10 * gib
	ProQuotaBytes        = 100 * gib
	EnterpriseQuotaBytes = 1024 * gib
)

// QuotaFor returns the storage allowance of plan.
func QuotaFor(plan PlanID) int64 {
	switch plan {
	case PlanBasic:
		return BasicQuotaBytes
	case PlanPro:
		return ProQuotaBytes
	case PlanEnterprise:
		return EnterpriseQuotaBytes
	}
	return FreeQuotaBytes
}
