package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	periodStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
)

func testPlans(t *testing.T) *PlanPriceTable {
	t.Helper()
	plans, err := NewPlanPriceTable(
		PlanPrice{PlanBasic, CycleMonthly, "price_basic_m"},
		PlanPrice{PlanBasic, CycleYearly, "price_basic_y"},
		PlanPrice{PlanPro, CycleMonthly, "price_pro_m"},
		PlanPrice{PlanPro, CycleYearly, "price_pro_y"},
		PlanPrice{PlanEnterprise, CycleMonthly, "price_ent_m"},
	)
	require.NoError(t, err)
	return plans
}

func newTestReconciler(t *testing.T, repo Repo) *Reconciler {
	t.Helper()
	r := NewReconciler(repo, testPlans(t), time.Second)
	tick := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	r.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	return r
}

func subEvent(id string, typ EventType, status, price string) Event {
	return Event{
		ID:             id,
		Type:           typ,
		UserID:         "u1",
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		Snapshot: &Snapshot{
			ProviderStatus:     status,
			PriceID:            price,
			CurrentPeriodStart: periodStart,
			CurrentPeriodEnd:   periodEnd,
		},
	}
}

func invoiceEvent(id string, typ EventType) Event {
	return Event{ID: id, Type: typ, SubscriptionID: "sub_1", CustomerID: "cus_1"}
}

func TestPlanPriceTable(t *testing.T) {
	plans := testPlans(t)

	price, err := plans.PriceFor(PlanPro, CycleYearly)
	require.NoError(t, err)
	assert.Equal(t, "price_pro_y", price)

	for _, p := range []string{"price_pro_m", "price_pro_y"} {
		plan, ok := plans.PlanForPrice(p)
		assert.True(t, ok)
		assert.Equal(t, PlanPro, plan)
	}

	_, err = plans.PriceFor(PlanEnterprise, CycleYearly)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, ok := plans.PlanForPrice("price_unknown")
	assert.False(t, ok)

	_, err = NewPlanPriceTable(PlanPrice{PlanBasic, CycleMonthly, "p1"}, PlanPrice{PlanPro, CycleMonthly, "p1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMapProviderStatus(t *testing.T) {
	cases := map[string]Status{
		"active":             StatusActive,
		"trialing":           StatusTrialing,
		"past_due":           StatusPastDue,
		"unpaid":             StatusPastDue,
		"paused":             StatusPastDue,
		"canceled":           StatusCanceled,
		"incomplete_expired": StatusCanceled,
		"incomplete":         StatusIncomplete,
		"something_new":      StatusIncomplete,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapProviderStatus(in), in)
	}
}

func TestCheckoutThenInvoiceLifecycle(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, subEvent("evt_1", EventCheckoutCompleted, "active", "price_pro_m"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	rec, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, PlanPro, rec.PlanID)
	assert.False(t, rec.IsTrial)
	assert.Equal(t, "sub_1", rec.ProviderSubscriptionID)

	_, err = r.Reconcile(ctx, invoiceEvent("evt_2", EventInvoicePaymentFailed))
	require.NoError(t, err)
	rec, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusPastDue, rec.Status)

	next := invoiceEvent("evt_3", EventInvoicePaid)
	next.PeriodStart = periodEnd
	next.PeriodEnd = periodEnd.AddDate(0, 1, 0)
	_, err = r.Reconcile(ctx, next)
	require.NoError(t, err)
	rec, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, next.PeriodEnd, rec.CurrentPeriodEnd)
}

func TestCheckoutWithTrial(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)
	trialEnd := periodStart.AddDate(0, 0, 14)

	ev := subEvent("evt_1", EventCheckoutCompleted, "", "price_basic_y")
	ev.Snapshot.TrialEnd = &trialEnd
	_, err := r.Reconcile(context.Background(), ev)
	require.NoError(t, err)

	rec, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusTrialing, rec.Status)
	assert.Equal(t, PlanBasic, rec.PlanID)
	assert.True(t, rec.IsTrial)
	require.NotNil(t, rec.TrialStart)
	assert.Equal(t, periodStart, *rec.TrialStart)
	require.NoError(t, rec.Validate())
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)
	ctx := context.Background()
	ev := subEvent("evt_1", EventSubscriptionUpdated, "active", "price_pro_m")

	_, err := r.Reconcile(ctx, ev)
	require.NoError(t, err)
	first, err := repo.Get(ctx, "u1")
	require.NoError(t, err)

	res, err := r.Reconcile(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	second, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTrialingPaymentFailureGoesPastDue(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)
	ctx := context.Background()
	trialEnd := periodStart.AddDate(0, 0, 14)

	ev := subEvent("evt_1", EventSubscriptionCreated, "trialing", "price_pro_m")
	ev.Snapshot.TrialStart = &periodStart
	ev.Snapshot.TrialEnd = &trialEnd
	_, err := r.Reconcile(ctx, ev)
	require.NoError(t, err)

	_, err = r.Reconcile(ctx, invoiceEvent("evt_2", EventInvoicePaymentFailed))
	require.NoError(t, err)
	rec, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusPastDue, rec.Status)
	assert.False(t, rec.IsTrial)
	assert.Nil(t, rec.TrialStart)
}

func TestCanceledIsTerminal(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, subEvent("evt_1", EventSubscriptionUpdated, "active", "price_pro_m"))
	require.NoError(t, err)
	del := subEvent("evt_2", EventSubscriptionDeleted, "canceled", "price_pro_m")
	_, err = r.Reconcile(ctx, del)
	require.NoError(t, err)

	rec, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, rec.Status)
	assert.False(t, rec.CancelAtPeriodEnd)
	assert.Equal(t, periodEnd, rec.CurrentPeriodEnd)

	later := []Event{
		subEvent("evt_3", EventSubscriptionUpdated, "active", "price_pro_m"),
		subEvent("evt_4", EventSubscriptionCreated, "trialing", "price_pro_m"),
		invoiceEvent("evt_5", EventInvoicePaid),
		invoiceEvent("evt_6", EventInvoicePaymentFailed),
	}
	for _, ev := range later {
		res, err := r.Reconcile(ctx, ev)
		require.NoError(t, err, ev.ID)
		assert.Equal(t, OutcomeIgnored, res.Outcome, ev.ID)
		rec, err := repo.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, StatusCanceled, rec.Status, ev.ID)
	}
}

func TestNewCheckoutAfterCancelStartsNewInstance(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, subEvent("evt_1", EventCheckoutCompleted, "active", "price_basic_m"))
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, subEvent("evt_2", EventSubscriptionDeleted, "canceled", "price_basic_m"))
	require.NoError(t, err)

	again := subEvent("evt_3", EventCheckoutCompleted, "active", "price_ent_m")
	again.SubscriptionID = "sub_2"
	_, err = r.Reconcile(ctx, again)
	require.NoError(t, err)

	rec, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, PlanEnterprise, rec.PlanID)
	assert.Equal(t, "sub_2", rec.ProviderSubscriptionID)
}

func TestStaleInstanceEventIgnored(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, subEvent("evt_1", EventCheckoutCompleted, "active", "price_pro_m"))
	require.NoError(t, err)

	stale := subEvent("evt_2", EventSubscriptionUpdated, "past_due", "price_basic_m")
	stale.SubscriptionID = "sub_old"
	res, err := r.Reconcile(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	rec, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, PlanPro, rec.PlanID)
}

func TestUnresolvedUser(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)

	ev := subEvent("evt_1", EventCheckoutCompleted, "active", "price_pro_m")
	ev.UserID = ""
	_, err := r.Reconcile(context.Background(), ev)
	require.ErrorIs(t, err, ErrUnresolvedUser)

	_, err = repo.UserBySubscriptionID(context.Background(), "sub_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveUserByCustomer(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)
	ctx := context.Background()
	_, err := r.Reconcile(ctx, subEvent("evt_1", EventCheckoutCompleted, "active", "price_pro_m"))
	require.NoError(t, err)

	ev := invoiceEvent("evt_2", EventInvoicePaymentFailed)
	ev.SubscriptionID = ""
	res, err := r.Reconcile(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	rec, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, rec.Status)
}

func TestUnknownPriceWithoutHintFails(t *testing.T) {
	r := newTestReconciler(t, NewMemoryRepo())
	_, err := r.Reconcile(context.Background(), subEvent("evt_1", EventSubscriptionUpdated, "active", "price_other"))
	assert.ErrorIs(t, err, ErrUnknownPrice)

	ev := subEvent("evt_2", EventSubscriptionUpdated, "active", "price_other")
	ev.Snapshot.PlanHint = PlanBasic
	res, err := r.Reconcile(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, PlanBasic, res.Record.PlanID)
}

func TestUnhandledEventSkipped(t *testing.T) {
	r := newTestReconciler(t, NewMemoryRepo())
	res, err := r.Reconcile(context.Background(), Event{ID: "evt_1", Type: EventUnhandled})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
}

type flakyRepo struct {
	*MemoryRepo
	err error
}

func (f *flakyRepo) Mutate(ctx context.Context, userID string, fn MutateFunc) error {
	return f.err
}

func TestTransientStoreFailureIsRetryable(t *testing.T) {
	repo := &flakyRepo{MemoryRepo: NewMemoryRepo(), err: context.DeadlineExceeded}
	r := newTestReconciler(t, repo)

	_, err := r.Reconcile(context.Background(), subEvent("evt_1", EventSubscriptionUpdated, "active", "price_pro_m"))
	assert.ErrorIs(t, err, ErrRetryable)

	repo.err = errors.New("constraint violated")
	_, err = r.Reconcile(context.Background(), subEvent("evt_1", EventSubscriptionUpdated, "active", "price_pro_m"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetryable)
}

func TestConcurrentEventsSameUserKeepOneRecord(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)
	ctx := context.Background()
	_, err := r.Reconcile(ctx, subEvent("evt_0", EventCheckoutCompleted, "active", "price_pro_m"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = r.Reconcile(ctx, subEvent("evt_u", EventSubscriptionUpdated, "active", "price_pro_m"))
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Reconcile(ctx, invoiceEvent("evt_f", EventInvoicePaymentFailed))
		}()
	}
	wg.Wait()

	rec, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, []Status{StatusActive, StatusPastDue}, rec.Status)
	assert.Equal(t, 1, len(repo.data))
}

func TestAdminOverride(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)
	ctx := context.Background()

	_, err := r.ApplyOverride(ctx, "u1", Override{})
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := r.Provision(ctx, SubscriptionRecord{UserID: "u1", PlanID: PlanBasic, Status: StatusActive})
	require.NoError(t, err)
	assert.False(t, rec.UpdatedAt.IsZero())

	plan := PlanEnterprise
	status := StatusCanceled
	cancelAtEnd := true
	rec, err = r.ApplyOverride(ctx, "u1", Override{PlanID: &plan, Status: &status, CancelAtPeriodEnd: &cancelAtEnd})
	require.NoError(t, err)
	assert.Equal(t, PlanEnterprise, rec.PlanID)
	assert.Equal(t, StatusCanceled, rec.Status)
	assert.False(t, rec.CancelAtPeriodEnd)
}

func TestQuotaPolicy(t *testing.T) {
	repo := NewMemoryRepo()
	r := newTestReconciler(t, repo)
	ctx := context.Background()
	q := QuotaPolicy{Repo: repo}

	got, err := q.QuotaBytes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, FreeQuotaBytes, got)

	_, err = r.Reconcile(ctx, subEvent("evt_1", EventCheckoutCompleted, "active", "price_pro_m"))
	require.NoError(t, err)
	got, err = q.QuotaBytes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ProQuotaBytes, got)

	_, err = r.Reconcile(ctx, subEvent("evt_2", EventSubscriptionDeleted, "canceled", "price_pro_m"))
	require.NoError(t, err)
	got, err = q.QuotaBytes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, FreeQuotaBytes, got)
}
