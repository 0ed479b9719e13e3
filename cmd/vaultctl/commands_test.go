package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudvault-backend/internal/billing"
)

func memoryOpener(repo *billing.MemoryRepo) envOpener {
	plans, _ := billing.NewPlanPriceTable()
	return func(context.Context) (*env, error) {
		return &env{Repo: repo, Reconciler: billing.NewReconciler(repo, plans, time.Second)}, nil
	}
}

func runCmd(t *testing.T, open envOpener, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProvisionThenShow(t *testing.T) {
	repo := billing.NewMemoryRepo()
	open := memoryOpener(repo)

	_, err := runCmd(t, open, "subscription", "provision", "u1", "--plan", "pro", "--trial-days", "14")
	require.NoError(t, err)

	out, err := runCmd(t, open, "subscription", "show", "u1")
	require.NoError(t, err)
	var rec billing.SubscriptionRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, billing.PlanPro, rec.PlanID)
	assert.Equal(t, billing.StatusTrialing, rec.Status)
	assert.True(t, rec.IsTrial)
	require.NotNil(t, rec.TrialEnd)
}

func TestProvisionRejectsUnknownPlan(t *testing.T) {
	_, err := runCmd(t, memoryOpener(billing.NewMemoryRepo()), "subscription", "provision", "u1", "--plan", "gold")
	assert.ErrorIs(t, err, billing.ErrInvalidInput)
}

func TestOverrideChangesOnlyGivenFields(t *testing.T) {
	repo := billing.NewMemoryRepo()
	open := memoryOpener(repo)
	_, err := runCmd(t, open, "subscription", "provision", "u1", "--plan", "basic")
	require.NoError(t, err)

	_, err = runCmd(t, open, "subscription", "override", "u1", "--status", "past_due", "--cancel-at-period-end")
	require.NoError(t, err)

	rec, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, billing.PlanBasic, rec.PlanID)
	assert.Equal(t, billing.StatusPastDue, rec.Status)
	assert.True(t, rec.CancelAtPeriodEnd)
}

func TestOverrideRequiresAField(t *testing.T) {
	_, err := runCmd(t, memoryOpener(billing.NewMemoryRepo()), "subscription", "override", "u1")
	assert.EqualError(t, err, "nothing to override")
}

func TestOverrideMissingRecord(t *testing.T) {
	_, err := runCmd(t, memoryOpener(billing.NewMemoryRepo()), "subscription", "override", "nobody", "--plan", "pro")
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestMigrateNeedsDatabase(t *testing.T) {
	_, err := runCmd(t, memoryOpener(billing.NewMemoryRepo()), "migrate")
	assert.EqualError(t, err, "migrate needs a database")
}
