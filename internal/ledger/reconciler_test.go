package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 10, 16, 6, 0, 0, 0, time.UTC)

func finding(tenant, entity string, sev domain.Severity) domain.Finding {
	return domain.Finding{
		TenantID:    tenant,
		Rule:        domain.RuleNegativeInventory,
		EntityKey:   entity,
		Severity:    sev,
		Title:       "Negative inventory balance",
		Description: "stock below zero",
		Details:     map[string]any{"quantity": -12.0},
	}
}

func newReconciler(store Store) *Reconciler {
	return NewReconciler(store, zap.NewNop())
}

func openCount(t *testing.T, s *MemoryStore, tenant string) map[domain.ExceptionKey]int {
	t.Helper()
	open, err := s.ListOpen(context.Background(), tenant)
	require.NoError(t, err)
	counts := make(map[domain.ExceptionKey]int)
	for _, ex := range open {
		counts[ex.Key()]++
	}
	return counts
}

func TestReconcile_NewThenIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newReconciler(store)
	findings := []domain.Finding{finding("t1", "store:parchment", domain.SeverityMedium)}

	first, err := r.Reconcile(ctx, "t1", "run-1", findings, t0)
	require.NoError(t, err)
	require.Len(t, first.Arising, 1)
	assert.Equal(t, domain.ChangeNew, first.Arising[0].Change)

	second, err := r.Reconcile(ctx, "t1", "run-2", findings, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, second.Arising, "no data change must not produce new or escalated items")
	assert.Equal(t, 1, second.Unchanged)
	assert.Zero(t, second.Resolved)

	open, _ := store.ListOpen(ctx, "t1")
	require.Len(t, open, 1)
	assert.Equal(t, "run-2", open[0].LastRunID)
	assert.Equal(t, t0.Add(time.Hour), open[0].LastSeenAt)
	assert.Equal(t, t0, open[0].FirstSeenAt)
}

func TestReconcile_EscalationDetected(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newReconciler(store)

	_, err := r.Reconcile(ctx, "t1", "run-1", []domain.Finding{finding("t1", "k", domain.SeverityMedium)}, t0)
	require.NoError(t, err)

	out, err := r.Reconcile(ctx, "t1", "run-2", []domain.Finding{finding("t1", "k", domain.SeverityHigh)}, t0.Add(time.Hour))
	require.NoError(t, err)

	require.Len(t, out.Arising, 1)
	assert.Equal(t, domain.ChangeEscalated, out.Arising[0].Change)
	assert.Equal(t, domain.SeverityMedium, out.Arising[0].PreviousSeverity)

	open, _ := store.ListOpen(ctx, "t1")
	require.Len(t, open, 1)
	assert.Equal(t, domain.SeverityHigh, open[0].Severity)
}

func TestReconcile_DowngradeIsSilentButPersisted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newReconciler(store)

	_, err := r.Reconcile(ctx, "t1", "run-1", []domain.Finding{finding("t1", "k", domain.SeverityHigh)}, t0)
	require.NoError(t, err)
	out, err := r.Reconcile(ctx, "t1", "run-2", []domain.Finding{finding("t1", "k", domain.SeverityMedium)}, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Empty(t, out.Arising)
	open, _ := store.ListOpen(ctx, "t1")
	require.Len(t, open, 1)
	assert.Equal(t, domain.SeverityMedium, open[0].Severity)
}

func TestReconcile_OscillationAlertsOnEveryRise(t *testing.T) {
	ctx := context.Background()
	r := newReconciler(NewMemoryStore())
	sevs := []domain.Severity{domain.SeverityMedium, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityHigh}

	var escalations int
	for i, sev := range sevs {
		out, err := r.Reconcile(ctx, "t1", "run-"+string(rune('a'+i)), []domain.Finding{finding("t1", "k", sev)}, t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		for _, a := range out.Arising {
			if a.Change == domain.ChangeEscalated {
				escalations++
			}
		}
	}
	assert.Equal(t, 2, escalations)
}

func TestReconcile_SweepResolvesUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newReconciler(store)

	_, err := r.Reconcile(ctx, "t1", "run-1", []domain.Finding{
		finding("t1", "a", domain.SeverityMedium),
		finding("t1", "b", domain.SeverityMedium),
	}, t0)
	require.NoError(t, err)

	runTwo := t0.Add(24 * time.Hour)
	out, err := r.Reconcile(ctx, "t1", "run-2", []domain.Finding{finding("t1", "a", domain.SeverityMedium)}, runTwo)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Resolved)

	resolved, _ := store.List(ctx, domain.ExceptionFilter{TenantID: "t1", Status: domain.ExceptionResolved})
	require.Len(t, resolved, 1)
	assert.Equal(t, "b", resolved[0].EntityKey)
	require.NotNil(t, resolved[0].ResolvedAt)
	assert.Equal(t, runTwo, *resolved[0].ResolvedAt)
}

func TestReconcile_SweepIsScopedToTenant(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newReconciler(store)

	_, err := r.Reconcile(ctx, "t1", "run-1", []domain.Finding{finding("t1", "a", domain.SeverityMedium)}, t0)
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, "t2", "run-1", []domain.Finding{finding("t2", "a", domain.SeverityMedium)}, t0)
	require.NoError(t, err)

	// Прогон только по t2 без сработок не трогает t1
	out, err := r.Reconcile(ctx, "t2", "run-2", nil, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Resolved)

	assert.Len(t, openCount(t, store, "t1"), 1)
	assert.Empty(t, openCount(t, store, "t2"))
}

func TestReconcile_ReopenInsertsFreshRow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newReconciler(store)
	f := finding("t1", "k", domain.SeverityMedium)

	_, err := r.Reconcile(ctx, "t1", "run-1", []domain.Finding{f}, t0)
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, "t1", "run-2", nil, t0.Add(time.Hour))
	require.NoError(t, err)
	out, err := r.Reconcile(ctx, "t1", "run-3", []domain.Finding{f}, t0.Add(2*time.Hour))
	require.NoError(t, err)

	require.Len(t, out.Arising, 1)
	assert.Equal(t, domain.ChangeNew, out.Arising[0].Change)

	all, _ := store.List(ctx, domain.ExceptionFilter{TenantID: "t1"})
	require.Len(t, all, 2)
	assert.Equal(t, domain.ExceptionResolved, all[0].Status)
	assert.Equal(t, domain.ExceptionOpen, all[1].Status)
	assert.Nil(t, all[1].ResolvedAt)
	assert.NotEqual(t, all[0].ID, all[1].ID)
}

func TestReconcile_AtMostOneOpenPerKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newReconciler(store)

	runs := [][]domain.Finding{
		{finding("t1", "a", domain.SeverityMedium), finding("t1", "a", domain.SeverityLow), finding("t1", "b", domain.SeverityHigh)},
		{finding("t1", "a", domain.SeverityHigh)},
		{},
		{finding("t1", "a", domain.SeverityMedium), finding("t1", "b", domain.SeverityMedium)},
		{finding("t1", "b", domain.SeverityCritical), finding("t1", "b", domain.SeverityMedium)},
	}
	for i, fs := range runs {
		_, err := r.Reconcile(ctx, "t1", "run-"+string(rune('0'+i)), fs, t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		for key, n := range openCount(t, store, "t1") {
			assert.Equal(t, 1, n, "run %d: key %s has %d open exceptions", i, key, n)
		}
	}
}

func TestBuildPlan_CollapsesDuplicatesToMaxSeverity(t *testing.T) {
	plan := BuildPlan(nil, []domain.Finding{
		finding("t1", "k", domain.SeverityMedium),
		finding("t1", "k", domain.SeverityCritical),
		finding("t1", "k", domain.SeverityLow),
	}, "run-1", t0)

	require.Len(t, plan.Upserts, 1)
	require.Len(t, plan.Arising, 1)
	assert.Equal(t, domain.SeverityCritical, plan.Upserts[0].Severity)
	assert.Equal(t, domain.SeverityCritical, plan.Arising[0].Finding.Severity)
}

func TestPreview_DoesNotWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newReconciler(store)

	_, err := r.Reconcile(ctx, "t1", "run-1", []domain.Finding{finding("t1", "old", domain.SeverityMedium)}, t0)
	require.NoError(t, err)

	out, err := r.Preview(ctx, "t1", []domain.Finding{finding("t1", "new", domain.SeverityHigh)}, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, out.Arising, 1)
	assert.Equal(t, 1, out.Resolved)

	open, _ := store.ListOpen(ctx, "t1")
	require.Len(t, open, 1)
	assert.Equal(t, "old", open[0].EntityKey)
	assert.Equal(t, "run-1", open[0].LastRunID)
}

type failingStore struct {
	*MemoryStore
	upsertErr error
}

func (f failingStore) Upsert(ctx context.Context, ex *domain.Exception) error {
	return f.upsertErr
}

func TestReconcile_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("deadlock detected")
	r := newReconciler(failingStore{MemoryStore: NewMemoryStore(), upsertErr: boom})

	_, err := r.Reconcile(context.Background(), "t1", "run-1", []domain.Finding{finding("t1", "k", domain.SeverityMedium)}, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
