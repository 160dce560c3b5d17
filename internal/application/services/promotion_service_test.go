package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
)

// seedEvaluatorFixture creates one stale acknowledged visitor, one observer
// close to promotion and one considered member with a fresh node signal.
func seedEvaluatorFixture(t *testing.T, env *testEnv) (stale, near, member *visitor.Profile) {
	t.Helper()

	stale = env.seedProfile(t, "fp_stale", 1, visitor.ProfileUpdate{
		AccessLevel: ptr(visitor.LevelAcknowledged),
		NodesViewed: []string{"origin", "lattice"},
	})
	near = env.seedProfile(t, "fp_near", 1, visitor.ProfileUpdate{
		PatienceScore:    ptr(0.6),
		CuriosityScore:   ptr(0.5),
		TotalTimeSeconds: ptr(180),
	})
	member = env.seedProfile(t, "fp_member", 1, visitor.ProfileUpdate{
		AccessLevel: ptr(visitor.LevelConsidered),
	})

	env.clock.Advance(8 * 24 * time.Hour)
	_, err := env.signalSvc.Record(context.Background(), SignalRequest{NodeID: "n-origin", NodeName: "origin", SignalType: "surge", SignalStrength: 0.8})
	require.NoError(t, err)
	return stale, near, member
}

func TestPromotionCycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	stale, near, member := seedEvaluatorFixture(t, env)

	summary, err := env.promotion.Run(ctx, TriggerManual)
	require.NoError(t, err)
	assert.True(t, summary.Success)

	want := CycleResults{
		ProfilesProcessed:             3,
		InsightsGenerated:             3,
		StaleVisitorsProcessed:        1,
		ThresholdAlertsGenerated:      1,
		PromotionProbabilitiesUpdated: 2,
		DigestsGenerated:              1,
		Errors:                        []string{},
	}
	if diff := cmp.Diff(want, summary.Results); diff != "" {
		t.Fatalf("cycle results mismatch (-want +got):\n%s", diff)
	}

	reEngagement, err := env.insightSvc.ListForVisitor(ctx, stale.ID, false, 10)
	require.NoError(t, err)
	require.Len(t, reEngagement, 1)
	assert.Equal(t, visitor.InsightReEngagement, reEngagement[0].InsightType)
	assert.Equal(t, "The nodes you observed (lattice, origin) have evolved. New signals await.", reEngagement[0].Content)

	alerts, err := env.insightSvc.ListForVisitor(ctx, near.ID, false, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, visitor.InsightThresholdAlert, alerts[0].InsightType)
	assert.True(t, strings.HasPrefix(alerts[0].Content, "Approaching Acknowledged threshold. Current probability: 9"))

	digests, err := env.insightSvc.ListForVisitor(ctx, member.ID, false, 10)
	require.NoError(t, err)
	require.Len(t, digests, 1)
	assert.Equal(t, "24h Signal Digest: origin: surge", digests[0].Content)

	p, err := env.profiles.FindByID(ctx, near.ID)
	require.NoError(t, err)
	require.NotNil(t, p.PromotionProbability)
	assert.InDelta(t, 0.925, *p.PromotionProbability, 1e-9)

	entries, err := env.audit.ListByType(ctx, visitor.AuditScheduledCycle, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, TriggerManual, entries[0].TriggerSource)

	require.Len(t, env.reporter.reports, 1)
	assert.Equal(t, 3, env.reporter.reports[0].InsightsGenerated)
}

func TestPromotionCycleRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	stale, _, _ := seedEvaluatorFixture(t, env)

	_, err := env.promotion.Run(ctx, TriggerCron)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	again, err := env.promotion.Run(ctx, TriggerCron)
	require.NoError(t, err)
	assert.Zero(t, again.Results.InsightsGenerated)
	assert.Zero(t, again.Results.StaleVisitorsProcessed)
	assert.Zero(t, again.Results.ThresholdAlertsGenerated)
	assert.Zero(t, again.Results.DigestsGenerated)
	assert.Equal(t, 2, again.Results.PromotionProbabilitiesUpdated)
	assert.Empty(t, again.Results.Errors)

	// Delivering the re-engagement insight allows a new one.
	pending, err := env.insightSvc.ListForVisitor(ctx, stale.ID, false, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = env.insightSvc.MarkDelivered(ctx, pending[0].ID, stale.ID)
	require.NoError(t, err)

	third, err := env.promotion.Run(ctx, TriggerCron)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Results.StaleVisitorsProcessed)

	all, err := env.insightSvc.ListForVisitor(ctx, stale.ID, true, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type failingSignals struct{ visitor.SignalRepository }

func (failingSignals) ListSince(context.Context, time.Time, int) ([]*visitor.NodeSignal, error) {
	return nil, errors.New("signals unavailable")
}

func TestPromotionCycleCollectsErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedEvaluatorFixture(t, env)

	svc := NewPromotionService(env.profiles, env.insights, failingSignals{}, env.audit, nil,
		env.thresholds, env.clock, env.promotion.logger, env.promotion.perfTracker)

	summary, err := svc.Run(ctx, TriggerManual)
	require.NoError(t, err)
	assert.True(t, summary.Success)
	require.Len(t, summary.Results.Errors, 1)
	assert.Contains(t, summary.Results.Errors[0], "signals unavailable")
	assert.Equal(t, 1, summary.Results.StaleVisitorsProcessed)
	assert.Equal(t, 1, summary.Results.ThresholdAlertsGenerated)
}

func TestPromotionCycleStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.promotion.Run(ctx, TriggerManual)
	assert.ErrorIs(t, err, context.Canceled)
}
