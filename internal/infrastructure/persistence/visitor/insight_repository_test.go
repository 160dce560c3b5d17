package visitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/testutil"
)

type repos struct {
	profiles *SQLProfileRepository
	events   *SQLEventRepository
	insights *SQLInsightRepository
	signals  *SQLSignalRepository
	audit    *SQLAuditRepository
	clock    *testutil.FakeClock
}

func newRepos(t *testing.T) repos {
	t.Helper()
	db := testutil.NewTestDB(t)
	clock := testutil.NewFakeClock()
	logger := logging.NewNopLogger()
	return repos{
		profiles: NewSQLProfileRepository(db, clock, logger),
		events:   NewSQLEventRepository(db, logger),
		insights: NewSQLInsightRepository(db, logger),
		signals:  NewSQLSignalRepository(db, logger),
		audit:    NewSQLAuditRepository(db, logger),
		clock:    clock,
	}
}

func TestInsightUniquenessForUndeliveredTypes(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	p, err := r.profiles.Create(ctx, "fp_insight")
	require.NoError(t, err)

	first := &visitor.Insight{
		InsightType:     visitor.InsightThresholdAlert,
		TargetVisitorID: p.ID,
		Content:         "Approaching Acknowledged threshold. Current probability: 80%",
		Metadata:        map[string]any{"probability": 0.8},
		GeneratedAt:     r.clock.Now(),
	}
	written, err := r.insights.Insert(ctx, first)
	require.NoError(t, err)
	assert.True(t, written)

	has, err := r.insights.HasUndelivered(ctx, p.ID, visitor.InsightThresholdAlert)
	require.NoError(t, err)
	assert.True(t, has)

	dup := &visitor.Insight{InsightType: visitor.InsightThresholdAlert, TargetVisitorID: p.ID, Content: "again", GeneratedAt: r.clock.Now()}
	written, err = r.insights.Insert(ctx, dup)
	require.NoError(t, err)
	assert.False(t, written, "second undelivered alert is rejected by the partial index")

	// Once delivered, a new alert may be generated.
	require.NoError(t, r.insights.MarkDelivered(ctx, first.ID, r.clock.Advance(time.Minute)))
	written, err = r.insights.Insert(ctx, &visitor.Insight{InsightType: visitor.InsightThresholdAlert, TargetVisitorID: p.ID, Content: "later", GeneratedAt: r.clock.Now()})
	require.NoError(t, err)
	assert.True(t, written)

	// Digests are not covered by the index.
	for i := 0; i < 2; i++ {
		written, err = r.insights.Insert(ctx, &visitor.Insight{InsightType: visitor.InsightSignalDigest, TargetVisitorID: p.ID, Content: "digest", GeneratedAt: r.clock.Now()})
		require.NoError(t, err)
		assert.True(t, written)
	}

	all, err := r.insights.ListForVisitor(ctx, p.ID, true, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	pending, err := r.insights.ListForVisitor(ctx, p.ID, false, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestInsightDelivery(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	p, err := r.profiles.Create(ctx, "fp_delivery")
	require.NoError(t, err)

	in := &visitor.Insight{InsightType: visitor.InsightReEngagement, TargetVisitorID: p.ID, Content: "hello", GeneratedAt: r.clock.Now()}
	_, err = r.insights.Insert(ctx, in)
	require.NoError(t, err)

	first := r.clock.Advance(time.Minute)
	require.NoError(t, r.insights.MarkDelivered(ctx, in.ID, first))
	require.NoError(t, r.insights.MarkDelivered(ctx, in.ID, r.clock.Advance(time.Minute)))

	got, err := r.insights.FindByID(ctx, in.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Delivered)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, got.DeliveredAt.Equal(first))

	missing, err := r.insights.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.ErrorIs(t, r.insights.MarkDelivered(ctx, "nope", first), visitor.ErrInsightNotFound)
}

func TestHasGeneratedSince(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	p, err := r.profiles.Create(ctx, "fp_digest")
	require.NoError(t, err)

	_, err = r.insights.Insert(ctx, &visitor.Insight{InsightType: visitor.InsightSignalDigest, TargetVisitorID: p.ID, Content: "d", GeneratedAt: r.clock.Now()})
	require.NoError(t, err)

	now := r.clock.Advance(23 * time.Hour)
	has, err := r.insights.HasGeneratedSince(ctx, p.ID, visitor.InsightSignalDigest, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, has)

	now = r.clock.Advance(2 * time.Hour)
	has, err = r.insights.HasGeneratedSince(ctx, p.ID, visitor.InsightSignalDigest, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.False(t, has)
}
