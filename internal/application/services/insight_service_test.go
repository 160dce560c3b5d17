package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
)

func TestInsightDelivery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	p := env.seedProfile(t, "fp_insights", 1, visitor.ProfileUpdate{})
	insight := &visitor.Insight{
		InsightType:     visitor.InsightThresholdAlert,
		TargetVisitorID: p.ID,
		Content:         "Approaching Acknowledged threshold. Current probability: 80%",
		GeneratedAt:     env.clock.Now(),
	}
	written, err := env.insights.Insert(ctx, insight)
	require.NoError(t, err)
	require.True(t, written)

	_, err = env.insightSvc.MarkDelivered(ctx, insight.ID, "someone-else")
	assert.ErrorIs(t, err, visitor.ErrInsightNotFound)

	delivered, err := env.insightSvc.MarkDelivered(ctx, insight.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, delivered.Delivered)
	require.NotNil(t, delivered.DeliveredAt)

	pending, err := env.insightSvc.ListForVisitor(ctx, p.ID, false, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.NotNil(t, pending)

	all, err := env.insightSvc.ListForVisitor(ctx, p.ID, true, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = env.insightSvc.ListForVisitor(ctx, "missing", false, 0)
	assert.ErrorIs(t, err, visitor.ErrProfileNotFound)
	_, err = env.insightSvc.MarkDelivered(ctx, "missing", "")
	assert.ErrorIs(t, err, visitor.ErrInsightNotFound)
}
