package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
)

func TestClassifierPromotesOneTier(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	p := env.seedProfile(t, "fp_classify", 2, visitor.ProfileUpdate{
		PatienceScore:    ptr(0.85),
		CuriosityScore:   ptr(0.75),
		TotalTimeSeconds: ptr(700),
		NodesViewed:      []string{"a", "b", "c"},
	})

	res, err := env.classifier.Classify(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, res.LevelChanged)
	assert.Equal(t, visitor.LevelObserver, res.PreviousLevel)
	assert.Equal(t, visitor.LevelAcknowledged, res.CurrentLevel)

	// Considered needs five visits.
	res, err = env.classifier.Classify(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, res.LevelChanged)
	assert.Equal(t, visitor.LevelAcknowledged, res.CurrentLevel)
	assert.Equal(t, "No threshold crossed", res.Reason)

	stored, err := env.profiles.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, visitor.LevelAcknowledged, stored.AccessLevel)

	entries, err := env.audit.ListByType(ctx, visitor.AuditVisitorClassification, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestClassifierNeverDemotes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	p := env.seedProfile(t, "fp_top", 1, visitor.ProfileUpdate{
		AccessLevel:   ptr(visitor.LevelConsidered),
		PatienceScore: ptr(0.0),
	})

	res, err := env.classifier.Classify(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, res.LevelChanged)
	assert.Equal(t, visitor.LevelConsidered, res.CurrentLevel)

	_, err = env.classifier.Classify(ctx, "missing")
	assert.ErrorIs(t, err, visitor.ErrProfileNotFound)
}
