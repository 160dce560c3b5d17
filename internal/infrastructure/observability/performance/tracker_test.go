package performance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerLifecycle(t *testing.T) {
	tr := NewTracker(nil, nil)

	m := tr.StartOperation("session:flush", "system")
	m.AddMetadata("events", 4)
	m.Complete()
	m.Complete()

	recent := tr.GetRecentMetrics("session:", time.Minute)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].Success)
	assert.Equal(t, 4, recent[0].Metadata["events"])
	assert.Empty(t, tr.GetRecentMetrics("scheduler:", time.Minute))
	assert.Equal(t, 0, tr.GetOverallStats()["activeOperations"])
}

func TestHealth(t *testing.T) {
	tr := NewTracker(&TrackerConfig{MaxMarkers: 10, SlowThreshold: time.Second, CriticalThreshold: time.Second}, nil)
	assert.Equal(t, HealthUnknown, tr.Health())

	for i := 0; i < 5; i++ {
		tr.StartOperation("http:visit", "system").Complete()
	}
	assert.Equal(t, HealthHealthy, tr.Health())

	failed := tr.StartOperation("http:visit", "system")
	failed.SetError(errors.New("boom"))
	failed.Complete()
	assert.Equal(t, HealthUnhealthy, tr.Health())
}

func TestTrackerBoundsRetainedMarkers(t *testing.T) {
	tr := NewTracker(&TrackerConfig{MaxMarkers: 3, SlowThreshold: time.Second, CriticalThreshold: time.Second}, nil)
	for i := 0; i < 7; i++ {
		tr.StartOperation("op", "system").Complete()
	}
	assert.Len(t, tr.GetRecentMetrics("", time.Minute), 3)
}
