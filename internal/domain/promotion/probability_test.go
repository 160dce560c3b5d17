package promotion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
)

func TestProbability(t *testing.T) {
	th := behavior.DefaultThresholds().Promotion

	tests := []struct {
		name    string
		profile visitor.Profile
		want    float64
	}{
		{
			name:    "fresh observer",
			profile: visitor.Profile{AccessLevel: visitor.LevelObserver},
			want:    0,
		},
		{
			name: "observer halfway",
			profile: visitor.Profile{
				AccessLevel:      visitor.LevelObserver,
				PatienceScore:    0.3,
				CuriosityScore:   0.25,
				TotalTimeSeconds: 90,
				VisitCount:       1,
			},
			want: 0.5,
		},
		{
			name: "observer beyond every target",
			profile: visitor.Profile{
				AccessLevel:      visitor.LevelObserver,
				PatienceScore:    0.9,
				CuriosityScore:   0.9,
				TotalTimeSeconds: 4000,
				VisitCount:       9,
			},
			want: 1,
		},
		{
			name: "acknowledged visit term fixed",
			profile: visitor.Profile{
				AccessLevel:      visitor.LevelAcknowledged,
				PatienceScore:    0.8,
				CuriosityScore:   0.7,
				TotalTimeSeconds: 0,
				VisitCount:       0,
			},
			want: 0.75,
		},
		{
			name:    "considered",
			profile: visitor.Profile{AccessLevel: visitor.LevelConsidered},
			want:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.profile
			assert.InDelta(t, tt.want, Probability(&p, th), 1e-9)
		})
	}
	assert.Equal(t, 0.0, Probability(nil, th))
}

func TestInAlertBand(t *testing.T) {
	th := behavior.DefaultThresholds().Promotion
	assert.False(t, InAlertBand(0.69, th))
	assert.True(t, InAlertBand(0.7, th))
	assert.True(t, InAlertBand(0.9499, th))
	assert.False(t, InAlertBand(0.95, th))
}

func TestQualifies(t *testing.T) {
	th := behavior.DefaultThresholds().Promotion

	observer := &visitor.Profile{
		AccessLevel: visitor.LevelObserver, PatienceScore: 0.6, CuriosityScore: 0.5,
		TotalTimeSeconds: 180, VisitCount: 2,
	}
	next, ok := Qualifies(observer, th)
	assert.True(t, ok)
	assert.Equal(t, visitor.LevelAcknowledged, next)

	observer.VisitCount = 1
	_, ok = Qualifies(observer, th)
	assert.False(t, ok)

	ack := &visitor.Profile{
		AccessLevel: visitor.LevelAcknowledged, PatienceScore: 0.85, CuriosityScore: 0.75,
		TotalTimeSeconds: 700, VisitCount: 5, NodesViewed: []string{"a", "b"},
	}
	_, ok = Qualifies(ack, th)
	assert.False(t, ok, "considered needs three nodes")

	ack.NodesViewed = append(ack.NodesViewed, "c")
	next, ok = Qualifies(ack, th)
	assert.True(t, ok)
	assert.Equal(t, visitor.LevelConsidered, next)

	_, ok = Qualifies(&visitor.Profile{AccessLevel: visitor.LevelConsidered, PatienceScore: 1, CuriosityScore: 1}, th)
	assert.False(t, ok)
}

func TestInsightContent(t *testing.T) {
	assert.Equal(t,
		"The nodes you observed (origin, lattice, signal) have evolved. New signals await.",
		ReEngagementContent([]string{"origin", "lattice", "signal", "vault"}, 3))
	assert.Equal(t,
		"The infrastructure has shifted since your last presence. New patterns emerge.",
		ReEngagementContent(nil, 3))

	assert.Equal(t, "Approaching Acknowledged threshold. Current probability: 82%",
		ThresholdAlertContent(visitor.LevelAcknowledged, 0.8249))
	assert.Equal(t, "Approaching Inner Circle threshold. Current probability: 71%",
		ThresholdAlertContent(visitor.LevelConsidered, 0.7061))

	signals := []*visitor.NodeSignal{
		{NodeName: "a", SignalType: "x"},
		{NodeName: "b", SignalType: "y"},
	}
	assert.Equal(t, "24h Signal Digest: a: x | b: y", DigestContent(signals, 5))
	assert.Equal(t, "24h Signal Digest: a: x", DigestContent(signals, 1))
}
