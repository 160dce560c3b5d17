package behavior

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatienceFormula(t *testing.T) {
	w := DefaultThresholds().Scoring

	tests := []struct {
		name string
		snap Snapshot
		want float64
	}{
		{name: "no interaction", snap: Snapshot{}, want: 0.2},
		{name: "slow clicks", snap: Snapshot{AvgClickInterval: 3 * time.Second}, want: 0.6},
		{name: "interval above ceiling caps", snap: Snapshot{AvgClickInterval: 12 * time.Second}, want: 0.6},
		{name: "half ceiling", snap: Snapshot{AvgClickInterval: 1500 * time.Millisecond}, want: 0.4},
		{name: "fully still", snap: Snapshot{AvgClickInterval: 3 * time.Second, StillnessFraction: 1}, want: 1.0},
		{name: "penalty", snap: Snapshot{AvgClickInterval: 3 * time.Second, ImpatienceEvents: 2}, want: 0.4},
		{name: "penalty capped and clamped", snap: Snapshot{ImpatienceEvents: 40}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Patience(tt.snap, w), 1e-9)
		})
	}
}

func TestCuriosityFormula(t *testing.T) {
	w := DefaultThresholds().Scoring

	tests := []struct {
		name string
		snap Snapshot
		want float64
	}{
		{name: "nothing explored", snap: Snapshot{}, want: 0},
		{name: "five nodes", snap: Snapshot{NodesExplored: []string{"a", "b", "c", "d", "e"}}, want: 0.4},
		{name: "depth only", snap: Snapshot{DeepestScroll: 1}, want: 0.3},
		{name: "dwell ceiling", snap: Snapshot{MaxDwell: 20 * time.Second}, want: 0.3},
		{
			name: "everything",
			snap: Snapshot{NodesExplored: []string{"a", "b", "c", "d", "e", "f"}, DeepestScroll: 1, MaxDwell: time.Minute},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Curiosity(tt.snap, w), 1e-9)
		})
	}
}

func TestScoresAlwaysBounded(t *testing.T) {
	w := DefaultThresholds().Scoring
	extremes := []Snapshot{
		{AvgClickInterval: -time.Hour, StillnessFraction: -5, ImpatienceEvents: -3, DeepestScroll: -1, MaxDwell: -time.Hour},
		{AvgClickInterval: math.MaxInt64, StillnessFraction: 50, DeepestScroll: 9, MaxDwell: math.MaxInt64},
		{StillnessFraction: math.NaN(), DeepestScroll: math.NaN()},
		{StillnessFraction: math.Inf(1), DeepestScroll: math.Inf(-1)},
	}

	for _, snap := range extremes {
		s := Score(snap, w)
		assert.GreaterOrEqual(t, s.Patience, 0.0)
		assert.LessOrEqual(t, s.Patience, 1.0)
		assert.GreaterOrEqual(t, s.Curiosity, 0.0)
		assert.LessOrEqual(t, s.Curiosity, 1.0)
	}
}

func TestPatienceIncreasesWithInterval(t *testing.T) {
	w := DefaultThresholds().Scoring

	slow := Snapshot{AvgClickInterval: 3 * time.Second, ClickCount: 6}
	fast := Snapshot{AvgClickInterval: 0, ClickCount: 6}
	assert.Greater(t, Patience(slow, w), Patience(fast, w))

	prev := -1.0
	for ms := 0; ms <= 4000; ms += 250 {
		p := Patience(Snapshot{AvgClickInterval: time.Duration(ms) * time.Millisecond}, w)
		assert.GreaterOrEqual(t, p, prev)
		prev = p
	}
}

func TestDeliberateSessionScoresHigh(t *testing.T) {
	c, clock := newTestCollector(t)

	// Ten minutes of slow clicks, long pauses in pointer movement, four
	// nodes read for at least ten seconds each, and deep scrolling.
	nodes := []string{"origin", "lattice", "signal", "vault"}
	for i := 0; i < 20; i++ {
		at := clock.Advance(30 * time.Second)
		c.RecordPointerMove(at)
		c.RecordClick(at, nil)
		if i < len(nodes) {
			c.FocusNode(nodes[i], at)
			c.BlurNode(nodes[i], clock.Advance(12*time.Second))
		}
	}
	c.RecordScroll(900, 1000, time.Time{})

	metrics := Measure(c.Snapshot(clock.Now()), DefaultThresholds().Scoring)
	require.Equal(t, 0, metrics.ImpatienceEvents)
	assert.GreaterOrEqual(t, metrics.Patience, 0.7)
	assert.GreaterOrEqual(t, metrics.Curiosity, 0.8)
	assert.Len(t, metrics.NodesExplored, 4)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.1))
	assert.Equal(t, 1.0, Clamp01(1.1))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
	assert.Equal(t, 0.25, Clamp01(0.25))
}
