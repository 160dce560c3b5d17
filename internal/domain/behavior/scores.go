package behavior

import (
	"math"
	"time"
)

// Snapshot is a point-in-time copy of a collector's counters. It is the
// only input of the score calculator.
type Snapshot struct {
	AvgClickInterval  time.Duration            `json:"avgClickInterval"`
	ClickCount        int                      `json:"clickCount"`
	ImpatienceEvents  int                      `json:"impatienceEvents"`
	StillnessFraction float64                  `json:"stillnessFraction"`
	NodesExplored     []string                 `json:"nodesExplored"`
	DeepestScroll     float64                  `json:"deepestScrollDepth"`
	ScrollVelocity    float64                  `json:"scrollVelocity"`
	DwellTimes        map[string]time.Duration `json:"dwellTimes"`
	MaxDwell          time.Duration            `json:"maxDwell"`
	TotalTime         time.Duration            `json:"totalTime"`
}

// Scores are the two bounded behavioral scores.
type Scores struct {
	Patience  float64 `json:"patience"`
	Curiosity float64 `json:"curiosity"`
}

// Metrics is the scored view of a snapshot exposed to callers.
type Metrics struct {
	Snapshot
	Scores
}

// Patience scores deliberate, low-frequency interaction:
// clickWeight*min(avgInterval/ceiling,1) + stillnessWeight*stillness
// - min(penalty*impatience, cap) + baseline, clamped to [0,1].
func Patience(s Snapshot, w ScoringThresholds) float64 {
	interval := math.Max(0, float64(s.AvgClickInterval))
	clickPatience := 0.0
	if w.ClickIntervalCeiling > 0 {
		clickPatience = math.Min(interval/float64(w.ClickIntervalCeiling), 1)
	}
	stillness := clamp01(s.StillnessFraction)
	impatience := math.Max(0, float64(s.ImpatienceEvents))
	penalty := math.Min(impatience*w.ImpatiencePenalty, w.ImpatiencePenaltyCap)

	return clamp01(clickPatience*w.ClickWeight + stillness*w.StillnessWeight - penalty + w.PatienceBaseline)
}

// Curiosity scores exploration breadth and depth:
// explorationWeight*min(nodes/target,1) + depthWeight*deepest
// + dwellWeight*min(maxDwell/ceiling,1), clamped to [0,1].
func Curiosity(s Snapshot, w ScoringThresholds) float64 {
	exploration := 0.0
	if w.ExplorationTarget > 0 {
		exploration = math.Min(float64(len(s.NodesExplored))/float64(w.ExplorationTarget), 1)
	}
	depth := clamp01(s.DeepestScroll)
	dwell := 0.0
	if w.DwellCeiling > 0 {
		dwell = math.Min(math.Max(0, float64(s.MaxDwell))/float64(w.DwellCeiling), 1)
	}

	return clamp01(exploration*w.ExplorationWeight + depth*w.DepthWeight + dwell*w.DwellWeight)
}

// Score computes both scores for a snapshot.
func Score(s Snapshot, w ScoringThresholds) Scores {
	return Scores{
		Patience:  Patience(s, w),
		Curiosity: Curiosity(s, w),
	}
}

// Measure scores a snapshot and returns it alongside the counters.
func Measure(s Snapshot, w ScoringThresholds) Metrics {
	return Metrics{Snapshot: s, Scores: Score(s, w)}
}

// Clamp01 bounds v to [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 { return clamp01(v) }

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
