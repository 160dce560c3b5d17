// Package promotion holds the pure rules behind tier promotion: progress
// toward the next tier, qualification, and the wording of the insights the
// evaluator generates.
package promotion

import (
	"fmt"
	"math"
	"strings"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
)

const reEngagementFallback = "The infrastructure has shifted since your last presence. New patterns emerge."

// Target returns the tier a profile at level would be promoted into and its
// requirements. ok is false at the top tier.
func Target(level visitor.AccessLevel, th behavior.PromotionThresholds) (visitor.AccessLevel, behavior.TierRequirement, bool) {
	switch level {
	case visitor.LevelAcknowledged:
		return visitor.LevelConsidered, th.Considered, true
	case visitor.LevelConsidered:
		return "", behavior.TierRequirement{}, false
	default:
		return visitor.LevelAcknowledged, th.Acknowledged, true
	}
}

// Probability is the weighted progress of a profile toward its next tier.
// Profiles already at the top tier score 1. The visit term only applies to
// observers; acknowledged visitors have it fixed at 1.
func Probability(p *visitor.Profile, th behavior.PromotionThresholds) float64 {
	if p == nil {
		return 0
	}
	_, req, ok := Target(p.AccessLevel, th)
	if !ok {
		return 1
	}

	patience := progress(p.PatienceScore, req.Patience)
	curiosity := progress(p.CuriosityScore, req.Curiosity)
	elapsed := progress(float64(p.TotalTimeSeconds), float64(req.TimeSeconds))
	visits := 1.0
	if p.AccessLevel != visitor.LevelAcknowledged {
		visits = progress(float64(p.VisitCount), float64(req.Visits))
	}

	return behavior.Clamp01(patience*th.PatienceWeight +
		curiosity*th.CuriosityWeight +
		elapsed*th.TimeWeight +
		visits*th.VisitWeight)
}

// InAlertBand reports whether probability is near, but not at, promotion.
func InAlertBand(probability float64, th behavior.PromotionThresholds) bool {
	return probability >= th.AlertLow && probability < th.AlertHigh
}

// Qualifies reports whether a profile meets every requirement of the tier
// above its current one, returning that tier.
func Qualifies(p *visitor.Profile, th behavior.PromotionThresholds) (visitor.AccessLevel, bool) {
	if p == nil {
		return "", false
	}
	next, req, ok := Target(p.AccessLevel, th)
	if !ok {
		return "", false
	}
	if p.PatienceScore < req.Patience || p.CuriosityScore < req.Curiosity ||
		p.TotalTimeSeconds < req.TimeSeconds || p.VisitCount < req.Visits {
		return "", false
	}
	if req.Nodes > 0 && len(p.NodesViewed) < req.Nodes {
		return "", false
	}
	return next, true
}

// ReEngagementContent references up to preview of the visitor's viewed nodes.
func ReEngagementContent(nodes []string, preview int) string {
	if len(nodes) == 0 || preview <= 0 {
		return reEngagementFallback
	}
	if len(nodes) > preview {
		nodes = nodes[:preview]
	}
	return fmt.Sprintf("The nodes you observed (%s) have evolved. New signals await.", strings.Join(nodes, ", "))
}

// ThresholdAlertContent announces how close a visitor is to target.
func ThresholdAlertContent(target visitor.AccessLevel, probability float64) string {
	return fmt.Sprintf("Approaching %s threshold. Current probability: %d%%", target.Label(), int(math.Round(probability*100)))
}

// DigestContent summarises the first n signals.
func DigestContent(signals []*visitor.NodeSignal, n int) string {
	if n > len(signals) {
		n = len(signals)
	}
	parts := make([]string, 0, n)
	for _, s := range signals[:n] {
		parts = append(parts, fmt.Sprintf("%s: %s", s.NodeName, s.SignalType))
	}
	return "24h Signal Digest: " + strings.Join(parts, " | ")
}

func progress(value, target float64) float64 {
	if target <= 0 {
		return 1
	}
	if math.IsNaN(value) || value <= 0 {
		return 0
	}
	return math.Min(1, value/target)
}
