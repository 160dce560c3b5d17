// Package behavior holds the visitor behavior model: fingerprinting, the
// per-session event collector, the score calculator and the versioned
// threshold set that parameterises all of them.
package behavior

import (
	"errors"
	"fmt"
	"time"
)

// ThresholdsVersion identifies the compiled default threshold set.
const ThresholdsVersion = "2024-11.1"

// Thresholds is the single source of every score weight, window and tier
// threshold used by the scoring core. It is loaded once at startup and
// shared read-only.
type Thresholds struct {
	Version     string                `yaml:"version" json:"version"`
	Collector   CollectorThresholds   `yaml:"collector" json:"collector"`
	Scoring     ScoringThresholds     `yaml:"scoring" json:"scoring"`
	Consequence ConsequenceThresholds `yaml:"consequence" json:"consequence"`
	Promotion   PromotionThresholds   `yaml:"promotion" json:"promotion"`
	RateLimit   RateLimitThresholds   `yaml:"rateLimit" json:"rateLimit"`
}

type CollectorThresholds struct {
	MaxClickSamples     int           `yaml:"maxClickSamples" json:"maxClickSamples"`
	MaxScrollSamples    int           `yaml:"maxScrollSamples" json:"maxScrollSamples"`
	MaxEvents           int           `yaml:"maxEvents" json:"maxEvents"`
	ImpatienceWindow    time.Duration `yaml:"impatienceWindow" json:"impatienceWindow"`
	ImpatienceClicks    int           `yaml:"impatienceClicks" json:"impatienceClicks"`
	StillnessGap        time.Duration `yaml:"stillnessGap" json:"stillnessGap"`
	MoveDebounce        time.Duration `yaml:"moveDebounce" json:"moveDebounce"`
	RecentImpatience    time.Duration `yaml:"recentImpatience" json:"recentImpatience"`
	VelocitySamples     int           `yaml:"velocitySamples" json:"velocitySamples"`
	MaxSignificantFlush int           `yaml:"maxSignificantFlush" json:"maxSignificantFlush"`
}

type ScoringThresholds struct {
	ClickIntervalCeiling time.Duration `yaml:"clickIntervalCeiling" json:"clickIntervalCeiling"`
	ClickWeight          float64       `yaml:"clickWeight" json:"clickWeight"`
	StillnessWeight      float64       `yaml:"stillnessWeight" json:"stillnessWeight"`
	ImpatiencePenalty    float64       `yaml:"impatiencePenalty" json:"impatiencePenalty"`
	ImpatiencePenaltyCap float64       `yaml:"impatiencePenaltyCap" json:"impatiencePenaltyCap"`
	PatienceBaseline     float64       `yaml:"patienceBaseline" json:"patienceBaseline"`
	ExplorationTarget    int           `yaml:"explorationTarget" json:"explorationTarget"`
	ExplorationWeight    float64       `yaml:"explorationWeight" json:"explorationWeight"`
	DepthWeight          float64       `yaml:"depthWeight" json:"depthWeight"`
	DwellWeight          float64       `yaml:"dwellWeight" json:"dwellWeight"`
	DwellCeiling         time.Duration `yaml:"dwellCeiling" json:"dwellCeiling"`
}

type ConsequenceThresholds struct {
	TickInterval        time.Duration `yaml:"tickInterval" json:"tickInterval"`
	DelayDuration       time.Duration `yaml:"delayDuration" json:"delayDuration"`
	RestrictionCooldown time.Duration `yaml:"restrictionCooldown" json:"restrictionCooldown"`
	ReleaseCalmTicks    int           `yaml:"releaseCalmTicks" json:"releaseCalmTicks"`
	PatienceReward      float64       `yaml:"patienceReward" json:"patienceReward"`
	PatienceRewardTicks int           `yaml:"patienceRewardTicks" json:"patienceRewardTicks"`
	CuriosityReward     float64       `yaml:"curiosityReward" json:"curiosityReward"`
	ConsideredPatience  float64       `yaml:"consideredPatience" json:"consideredPatience"`
	ConsideredCuriosity float64       `yaml:"consideredCuriosity" json:"consideredCuriosity"`
	ReturningVisits     int           `yaml:"returningVisits" json:"returningVisits"`
	DelayMessage        string        `yaml:"delayMessage" json:"delayMessage"`
	RestrictionMessage  string        `yaml:"restrictionMessage" json:"restrictionMessage"`
	WatchingMessage     string        `yaml:"watchingMessage" json:"watchingMessage"`
}

// TierRequirement lists the minimums for promotion into a tier. A zero
// Nodes value means the node count is not considered.
type TierRequirement struct {
	Patience    float64 `yaml:"patience" json:"patience"`
	Curiosity   float64 `yaml:"curiosity" json:"curiosity"`
	TimeSeconds int     `yaml:"timeSeconds" json:"timeSeconds"`
	Visits      int     `yaml:"visits" json:"visits"`
	Nodes       int     `yaml:"nodes" json:"nodes"`
}

type PromotionThresholds struct {
	Acknowledged    TierRequirement `yaml:"acknowledged" json:"acknowledged"`
	Considered      TierRequirement `yaml:"considered" json:"considered"`
	PatienceWeight  float64         `yaml:"patienceWeight" json:"patienceWeight"`
	CuriosityWeight float64         `yaml:"curiosityWeight" json:"curiosityWeight"`
	TimeWeight      float64         `yaml:"timeWeight" json:"timeWeight"`
	VisitWeight     float64         `yaml:"visitWeight" json:"visitWeight"`
	AlertLow        float64         `yaml:"alertLow" json:"alertLow"`
	AlertHigh       float64         `yaml:"alertHigh" json:"alertHigh"`
	StaleAfter      time.Duration   `yaml:"staleAfter" json:"staleAfter"`
	StalePageSize   int             `yaml:"stalePageSize" json:"stalePageSize"`
	ProbabilityPage int             `yaml:"probabilityPage" json:"probabilityPage"`
	DigestPageSize  int             `yaml:"digestPageSize" json:"digestPageSize"`
	DigestWindow    time.Duration   `yaml:"digestWindow" json:"digestWindow"`
	SignalLimit     int             `yaml:"signalLimit" json:"signalLimit"`
	DigestSummary   int             `yaml:"digestSummary" json:"digestSummary"`
	NodePreview     int             `yaml:"nodePreview" json:"nodePreview"`
}

type RateLimitThresholds struct {
	MaxCalls int           `yaml:"maxCalls" json:"maxCalls"`
	Window   time.Duration `yaml:"window" json:"window"`
}

// DefaultThresholds returns the compiled threshold set.
func DefaultThresholds() *Thresholds {
	return &Thresholds{
		Version: ThresholdsVersion,
		Collector: CollectorThresholds{
			MaxClickSamples:     20,
			MaxScrollSamples:    50,
			MaxEvents:           500,
			ImpatienceWindow:    2 * time.Second,
			ImpatienceClicks:    3,
			StillnessGap:        time.Second,
			MoveDebounce:        100 * time.Millisecond,
			RecentImpatience:    30 * time.Second,
			VelocitySamples:     5,
			MaxSignificantFlush: 10,
		},
		Scoring: ScoringThresholds{
			ClickIntervalCeiling: 3 * time.Second,
			ClickWeight:          0.4,
			StillnessWeight:      0.4,
			ImpatiencePenalty:    0.1,
			ImpatiencePenaltyCap: 0.5,
			PatienceBaseline:     0.2,
			ExplorationTarget:    5,
			ExplorationWeight:    0.4,
			DepthWeight:          0.3,
			DwellWeight:          0.3,
			DwellCeiling:         10 * time.Second,
		},
		Consequence: ConsequenceThresholds{
			TickInterval:        2 * time.Second,
			DelayDuration:       3 * time.Second,
			RestrictionCooldown: 10 * time.Second,
			ReleaseCalmTicks:    3,
			PatienceReward:      0.7,
			PatienceRewardTicks: 5,
			CuriosityReward:     0.8,
			ConsideredPatience:  0.6,
			ConsideredCuriosity: 0.5,
			ReturningVisits:     2,
			DelayMessage:        "Stillness is required.",
			RestrictionMessage:  "The system has noted your impatience.",
			WatchingMessage:     "The system is watching.",
		},
		Promotion: PromotionThresholds{
			Acknowledged:    TierRequirement{Patience: 0.6, Curiosity: 0.5, TimeSeconds: 180, Visits: 2},
			Considered:      TierRequirement{Patience: 0.8, Curiosity: 0.7, TimeSeconds: 600, Visits: 5, Nodes: 3},
			PatienceWeight:  0.3,
			CuriosityWeight: 0.3,
			TimeWeight:      0.25,
			VisitWeight:     0.15,
			AlertLow:        0.7,
			AlertHigh:       0.95,
			StaleAfter:      7 * 24 * time.Hour,
			StalePageSize:   50,
			ProbabilityPage: 100,
			DigestPageSize:  50,
			DigestWindow:    24 * time.Hour,
			SignalLimit:     10,
			DigestSummary:   5,
			NodePreview:     3,
		},
		RateLimit: RateLimitThresholds{
			MaxCalls: 2,
			Window:   time.Hour,
		},
	}
}

// Validate reports the first inconsistency found in the threshold set.
func (t *Thresholds) Validate() error {
	if t == nil {
		return errors.New("thresholds are nil")
	}
	if t.Version == "" {
		return errors.New("thresholds version is required")
	}

	c := t.Collector
	if c.MaxClickSamples < 2 || c.MaxScrollSamples < 2 || c.MaxEvents < 2 {
		return fmt.Errorf("collector sample bounds must be at least 2 (clicks=%d scroll=%d events=%d)",
			c.MaxClickSamples, c.MaxScrollSamples, c.MaxEvents)
	}
	if c.ImpatienceWindow <= 0 || c.ImpatienceClicks < 1 {
		return fmt.Errorf("invalid impatience rule: window=%s clicks=%d", c.ImpatienceWindow, c.ImpatienceClicks)
	}
	if c.VelocitySamples < 2 || c.MaxSignificantFlush < 1 {
		return fmt.Errorf("invalid collector limits: velocitySamples=%d maxSignificantFlush=%d",
			c.VelocitySamples, c.MaxSignificantFlush)
	}

	s := t.Scoring
	if s.ClickIntervalCeiling <= 0 || s.DwellCeiling <= 0 || s.ExplorationTarget < 1 {
		return errors.New("scoring ceilings must be positive")
	}
	for name, w := range map[string]float64{
		"clickWeight":          s.ClickWeight,
		"stillnessWeight":      s.StillnessWeight,
		"impatiencePenalty":    s.ImpatiencePenalty,
		"impatiencePenaltyCap": s.ImpatiencePenaltyCap,
		"patienceBaseline":     s.PatienceBaseline,
		"explorationWeight":    s.ExplorationWeight,
		"depthWeight":          s.DepthWeight,
		"dwellWeight":          s.DwellWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("scoring weight %s=%v outside [0,1]", name, w)
		}
	}

	q := t.Consequence
	if q.TickInterval <= 0 || q.DelayDuration <= 0 || q.RestrictionCooldown <= 0 {
		return errors.New("consequence durations must be positive")
	}

	p := t.Promotion
	if p.AlertLow < 0 || p.AlertHigh > 1 || p.AlertLow >= p.AlertHigh {
		return fmt.Errorf("invalid alert band [%v,%v)", p.AlertLow, p.AlertHigh)
	}
	sum := p.PatienceWeight + p.CuriosityWeight + p.TimeWeight + p.VisitWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("promotion weights must sum to 1, got %v", sum)
	}
	for name, req := range map[string]TierRequirement{"acknowledged": p.Acknowledged, "considered": p.Considered} {
		if req.Patience <= 0 || req.Curiosity <= 0 || req.TimeSeconds <= 0 || req.Visits <= 0 {
			return fmt.Errorf("tier requirement %s must have positive thresholds", name)
		}
	}
	if p.StalePageSize < 1 || p.ProbabilityPage < 1 || p.DigestPageSize < 1 || p.SignalLimit < 1 {
		return errors.New("promotion page sizes must be positive")
	}

	if t.RateLimit.MaxCalls < 1 || t.RateLimit.Window <= 0 {
		return fmt.Errorf("invalid rate limit: %d per %s", t.RateLimit.MaxCalls, t.RateLimit.Window)
	}
	return nil
}
