// Package consequence implements the per-session consequence state machine
// that reacts to visitor behavior with delays, restrictions, rewards and
// tier changes.
package consequence

import (
	"time"

	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
)

// Reveal identifiers for the one-time rewards.
const (
	RevealPatienceReward  = "patience_reward"
	RevealCuriosityReward = "curiosity_reward"
)

// SignalKind names a feedback signal emitted by a tick or trigger.
type SignalKind string

const (
	SignalImpatienceTone SignalKind = "impatience_tone"
	SignalWarning        SignalKind = "warning"
	SignalApprovalTone   SignalKind = "approval_tone"
	SignalStatusChange   SignalKind = "status_change"
	SignalReleased       SignalKind = "restriction_lifted"
)

// Signal is a single piece of feedback for subscribers of a session.
type Signal struct {
	Kind    SignalKind          `json:"kind"`
	Message string              `json:"message,omitempty"`
	Reveal  string              `json:"reveal,omitempty"`
	Status  visitor.AccessLevel `json:"status,omitempty"`
	At      time.Time           `json:"at"`
}

// Input carries the behavior readings for one evaluation tick.
type Input struct {
	Patience         float64
	Curiosity        float64
	ImpatienceCount  int
	RecentImpatience bool
	VisitCount       int
}

// State is the externally visible consequence state of a session.
type State struct {
	IsDelayed        bool                `json:"isDelayed"`
	DelayEndTime     *time.Time          `json:"delayEndTime,omitempty"`
	DelayRemainingMs int64               `json:"delayRemaining"`
	WarningMessage   *string             `json:"warningMessage"`
	AccessRestricted bool                `json:"accessRestricted"`
	RevealedContent  []string            `json:"revealedContent"`
	CurrentStatus    visitor.AccessLevel `json:"currentStatus"`
	Offenses         int                 `json:"offenses"`
}

// HasRevealed reports whether contentID has been revealed.
func (s State) HasRevealed(contentID string) bool {
	for _, id := range s.RevealedContent {
		if id == contentID {
			return true
		}
	}
	return false
}

// TriggerType names a manual consequence trigger.
type TriggerType string

const (
	TriggerDelayAccess     TriggerType = "delay_access"
	TriggerShowWarning     TriggerType = "show_warning"
	TriggerRestrictContent TriggerType = "restrict_content"
	TriggerRevealContent   TriggerType = "reveal_content"
)

func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerDelayAccess, TriggerShowWarning, TriggerRestrictContent, TriggerRevealContent:
		return true
	}
	return false
}
