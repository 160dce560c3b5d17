package consequence

import (
	"fmt"
	"time"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
)

// Engine is the consequence state machine of one live session. It has no
// I/O and never panics on bad input. It is not safe for concurrent use; the
// owning session serialises access.
type Engine struct {
	cfg   behavior.ConsequenceThresholds
	clock behavior.Clock

	offenses        int
	seenImpatience  int
	calmTicks       int
	patientTicks    int
	delayed         bool
	delayEnd        time.Time
	warning         string
	restricted      bool
	restrictedSince time.Time
	revealed        []string
	status          visitor.AccessLevel
}

// NewEngine creates an engine in the observer tier.
func NewEngine(cfg behavior.ConsequenceThresholds, clock behavior.Clock) *Engine {
	if clock == nil {
		clock = behavior.SystemClock{}
	}
	return &Engine{
		cfg:    cfg,
		clock:  clock,
		status: visitor.LevelObserver,
	}
}

// Tick runs one evaluation and returns the feedback signals it produced.
func (e *Engine) Tick(in Input) []Signal {
	now := e.clock.Now()
	in = sanitize(in)

	var signals []Signal

	if e.delayed && !now.Before(e.delayEnd) {
		e.clearDelay()
	}

	// Each impatience event is its own offense, even when several land
	// between two ticks.
	fresh := in.ImpatienceCount > e.seenImpatience
	if fresh {
		for n := e.seenImpatience; n < in.ImpatienceCount; n++ {
			e.offenses++
			signals = append(signals, e.escalate(now)...)
		}
		e.calmTicks = 0
		e.patientTicks = 0
	} else {
		e.calmTicks++
	}
	e.seenImpatience = in.ImpatienceCount

	if e.restricted && !fresh &&
		now.Sub(e.restrictedSince) >= e.cfg.RestrictionCooldown &&
		e.calmTicks > e.cfg.ReleaseCalmTicks {
		e.restricted = false
		e.warning = ""
		signals = append(signals, Signal{Kind: SignalReleased, At: now})
	}

	if in.Patience > e.cfg.PatienceReward && !in.RecentImpatience {
		e.patientTicks++
		if e.patientTicks > e.cfg.PatienceRewardTicks {
			signals = append(signals, e.reveal(RevealPatienceReward, now)...)
		}
	} else {
		e.patientTicks = 0
	}

	if in.Curiosity > e.cfg.CuriosityReward {
		signals = append(signals, e.reveal(RevealCuriosityReward, now)...)
	}

	if next := e.deriveTier(in); next != e.status {
		e.status = next
		signals = append(signals, Signal{Kind: SignalStatusChange, Status: next, At: now})
	}

	return signals
}

func (e *Engine) escalate(now time.Time) []Signal {
	switch {
	case e.offenses == 1:
		return []Signal{{Kind: SignalImpatienceTone, At: now}}
	case e.offenses == 2:
		e.delayed = true
		e.delayEnd = now.Add(e.cfg.DelayDuration)
		if !e.restricted {
			e.warning = e.cfg.DelayMessage
		}
		return []Signal{
			{Kind: SignalImpatienceTone, At: now},
			{Kind: SignalWarning, Message: e.cfg.DelayMessage, At: now},
		}
	default:
		e.restricted = true
		e.restrictedSince = now
		e.warning = e.cfg.RestrictionMessage
		return []Signal{{Kind: SignalWarning, Message: e.cfg.RestrictionMessage, At: now}}
	}
}

func (e *Engine) clearDelay() {
	e.delayed = false
	e.delayEnd = time.Time{}
	if !e.restricted && e.warning == e.cfg.DelayMessage {
		e.warning = ""
	}
}

func (e *Engine) reveal(contentID string, now time.Time) []Signal {
	for _, id := range e.revealed {
		if id == contentID {
			return nil
		}
	}
	e.revealed = append(e.revealed, contentID)
	return []Signal{{Kind: SignalApprovalTone, Reveal: contentID, At: now}}
}

func (e *Engine) deriveTier(in Input) visitor.AccessLevel {
	if e.restricted {
		return visitor.LevelObserver
	}
	return DeriveTier(in.Patience, in.Curiosity, in.VisitCount, e.cfg)
}

// DeriveTier applies the score-based tier rule without any restriction
// override.
func DeriveTier(patience, curiosity float64, visitCount int, cfg behavior.ConsequenceThresholds) visitor.AccessLevel {
	switch {
	case patience > cfg.ConsideredPatience && curiosity > cfg.ConsideredCuriosity:
		return visitor.LevelConsidered
	case visitCount >= cfg.ReturningVisits:
		return visitor.LevelAcknowledged
	default:
		return visitor.LevelObserver
	}
}

// Trigger applies a manual consequence. contentID is required only for
// reveal_content.
func (e *Engine) Trigger(t TriggerType, contentID string) ([]Signal, error) {
	now := e.clock.Now()

	switch t {
	case TriggerDelayAccess:
		e.delayed = true
		e.delayEnd = now.Add(e.cfg.DelayDuration)
		return nil, nil
	case TriggerShowWarning:
		e.warning = e.cfg.WatchingMessage
		return []Signal{{Kind: SignalWarning, Message: e.cfg.WatchingMessage, At: now}}, nil
	case TriggerRestrictContent:
		e.restricted = true
		e.restrictedSince = now
		e.calmTicks = 0
		e.warning = e.cfg.RestrictionMessage
		signals := []Signal{{Kind: SignalWarning, Message: e.cfg.RestrictionMessage, At: now}}
		if e.status != visitor.LevelObserver {
			e.status = visitor.LevelObserver
			signals = append(signals, Signal{Kind: SignalStatusChange, Status: e.status, At: now})
		}
		return signals, nil
	case TriggerRevealContent:
		if contentID == "" {
			return nil, fmt.Errorf("reveal_content requires a content id")
		}
		return e.reveal(contentID, now), nil
	}
	return nil, fmt.Errorf("unknown consequence trigger %q", t)
}

// State returns the current consequence state. Delay fields are computed
// against the clock so an expired delay reads as cleared before the next
// tick.
func (e *Engine) State() State {
	now := e.clock.Now()

	s := State{
		AccessRestricted: e.restricted,
		RevealedContent:  append([]string{}, e.revealed...),
		CurrentStatus:    e.status,
		Offenses:         e.offenses,
	}

	warning := e.warning
	if e.delayed && now.Before(e.delayEnd) {
		end := e.delayEnd
		s.IsDelayed = true
		s.DelayEndTime = &end
		s.DelayRemainingMs = e.delayEnd.Sub(now).Milliseconds()
	} else if e.delayed && !e.restricted && warning == e.cfg.DelayMessage {
		warning = ""
	}
	if warning != "" {
		s.WarningMessage = &warning
	}
	return s
}

// ShouldDelay reports whether actions are currently held back.
func (e *Engine) ShouldDelay() bool {
	return e.delayed && e.clock.Now().Before(e.delayEnd)
}

// EffectiveTier returns the current tier with the restriction override
// applied.
func (e *Engine) EffectiveTier() visitor.AccessLevel { return e.status }

func sanitize(in Input) Input {
	in.Patience = behavior.Clamp01(in.Patience)
	in.Curiosity = behavior.Clamp01(in.Curiosity)
	if in.ImpatienceCount < 0 {
		in.ImpatienceCount = 0
	}
	if in.VisitCount < 0 {
		in.VisitCount = 0
	}
	return in
}
