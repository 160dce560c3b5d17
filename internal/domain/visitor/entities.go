// Package visitor defines the persisted visitor model: profiles, session
// events, scheduled insights, node signals and audit entries.
package visitor

import (
	"errors"
	"time"
)

var (
	ErrProfileNotFound = errors.New("visitor profile not found")
	ErrInsightNotFound = errors.New("insight not found")
)

// AccessLevel is a visitor's persisted tier.
type AccessLevel string

const (
	LevelObserver     AccessLevel = "observer"
	LevelAcknowledged AccessLevel = "acknowledged"
	LevelConsidered   AccessLevel = "considered"
)

// Rank orders access levels; unknown levels rank below observer.
func (l AccessLevel) Rank() int {
	switch l {
	case LevelObserver:
		return 0
	case LevelAcknowledged:
		return 1
	case LevelConsidered:
		return 2
	}
	return -1
}

func (l AccessLevel) IsValid() bool { return l.Rank() >= 0 }

// Next returns the tier above l and whether one exists.
func (l AccessLevel) Next() (AccessLevel, bool) {
	switch l {
	case LevelObserver:
		return LevelAcknowledged, true
	case LevelAcknowledged:
		return LevelConsidered, true
	}
	return "", false
}

// Label returns the display name used in insight content.
func (l AccessLevel) Label() string {
	switch l {
	case LevelAcknowledged:
		return "Acknowledged"
	case LevelConsidered:
		return "Inner Circle"
	}
	return "Observer"
}

// MaxLevel returns the higher of two access levels.
func MaxLevel(a, b AccessLevel) AccessLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// DefaultScore is the patience and curiosity score of a new profile.
const DefaultScore = 0.5

// Profile is the durable record for one fingerprint.
type Profile struct {
	ID                   string         `json:"id"`
	Fingerprint          string         `json:"fingerprint"`
	AccessLevel          AccessLevel    `json:"accessLevel"`
	PatienceScore        float64        `json:"patienceScore"`
	CuriosityScore       float64        `json:"curiosityScore"`
	DeepestScrollDepth   float64        `json:"deepestScrollDepth"`
	ImpatienceEvents     int            `json:"impatienceEvents"`
	NodesViewed          []string       `json:"nodesViewed"`
	TotalTimeSeconds     int            `json:"totalTimeSeconds"`
	VisitCount           int            `json:"visitCount"`
	PromotionProbability *float64       `json:"promotionProbability,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	FirstVisit           time.Time      `json:"firstVisit"`
	LastVisit            time.Time      `json:"lastVisit"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// ProfileUpdate is a partial update; nil fields are left untouched.
// Monotonic fields only ever move forward regardless of the values given.
type ProfileUpdate struct {
	PatienceScore      *float64
	CuriosityScore     *float64
	DeepestScrollDepth *float64
	ImpatienceEvents   *int
	NodesViewed        []string
	TotalTimeSeconds   *int
	AccessLevel        *AccessLevel
	LastVisit          *time.Time
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.PatienceScore == nil && u.CuriosityScore == nil && u.DeepestScrollDepth == nil &&
		u.ImpatienceEvents == nil && len(u.NodesViewed) == 0 && u.TotalTimeSeconds == nil &&
		u.AccessLevel == nil && u.LastVisit == nil
}

// SessionEvent is a significant event persisted from a live session.
type SessionEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	VisitorID string         `json:"visitorId"`
	Seq       int64          `json:"seq"`
	EventType string         `json:"eventType"`
	EventData map[string]any `json:"eventData,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// InsightType classifies a scheduled insight.
type InsightType string

const (
	InsightReEngagement   InsightType = "re_engagement"
	InsightThresholdAlert InsightType = "threshold_alert"
	InsightSignalDigest   InsightType = "signal_digest"
)

// Insight is a message generated for a visitor by the promotion evaluator.
type Insight struct {
	ID              string         `json:"id"`
	InsightType     InsightType    `json:"insightType"`
	TargetVisitorID string         `json:"targetVisitorId"`
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	GeneratedAt     time.Time      `json:"generatedAt"`
	Delivered       bool           `json:"delivered"`
	DeliveredAt     *time.Time     `json:"deliveredAt,omitempty"`
}

// NodeSignal is a cross-visitor signal attached to a content node.
type NodeSignal struct {
	ID             string         `json:"id"`
	NodeID         string         `json:"nodeId"`
	NodeName       string         `json:"nodeName"`
	SignalType     string         `json:"signalType"`
	SignalStrength float64        `json:"signalStrength"`
	Message        string         `json:"message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// AuditEntry records one automated decision for later review.
type AuditEntry struct {
	ID               string         `json:"id"`
	LogType          string         `json:"logType"`
	TriggerSource    string         `json:"triggerSource"`
	VisitorID        string         `json:"visitorId,omitempty"`
	InputData        map[string]any `json:"inputData,omitempty"`
	OutputData       map[string]any `json:"outputData,omitempty"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
	CreatedAt        time.Time      `json:"createdAt"`
}

const (
	AuditScheduledCycle        = "scheduled_cycle"
	AuditVisitorClassification = "visitor_classification"
)
